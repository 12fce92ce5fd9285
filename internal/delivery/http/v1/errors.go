package v1

import (
	"errors"
	"net/http"

	"storefront-core/internal/domain"
	"storefront-core/pkg/logger"
	"storefront-core/pkg/utils"
)

// statusFor maps a domain error to the HTTP status it is reported with.
func statusFor(err error) int {
	if errors.Is(err, domain.ErrGatewayUnavailable) {
		return http.StatusBadGateway
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindCoupon:
		return http.StatusUnprocessableEntity
	case domain.KindPayment:
		return http.StatusPaymentRequired
	case domain.KindRule, domain.KindMismatch:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUntrusted:
		return http.StatusUnauthorized
	case domain.KindPersistence:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError is the single place rejected requests are rendered. Foreign
// errors are logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	var de *domain.Error
	if !errors.As(err, &de) {
		logger.WithContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("unhandled error")
		utils.WriteErrorBody(w, status, utils.ErrorBody{Error: "internal server error", Code: "internal"})
		return
	}
	if status >= http.StatusInternalServerError {
		logger.WithContext(r.Context()).Error().Err(err).Str("code", de.Code).Msg("request failed")
	}

	utils.WriteErrorBody(w, status, utils.ErrorBody{
		Error:         de.Message,
		Code:          de.Code,
		CurrentStatus: string(de.CurrentStatus),
	})
}

func badRequest(w http.ResponseWriter, message string) {
	utils.WriteErrorBody(w, http.StatusBadRequest, utils.ErrorBody{Error: message, Code: "bad_request"})
}

func currentUser(r *http.Request) *domain.User {
	user, _ := r.Context().Value(domain.UserContextKey).(*domain.User)
	return user
}
