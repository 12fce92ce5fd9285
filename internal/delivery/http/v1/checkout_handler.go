package v1

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"storefront-core/internal/domain"
	"storefront-core/internal/usecase"
	"storefront-core/pkg/utils"
)

// maxWebhookBody caps gateway callback payloads.
const maxWebhookBody = 64 << 10

type CheckoutHandler struct {
	checkoutUC *usecase.CheckoutUsecase
}

func NewCheckoutHandler(uc *usecase.CheckoutUsecase) *CheckoutHandler {
	return &CheckoutHandler{checkoutUC: uc}
}

// POST /api/v1/checkout/quote
func (h *CheckoutHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req usecase.QuoteReq
	if err := utils.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	quote, err := h.checkoutUC.Quote(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, quote)
}

// POST /api/v1/checkout
//
// The idempotency key may come in the body or the Idempotency-Key header.
// A signed-in customer's orders are attributed to the token subject.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req usecase.CheckoutReq
	if err := utils.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}
	if user := currentUser(r); user != nil {
		id := user.ID
		req.Contact.UserID = &id
	} else {
		req.Contact.UserID = nil
	}

	res, err := h.checkoutUC.Checkout(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusAccepted
	if res.Order != nil {
		status = http.StatusCreated
	}
	utils.WriteJSON(w, status, res)
}

// GET /api/v1/checkout/{token}
func (h *CheckoutHandler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	res, err := h.checkoutUC.PaymentStatus(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

// POST /api/v1/payments/{method}/webhook
//
// Any non-2xx answer makes the gateway redeliver the callback.
func (h *CheckoutHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	method := domain.PaymentMethod(strings.ToLower(r.PathValue("method")))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		badRequest(w, "could not read callback body")
		return
	}

	order, err := h.checkoutUC.HandleCallback(r.Context(), method, body, r.Header)
	if err != nil {
		// A verified callback that closed the session is acknowledged so the
		// gateway stops redelivering it.
		if state, ok := closedOutcome(err); ok {
			var de *domain.Error
			errors.As(err, &de)
			utils.WriteJSON(w, http.StatusOK, map[string]string{
				"status": string(state),
				"code":   de.Code,
				"reason": de.Error(),
			})
			return
		}
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"status":     string(domain.IntentSettled),
		"orderId":    order.ID,
		"trackingId": order.TrackingID,
	})
}

func closedOutcome(err error) (domain.IntentState, bool) {
	switch {
	case errors.Is(err, domain.ErrPaymentAbandoned):
		return domain.IntentAbandoned, true
	case errors.Is(err, domain.ErrPaymentFailed), errors.Is(err, domain.ErrSettlementMismatch):
		return domain.IntentFailed, true
	}
	return "", false
}

// GET /api/v1/checkout/methods
func (h *CheckoutHandler) Methods(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"paymentMethods": h.checkoutUC.Methods(),
	})
}
