package v1

import (
	"errors"
	"net/http"

	"storefront-core/internal/domain"
	"storefront-core/internal/usecase"
	"storefront-core/pkg/utils"
)

// AdminCouponHandler handles admin coupon management endpoints.
type AdminCouponHandler struct {
	couponUC *usecase.CouponUsecase
}

func NewAdminCouponHandler(uc *usecase.CouponUsecase) *AdminCouponHandler {
	return &AdminCouponHandler{couponUC: uc}
}

// writeCouponError reports a missing coupon as 404. At checkout the same
// error means the code does not apply and stays a 422.
func writeCouponError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrCouponNotFound) {
		utils.WriteErrorBody(w, http.StatusNotFound, utils.ErrorBody{Error: "coupon not found", Code: domain.ErrCouponNotFound.Code})
		return
	}
	writeError(w, r, err)
}

// ListCoupons returns a page of coupons, newest first.
// GET /api/v1/admin/coupons?page=1&limit=20
func (h *AdminCouponHandler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)

	coupons, total, err := h.couponUC.ListCoupons(r.Context(), limit, (page-1)*limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"coupons": coupons,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

// POST /api/v1/admin/coupons
func (h *AdminCouponHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var in usecase.CouponInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	coupon, err := h.couponUC.CreateCoupon(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, coupon)
}

// GET /api/v1/admin/coupons/{id}
func (h *AdminCouponHandler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	coupon, err := h.couponUC.GetCoupon(r.Context(), r.PathValue("id"))
	if err != nil {
		writeCouponError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, coupon)
}

// PUT /api/v1/admin/coupons/{id}
func (h *AdminCouponHandler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var in usecase.CouponInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	coupon, err := h.couponUC.UpdateCoupon(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeCouponError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, coupon)
}

// DELETE /api/v1/admin/coupons/{id}
func (h *AdminCouponHandler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.couponUC.DeleteCoupon(r.Context(), r.PathValue("id")); err != nil {
		writeCouponError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
