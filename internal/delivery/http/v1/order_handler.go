package v1

import (
	"net/http"
	"strings"

	"storefront-core/internal/domain"
	"storefront-core/internal/usecase"
	"storefront-core/pkg/utils"
)

// OrderHandler serves the customer-facing order endpoints. Guests prove
// ownership with the checkout email or phone; signed-in customers with their
// session token.
type OrderHandler struct {
	orderUC      *usecase.OrderUsecase
	aftersalesUC *usecase.AftersalesUsecase
}

func NewOrderHandler(orderUC *usecase.OrderUsecase, aftersalesUC *usecase.AftersalesUsecase) *OrderHandler {
	return &OrderHandler{orderUC: orderUC, aftersalesUC: aftersalesUC}
}

type ownerFields struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func proofFor(r *http.Request, f ownerFields) usecase.OwnerProof {
	proof := usecase.OwnerProof{Email: f.Email, Phone: f.Phone}
	if user := currentUser(r); user != nil {
		proof.UserID = user.ID
	}
	return proof
}

// GET /api/v1/orders/track/{id}
func (h *OrderHandler) Track(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderUC.Track(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, order)
}

// GET /api/v1/orders?email=&phone=
func (h *OrderHandler) FindByIdentity(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if email == "" && phone == "" {
		if user := currentUser(r); user != nil {
			email = user.Email
		}
	}

	orders, err := h.orderUC.FindByIdentity(r.Context(), email, phone)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"total":  len(orders),
	})
}

type updateAddressReq struct {
	ownerFields
	Address domain.Address `json:"shippingAddress"`
}

// PUT /api/v1/orders/{id}/address
func (h *OrderHandler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	var req updateAddressReq
	if err := utils.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	order, err := h.orderUC.UpdateAddress(r.Context(), r.PathValue("id"), proofFor(r, req.ownerFields), req.Address)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, order)
}

type cancelReq struct {
	ownerFields
	Reason string `json:"reason"`
}

// POST /api/v1/orders/{id}/cancel
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelReq
	if err := utils.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	order, err := h.aftersalesUC.Cancel(r.Context(), r.PathValue("id"), proofFor(r, req.ownerFields), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, order)
}

type returnReq struct {
	ownerFields
	usecase.ReturnReq
}

// POST /api/v1/orders/{id}/returns
func (h *OrderHandler) RequestReturn(w http.ResponseWriter, r *http.Request) {
	var req returnReq
	if err := utils.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	ret, err := h.aftersalesUC.RequestReturn(r.Context(), r.PathValue("id"), proofFor(r, req.ownerFields), req.ReturnReq)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, ret)
}
