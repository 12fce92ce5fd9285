package v1

import (
	"net/http"
	"strconv"
	"strings"

	"storefront-core/internal/domain"
	"storefront-core/internal/usecase"
	"storefront-core/pkg/utils"
)

type AdminOrderHandler struct {
	orderUC      *usecase.OrderUsecase
	aftersalesUC *usecase.AftersalesUsecase
}

func NewAdminOrderHandler(orderUC *usecase.OrderUsecase, aftersalesUC *usecase.AftersalesUsecase) *AdminOrderHandler {
	return &AdminOrderHandler{orderUC: orderUC, aftersalesUC: aftersalesUC}
}

func pagination(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

// GET /api/v1/admin/orders?page=&limit=&status=&payment_status=&payment_method=&search=
func (h *AdminOrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)
	q := r.URL.Query()

	filter := domain.OrderFilter{
		Page:          page,
		Limit:         limit,
		Status:        domain.OrderStatus(q.Get("status")),
		PaymentStatus: domain.PaymentStatus(q.Get("payment_status")),
		PaymentMethod: domain.PaymentMethod(q.Get("payment_method")),
		Search:        strings.TrimSpace(q.Get("search")),
	}

	orders, total, err := h.orderUC.ListOrders(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"total":  total,
		"page":   page,
		"limit":  limit,
	})
}

// GET /api/v1/admin/orders/{id}
func (h *AdminOrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderUC.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, order)
}

// PATCH /api/v1/admin/orders/{id}/status
func (h *AdminOrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status domain.OrderStatus `json:"status"`
		Note   string             `json:"note"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	var actorID *string
	if user := currentUser(r); user != nil {
		id := user.ID
		actorID = &id
	}
	var reason *string
	if note := strings.TrimSpace(req.Note); note != "" {
		reason = &note
	}

	order, err := h.orderUC.UpdateOrderStatus(r.Context(), r.PathValue("id"), req.Status, reason, actorID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, order)
}

// GET /api/v1/admin/orders/{id}/history
func (h *AdminOrderHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.orderUC.GetOrderHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, history)
}

// GET /api/v1/admin/orders/{id}/returns
func (h *AdminOrderHandler) ListReturns(w http.ResponseWriter, r *http.Request) {
	returns, err := h.aftersalesUC.ListReturns(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, returns)
}
