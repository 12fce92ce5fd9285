package v1

import (
	"net/http"

	"storefront-core/internal/delivery/http/middleware"
)

type Handlers struct {
	Checkout    *CheckoutHandler
	Order       *OrderHandler
	AdminOrder  *AdminOrderHandler
	AdminCoupon *AdminCouponHandler
	Config      *ConfigHandler
}

// RegisterRoutes mounts the v1 API on mux.
func RegisterRoutes(mux *http.ServeMux, h Handlers) {
	guest := func(fn http.HandlerFunc) http.Handler {
		return middleware.OptionalAuth(fn)
	}
	admin := func(fn http.HandlerFunc) http.Handler {
		return middleware.AuthMiddleware(middleware.AdminMiddleware(fn))
	}

	mux.HandleFunc("GET /api/v1/config/enums", h.Config.GetEnums)

	// Checkout
	mux.HandleFunc("GET /api/v1/checkout/methods", h.Checkout.Methods)
	mux.HandleFunc("POST /api/v1/checkout/quote", h.Checkout.Quote)
	mux.Handle("POST /api/v1/checkout", guest(h.Checkout.Checkout))
	mux.HandleFunc("GET /api/v1/checkout/{token}", h.Checkout.PaymentStatus)
	mux.HandleFunc("POST /api/v1/payments/{method}/webhook", h.Checkout.Webhook)

	// Orders
	mux.HandleFunc("GET /api/v1/orders/track/{id}", h.Order.Track)
	mux.Handle("GET /api/v1/orders", guest(h.Order.FindByIdentity))
	mux.Handle("PUT /api/v1/orders/{id}/address", guest(h.Order.UpdateAddress))
	mux.Handle("POST /api/v1/orders/{id}/cancel", guest(h.Order.Cancel))
	mux.Handle("POST /api/v1/orders/{id}/returns", guest(h.Order.RequestReturn))

	// Admin
	mux.Handle("GET /api/v1/admin/orders", admin(h.AdminOrder.ListOrders))
	mux.Handle("GET /api/v1/admin/orders/{id}", admin(h.AdminOrder.GetOrder))
	mux.Handle("PATCH /api/v1/admin/orders/{id}/status", admin(h.AdminOrder.UpdateStatus))
	mux.Handle("GET /api/v1/admin/orders/{id}/history", admin(h.AdminOrder.GetHistory))
	mux.Handle("GET /api/v1/admin/orders/{id}/returns", admin(h.AdminOrder.ListReturns))

	mux.Handle("GET /api/v1/admin/coupons", admin(h.AdminCoupon.ListCoupons))
	mux.Handle("GET /api/v1/admin/coupons/{id}", admin(h.AdminCoupon.GetCoupon))
	mux.Handle("POST /api/v1/admin/coupons", admin(h.AdminCoupon.CreateCoupon))
	mux.Handle("PUT /api/v1/admin/coupons/{id}", admin(h.AdminCoupon.UpdateCoupon))
	mux.Handle("DELETE /api/v1/admin/coupons/{id}", admin(h.AdminCoupon.DeleteCoupon))
}
