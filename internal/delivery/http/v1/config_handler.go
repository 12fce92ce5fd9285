package v1

import (
	"fmt"
	"net/http"
	"time"

	"storefront-core/internal/domain"
	"storefront-core/internal/usecase"
	"storefront-core/pkg/cache"
	"storefront-core/pkg/utils"
)

const enumsCacheKey = "system:config:enums"

type ConfigHandler struct {
	cache      cache.CacheService
	checkoutUC *usecase.CheckoutUsecase
	shipping   domain.Money
	ttl        time.Duration
}

func NewConfigHandler(c cache.CacheService, checkoutUC *usecase.CheckoutUsecase, shipping domain.Money, ttl time.Duration) *ConfigHandler {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ConfigHandler{cache: c, checkoutUC: checkoutUC, shipping: shipping, ttl: ttl}
}

// GET /api/v1/config/enums
func (h *ConfigHandler) GetEnums(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(h.ttl.Seconds())))

	if val, found := h.cache.Get(enumsCacheKey); found {
		utils.WriteJSON(w, http.StatusOK, val)
		return
	}

	transitions := make(map[domain.OrderStatus][]domain.OrderStatus, len(domain.OrderStatuses))
	for _, s := range domain.OrderStatuses {
		transitions[s] = usecase.NextStatuses(s)
	}

	response := map[string]interface{}{
		"orderStatuses":     domain.OrderStatuses,
		"paymentStatuses":   domain.PaymentStatuses,
		"paymentMethods":    h.checkoutUC.Methods(),
		"returnReasons":     domain.ReturnReasons,
		"statusTransitions": transitions,
		"shippingCharge":    h.shipping,
		"returnWindowDays":  int(domain.ReturnWindow.Hours() / 24),
	}

	h.cache.Set(enumsCacheKey, response, h.ttl)
	utils.WriteJSON(w, http.StatusOK, response)
}
