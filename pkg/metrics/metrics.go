package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ordersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "orders_created_total",
		Help:      "Orders durably created, by payment method.",
	}, []string{"method"})

	settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "settlements_total",
		Help:      "Settlement outcomes reported by payment methods.",
	}, []string{"method", "outcome"})

	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "order_transitions_total",
		Help:      "Applied order status transitions.",
	}, []string{"from", "to"})

	notificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "notifications_failed_total",
		Help:      "Order events that could not be dispatched.",
	}, []string{"event"})

	httpRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storefront",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "status"})

	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "http_rate_limited_total",
		Help:      "Requests rejected by the per-client rate limiter.",
	})
)

func OrderCreated(method string) {
	ordersCreated.WithLabelValues(method).Inc()
}

// Settlement outcomes: succeeded, failed, abandoned, mismatch, duplicate, closed, untrusted.
func Settlement(method, outcome string) {
	settlements.WithLabelValues(method, outcome).Inc()
}

func Transition(from, to string) {
	transitions.WithLabelValues(from, to).Inc()
}

func NotificationFailed(event string) {
	notificationsFailed.WithLabelValues(event).Inc()
}

func HTTPRequest(route, status string, d time.Duration) {
	httpRequests.WithLabelValues(route, status).Observe(d.Seconds())
}

func RateLimited() {
	rateLimited.Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
