package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	SubscriptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsletter_subscriptions_total",
			Help: "Newsletter subscribe attempts by result.",
		},
		[]string{"result"},
	)

	ConfirmationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsletter_confirmations_total",
			Help: "Newsletter confirmation attempts by result.",
		},
		[]string{"result"},
	)

	UnsubscribesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsletter_unsubscribes_total",
			Help: "Newsletter unsubscribe attempts by result.",
		},
		[]string{"result"},
	)

	EmailsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsletter_emails_dispatched_total",
			Help: "Mails handed to the mail function, by kind and result.",
		},
		[]string{"kind", "result"},
	)

	DiscountValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discount_validations_total",
			Help: "Discount code validations by result.",
		},
		[]string{"result"},
	)

	DiscountRedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discount_redemptions_total",
			Help: "Discount code applications by result.",
		},
		[]string{"result"},
	)
)

// MustRegister registers every collector with the default registry and
// attaches the service label.
func MustRegister(serviceName string) {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, prometheus.DefaultRegisterer)
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		SubscriptionsTotal,
		ConfirmationsTotal,
		UnsubscribesTotal,
		EmailsDispatchedTotal,
		DiscountValidationsTotal,
		DiscountRedemptionsTotal,
	)
}
