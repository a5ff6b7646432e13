package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initNotifyMetrics() {
	r.NotificationsSentTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldgate_notifications_sent_total",
			Help: "Total notifications delivered, by channel",
		},
		[]string{"channel"},
	)

	r.NotificationsFailedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldgate_notifications_failed_total",
			Help: "Total notifications that exhausted their retries, by channel",
		},
		[]string{"channel"},
	)

	r.NotificationAttempts = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldgate_notification_attempts",
			Help:    "Delivery attempts per notification, by channel",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
		[]string{"channel"},
	)
}
