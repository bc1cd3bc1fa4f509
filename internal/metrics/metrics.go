package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ReminderTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keepsake_reminder_ticks_total",
			Help: "Reminder check cycles by result (ok, error, skipped)",
		},
		[]string{"result"},
	)
	RemindersDispatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keepsake_reminders_dispatched_total",
			Help: "Due reminders handed to the fan-out sender",
		},
	)
	RemindersUnparseable = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keepsake_reminders_unparseable_total",
			Help: "Reminder candidates skipped because reminder_time could not be parsed",
		},
	)
	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "keepsake_reminder_tick_duration_seconds",
			Help:    "Duration of a reminder check cycle",
			Buckets: prometheus.DefBuckets,
		},
	)
	PushDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keepsake_push_deliveries_total",
			Help: "Push delivery attempts by outcome (delivered, expired, failed)",
		},
		[]string{"outcome"},
	)
	SubscriptionsPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keepsake_push_subscriptions_pruned_total",
			Help: "Push subscriptions deleted after the push service reported them gone",
		},
	)
)

func init() {
	prometheus.MustRegister(ReminderTicks)
	prometheus.MustRegister(RemindersDispatched)
	prometheus.MustRegister(RemindersUnparseable)
	prometheus.MustRegister(TickDuration)
	prometheus.MustRegister(PushDeliveries)
	prometheus.MustRegister(SubscriptionsPruned)
}
