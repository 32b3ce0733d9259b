package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	ClaimsTotal         = prometheus.NewCounter(prometheus.CounterOpts{Name: "buyback_claims_total", Help: "Buybacks successfully claimed"})
	ClaimsRefused       = prometheus.NewCounter(prometheus.CounterOpts{Name: "buyback_claims_refused_total", Help: "Claims refused (sold out, limits, duplicates)"})
	ResponsesTotal      = prometheus.NewCounter(prometheus.CounterOpts{Name: "buyback_responses_total", Help: "Step responses submitted"})
	ModerationDecisions = prometheus.NewCounter(prometheus.CounterOpts{Name: "buyback_moderation_decisions_total", Help: "Moderation decisions applied"})
	RemindersSent       = prometheus.NewCounter(prometheus.CounterOpts{Name: "buyback_reminders_sent_total", Help: "Reminder notifications delivered"})
	Expirations         = prometheus.NewCounter(prometheus.CounterOpts{Name: "buyback_expirations_total", Help: "Buybacks expired by step timeout"})
	PayoutsCreated      = prometheus.NewCounter(prometheus.CounterOpts{Name: "buyback_payouts_created_total", Help: "Payout records created"})
)

// Handler exposes /metrics with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			ClaimsTotal,
			ClaimsRefused,
			ResponsesTotal,
			ModerationDecisions,
			RemindersSent,
			Expirations,
			PayoutsCreated,
		)
	})
	return promhttp.Handler()
}
