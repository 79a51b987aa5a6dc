package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChargesTotal counts charge attempts by outcome
	ChargesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_charges_total",
		Help: "Charge attempts by outcome.",
	}, []string{"outcome"})

	// RefundsTotal counts refund attempts by outcome
	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_refunds_total",
		Help: "Refund attempts by outcome.",
	}, []string{"outcome"})

	// WebhookEventsTotal counts gateway webhook deliveries by result
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_webhook_events_total",
		Help: "Gateway webhook deliveries by result.",
	}, []string{"result"})

	// LoginsTotal counts login attempts by outcome
	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})
)
