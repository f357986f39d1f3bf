package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckIns counts check-in attempts by method (qr, manual) and outcome.
	CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stafftracker",
		Name:      "checkins_total",
		Help:      "Check-in attempts by method and outcome.",
	}, []string{"method", "outcome"})

	// TokensIssued counts generated QR check-in tokens.
	TokensIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stafftracker",
		Name:      "checkin_tokens_issued_total",
		Help:      "QR check-in tokens issued.",
	})

	// AbsencesMarked counts attendance rows written by the absence sweep.
	AbsencesMarked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stafftracker",
		Name:      "absences_marked_total",
		Help:      "Absent rows created by the sweep.",
	})

	// Reminders counts certificate reminders by kind and outcome.
	Reminders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stafftracker",
		Name:      "certificate_reminders_total",
		Help:      "Certificate reminders by kind and outcome.",
	}, []string{"kind", "outcome"})

	// Notifications counts notifications delivered by the worker.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stafftracker",
		Name:      "notifications_total",
		Help:      "Notifications processed by outcome.",
	}, []string{"outcome"})

	// HTTPRequests counts served requests by route and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stafftracker",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})
)
