package pairing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// pairingOutcomesTotal counts pairing operations by outcome.
var pairingOutcomesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tryon_pairing_outcomes_total",
		Help: "Pairing token operations by outcome.",
	},
	[]string{"outcome"},
)

const (
	outcomeIssued      = "issued"
	outcomeConfirmed   = "confirmed"
	outcomeReconfirmed = "reconfirmed"
	outcomeConflict    = "conflict"
	outcomeExpired     = "expired"
	outcomeNotFound    = "not_found"
	outcomeSwept       = "swept"
)
