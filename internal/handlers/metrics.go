package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission outcomes
const (
	outcomeSaved       = "saved"
	outcomeInvalid     = "invalid"
	outcomeRateLimited = "rate_limited"
	outcomeFailed      = "failed"
)

var submissionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "retro",
		Name:      "feedback_submissions_total",
		Help:      "Feedback submissions by outcome",
	},
	[]string{"outcome"},
)

var exportsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "retro",
		Name:      "feedback_exports_total",
		Help:      "CSV exports served to admins",
	},
)
