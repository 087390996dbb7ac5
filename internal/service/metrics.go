package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "budget_request_transitions_total",
		Help: "Budget request lifecycle operations, labeled by transition and outcome",
	}, []string{"transition", "outcome"})

	reconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "petty_cash_reconciliations_total",
		Help: "Petty cash expense postings and the resulting statement recomputations",
	}, []string{"outcome"})

	receiptsAutoCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receipts_auto_created_total",
		Help: "Receipt placeholders created for expenses carrying a receipt number",
	})
)
