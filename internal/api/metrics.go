package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK          = "ok"
	outcomeBadRequest  = "bad_request"
	outcomeUnavailable = "unavailable"
	outcomeError       = "error"
)

var predictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "appraise",
	Name:      "predictions_total",
	Help:      "Prediction requests by outcome.",
}, []string{"outcome"})
