package serving

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var bundleLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "appraise",
	Name:      "bundle_loads_total",
	Help:      "Bundle loads from the object store by result.",
}, []string{"result"})
