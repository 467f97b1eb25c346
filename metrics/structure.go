package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRender = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imapstructure_render_total",
			Help: "Structure renders, by form.",
		},
		[]string{
			"form", // body, bodystructure
		},
	)
	metricReduce = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imapstructure_reduce_total",
			Help: "Reductions of bodystructure to body, by result.",
		},
		[]string{
			"result", // ok, malformed
		},
	)
)

func RenderInc(form string) {
	metricRender.WithLabelValues(form).Inc()
}

func ReduceInc(result string) {
	metricReduce.WithLabelValues(result).Inc()
}
