package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gazelaundry/pkg/eyetracker"
	"gazelaundry/pkg/stats"
)

const metricsNamespace = "gazelaundry"

// NewMetricsHandler serves the Prometheus exposition of the stream counters,
// the tracker state and the Go runtime. clients may be nil.
func NewMetricsHandler(tr *stats.Tracker, et *eyetracker.EyeTracker, clients func() int) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		stats.NewCollector(tr, metricsNamespace),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "tracking",
			Help:      "1 while the latest raw sample is valid.",
		}, func() float64 {
			return boolGauge(et.IsTracking())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "calibrating",
			Help:      "1 while a calibration session runs.",
		}, func() float64 {
			return boolGauge(et.Calibration().IsCalibrating())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "calibration_rating",
			Help:      "Quality rating of the last session in this process (0-5).",
		}, func() float64 {
			o, _ := et.Calibration().LastOutcome()
			return float64(o.Rating)
		}),
	)
	if clients != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "stream_clients",
			Help:      "Connected frame stream clients.",
		}, func() float64 {
			return float64(clients())
		}))
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
