package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	// requests counts answered requests. Labels: route, status.
	requests *prometheus.CounterVec
	// latency measures request handling time. Labels: route.
	latency *prometheus.HistogramVec
	// calculations counts requested variables. Labels: variable, status (ok, error).
	calculations *prometheus.CounterVec
	// reloads counts parameter reloads. Labels: status (ok, error).
	reloads *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "legisim",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests answered",
		}, []string{"route", "status"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "legisim",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request handling time in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route"}),
		calculations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "legisim",
			Subsystem: "engine",
			Name:      "calculations_total",
			Help:      "Variables requested through the API",
		}, []string{"variable", "status"}),
		reloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "legisim",
			Subsystem: "parameters",
			Name:      "reloads_total",
			Help:      "Parameter tree reloads",
		}, []string{"status"}),
	}
}

func (m *metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
