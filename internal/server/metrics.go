package server

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.HistogramVec
	transcriptions *prometheus.CounterVec
	edits          *prometheus.CounterVec
	exports        *prometheus.CounterVec
	sessions       prometheus.Gauge
	liveClients    prometheus.Gauge
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	m := &metrics{
		registry: reg,
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lipistudio",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		transcriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lipistudio",
			Name:      "transcriptions_total",
			Help:      "Transcription proxy calls by outcome.",
		}, []string{"outcome"}),
		edits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lipistudio",
			Name:      "segment_edits_total",
			Help:      "Segment edits by field.",
		}, []string{"field"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lipistudio",
			Name:      "exports_total",
			Help:      "Subtitle exports by format.",
		}, []string{"format"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lipistudio",
			Name:      "sessions_active",
			Help:      "Open editor sessions.",
		}),
		liveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lipistudio",
			Name:      "live_clients",
			Help:      "Connected live caption websockets.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.transcriptions,
		m.edits,
		m.exports,
		m.sessions,
		m.liveClients,
	)
	return m
}

func (m *metrics) handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

func (m *metrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/metrics" {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			m.requests.
				WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}
