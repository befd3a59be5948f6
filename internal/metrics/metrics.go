package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vncsentinel/internal/logger"
	"vncsentinel/pkg/models"
)

// Metrics holds the Prometheus instruments for the detection pipeline.
type Metrics struct {
	DetectionsTotal *prometheus.CounterVec
	RuleHitsTotal   *prometheus.CounterVec
	SinkErrors      *prometheus.CounterVec
	DetectLatency   prometheus.Histogram
	AnomalyDegraded prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	initOnce       sync.Once
)

// Get returns the process-wide metrics instance, registering the
// instruments on first use.
func Get() *Metrics {
	initOnce.Do(func() {
		defaultMetrics = newMetrics()
	})
	return defaultMetrics
}

func newMetrics() *Metrics {
	m := &Metrics{
		DetectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vncsentinel_detections_total",
				Help: "Total detection results by risk level",
			},
			[]string{"risk_level"},
		),
		RuleHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vncsentinel_rule_hits_total",
				Help: "Total rule hits by rule id",
			},
			[]string{"rule_id"},
		),
		SinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vncsentinel_sink_errors_total",
				Help: "Total errors writing detection records to a sink",
			},
			[]string{"sink"},
		),
		DetectLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vncsentinel_detect_latency_seconds",
				Help:    "Per-call detection latency",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
		),
		AnomalyDegraded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vncsentinel_anomaly_degraded",
				Help: "1 when the anomaly model is unavailable and detection runs rule-only",
			},
		),
	}

	prometheus.MustRegister(m.DetectionsTotal)
	prometheus.MustRegister(m.RuleHitsTotal)
	prometheus.MustRegister(m.SinkErrors)
	prometheus.MustRegister(m.DetectLatency)
	prometheus.MustRegister(m.AnomalyDegraded)

	return m
}

// ObserveDetection records one detection outcome.
func (m *Metrics) ObserveDetection(result models.DetectionResult, elapsed time.Duration) {
	m.DetectionsTotal.WithLabelValues(string(result.RiskLevel)).Inc()
	for _, hit := range result.RuleHits {
		m.RuleHitsTotal.WithLabelValues(hit.RuleID).Inc()
	}
	m.DetectLatency.Observe(elapsed.Seconds())
}

// IncrementSinkError records one failed sink write.
func (m *Metrics) IncrementSinkError(sink string) {
	m.SinkErrors.WithLabelValues(sink).Inc()
}

// SetDegraded flags whether the engine is running without a model.
func (m *Metrics) SetDegraded(degraded bool) {
	if degraded {
		m.AnomalyDegraded.Set(1)
		return
	}
	m.AnomalyDegraded.Set(0)
}

// Server exposes the metrics endpoint.
type Server struct {
	server *http.Server
}

// NewServer creates a metrics HTTP server on the given address.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start serves the endpoint in the background.
func (s *Server) Start() {
	go func() {
		logger.Infof("Metrics server listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Metrics server error: %v", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
