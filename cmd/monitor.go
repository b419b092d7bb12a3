package cmd

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CraigKelly/stgibbs/sampler"
)

const metricNamespace = "stgibbs"

// monitor publishes chain progress as prometheus metrics. The metrics are
// always updated; they are only served once Start is called.
type monitor struct {
	registry *prometheus.Registry
	started  bool
	stopped  chan struct{}
	server   *http.Server
	addr     string

	BurnIn         prometheus.Gauge
	ConvergeWindow prometheus.Gauge
	MaxIters       prometheus.Gauge
	RunTime        prometheus.Gauge
	Iterations     prometheus.Counter
	Steps          *prometheus.CounterVec
	Precision      prometheus.Gauge
	Coefficients   *prometheus.GaugeVec
	Convergence    *prometheus.GaugeVec

	names []string
}

func newMonitor(addr string, names []string) *monitor {
	m := &monitor{
		registry: prometheus.NewRegistry(),
		addr:     addr,
		names:    names,

		BurnIn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricNamespace, Name: "burn_in", Help: "Burn in iterations",
		}),
		ConvergeWindow: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricNamespace, Name: "convergence_window", Help: "Trace window used for convergence scores",
		}),
		MaxIters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricNamespace, Name: "max_iterations", Help: "Iterations requested after burn in",
		}),
		RunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricNamespace, Name: "run_time_seconds", Help: "Wall time since the chain started",
		}),
		Iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricNamespace, Name: "iterations_total", Help: "Completed iterations, burn in included",
		}),
		Steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespace, Name: "steps_total", Help: "Sampler steps by outcome",
		}, []string{"sampler", "status"}),
		Precision: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricNamespace, Name: "noise_precision", Help: "Current noise precision",
		}),
		Coefficients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricNamespace, Name: "coefficient", Help: "Current mean coefficients",
		}, []string{"name"}),
		Convergence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricNamespace, Name: "split_half_score", Help: "Latest split-half convergence score",
		}, []string{"name"}),
	}

	m.registry.MustRegister(
		m.BurnIn, m.ConvergeWindow, m.MaxIters, m.RunTime,
		m.Iterations, m.Steps, m.Precision, m.Coefficients, m.Convergence,
	)
	return m
}

// ObserveIteration implements sampler.Observer
func (m *monitor) ObserveIteration(rec *sampler.Record) {
	m.Iterations.Inc()
	m.Steps.WithLabelValues("field", rec.FieldStatus.String()).Inc()
	m.Steps.WithLabelValues("coefficients", sampler.OK.String()).Inc()
	m.Precision.Set(rec.Precision)
	for i, b := range rec.Coefficients {
		if i < len(m.names) {
			m.Coefficients.WithLabelValues(m.names[i]).Set(b)
		}
	}
}

// SetConvergence publishes the latest scores, in chain Names order.
func (m *monitor) SetConvergence(scores []float64) {
	for i, s := range scores {
		if i < len(m.names) {
			m.Convergence.WithLabelValues(m.names[i]).Set(s)
		}
	}
}

func (m *monitor) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	// Help the user and redirect to the only thing currently available
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/metrics", http.StatusTemporaryRedirect)
	})
	return mux
}

// Start begins serving the metrics
func (m *monitor) Start(log *slog.Logger) error {
	if m.started {
		return errors.Errorf("BUG: You may only start the process monitor once")
	}
	m.started = true

	m.stopped = make(chan struct{})
	m.server = &http.Server{
		Addr:              m.addr,
		Handler:           m.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Actual server that will close the stopped channel on exit
	started := make(chan struct{})
	go func() {
		defer close(m.stopped)
		log.Info("Metrics now available", "addr", m.server.Addr, "path", "/metrics")
		close(started)
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("Metrics server failed", "addr", m.server.Addr, "error", err)
		}
	}()

	<-started
	return nil
}

func (m *monitor) Stop(log *slog.Logger) {
	if !m.started {
		return
	}

	m.server.Close()

	select {
	case <-m.stopped:
	case <-time.After(2 * time.Second):
		log.Warn("Metrics server would NOT stop: just continuing on")
	}
}
