package prometheus

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dormoron/deskweb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ deskweb.Observer = &Collector{}

type ObserverBuilder struct {
	Namespace string // Namespace groups related subsystems and prevents metric name collisions.
	Subsystem string // Subsystem is the second-level grouping beneath Namespace.
	Name      string // Name identifies the request duration summary.
	Help      string // Help is the description exposed alongside the metric.
	// Registerer receives the collectors; nil means prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

func InitObserverBuilder(namespace string, subsystem string, name string, help string) *ObserverBuilder {
	return &ObserverBuilder{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}
}

// Collector records request durations in microseconds, labelled by route
// pattern, method and status, and counts requests that ended in an unhandled
// error.
type Collector struct {
	duration *prometheus.SummaryVec
	faults   *prometheus.CounterVec
	gatherer prometheus.Gatherer
}

// Build registers the collectors and returns the observer.
func (m *ObserverBuilder) Build() (*Collector, error) {
	reg := m.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	vector := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: m.Namespace,
		Subsystem: m.Subsystem,
		Name:      m.Name,
		Help:      m.Help,
		Objectives: map[float64]float64{
			0.5:   0.01,
			0.75:  0.01,
			0.90:  0.01,
			0.99:  0.001,
			0.999: 0.0001,
		},
	}, []string{"pattern", "method", "status"})
	faults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.Namespace,
		Subsystem: m.Subsystem,
		Name:      m.Name + "_faults_total",
		Help:      "Requests that ended in an unhandled handler error or panic.",
	}, []string{"pattern", "method"})

	if err := reg.Register(vector); err != nil {
		return nil, err
	}
	if err := reg.Register(faults); err != nil {
		return nil, err
	}

	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	return &Collector{duration: vector, faults: faults, gatherer: gatherer}, nil
}

func (c *Collector) Begin(ctx context.Context, _ *http.Request) context.Context {
	return ctx
}

func (c *Collector) Observe(_ context.Context, ex *deskweb.Exchange) {
	pattern := ex.Route
	if pattern == "" {
		pattern = "unknown"
	}
	c.duration.WithLabelValues(pattern, ex.Method, strconv.Itoa(ex.Status)).
		Observe(float64(ex.Duration.Microseconds()))
	if ex.Err != nil && ex.Status != 499 {
		c.faults.WithLabelValues(pattern, ex.Method).Inc()
	}
}

// Handler exposes the gathered metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
