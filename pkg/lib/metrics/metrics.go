// Package metrics counts what the launcher state machines and workflows did during a run.
package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives launcher events.
type Recorder interface {
	Transition(machine, from, to, event string)
	Outcome(workflow string, err error)
	CompanionExit(exitCode int)
}

// Noop discards everything.
type Noop struct{}

func (Noop) Transition(string, string, string, string) {}
func (Noop) Outcome(string, error)                     {}
func (Noop) CompanionExit(int)                         {}

// Collector implements Recorder with Prometheus metrics in a private registry.
type Collector struct {
	transitions    *prometheus.CounterVec
	outcomes       *prometheus.CounterVec
	companionExits *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewCollector creates a collector whose metric names start with namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "launcher"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of accepted state machine transitions",
		},
		[]string{"machine", "from_state", "to_state", "event"},
	)

	c.outcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_outcomes_total",
			Help:      "Total number of finished installer workflows by result",
		},
		[]string{"workflow", "result"},
	)

	c.companionExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "companion_unexpected_exits_total",
			Help:      "Total number of companion processes that exited without being closed",
		},
		[]string{"exit_code"},
	)

	c.registry.MustRegister(c.transitions, c.outcomes, c.companionExits)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Transition records an accepted transition.
func (c *Collector) Transition(machine, from, to, event string) {
	c.transitions.WithLabelValues(machine, from, to, event).Inc()
}

// Outcome records a workflow result; a nil err is "success", an error with a String method,
// such as an installer code, is labeled with it.
func (c *Collector) Outcome(workflow string, err error) {
	c.outcomes.WithLabelValues(workflow, resultLabel(err)).Inc()
}

// CompanionExit records an unexpected companion exit.
func (c *Collector) CompanionExit(exitCode int) {
	c.companionExits.WithLabelValues(fmt.Sprint(exitCode)).Inc()
}

// Dump writes every metric in the Prometheus text exposition format.
func (c *Collector) Dump(w io.Writer) error {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError}).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		return fmt.Errorf("gather metrics: status %d: %s", rec.Code, strings.TrimSpace(rec.Body.String()))
	}
	_, err := io.Copy(w, rec.Body)
	return err
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	var s fmt.Stringer
	if errors.As(err, &s) {
		return s.String()
	}
	return "error"
}

// Observer adapts r to the observer callback of a state machine named machine. States and
// events are labeled by their type names.
func Observer[S any, E any](r Recorder, machine string) func(from, to S, event E) {
	return func(from, to S, event E) {
		r.Transition(machine, TypeName(from), TypeName(to), TypeName(event))
	}
}

// TypeName returns the unqualified type name of v.
func TypeName(v any) string {
	name := fmt.Sprintf("%T", v)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
