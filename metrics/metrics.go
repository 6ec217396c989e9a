// Package metrics is a thin wrapper around github.com/rcrowley/go-metrics,
// giving every instrument a name under a single default registry so the
// rest of the module never imports rcrowley/go-metrics directly.
package metrics

import gometrics "github.com/rcrowley/go-metrics"

// DefaultRegistry is where every instrument created through this package
// ends up unless the caller supplies its own registry.
var DefaultRegistry = gometrics.NewRegistry()

type (
	Counter  = gometrics.Counter
	Gauge    = gometrics.Gauge
	Meter    = gometrics.Meter
	Registry = gometrics.Registry
)

// NewRegisteredCounter constructs and registers a new Counter.
func NewRegisteredCounter(name string, r Registry) Counter {
	if r == nil {
		r = DefaultRegistry
	}
	c := gometrics.NewCounter()
	r.Register(name, c)
	return c
}

// NewRegisteredGauge constructs and registers a new Gauge.
func NewRegisteredGauge(name string, r Registry) Gauge {
	if r == nil {
		r = DefaultRegistry
	}
	g := gometrics.NewGauge()
	r.Register(name, g)
	return g
}

// NewRegisteredMeter constructs and registers a new Meter.
func NewRegisteredMeter(name string, r Registry) Meter {
	if r == nil {
		r = DefaultRegistry
	}
	m := gometrics.NewMeter()
	r.Register(name, m)
	return m
}

// GetOrRegisterMeter returns the Meter already registered under name, or
// registers and returns a new one.
func GetOrRegisterMeter(name string, r Registry) Meter {
	if r == nil {
		r = DefaultRegistry
	}
	return gometrics.GetOrRegisterMeter(name, r)
}
