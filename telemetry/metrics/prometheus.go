package metrics

import (
	"errors"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusProvider implements Provider backed by a Prometheus
// registry, grounded on the teacher's PrometheusProvider
// (engine/telemetry/metrics/prometheus.go), stripped of its cardinality
// tracking since nothing in this engine emits high-cardinality labels —
// device and process names are bounded by configuration, not user input.
type PrometheusProvider struct {
	reg *prom.Registry

	mu         sync.Mutex
	counters   map[string]*prom.CounterVec
	gauges     map[string]*prom.GaugeVec
	histograms map[string]*prom.HistogramVec
}

// NewPrometheusProvider returns a PrometheusProvider backed by reg, or a
// fresh registry if reg is nil.
func NewPrometheusProvider(reg *prom.Registry) *PrometheusProvider {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	return &PrometheusProvider{
		reg:        reg,
		counters:   make(map[string]*prom.CounterVec),
		gauges:     make(map[string]*prom.GaugeVec),
		histograms: make(map[string]*prom.HistogramVec),
	}
}

// Registry returns the backing Prometheus registry, for exposing a
// /metrics HTTP handler.
func (p *PrometheusProvider) Registry() *prom.Registry { return p.reg }

func fqName(c CommonOpts) (string, error) {
	if c.Name == "" {
		return "", errors.New("metrics: name required")
	}
	fq := c.Name
	if c.Subsystem != "" {
		fq = c.Subsystem + "_" + fq
	}
	if c.Namespace != "" {
		fq = c.Namespace + "_" + fq
	}
	return fq, nil
}

func (p *PrometheusProvider) NewCounter(opts CounterOpts) Counter {
	fq, err := fqName(opts.CommonOpts)
	if err != nil {
		return noopCounter{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.counters[fq]
	if !ok {
		vec = prom.NewCounterVec(prom.CounterOpts{Name: fq, Help: opts.Help}, opts.Labels)
		if err := p.reg.Register(vec); err != nil {
			if are, ok := err.(prom.AlreadyRegisteredError); ok {
				vec = are.ExistingCollector.(*prom.CounterVec)
			} else {
				return noopCounter{}
			}
		}
		p.counters[fq] = vec
	}
	return promCounter{vec: vec}
}

func (p *PrometheusProvider) NewGauge(opts GaugeOpts) Gauge {
	fq, err := fqName(opts.CommonOpts)
	if err != nil {
		return noopGauge{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.gauges[fq]
	if !ok {
		vec = prom.NewGaugeVec(prom.GaugeOpts{Name: fq, Help: opts.Help}, opts.Labels)
		if err := p.reg.Register(vec); err != nil {
			if are, ok := err.(prom.AlreadyRegisteredError); ok {
				vec = are.ExistingCollector.(*prom.GaugeVec)
			} else {
				return noopGauge{}
			}
		}
		p.gauges[fq] = vec
	}
	return promGauge{vec: vec}
}

func (p *PrometheusProvider) NewHistogram(opts HistogramOpts) Histogram {
	fq, err := fqName(opts.CommonOpts)
	if err != nil {
		return noopHistogram{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.histograms[fq]
	if !ok {
		vec = prom.NewHistogramVec(prom.HistogramOpts{Name: fq, Help: opts.Help, Buckets: bucketsOrDefault(opts.Buckets)}, opts.Labels)
		if err := p.reg.Register(vec); err != nil {
			if are, ok := err.(prom.AlreadyRegisteredError); ok {
				vec = are.ExistingCollector.(*prom.HistogramVec)
			} else {
				return noopHistogram{}
			}
		}
		p.histograms[fq] = vec
	}
	return promHistogram{vec: vec}
}

func bucketsOrDefault(b []float64) []float64 {
	if len(b) > 0 {
		return b
	}
	return prom.DefBuckets
}

type promCounter struct{ vec *prom.CounterVec }

func (c promCounter) Inc(delta float64, labels ...string) {
	obs, err := c.vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return
	}
	obs.Add(delta)
}

type promGauge struct{ vec *prom.GaugeVec }

func (g promGauge) Set(v float64, labels ...string) {
	obs, err := g.vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return
	}
	obs.Set(v)
}

func (g promGauge) Add(delta float64, labels ...string) {
	obs, err := g.vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return
	}
	obs.Add(delta)
}

type promHistogram struct{ vec *prom.HistogramVec }

func (h promHistogram) Observe(v float64, labels ...string) {
	obs, err := h.vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return
	}
	obs.Observe(v)
}
