package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelProvider implements Provider backed by an OpenTelemetry
// MeterProvider, grounded on the teacher's otelProvider
// (engine/telemetry/metrics/otel_provider.go). Gauges are simulated via
// an UpDownCounter: Set(v) resets to v by adding the delta from the last
// observed value, since OTel has no native "last value wins" gauge
// instrument outside callback-based observables.
type OTelProvider struct {
	mp    *sdkmetric.MeterProvider
	meter metric.Meter
}

// NewOTelProvider returns a zero-config, exporter-less OTelProvider
// under the given service name.
func NewOTelProvider(serviceName string) *OTelProvider {
	mp := sdkmetric.NewMeterProvider()
	return &OTelProvider{mp: mp, meter: mp.Meter(serviceName)}
}

func otelName(c CommonOpts) string {
	name := c.Name
	if c.Subsystem != "" {
		name = c.Subsystem + "." + name
	}
	if c.Namespace != "" {
		name = c.Namespace + "." + name
	}
	return name
}

func (p *OTelProvider) NewCounter(opts CounterOpts) Counter {
	inst, err := p.meter.Float64Counter(otelName(opts.CommonOpts), metric.WithDescription(opts.Help))
	if err != nil {
		return noopCounter{}
	}
	return otelCounter{c: inst, labelKeys: opts.Labels}
}

func (p *OTelProvider) NewGauge(opts GaugeOpts) Gauge {
	inst, err := p.meter.Float64UpDownCounter(otelName(opts.CommonOpts), metric.WithDescription(opts.Help))
	if err != nil {
		return noopGauge{}
	}
	return &otelGauge{g: inst, labelKeys: opts.Labels, last: make(map[string]float64)}
}

func (p *OTelProvider) NewHistogram(opts HistogramOpts) Histogram {
	inst, err := p.meter.Float64Histogram(otelName(opts.CommonOpts), metric.WithDescription(opts.Help))
	if err != nil {
		return noopHistogram{}
	}
	return otelHistogram{h: inst, labelKeys: opts.Labels}
}

func labelAttrs(keys []string, values []string) []attribute.KeyValue {
	n := len(keys)
	if len(values) < n {
		n = len(values)
	}
	attrs := make([]attribute.KeyValue, n)
	for i := 0; i < n; i++ {
		attrs[i] = attribute.String(keys[i], values[i])
	}
	return attrs
}

type otelCounter struct {
	c         metric.Float64Counter
	labelKeys []string
}

func (c otelCounter) Inc(delta float64, labels ...string) {
	c.c.Add(context.Background(), delta, metric.WithAttributes(labelAttrs(c.labelKeys, labels)...))
}

type otelGauge struct {
	g         metric.Float64UpDownCounter
	labelKeys []string

	mu   sync.Mutex
	last map[string]float64
}

func (g *otelGauge) Set(v float64, labels ...string) {
	key := labelKey(labels)
	g.mu.Lock()
	prev := g.last[key]
	g.last[key] = v
	g.mu.Unlock()
	g.g.Add(context.Background(), v-prev, metric.WithAttributes(labelAttrs(g.labelKeys, labels)...))
}

func (g *otelGauge) Add(delta float64, labels ...string) {
	key := labelKey(labels)
	g.mu.Lock()
	g.last[key] += delta
	g.mu.Unlock()
	g.g.Add(context.Background(), delta, metric.WithAttributes(labelAttrs(g.labelKeys, labels)...))
}

func labelKey(labels []string) string {
	key := ""
	for _, l := range labels {
		key += l + "\x00"
	}
	return key
}

type otelHistogram struct {
	h         metric.Float64Histogram
	labelKeys []string
}

func (h otelHistogram) Observe(v float64, labels ...string) {
	h.h.Record(context.Background(), v, metric.WithAttributes(labelAttrs(h.labelKeys, labels)...))
}
