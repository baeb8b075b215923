package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Outcome values of the status attribute on API call counters
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// APICallConfig describes the counter and span naming of one vendor client.
type APICallConfig struct {
	Vendor         string // display name used in span names, e.g. "AvaTax"
	PeerService    string // peer.service span attribute, e.g. "avatax"
	CounterName    string // e.g. "saleor.app.avatax.api.requests"
	Description    string
	EnvironmentKey string       // attribute key carrying the vendor environment
	Meter          metric.Meter // defaults to the global meter
}

// APICallRecorder wraps outbound vendor calls in a CLIENT span, counts them
// by status, method, environment and tenant and records their latency.
type APICallRecorder struct {
	cfg      APICallConfig
	counter  *Counter
	duration *Histogram
}

// NewAPICallRecorder creates the counter for a vendor client.
func NewAPICallRecorder(cfg APICallConfig) (*APICallRecorder, error) {
	if cfg.Vendor == "" || cfg.CounterName == "" {
		return nil, fmt.Errorf("telemetry: api call recorder needs a vendor and a counter name")
	}
	meter := cfg.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(TracerName)
	}
	counter, err := NewCounter(meter, cfg.CounterName, cfg.Description, "{request}")
	if err != nil {
		return nil, err
	}
	duration, err := NewHistogram(meter, HistogramOpts{
		Name:        DurationMetricName(cfg.CounterName),
		Description: cfg.Vendor + " API call latency",
		Unit:        "s",
		Boundaries:  VendorDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	return &APICallRecorder{
		cfg:      cfg,
		counter:  counter,
		duration: duration,
	}, nil
}

// DurationMetricName derives the latency histogram name from a request
// counter name: "saleor.app.avatax.api.requests" becomes
// "saleor.app.avatax.api.duration".
func DurationMetricName(counterName string) string {
	return strings.TrimSuffix(counterName, ".requests") + ".duration"
}

// APICall describes a single outbound call.
type APICall struct {
	Operation   string // vendor operation for the span name, e.g. "createOrAdjustTransaction"
	Method      string // counter method attribute, e.g. "create_or_adjust_transaction"
	Environment string // sandbox/production, test/live
	Tenant      string // Saleor API URL or its domain
	Attributes  []attribute.KeyValue
}

// Do runs fn inside the span and records the outcome. fn receives the span
// context so nested HTTP calls are correlated.
func (r *APICallRecorder) Do(ctx context.Context, call APICall, fn func(ctx context.Context) error) error {
	attrs := make([]attribute.KeyValue, 0, len(call.Attributes)+2)
	if r.cfg.PeerService != "" {
		attrs = append(attrs, attribute.String(SpanAttrPeerService, r.cfg.PeerService))
	}
	if r.cfg.EnvironmentKey != "" && call.Environment != "" {
		attrs = append(attrs, attribute.String(r.cfg.EnvironmentKey, call.Environment))
	}
	attrs = append(attrs, call.Attributes...)

	ctx, span := otel.GetTracerProvider().Tracer(TracerName).Start(ctx, fmt.Sprintf("calling %s %s API", r.cfg.Vendor, call.Operation),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	status := StatusSuccess
	if err != nil {
		status = StatusError
		RecordError(span, err)
	} else {
		SetOK(span)
	}

	counterAttrs := []attribute.KeyValue{
		AttrStatus.String(status),
		AttrMethod.String(call.Method),
		AttrTenantDomain.String(TenantDomain(call.Tenant)),
	}
	if r.cfg.EnvironmentKey != "" {
		counterAttrs = append(counterAttrs, attribute.String(r.cfg.EnvironmentKey, call.Environment))
	}
	r.counter.Inc(ctx, counterAttrs...)
	r.duration.RecordDuration(ctx, elapsed, counterAttrs[:2]...)

	return err
}

// TenantDomain reduces a Saleor API URL to its host. Values that are not URLs
// are returned unchanged.
func TenantDomain(saleorAPIURL string) string {
	if saleorAPIURL == "" {
		return "unknown"
	}
	u, err := url.Parse(saleorAPIURL)
	if err != nil || u.Host == "" {
		return saleorAPIURL
	}
	return u.Hostname()
}
