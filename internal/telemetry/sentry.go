// Package telemetry wraps Sentry tracing and error reporting for the query
// pipeline. Every helper is a no-op when Sentry has not been initialized.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/getsentry/sentry-go"
)

const serverName = "unirankd"

// unsampledTransactions are probe and static routes never worth a trace.
var unsampledTransactions = map[string]bool{
	"GET /health": true,
	"GET /help":   true,
}

type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// Init starts the Sentry client and returns a flush function. An empty DSN
// yields a no-op flush.
func Init(cfg Config) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate == 0 {
		cfg.TracesSampleRate = SampleRateFor(cfg.Environment)
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		ServerName:       serverName,
		TracesSampler: sentry.TracesSampler(func(ctx sentry.SamplingContext) float64 {
			return sampleRate(ctx.Span, cfg.TracesSampleRate)
		}),
	})
	if err != nil {
		return func() {}, err
	}

	slog.Info("sentry initialized", slog.String("environment", cfg.Environment), slog.Float64("sample_rate", cfg.TracesSampleRate))
	return func() { sentry.Flush(5 * time.Second) }, nil
}

func sampleRate(span *sentry.Span, rate float64) float64 {
	if span == nil {
		return rate
	}
	if unsampledTransactions[span.Name] {
		return 0
	}
	var root sentry.SpanID
	if span.ParentSpanID != root {
		if span.Sampled.Bool() {
			return 1
		}
		return 0
	}
	return rate
}

// SampleRateFor samples every trace in development and 10% elsewhere.
func SampleRateFor(environment string) float64 {
	if environment == "" || environment == "development" {
		return 1.0
	}
	return 0.1
}

// SpanAttributes are the pipeline identifiers attached to a span.
type SpanAttributes struct {
	QueryID   string
	SessionID string
	Stage     string
	Operation string
}

type Span struct {
	inner *sentry.Span
}

func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

func (s *Span) SetData(key string, value any) {
	if s.inner != nil {
		s.inner.SetData(key, value)
	}
}

// SetError marks the span failed and records the error's domain code.
func (s *Span) SetError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	s.inner.Status = spanStatusFor(err)
	if code := domain.ErrorCode(err); code != "" {
		s.inner.SetTag("error_code", code)
	}
}

func (s *Span) Context() context.Context {
	if s.inner != nil {
		return s.inner.Context()
	}
	return context.Background()
}

// StartSpan opens a child of the span in ctx, or a new transaction when ctx
// carries none.
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}

	if attrs.QueryID != "" {
		span.SetTag("query_id", attrs.QueryID)
	}
	if attrs.SessionID != "" {
		span.SetTag("session_id", attrs.SessionID)
	}
	if attrs.Stage != "" {
		span.SetTag("stage", attrs.Stage)
	}
	if attrs.Operation != "" {
		span.SetData("operation", attrs.Operation)
	}

	return span.Context(), &Span{inner: span}
}

// CaptureError reports err tagged with its domain code and the given tags.
func CaptureError(ctx context.Context, err error, tags map[string]string) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		if code := domain.ErrorCode(err); code != "" {
			scope.SetTag("error_code", code)
		}
		scope.SetTags(tags)
		hub.CaptureException(err)
	})
}

// StateBreadcrumb records a pipeline state transition on the current scope.
func StateBreadcrumb(ctx context.Context, state domain.QueryState) {
	crumb := &sentry.Breadcrumb{
		Type:      "default",
		Category:  "query.state",
		Message:   string(state),
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}
	if state == domain.QueryStateFailed {
		crumb.Level = sentry.LevelWarning
	}

	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.AddBreadcrumb(crumb, nil)
		return
	}
	sentry.AddBreadcrumb(crumb)
}

func spanStatusFor(err error) sentry.SpanStatus {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return sentry.SpanStatusDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return sentry.SpanStatusCanceled
	case errors.Is(err, domain.ErrTooManyQueries):
		return sentry.SpanStatusResourceExhausted
	}
	switch domain.ErrorCode(err) {
	case domain.ErrCodeValidation:
		return sentry.SpanStatusInvalidArgument
	case domain.ErrCodeIndexUnavailable:
		return sentry.SpanStatusUnavailable
	default:
		return sentry.SpanStatusInternalError
	}
}
