package providers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nexusrun/coreagent/internal/authengine"
	"github.com/nexusrun/coreagent/internal/backoff"
	"github.com/nexusrun/coreagent/internal/llm"
	"github.com/nexusrun/coreagent/internal/observability"
	"github.com/nexusrun/coreagent/internal/ratelimit"
	"github.com/nexusrun/coreagent/pkg/models"
)

// base holds the scaffolding shared by every vendor adapter: an HTTP
// client, the credential engine for this provider, a rate limiter keyed
// per-provider so one slow provider doesn't starve another, and the
// metrics/tracer instruments every Complete call is wrapped in. metrics and
// tracer are both nil-safe: a nil value simply disables that instrument.
type base struct {
	providerID string
	httpClient *http.Client
	auth       *authengine.Manager
	limiter    *ratelimit.Limiter
	metrics    *observability.Metrics
	tracer     *observability.Tracer
}

func newBase(providerID string, auth *authengine.Manager, limiter *ratelimit.Limiter, metrics *observability.Metrics, tracer *observability.Tracer) base {
	return base{
		providerID: providerID,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		auth:       auth,
		limiter:    limiter,
		metrics:    metrics,
		tracer:     tracer,
	}
}

// withRetry runs a single provider call under the full-jitter retry
// policy, blocking on the rate limiter before each attempt and feeding any
// server-reported Retry-After back into it so the next Wait call — even
// from a different goroutine sharing this limiter — honors it.
//
// A 401 is not retryable under this policy (see ProviderError.IsRetryable):
// it gets exactly one extra attempt afterward, via retryAfterRefresh, on
// the theory that the call()'s own credential lookup will have a chance to
// refresh a stale token before that attempt.
func (b base) withRetry(ctx context.Context, call func(ctx context.Context, attempt int) (<-chan llm.ResponseChunk, error)) (<-chan llm.ResponseChunk, error) {
	attempt := func(n int) (<-chan llm.ResponseChunk, error, bool) {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx, b.providerID); err != nil {
				return nil, err, false
			}
		}
		ch, err := call(ctx, n)
		if err == nil {
			return ch, nil, false
		}
		pe, ok := AsProviderError(err)
		if !ok {
			return nil, err, false
		}
		if pe.RetryAfter > 0 && b.limiter != nil {
			b.limiter.ReportRetryAfter(b.providerID, time.Duration(pe.RetryAfter)*time.Second)
		}
		return nil, err, pe.IsRetryable()
	}

	result, err := backoff.RetryProviderCall(ctx, attempt)
	if pe, ok := AsProviderError(err); ok && pe.Failover == FailoverRefreshCredential {
		ch, refreshErr, _ := attempt(backoff.MaxProviderAttempts + 1)
		return ch, refreshErr
	}
	return result, err
}

// startGenerateSpan starts the "provider.generate" span covering request
// construction and the synchronous part of issuing the call. Returns a
// non-recording span when no tracer is configured, so callers never need a
// nil check before calling endSpan/span.End.
func (b base) startGenerateSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	if b.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return b.tracer.Start(ctx, "provider.generate", observability.SpanOptions{
		Kind:       trace.SpanKindClient,
		Attributes: []attribute.KeyValue{attribute.String("llm.provider", b.providerID), attribute.String("llm.model", model)},
	})
}

// startStreamSpan starts the "provider.stream" span covering the lifetime
// of the streamed response, from the first chunk to the terminal usage or
// error chunk.
func (b base) startStreamSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	if b.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return b.tracer.Start(ctx, "provider.stream", observability.SpanOptions{
		Kind:       trace.SpanKindClient,
		Attributes: []attribute.KeyValue{attribute.String("llm.provider", b.providerID), attribute.String("llm.model", model)},
	})
}

// endSpan records err on span (if any) and ends it. No-op when tracing is
// disabled.
func (b base) endSpan(span trace.Span, err error) {
	if b.tracer == nil {
		return
	}
	if err != nil {
		b.tracer.RecordError(span, err)
	}
	span.End()
}

// recordRequest records an LLM request's outcome metrics. No-op when
// metrics are disabled.
func (b base) recordRequest(model, status string, start time.Time, usage *models.Usage) {
	if b.metrics == nil {
		return
	}
	var prompt, completion int
	if usage != nil {
		prompt, completion = usage.InputTokens, usage.OutputTokens
	}
	b.metrics.RecordLLMRequest(b.providerID, model, status, time.Since(start).Seconds(), prompt, completion)
}

// observeStream wraps a successful Complete call's chunk channel so the
// "provider.stream" span and request metrics are finalized once the stream
// reaches a terminal chunk or the channel closes, without buffering or
// delaying delivery to the caller.
func (b base) observeStream(ctx context.Context, model string, start time.Time, chunks <-chan llm.ResponseChunk) <-chan llm.ResponseChunk {
	if b.metrics == nil && b.tracer == nil {
		return chunks
	}

	_, span := b.startStreamSpan(ctx, model)
	out := make(chan llm.ResponseChunk)
	go func() {
		defer close(out)
		status := "success"
		var usage *models.Usage
		var streamErr error
		for chunk := range chunks {
			if chunk.Error != nil {
				status = "error"
				streamErr = chunk.Error
			}
			if chunk.Usage != nil {
				usage = chunk.Usage
			}
			out <- chunk
		}
		b.endSpan(span, streamErr)
		b.recordRequest(model, status, start, usage)
	}()
	return out
}

// completeWithObservability runs call under withRetry, wrapping it in the
// "provider.generate"/"provider.stream" spans and request metrics every
// adapter's Complete method is required to emit.
func (b base) completeWithObservability(ctx context.Context, model string, call func(ctx context.Context, attempt int) (<-chan llm.ResponseChunk, error)) (<-chan llm.ResponseChunk, error) {
	start := time.Now()
	genCtx, span := b.startGenerateSpan(ctx, model)

	chunks, err := b.withRetry(genCtx, call)
	b.endSpan(span, err)
	if err != nil {
		b.recordRequest(model, "error", start, nil)
		return nil, err
	}
	return b.observeStream(ctx, model, start, chunks), nil
}

func parseRetryAfter(h http.Header) int {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return secs
}
