package llm

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/sony/gobreaker/v2"

	"orchestrion/internal/apperr"
	"orchestrion/internal/domain/models"
	"orchestrion/internal/domain/repositories"
	"orchestrion/internal/monitor"
	"orchestrion/internal/tracing"
)

// Config is the effective model configuration for one call, after
// merging request overrides onto the base resolved config (§4.5 step 2).
type Config struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	MaxTokens int
}

// Unconfigured reports whether no usable provider/model/key is set.
func (c Config) Unconfigured() bool {
	return c.Provider == "" || c.Model == "" || (c.BaseURL == "" && c.APIKey == "")
}

// CallOptions carries the emit_events/emit_quota_events/log_payload/stream
// flags and the round info for an invocation, per the call_llm contract.
type CallOptions struct {
	Stream             bool
	EmitEvents         bool
	EmitQuotaEvents    bool
	LogPayload         bool
	MockIfUnconfigured bool
	RetryAttempts      int
	TimeoutSeconds     float64

	// System and Tools carry the round loop's resolved system prompt and
	// function-calling schema (§4.7 step 4) through to the provider. Tools
	// is empty whenever the round is running in prompt-based tool_call_mode,
	// since in that mode tool descriptions are folded into System instead.
	System string
	Tools  []ToolSchema
}

// Invoker is the LLM invoker component (§4.5).
type Invoker struct {
	storage   repositories.Storage
	monitor   monitor.Sink
	ctxmgr    tokenEstimator
	providers map[string]Provider
	logger    *slog.Logger
}

type tokenEstimator interface {
	EstimateTokens(messages []models.Message) int
}

// New builds an Invoker with one Provider registered per name (e.g.
// "anthropic", "openrouter", "mock").
func New(storage repositories.Storage, sink monitor.Sink, estimator tokenEstimator, logger *slog.Logger, providers ...Provider) *Invoker {
	reg := make(map[string]Provider, len(providers))
	for _, p := range providers {
		// mock is used by tests and local dev with no API key; a breaker
		// around it would just add noise.
		if p.Name() == "mock" {
			reg[p.Name()] = p
			continue
		}
		reg[p.Name()] = wrapWithBreaker(p, logger)
	}
	return &Invoker{storage: storage, monitor: sink, ctxmgr: estimator, providers: reg, logger: logger}
}

// emitFunc abstracts stream.Emitter.Emit so this package doesn't import
// internal/stream (which would create an import cycle through orchestrator).
type emitFunc func(ctx context.Context, eventType string, data interface{}, round models.RoundInfo)

// Call implements the call_llm contract from §4.5.
func (inv *Invoker) Call(ctx context.Context, cfg Config, messages []models.Message, userID, sessionID string, opts CallOptions, round models.RoundInfo, emit emitFunc) (CallResult, error) {
	if inv.monitor.IsCancelled(sessionID) {
		return CallResult{}, apperr.New(apperr.Cancelled, "session cancelled before LLM call")
	}

	if cfg.Unconfigured() {
		if opts.MockIfUnconfigured {
			return inv.mockResult(messages), nil
		}
		return CallResult{}, apperr.New(apperr.LLMUnavailable, "no LLM provider configured")
	}

	status, err := inv.storage.ConsumeUserQuota(ctx, userID, time.Now().UTC().Format("2006-01-02"))
	if err != nil {
		return CallResult{}, apperr.Wrap(apperr.InternalError, "consume user quota", err)
	}
	if status != nil {
		if emit != nil && opts.EmitQuotaEvents {
			emit(ctx, models.EventQuotaUsage, map[string]interface{}{
				"consumed": true, "daily_quota": status.DailyQuota, "used": status.Used,
				"remaining": status.Remaining, "date": status.Date,
			}, round)
		}
		if !status.Allowed {
			return CallResult{}, apperr.New(apperr.UserQuotaExceeded, "daily quota exceeded").WithDetail(map[string]interface{}{
				"daily_quota": status.DailyQuota, "used": status.Used, "remaining": status.Remaining, "date": status.Date,
			})
		}
	}

	provider, ok := inv.providers[cfg.Provider]
	if !ok {
		return CallResult{}, apperr.New(apperr.LLMUnavailable, "unknown provider: "+cfg.Provider)
	}

	if emit != nil && opts.EmitEvents {
		payload := map[string]interface{}{"provider": cfg.Provider, "model": cfg.Model, "stream": opts.Stream}
		if opts.LogPayload {
			payload["payload"] = messages
		} else {
			payload["payload_omitted"] = true
		}
		emit(ctx, models.EventLLMRequest, payload, round)
	}

	req := CallRequest{Model: cfg.Model, Messages: messages, MaxTokens: cfg.MaxTokens, System: opts.System, Tools: opts.Tools}

	return inv.callWithRetry(ctx, provider, req, cfg, messages, sessionID, opts, round, emit)
}

// callWithRetry runs the provider retry loop under one span covering every
// attempt, per the Domain Stack's LLM-invoker tracing commitment.
func (inv *Invoker) callWithRetry(ctx context.Context, provider Provider, req CallRequest, cfg Config, messages []models.Message, sessionID string, opts CallOptions, round models.RoundInfo, emit emitFunc) (result CallResult, err error) {
	ctx, llmSpan := tracing.StartLLMCall(ctx, cfg.Provider, cfg.Model)
	defer tracing.End(llmSpan, &err)

	attempts := opts.RetryAttempts + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptResult, start, firstAt, lastAt, attemptErr := inv.attempt(ctx, provider, req, sessionID, opts, emit, round)
		if attemptErr == nil {
			attemptResult.Usage = attemptResult.Usage.Reconcile(inv.estimateUsage(messages, attemptResult.Content, attemptResult.Reasoning))
			if emit != nil && opts.EmitEvents {
				outPayload := map[string]interface{}{
					"content": attemptResult.Content, "reasoning": attemptResult.Reasoning, "usage": attemptResult.Usage,
				}
				if len(attemptResult.ToolCalls) > 0 {
					outPayload["tool_calls"] = attemptResult.ToolCalls
				}
				if opts.Stream && !firstAt.IsZero() {
					prefill := firstAt.Sub(start).Seconds()
					decode := lastAt.Sub(firstAt).Seconds()
					if decode < 0 {
						decode = 0
					}
					outPayload["prefill_duration_s"] = prefill
					outPayload["decode_duration_s"] = decode
				}
				emit(ctx, models.EventLLMOutput, outPayload, round)
				emit(ctx, models.EventTokenUsage, map[string]interface{}{
					"input_tokens": attemptResult.Usage.Input, "output_tokens": attemptResult.Usage.Output, "total_tokens": attemptResult.Usage.Total,
				}, round)
			}
			return attemptResult, nil
		}
		lastErr = attemptErr

		if inv.monitor.IsCancelled(sessionID) {
			err = apperr.New(apperr.Cancelled, "session cancelled during LLM call")
			return CallResult{}, err
		}
		if attempt >= attempts {
			break
		}
		delaySeconds := math.Min(float64(attempt), 3)
		if emit != nil && opts.EmitEvents {
			emit(ctx, models.EventLLMStreamRetry, map[string]interface{}{
				"attempt": attempt, "max_attempts": attempts, "delay_s": delaySeconds, "will_retry": true,
			}, round)
		}
		if !inv.sleepUnderCancel(ctx, sessionID, time.Duration(delaySeconds*float64(time.Second))) {
			err = apperr.New(apperr.Cancelled, "session cancelled during retry backoff")
			return CallResult{}, err
		}
	}

	err = apperr.Wrap(apperr.InternalError, "llm call exhausted retries", lastErr)
	return CallResult{}, err
}

// attempt runs a single streaming-or-not call with a timeout race, and
// records prefill/decode timestamps.
func (inv *Invoker) attempt(ctx context.Context, provider Provider, req CallRequest, sessionID string, opts CallOptions, emit emitFunc, round models.RoundInfo) (CallResult, time.Time, time.Time, time.Time, error) {
	start := time.Now()
	var firstAt, lastAt time.Time

	onDelta := func(d Delta) {
		now := time.Now()
		if firstAt.IsZero() {
			firstAt = now
		}
		lastAt = now
		if emit != nil && opts.EmitEvents && opts.Stream {
			emit(ctx, models.EventLLMOutputDelta, map[string]interface{}{"delta": d.Text, "reasoning_delta": d.Reasoning}, round)
		}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if opts.TimeoutSeconds > 0 {
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutSeconds*float64(time.Second)))
		defer cancel()
	}

	type outcome struct {
		result CallResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := provider.Stream(callCtx, req, onDelta)
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			err = apperr.New(apperr.ServiceUnavailable, "llm provider circuit open")
		}
		done <- outcome{res, err}
	}()

	cancelPoll := time.NewTicker(50 * time.Millisecond)
	defer cancelPoll.Stop()
	for {
		select {
		case o := <-done:
			return o.result, start, firstAt, lastAt, o.err
		case <-callCtx.Done():
			return CallResult{}, start, firstAt, lastAt, apperr.New(apperr.UpstreamTimeout, "llm call timed out")
		case <-cancelPoll.C:
			if inv.monitor.IsCancelled(sessionID) {
				return CallResult{}, start, firstAt, lastAt, apperr.New(apperr.Cancelled, "session cancelled mid-call")
			}
		}
	}
}

// sleepUnderCancel sleeps d, returning false early if the session is
// marked cancelled.
func (inv *Invoker) sleepUnderCancel(ctx context.Context, sessionID string, d time.Duration) bool {
	deadline := time.Now().Add(d)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if inv.monitor.IsCancelled(sessionID) {
				return false
			}
		}
	}
	return true
}

func (inv *Invoker) estimateUsage(messages []models.Message, content, reasoning string) models.TokenUsage {
	inputTokens := inv.ctxmgr.EstimateTokens(messages)
	outputTokens := inv.ctxmgr.EstimateTokens([]models.Message{{Content: content, ReasoningContent: reasoning}})
	return models.TokenUsage{Input: uint64(inputTokens), Output: uint64(outputTokens), Total: uint64(inputTokens + outputTokens)}
}

func (inv *Invoker) mockResult(messages []models.Message) CallResult {
	return CallResult{
		Content: "LLM is not configured for this deployment.",
		Usage:   inv.estimateUsage(messages, "LLM is not configured for this deployment.", ""),
	}
}
