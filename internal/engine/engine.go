// Package engine ties analyzer, tracker, selector, and backend adapters into
// the routing loop. Provider failures never surface as Go errors; the caller
// gets a structured result and branches on Success.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/inkwell-ai/chunkrouter/internal/analyzer"
	"github.com/inkwell-ai/chunkrouter/internal/backends"
	"github.com/inkwell-ai/chunkrouter/internal/config"
	"github.com/inkwell-ai/chunkrouter/internal/selector"
	"github.com/inkwell-ai/chunkrouter/internal/telemetry"
	"github.com/inkwell-ai/chunkrouter/internal/types"
	"github.com/inkwell-ai/chunkrouter/internal/usage"
)

// BackendFilter vetoes candidate backends for one request. Implemented by the
// policy package; a nil filter allows everything.
type BackendFilter interface {
	FilterBackends(ctx context.Context, candidates []string, a analyzer.Analysis, task types.TaskType) []string
}

// Engine routes one chunk at a time across the configured backends.
type Engine struct {
	tracker  *usage.Tracker
	selector *selector.Selector
	registry *backends.Registry
	policy   BackendFilter
	metrics  *telemetry.Metrics

	maxRetries     int
	attemptCap     int
	transientPause time.Duration

	nowFunc func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// New builds an engine. Zero registered backends is a startup error; every
// other failure mode is handled per request.
func New(routing config.RoutingConfig, tracker *usage.Tracker, sel *selector.Selector, registry *backends.Registry, policy BackendFilter, metrics *telemetry.Metrics) (*Engine, error) {
	if registry.Len() == 0 {
		return nil, fmt.Errorf("no backends available: all configured backends are missing credentials")
	}

	maxRetries := routing.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	// The cap bounds total backend invocations per request. Without it a
	// string of non-retryable failures could cycle through cooldown resets
	// indefinitely, since those never consume a retry slot.
	attemptCap := routing.TotalAttemptCap
	if attemptCap <= 0 {
		attemptCap = 2 * registry.Len()
		if attemptCap < 6 {
			attemptCap = 6
		}
	}

	pause := routing.TransientRetryPause.Std()
	if pause <= 0 {
		pause = 2 * time.Second
	}

	return &Engine{
		tracker:        tracker,
		selector:       sel,
		registry:       registry,
		policy:         policy,
		metrics:        metrics,
		maxRetries:     maxRetries,
		attemptCap:     attemptCap,
		transientPause: pause,
		nowFunc:        time.Now,
		sleep:          sleepCtx,
	}, nil
}

// SetNowFunc overrides the clock. Test hook.
func (e *Engine) SetNowFunc(now func() time.Time) { e.nowFunc = now }

// SetSleepFunc overrides the pause between attempts. Test hook.
func (e *Engine) SetSleepFunc(sleep func(ctx context.Context, d time.Duration) error) {
	e.sleep = sleep
}

// RouteAndExecute analyzes the chunk once, then walks backends until one
// succeeds or the request is exhausted. Transient failures consume a retry
// slot and pause before the next attempt; rate-limit, auth, and unknown
// failures switch to a different backend without consuming one.
func (e *Engine) RouteAndExecute(ctx context.Context, req types.RouteRequest) types.RouteResult {
	start := e.nowFunc()
	a := analyzer.Analyze(req.Chunk)

	tried := make(map[string]bool)
	var triedOrder []string
	emergencyUsed := req.Emergency
	attempts := 0
	invocations := 0

	result := func(r types.RouteResult) types.RouteResult {
		r.TriedAPIs = triedOrder
		if r.TriedAPIs == nil {
			r.TriedAPIs = []string{}
		}
		e.observeRequest(req.Task, r.Success, start)
		return r
	}

	for attempts < e.maxRetries && invocations < e.attemptCap {
		if err := ctx.Err(); err != nil {
			return result(types.RouteResult{
				Error:        fmt.Sprintf("request cancelled: %v", err),
				AttemptsMade: attempts,
			})
		}

		remaining := e.remainingCandidates(ctx, tried, a, req.Task)
		if len(remaining) == 0 {
			if !emergencyUsed {
				slog.Warn("no backends available, force-clearing all cooldowns",
					"request_id", req.RequestID, "tried", triedOrder)
				e.tracker.ForceEnableAll()
				emergencyUsed = true
				if e.metrics != nil {
					e.metrics.RecordEmergencyReset()
				}
				remaining = e.remainingCandidates(ctx, tried, a, req.Task)
			}
			if len(remaining) == 0 {
				return result(types.RouteResult{
					Error: fmt.Sprintf("all backends exhausted after %d attempts, tried: %s",
						invocations, strings.Join(triedOrder, ", ")),
					AttemptsMade: attempts,
				})
			}
		}

		selected := e.selector.Select(remaining, a)
		tried[selected] = true
		triedOrder = append(triedOrder, selected)

		adapter, ok := e.registry.Get(selected)
		if !ok {
			// Tracker and registry are built from the same config; a miss
			// here means the backend was excluded for a missing credential.
			slog.Error("selected backend has no adapter", "backend", selected)
			continue
		}

		if err := e.waitMinDelay(ctx, selected); err != nil {
			return result(types.RouteResult{
				Error:        fmt.Sprintf("request cancelled: %v", err),
				AttemptsMade: attempts,
			})
		}

		slog.Info("routing attempt",
			"request_id", req.RequestID,
			"backend", selected,
			"attempt", attempts+1,
			"invocation", invocations+1,
			"priority", string(a.Priority),
			"indic", a.HasIndicScript,
		)

		invocations++
		content, err := adapter.Generate(ctx, backends.GenerateRequest{
			Chunk:        req.Chunk,
			Task:         req.Task,
			SystemPrompt: req.SystemPrompt,
			UserPrompt:   req.UserPrompt,
			IndicHint:    a.HasIndicScript,
		})

		if err == nil {
			e.tracker.RecordSuccess(selected)
			e.observeAttempt(selected, "success", usage.CategoryNone)
			return result(types.RouteResult{
				Success:      true,
				Content:      content,
				APIUsed:      selected,
				Model:        adapter.Model(),
				AttemptsMade: attempts + 1,
			})
		}

		category := e.tracker.RecordFailure(selected, err.Error())
		e.observeAttempt(selected, "failure", category)

		if usage.MustSwitchBackend(category) {
			slog.Warn("backend failed, switching",
				"request_id", req.RequestID,
				"backend", selected,
				"category", string(category),
				"error", truncate(err.Error(), 200),
			)
			continue
		}

		// Transient failure: the backend may recover in seconds, so this
		// consumes a retry slot and pauses before re-entering the loop.
		attempts++
		slog.Warn("backend failed with transient error, retrying",
			"request_id", req.RequestID,
			"backend", selected,
			"error", truncate(err.Error(), 200),
		)
		if attempts < e.maxRetries {
			if serr := e.sleep(ctx, e.transientPause); serr != nil {
				return result(types.RouteResult{
					Error:        fmt.Sprintf("request cancelled: %v", serr),
					AttemptsMade: attempts,
				})
			}
		}
	}

	return result(types.RouteResult{
		Error:        fmt.Sprintf("all backends failed after %d attempts", attempts),
		AttemptsMade: attempts,
	})
}

// remainingCandidates is the available set minus already-tried backends,
// narrowed by the routing policy when one is configured. A policy that vetoes
// every candidate is ignored rather than failing the request.
func (e *Engine) remainingCandidates(ctx context.Context, tried map[string]bool, a analyzer.Analysis, task types.TaskType) []string {
	var remaining []string
	for _, name := range e.tracker.Available() {
		if !tried[name] {
			remaining = append(remaining, name)
		}
	}
	if e.policy == nil || len(remaining) == 0 {
		return remaining
	}

	allowed := e.policy.FilterBackends(ctx, remaining, a, task)
	if len(allowed) == 0 {
		slog.Warn("routing policy vetoed every candidate, ignoring policy", "candidates", remaining)
		return remaining
	}
	return allowed
}

// waitMinDelay enforces the backend's minimum inter-call spacing.
func (e *Engine) waitMinDelay(ctx context.Context, name string) error {
	meta, ok := e.tracker.Meta(name)
	if !ok || meta.MinDelay <= 0 {
		return nil
	}
	_, lastCall, ok := e.tracker.SelectionState(name)
	if !ok || lastCall.IsZero() {
		return nil
	}
	wait := meta.MinDelay - e.nowFunc().Sub(lastCall)
	if wait <= 0 {
		return nil
	}
	return e.sleep(ctx, wait)
}

func (e *Engine) observeAttempt(backend, outcome string, category usage.Category) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordAttempt(backend, outcome)
	if category != usage.CategoryNone {
		e.metrics.RecordErrorCategory(backend, string(category))
	}
	e.metrics.SetBackendAvailable(backend, e.tracker.IsAvailable(backend))
}

func (e *Engine) observeRequest(task types.TaskType, success bool, start time.Time) {
	if e.metrics == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	e.metrics.RecordRequest(string(task), outcome, float64(e.nowFunc().Sub(start).Milliseconds()))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
