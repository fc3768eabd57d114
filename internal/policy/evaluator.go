// Package policy evaluates an optional Rego routing policy. Operators drop
// .rego files in the bundle path to veto backends per request (pin indic
// traffic, fence off a provider during an incident, restrict tasks by hour).
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/inkwell-ai/chunkrouter/internal/analyzer"
	"github.com/inkwell-ai/chunkrouter/internal/config"
	"github.com/inkwell-ai/chunkrouter/internal/types"
	"github.com/inkwell-ai/chunkrouter/internal/usage"
)

// Input is the data sent to OPA for one candidate backend.
type Input struct {
	Backend BackendInput `json:"backend"`
	Request RequestInput `json:"request"`
	Time    TimeInput    `json:"time"`
}

type BackendInput struct {
	Name           string `json:"name"`
	Provider       string `json:"provider"`
	Priority       int    `json:"priority"`
	ScriptsCapable bool   `json:"scripts_capable"`
	HighCapacity   bool   `json:"high_capacity"`
}

type RequestInput struct {
	Task            string  `json:"task"`
	Priority        string  `json:"priority"`
	Complexity      string  `json:"complexity"`
	Script          string  `json:"script"`
	HasIndicScript  bool    `json:"has_indic_script"`
	ComplexityScore float64 `json:"complexity_score"`
}

type TimeInput struct {
	Hour int    `json:"hour"`
	Day  string `json:"day"`
}

// Evaluator vetoes candidate backends via compiled Rego. Routing must keep
// working when no policy is present, so every failure mode here fails open:
// an unloaded bundle, an evaluation error, or a timeout all allow the backend.
type Evaluator struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	tracker  *usage.Tracker
	cfg      func() config.PolicyConfig
	nowFunc  func() time.Time
}

// NewEvaluator creates a policy evaluator. Call Load() to compile policies.
func NewEvaluator(tracker *usage.Tracker, cfg func() config.PolicyConfig) *Evaluator {
	return &Evaluator{tracker: tracker, cfg: cfg, nowFunc: time.Now}
}

// SetNowFunc overrides the clock. Test hook.
func (e *Evaluator) SetNowFunc(now func() time.Time) { e.nowFunc = now }

// Load compiles Rego modules from the bundle path.
func (e *Evaluator) Load() error {
	cfg := e.cfg()
	modules, err := LoadRegoFiles(cfg.BundlePath)
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		slog.Warn("no rego files found, routing policy disabled", "path", cfg.BundlePath)
		return nil
	}
	return e.LoadFromModules(modules)
}

// LoadFromModules compiles policies from provided module sources (useful for testing).
func (e *Evaluator) LoadFromModules(modules map[string]string) error {
	r := rego.New(
		rego.Query("[data.chunkrouter.routing.allow, data.chunkrouter.routing.reason]"),
		func() func(*rego.Rego) {
			mods := make([]func(*rego.Rego), 0, len(modules))
			for name, src := range modules {
				mods = append(mods, rego.Module(name, src))
			}
			return func(r *rego.Rego) {
				for _, m := range mods {
					m(r)
				}
			}
		}(),
	)

	prepared, err := r.PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	e.mu.Lock()
	e.prepared = &prepared
	e.mu.Unlock()

	slog.Info("routing policies loaded", "modules", len(modules))
	return nil
}

// FilterBackends returns the candidates the policy allows. Implements the
// engine's BackendFilter.
func (e *Evaluator) FilterBackends(ctx context.Context, candidates []string, a analyzer.Analysis, task types.TaskType) []string {
	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()

	if prepared == nil || !e.cfg().Enabled {
		return candidates
	}

	now := e.nowFunc().UTC()
	req := RequestInput{
		Task:            string(task),
		Priority:        string(a.Priority),
		Complexity:      string(a.Complexity),
		Script:          string(a.Script),
		HasIndicScript:  a.HasIndicScript,
		ComplexityScore: a.ComplexityScore,
	}

	var allowed []string
	for _, name := range candidates {
		backend := BackendInput{Name: name}
		if meta, ok := e.tracker.Meta(name); ok {
			backend.Provider = meta.Provider
			backend.Priority = meta.Priority
			backend.ScriptsCapable = meta.ScriptsCapable
			backend.HighCapacity = meta.HighCapacity
		}

		ok, reason, err := e.evaluate(ctx, prepared, Input{
			Backend: backend,
			Request: req,
			Time:    TimeInput{Hour: now.Hour(), Day: now.Weekday().String()},
		})
		if err != nil {
			slog.Error("policy evaluation failed, allowing backend", "backend", name, "error", err)
			allowed = append(allowed, name)
			continue
		}
		if !ok {
			slog.Info("backend vetoed by routing policy", "backend", name, "reason", reason)
			continue
		}
		allowed = append(allowed, name)
	}
	return allowed
}

func (e *Evaluator) evaluate(ctx context.Context, prepared *rego.PreparedEvalQuery, input Input) (bool, string, error) {
	timeout := e.cfg().EvaluationTimeout.Std()
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}

	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		return false, "", err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, "no policy result", nil
	}

	// Result is [allow, reason]
	arr, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok || len(arr) < 2 {
		return false, "unexpected policy result format", nil
	}

	allowed, _ := arr[0].(bool)
	reason, _ := arr[1].(string)
	return allowed, reason, nil
}
