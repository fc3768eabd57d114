package policy

import (
	"context"
	"testing"
	"time"

	"github.com/inkwell-ai/chunkrouter/internal/analyzer"
	"github.com/inkwell-ai/chunkrouter/internal/config"
	"github.com/inkwell-ai/chunkrouter/internal/types"
	"github.com/inkwell-ai/chunkrouter/internal/usage"
)

func testCfg() func() config.PolicyConfig {
	return func() config.PolicyConfig {
		return config.PolicyConfig{
			Enabled:           true,
			EvaluationTimeout: config.Duration(100 * time.Millisecond),
		}
	}
}

func testTracker() *usage.Tracker {
	return usage.NewTracker([]usage.BackendMeta{
		{Name: "gemini-primary", Provider: "gemini", Priority: 1, ScriptsCapable: true},
		{Name: "groq", Provider: "groq", Priority: 2, FastInference: true},
		{Name: "together", Provider: "together", Priority: 3, HighCapacity: true},
	}, usage.DefaultCooldowns())
}

const indicPinPolicy = `
package chunkrouter.routing

import rego.v1

default allow := true
default reason := ""

deny contains msg if {
	input.request.has_indic_script
	not input.backend.scripts_capable
	msg := "indic content is pinned to script-capable backends"
}

allow := false if {
	count(deny) > 0
}

reason := concat("; ", deny) if {
	count(deny) > 0
}
`

func loadTestEvaluator(t *testing.T, policy string) *Evaluator {
	t.Helper()
	e := NewEvaluator(testTracker(), testCfg())
	if err := e.LoadFromModules(map[string]string{"test.rego": policy}); err != nil {
		t.Fatalf("failed to load policy: %v", err)
	}
	return e
}

func allCandidates() []string {
	return []string{"gemini-primary", "groq", "together"}
}

func TestFilterBackends_AllowByDefault(t *testing.T) {
	e := loadTestEvaluator(t, indicPinPolicy)

	got := e.FilterBackends(context.Background(), allCandidates(),
		analyzer.Analysis{Priority: analyzer.PriorityLow}, types.TaskSummarize)
	if len(got) != 3 {
		t.Errorf("expected all candidates allowed, got %v", got)
	}
}

func TestFilterBackends_VetoesNonScriptBackendsForIndic(t *testing.T) {
	e := loadTestEvaluator(t, indicPinPolicy)

	got := e.FilterBackends(context.Background(), allCandidates(),
		analyzer.Analysis{HasIndicScript: true, Script: analyzer.ScriptDevanagari}, types.TaskSummarize)
	if len(got) != 1 || got[0] != "gemini-primary" {
		t.Errorf("expected only the script-capable backend, got %v", got)
	}
}

func TestFilterBackends_NoPoliciesLoaded_FailOpen(t *testing.T) {
	e := NewEvaluator(testTracker(), testCfg())
	// Don't load any policies

	got := e.FilterBackends(context.Background(), allCandidates(),
		analyzer.Analysis{HasIndicScript: true}, types.TaskSummarize)
	if len(got) != 3 {
		t.Errorf("expected fail-open with no policies, got %v", got)
	}
}

func TestFilterBackends_Disabled(t *testing.T) {
	e := NewEvaluator(testTracker(), func() config.PolicyConfig {
		return config.PolicyConfig{Enabled: false}
	})
	if err := e.LoadFromModules(map[string]string{"test.rego": indicPinPolicy}); err != nil {
		t.Fatalf("failed to load policy: %v", err)
	}

	got := e.FilterBackends(context.Background(), allCandidates(),
		analyzer.Analysis{HasIndicScript: true}, types.TaskSummarize)
	if len(got) != 3 {
		t.Errorf("disabled policy must pass everything, got %v", got)
	}
}

func TestFilterBackends_DenyAllPolicy(t *testing.T) {
	denyAll := `
package chunkrouter.routing

import rego.v1

allow := false
reason := "maintenance window"
`
	e := loadTestEvaluator(t, denyAll)

	got := e.FilterBackends(context.Background(), allCandidates(),
		analyzer.Analysis{}, types.TaskSynthesis)
	if len(got) != 0 {
		t.Errorf("expected every candidate vetoed, got %v", got)
	}
}

func TestFilterBackends_ProviderFence(t *testing.T) {
	fence := `
package chunkrouter.routing

import rego.v1

default allow := true
default reason := ""

deny contains msg if {
	input.backend.provider == "together"
	msg := "together is fenced off"
}

allow := false if {
	count(deny) > 0
}

reason := concat("; ", deny) if {
	count(deny) > 0
}
`
	e := loadTestEvaluator(t, fence)

	got := e.FilterBackends(context.Background(), allCandidates(),
		analyzer.Analysis{}, types.TaskQA)
	if len(got) != 2 {
		t.Fatalf("expected two survivors, got %v", got)
	}
	for _, name := range got {
		if name == "together" {
			t.Error("together should have been vetoed")
		}
	}
}

func TestLoadRegoFiles_MissingDirIsEmpty(t *testing.T) {
	modules, err := LoadRegoFiles("/nonexistent/policy/dir")
	if err != nil {
		t.Fatalf("missing dir must not error: %v", err)
	}
	if len(modules) != 0 {
		t.Errorf("expected no modules, got %d", len(modules))
	}
}
