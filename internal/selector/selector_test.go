package selector

import (
	"testing"
	"time"

	"github.com/inkwell-ai/chunkrouter/internal/analyzer"
	"github.com/inkwell-ai/chunkrouter/internal/usage"
)

func testTracker() *usage.Tracker {
	return usage.NewTracker([]usage.BackendMeta{
		{Name: "gemini-primary", Provider: "google", Priority: 1, ScriptsCapable: true},
		{Name: "gemini-secondary", Provider: "google", Priority: 2, ScriptsCapable: true},
		{Name: "groq", Provider: "groq", Priority: 3, FastInference: true, HighCapacity: true},
		{Name: "together", Provider: "together", Priority: 4, HighCapacity: true},
	}, usage.DefaultCooldowns())
}

func indicAnalysis() analyzer.Analysis {
	return analyzer.Analysis{
		HasIndicScript: true,
		Script:         analyzer.ScriptDevanagari,
		Priority:       analyzer.PriorityCritical,
		Complexity:     analyzer.ComplexityMedium,
	}
}

func TestSelect_EmptyCandidates(t *testing.T) {
	s := New(testTracker())
	if got := s.Select(nil, analyzer.Analysis{}); got != "" {
		t.Errorf("expected empty selection, got %q", got)
	}
}

func TestSelect_IndicRequiresScriptCapable(t *testing.T) {
	s := New(testTracker())
	candidates := []string{"gemini-primary", "gemini-secondary", "groq", "together"}

	got := s.Select(candidates, indicAnalysis())
	if got != "gemini-primary" && got != "gemini-secondary" {
		t.Errorf("indic content must route to a script-capable backend, got %q", got)
	}
}

func TestSelect_IndicNeverPicksNonCapableWhenCapableExists(t *testing.T) {
	s := New(testTracker())
	// Run many times; the invariant must hold regardless of tracker state.
	for i := 0; i < 20; i++ {
		got := s.Select([]string{"groq", "gemini-secondary", "together"}, indicAnalysis())
		if got != "gemini-secondary" {
			t.Fatalf("iteration %d: expected gemini-secondary, got %q", i, got)
		}
	}
}

func TestSelect_IndicDegradesWhenNoCapableAvailable(t *testing.T) {
	s := New(testTracker())
	got := s.Select([]string{"groq", "together"}, indicAnalysis())
	if got == "" {
		t.Fatal("degraded routing must still pick a backend")
	}
	if got != "groq" && got != "together" {
		t.Errorf("unexpected selection %q", got)
	}
}

func TestSelect_HighPriorityPrefersPrimaryTier(t *testing.T) {
	s := New(testTracker())
	a := analyzer.Analysis{Priority: analyzer.PriorityHigh, Complexity: analyzer.ComplexityComplex}
	got := s.Select([]string{"groq", "together", "gemini-primary"}, a)
	if got != "gemini-primary" {
		t.Errorf("expected primary-tier backend for complex content, got %q", got)
	}
}

func TestSelect_HighPriorityFallsBackToHighCapacity(t *testing.T) {
	s := New(testTracker())
	a := analyzer.Analysis{Priority: analyzer.PriorityHigh, Complexity: analyzer.ComplexityComplex}
	got := s.Select([]string{"groq", "together"}, a)
	if got != "groq" && got != "together" {
		t.Errorf("expected a high-capacity backend, got %q", got)
	}
}

func TestSelect_MediumBalancesPrimaryTier(t *testing.T) {
	tracker := testTracker()
	s := New(tracker)
	a := analyzer.Analysis{Priority: analyzer.PriorityMedium, Complexity: analyzer.ComplexityMedium}

	// Give the primary a failure: balancing must prefer the secondary.
	tracker.RecordFailure("gemini-primary", "glitch")
	tracker.ForceEnableAll() // clear the cooldown but not the last-call state

	// ForceEnableAll resets failure counts, so re-introduce skew via
	// last-call recency instead: call primary now, leaving secondary idle.
	tracker.RecordSuccess("gemini-primary")

	got := s.Select([]string{"gemini-primary", "gemini-secondary"}, a)
	if got != "gemini-secondary" {
		t.Errorf("expected idle secondary to win load balancing, got %q", got)
	}
}

func TestSelect_MediumSinglePrimary(t *testing.T) {
	s := New(testTracker())
	a := analyzer.Analysis{Priority: analyzer.PriorityMedium}
	got := s.Select([]string{"gemini-primary", "groq"}, a)
	if got != "gemini-primary" {
		t.Errorf("expected the only primary-tier backend, got %q", got)
	}
}

func TestSelect_LowPriorityFailuresDominateRecency(t *testing.T) {
	tracker := testTracker()
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker.SetNowFunc(func() time.Time { return clock })

	s := New(tracker)
	s.SetNowFunc(func() time.Time { return clock })

	// Both backends have been used; groq carries a consecutive failure.
	tracker.RecordSuccess("together")
	tracker.RecordFailure("groq", "503 hiccup")

	// Let the transient cooldown lapse without the lazy flip (SelectionState
	// does not reconcile), so the failure count still skews the score.
	clock = clock.Add(121 * time.Second)

	a := analyzer.Analysis{Priority: analyzer.PriorityLow, Complexity: analyzer.ComplexitySimple}
	got := s.Select([]string{"groq", "together"}, a)
	if got != "together" {
		t.Errorf("expected failure-free backend to win, got %q", got)
	}
}
