package usage

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testMetas() []BackendMeta {
	return []BackendMeta{
		{Name: "gemini-primary", Provider: "google", Priority: 1, ScriptsCapable: true},
		{Name: "gemini-secondary", Provider: "google", Priority: 2, ScriptsCapable: true},
		{Name: "groq", Provider: "groq", Priority: 3, FastInference: true, HighCapacity: true},
		{Name: "together", Provider: "together", Priority: 4, HighCapacity: true},
	}
}

func newTestTracker() (*Tracker, *fakeClock) {
	clock := newFakeClock()
	tr := NewTracker(testMetas(), DefaultCooldowns())
	tr.SetNowFunc(clock.Now)
	return tr, clock
}

func TestTracker_AllAvailableInitially(t *testing.T) {
	tr, _ := newTestTracker()
	avail := tr.Available()
	if len(avail) != 4 {
		t.Fatalf("expected 4 available backends, got %d", len(avail))
	}
	// Priority order
	if avail[0] != "gemini-primary" || avail[3] != "together" {
		t.Errorf("expected priority order, got %v", avail)
	}
}

func TestTracker_RateLimitCooldown_ScriptFamily(t *testing.T) {
	tr, clock := newTestTracker()

	category := tr.RecordFailure("gemini-primary", "429 rate limit exceeded")
	if category != CategoryRateLimit {
		t.Fatalf("expected rate_limit category, got %s", category)
	}
	if tr.IsAvailable("gemini-primary") {
		t.Fatal("backend must be unavailable immediately after a rate limit")
	}

	// One second before the 70s script-family window: still cooling.
	clock.Advance(69 * time.Second)
	if tr.IsAvailable("gemini-primary") {
		t.Error("backend re-enabled before cooldown expiry")
	}

	// Exactly at expiry: lazy flip to available.
	clock.Advance(1 * time.Second)
	if !tr.IsAvailable("gemini-primary") {
		t.Error("backend must self-heal exactly at cooldown expiry")
	}

	// The flip resets consecutive failures.
	failures, _, _ := tr.SelectionState("gemini-primary")
	if failures != 0 {
		t.Errorf("expected consecutive failures reset on self-heal, got %d", failures)
	}
}

func TestTracker_RateLimitCooldown_FamilyDefaults(t *testing.T) {
	tests := []struct {
		backend string
		want    time.Duration
	}{
		{"gemini-primary", 70 * time.Second},
		{"groq", 90 * time.Second},
		{"together", 180 * time.Second},
	}
	for _, tt := range tests {
		tr, _ := newTestTracker()
		tr.RecordFailure(tt.backend, "429 too many requests")
		if got := tr.CooldownRemaining(tt.backend); got != tt.want {
			t.Errorf("%s: cooldown = %v, want %v", tt.backend, got, tt.want)
		}
	}
}

func TestTracker_RateLimitHonorsRetryAfter(t *testing.T) {
	tr, _ := newTestTracker()
	tr.RecordFailure("groq", "429 rate limit exceeded, Retry-After: 25")
	// 25s parsed + 10s buffer
	if got := tr.CooldownRemaining("groq"); got != 35*time.Second {
		t.Errorf("cooldown = %v, want 35s", got)
	}
}

func TestTracker_AuthCooldown(t *testing.T) {
	tr, _ := newTestTracker()
	category := tr.RecordFailure("together", "401 unauthorized: invalid key")
	if category != CategoryAuth {
		t.Fatalf("expected auth category, got %s", category)
	}
	if got := tr.CooldownRemaining("together"); got != 3600*time.Second {
		t.Errorf("cooldown = %v, want 1h", got)
	}
}

func TestTracker_TransientCooldown(t *testing.T) {
	tr, _ := newTestTracker()
	category := tr.RecordFailure("groq", "503 service unavailable")
	if category != CategoryTransient {
		t.Fatalf("expected transient category, got %s", category)
	}
	if got := tr.CooldownRemaining("groq"); got != 120*time.Second {
		t.Errorf("cooldown = %v, want 120s", got)
	}
}

func TestTracker_RepeatedFailurePromotion(t *testing.T) {
	tr, clock := newTestTracker()

	// Two unclassifiable failures stay in the unknown bucket.
	for i := 0; i < 2; i++ {
		if category := tr.RecordFailure("groq", "weird provider glitch"); category != CategoryUnknown {
			t.Fatalf("failure %d: expected unknown, got %s", i+1, category)
		}
		clock.Advance(61 * time.Second) // past the unknown cooldown
		if !tr.IsAvailable("groq") {
			t.Fatalf("failure %d: expected self-heal after unknown cooldown", i+1)
		}
	}

	// The lazy flip resets consecutive failures, so promotion needs three
	// strikes inside one cooldown lifecycle.
	tr.RecordFailure("groq", "weird provider glitch")
	clock.Advance(30 * time.Second)
	tr.ForceEnableAll()
	tr.RecordFailure("groq", "weird provider glitch")
	tr.ForceEnableAll()
	category := tr.RecordFailure("groq", "weird provider glitch")
	if category != CategoryUnknown {
		t.Fatalf("expected unknown (ForceEnableAll resets the count), got %s", category)
	}
}

func TestTracker_RepeatedFailureWithoutHeal(t *testing.T) {
	tr, _ := newTestTracker()
	tr.RecordFailure("groq", "glitch one")
	tr.RecordFailure("groq", "glitch two")
	category := tr.RecordFailure("groq", "glitch three")
	if category != CategoryRepeated {
		t.Fatalf("expected repeated_failure on third consecutive unknown, got %s", category)
	}
	if got := tr.CooldownRemaining("groq"); got != 300*time.Second {
		t.Errorf("cooldown = %v, want 300s", got)
	}
}

func TestTracker_SuccessClearsEverything(t *testing.T) {
	tr, _ := newTestTracker()

	tr.RecordFailure("gemini-primary", "429 rate limit")
	tr.RecordFailure("gemini-primary", "429 rate limit")
	if tr.IsAvailable("gemini-primary") {
		t.Fatal("expected unavailable after failures")
	}

	tr.RecordSuccess("gemini-primary")
	if !tr.IsAvailable("gemini-primary") {
		t.Error("a single success must make the backend available")
	}
	failures, _, _ := tr.SelectionState("gemini-primary")
	if failures != 0 {
		t.Errorf("expected consecutive failures 0 after success, got %d", failures)
	}

	snaps := tr.Snapshots()
	for _, s := range snaps {
		if s.Name == "gemini-primary" {
			if s.LastError != "" {
				t.Errorf("expected last error cleared, got %q", s.LastError)
			}
			if s.CallsMade != 3 || s.SuccessfulCalls != 1 || s.FailedCalls != 2 {
				t.Errorf("unexpected counters: %+v", s)
			}
		}
	}
}

func TestTracker_IsAvailableIdempotent(t *testing.T) {
	tr, clock := newTestTracker()
	tr.RecordFailure("groq", "429 quota")
	clock.Advance(200 * time.Second)

	first := tr.IsAvailable("groq")
	second := tr.IsAvailable("groq")
	third := tr.IsAvailable("groq")
	if !first || !second || !third {
		t.Error("lazy availability flip must be idempotent")
	}
}

func TestTracker_ForceEnableAll(t *testing.T) {
	tr, _ := newTestTracker()
	tr.RecordFailure("gemini-primary", "429 quota")
	tr.RecordFailure("groq", "503 timeout")

	tr.ForceEnableAll()
	if got := len(tr.Available()); got != 4 {
		t.Errorf("expected all 4 available after force enable, got %d", got)
	}
}

func TestTracker_UnknownBackendIgnored(t *testing.T) {
	tr, _ := newTestTracker()
	if category := tr.RecordFailure("nope", "429"); category != CategoryNone {
		t.Errorf("expected CategoryNone for unknown backend, got %s", category)
	}
	tr.RecordSuccess("nope") // must not panic
	if tr.IsAvailable("nope") {
		t.Error("unknown backend must never be available")
	}
}

func TestTracker_ConcurrentRecording(t *testing.T) {
	tr, _ := newTestTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			tr.RecordSuccess("gemini-primary")
		}(i)
		go func(i int) {
			defer wg.Done()
			tr.RecordFailure("groq", fmt.Sprintf("glitch %d", i))
			tr.IsAvailable("groq")
		}(i)
	}
	wg.Wait()

	for _, s := range tr.Snapshots() {
		switch s.Name {
		case "gemini-primary":
			if s.CallsMade != 50 || s.SuccessfulCalls != 50 {
				t.Errorf("gemini-primary counters lost updates: %+v", s)
			}
		case "groq":
			if s.CallsMade != 50 || s.FailedCalls != 50 {
				t.Errorf("groq counters lost updates: %+v", s)
			}
		}
	}
}
