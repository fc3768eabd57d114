// Package usage tracks per-backend call statistics and availability. It is
// the only shared mutable state in the router: every routing call reads and
// writes it, so each backend record carries its own lock.
//
// Availability is purely reactive. No quota table is maintained; a backend is
// cooled down only because of what its own error messages said, and re-enabled
// lazily the first time it is checked after the cooldown expires.
package usage

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Cooldowns holds the tunable cooldown windows per failure category. The
// exact durations are policy, not contract.
type Cooldowns struct {
	RateLimitScript  time.Duration // script-capable / primary family
	RateLimitFast    time.Duration // fast-inference family
	RateLimitDefault time.Duration
	RetryAfterBuffer time.Duration // added to a provider-supplied retry-after
	Auth             time.Duration
	Transient        time.Duration
	Repeated         time.Duration
	Unknown          time.Duration
}

// DefaultCooldowns returns the stock reactive policy.
func DefaultCooldowns() Cooldowns {
	return Cooldowns{
		RateLimitScript:  70 * time.Second,
		RateLimitFast:    90 * time.Second,
		RateLimitDefault: 180 * time.Second,
		RetryAfterBuffer: 10 * time.Second,
		Auth:             3600 * time.Second,
		Transient:        120 * time.Second,
		Repeated:         300 * time.Second,
		Unknown:          60 * time.Second,
	}
}

// repeatedFailureThreshold is the consecutive-failure count at which an
// otherwise unclassified error is promoted to a repeated-failure cooldown.
const repeatedFailureThreshold = 3

// BackendMeta is the static slice of a backend's configuration the tracker
// and selector need. Immutable after construction.
type BackendMeta struct {
	Name           string
	Provider       string
	Model          string
	Priority       int
	MinDelay       time.Duration
	ScriptsCapable bool
	FastInference  bool
	HighCapacity   bool
}

// Snapshot is a point-in-time copy of one backend's stats for diagnostics.
type Snapshot struct {
	Name                string        `json:"name"`
	Provider            string        `json:"provider"`
	Priority            int           `json:"priority"`
	CallsMade           int           `json:"calls_made"`
	SuccessfulCalls     int           `json:"successful_calls"`
	FailedCalls         int           `json:"failed_calls"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	Available           bool          `json:"is_available"`
	CooldownRemaining   time.Duration `json:"-"`
	CooldownSeconds     int           `json:"cooldown_remaining_seconds"`
	LastError           string        `json:"last_error,omitempty"`
	LastCategory        Category      `json:"last_error_category,omitempty"`
}

type backendStats struct {
	mu   sync.Mutex
	meta BackendMeta

	callsMade           int
	successfulCalls     int
	failedCalls         int
	consecutiveFailures int
	lastCall            time.Time
	lastError           string
	lastCategory        Category
	available           bool
	cooldownUntil       time.Time
}

// Tracker owns the availability state machine for every configured backend.
// The backend set is fixed at construction; only per-backend stats mutate.
type Tracker struct {
	cooldowns Cooldowns
	backends  map[string]*backendStats
	order     []string // names sorted by priority
	nowFunc   func() time.Time
}

// NewTracker creates a tracker with all backends initially available.
func NewTracker(metas []BackendMeta, cd Cooldowns) *Tracker {
	t := &Tracker{
		cooldowns: cd,
		backends:  make(map[string]*backendStats, len(metas)),
		nowFunc:   time.Now,
	}
	for _, m := range metas {
		t.backends[m.Name] = &backendStats{meta: m, available: true}
		t.order = append(t.order, m.Name)
	}
	sort.Slice(t.order, func(i, j int) bool {
		return t.backends[t.order[i]].meta.Priority < t.backends[t.order[j]].meta.Priority
	})
	return t
}

// SetNowFunc overrides the clock. Test hook.
func (t *Tracker) SetNowFunc(now func() time.Time) { t.nowFunc = now }

// Meta returns the static configuration slice for a backend.
func (t *Tracker) Meta(name string) (BackendMeta, bool) {
	bs, ok := t.backends[name]
	if !ok {
		return BackendMeta{}, false
	}
	return bs.meta, true
}

// RecordSuccess clears all failure state for a backend. A single success
// always makes the backend available again, regardless of prior failures.
func (t *Tracker) RecordSuccess(name string) {
	bs, ok := t.backends[name]
	if !ok {
		return
	}
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.callsMade++
	bs.successfulCalls++
	bs.consecutiveFailures = 0
	bs.lastError = ""
	bs.lastCategory = CategoryNone
	bs.lastCall = t.nowFunc()
	bs.available = true
	bs.cooldownUntil = time.Time{}
}

// RecordFailure classifies the error, increments failure counters, and puts
// the backend into the cooldown window its category demands. Returns the
// category so the engine can decide retry-vs-switch.
func (t *Tracker) RecordFailure(name, errMsg string) Category {
	bs, ok := t.backends[name]
	if !ok {
		return CategoryNone
	}
	bs.mu.Lock()
	defer bs.mu.Unlock()

	now := t.nowFunc()
	bs.callsMade++
	bs.failedCalls++
	bs.consecutiveFailures++
	bs.lastError = errMsg
	bs.lastCall = now

	category := Classify(errMsg)
	if category == CategoryUnknown && bs.consecutiveFailures >= repeatedFailureThreshold {
		category = CategoryRepeated
	}
	bs.lastCategory = category

	cooldown := t.cooldownFor(category, bs.meta, errMsg)
	bs.available = false
	bs.cooldownUntil = now.Add(cooldown)

	slog.Warn("backend cooling down",
		"backend", name,
		"category", string(category),
		"cooldown_s", int(cooldown.Seconds()),
		"consecutive_failures", bs.consecutiveFailures,
	)
	return category
}

// cooldownFor resolves the cooldown window for a failure category. Rate-limit
// errors honor a provider-supplied retry-after plus a buffer when the message
// carries one; otherwise the backend's family default applies.
func (t *Tracker) cooldownFor(category Category, meta BackendMeta, errMsg string) time.Duration {
	switch category {
	case CategoryRateLimit:
		if ra := parseRetryAfter(strings.ToLower(errMsg)); ra > 0 {
			return ra + t.cooldowns.RetryAfterBuffer
		}
		switch {
		case meta.ScriptsCapable:
			return t.cooldowns.RateLimitScript
		case meta.FastInference:
			return t.cooldowns.RateLimitFast
		default:
			return t.cooldowns.RateLimitDefault
		}
	case CategoryAuth:
		return t.cooldowns.Auth
	case CategoryTransient:
		return t.cooldowns.Transient
	case CategoryRepeated:
		return t.cooldowns.Repeated
	default:
		return t.cooldowns.Unknown
	}
}

// IsAvailable reports whether a backend may be called right now. An expired
// cooldown flips the backend back to available on first observation; the
// flip is idempotent and there is no background sweep.
func (t *Tracker) IsAvailable(name string) bool {
	bs, ok := t.backends[name]
	if !ok {
		return false
	}
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return t.reconcileLocked(bs)
}

// reconcileLocked applies the lazy availability flip. Must hold bs.mu.
func (t *Tracker) reconcileLocked(bs *backendStats) bool {
	if bs.available {
		return true
	}
	if !t.nowFunc().Before(bs.cooldownUntil) {
		slog.Info("cooldown expired, re-enabling backend", "backend", bs.meta.Name)
		bs.available = true
		bs.consecutiveFailures = 0
		bs.cooldownUntil = time.Time{}
		return true
	}
	return false
}

// Available returns the names of all currently available backends, sorted by
// configured priority.
func (t *Tracker) Available() []string {
	var out []string
	for _, name := range t.order {
		if t.IsAvailable(name) {
			out = append(out, name)
		}
	}
	return out
}

// CooldownRemaining reports how long until a backend self-heals. Zero when
// available.
func (t *Tracker) CooldownRemaining(name string) time.Duration {
	bs, ok := t.backends[name]
	if !ok {
		return 0
	}
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if bs.available {
		return 0
	}
	remaining := bs.cooldownUntil.Sub(t.nowFunc())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SelectionState exposes the two stats the selector balances on.
func (t *Tracker) SelectionState(name string) (consecutiveFailures int, lastCall time.Time, ok bool) {
	bs, found := t.backends[name]
	if !found {
		return 0, time.Time{}, false
	}
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.consecutiveFailures, bs.lastCall, true
}

// ForceEnableAll clears every backend's cooldown. Emergency use only, when a
// routing call finds nothing available.
func (t *Tracker) ForceEnableAll() {
	for _, name := range t.order {
		bs := t.backends[name]
		bs.mu.Lock()
		bs.available = true
		bs.consecutiveFailures = 0
		bs.lastError = ""
		bs.lastCategory = CategoryNone
		bs.cooldownUntil = time.Time{}
		bs.mu.Unlock()
	}
	slog.Warn("emergency reset: all backend cooldowns cleared")
}

// Snapshots returns a diagnostics copy of every backend's stats, sorted by
// priority.
func (t *Tracker) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(t.order))
	for _, name := range t.order {
		bs := t.backends[name]
		bs.mu.Lock()
		available := t.reconcileLocked(bs)
		remaining := time.Duration(0)
		if !available {
			remaining = bs.cooldownUntil.Sub(t.nowFunc())
			if remaining < 0 {
				remaining = 0
			}
		}
		out = append(out, Snapshot{
			Name:                bs.meta.Name,
			Provider:            bs.meta.Provider,
			Priority:            bs.meta.Priority,
			CallsMade:           bs.callsMade,
			SuccessfulCalls:     bs.successfulCalls,
			FailedCalls:         bs.failedCalls,
			ConsecutiveFailures: bs.consecutiveFailures,
			Available:           available,
			CooldownRemaining:   remaining,
			CooldownSeconds:     int(remaining.Seconds()),
			LastError:           bs.lastError,
			LastCategory:        bs.lastCategory,
		})
		bs.mu.Unlock()
	}
	return out
}
