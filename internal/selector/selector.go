// Package selector ranks the currently-available backends for one chunk.
// The ordering encodes product policy: script correctness beats model power,
// power beats load fairness, fairness beats anything-available.
package selector

import (
	"log/slog"
	"time"

	"github.com/inkwell-ai/chunkrouter/internal/analyzer"
	"github.com/inkwell-ai/chunkrouter/internal/usage"
)

// Selector picks one backend from a candidate set using tracker state.
type Selector struct {
	tracker *usage.Tracker
	nowFunc func() time.Time
}

func New(tracker *usage.Tracker) *Selector {
	return &Selector{tracker: tracker, nowFunc: time.Now}
}

// SetNowFunc overrides the clock. Test hook.
func (s *Selector) SetNowFunc(now func() time.Time) { s.nowFunc = now }

// Select returns the best backend for the chunk, or "" when candidates is
// empty. Candidates must already be filtered to available backends.
func (s *Selector) Select(candidates []string, a analyzer.Analysis) string {
	if len(candidates) == 0 {
		return ""
	}

	// Indic content needs a script-capable backend. If none is available we
	// degrade rather than fail: a weaker answer beats no answer.
	if a.HasIndicScript {
		if capable := s.filter(candidates, func(m usage.BackendMeta) bool { return m.ScriptsCapable }); len(capable) > 0 {
			return s.leastLoaded(capable)
		}
		slog.Warn("no script-capable backend available for indic content, routing degraded",
			"script", string(a.Script))
		return s.leastLoaded(candidates)
	}

	if a.Priority == analyzer.PriorityHigh || a.Complexity == analyzer.ComplexityComplex {
		if capable := s.filter(candidates, func(m usage.BackendMeta) bool { return m.ScriptsCapable }); len(capable) > 0 {
			return s.leastLoaded(capable)
		}
		if powerful := s.filter(candidates, func(m usage.BackendMeta) bool { return m.HighCapacity }); len(powerful) > 0 {
			return s.leastLoaded(powerful)
		}
	}

	if a.Priority == analyzer.PriorityMedium {
		if primary := s.filter(candidates, func(m usage.BackendMeta) bool { return m.ScriptsCapable }); len(primary) > 1 {
			return s.balance(primary)
		} else if len(primary) == 1 {
			return primary[0]
		}
	}

	return s.leastLoaded(candidates)
}

func (s *Selector) filter(candidates []string, keep func(usage.BackendMeta) bool) []string {
	var out []string
	for _, name := range candidates {
		if meta, ok := s.tracker.Meta(name); ok && keep(meta) {
			out = append(out, name)
		}
	}
	return out
}

// leastLoaded scores candidates by consecutive failures (dominant) plus hours
// since last call, ascending.
func (s *Selector) leastLoaded(candidates []string) string {
	if len(candidates) == 1 {
		return candidates[0]
	}
	best := ""
	bestScore := 0.0
	for _, name := range candidates {
		failures, lastCall, ok := s.tracker.SelectionState(name)
		if !ok {
			continue
		}
		score := float64(failures)*1000 + s.nowFunc().Sub(lastCall).Hours()
		if best == "" || score < bestScore {
			best = name
			bestScore = score
		}
	}
	return best
}

// balance spreads medium-priority load across the primary tier: fewer
// consecutive failures wins, ties broken by the longest-idle backend.
func (s *Selector) balance(candidates []string) string {
	best := ""
	bestFailures := 0
	var bestLastCall time.Time
	for _, name := range candidates {
		failures, lastCall, ok := s.tracker.SelectionState(name)
		if !ok {
			continue
		}
		if best == "" ||
			failures < bestFailures ||
			(failures == bestFailures && lastCall.Before(bestLastCall)) {
			best = name
			bestFailures = failures
			bestLastCall = lastCall
		}
	}
	return best
}
