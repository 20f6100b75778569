// Threshold watchdog — scans monitored scalars for crossings of configured
// bounds and emits narrative-only events with per-entry cooldowns. Cooldowns
// are an anti-spam heuristic held in memory per game; they are best-effort
// across restarts, not a correctness invariant.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/sashko1391/they-voted-for-this/internal/kernel"
	"github.com/sashko1391/they-voted-for-this/internal/state"
)

// trigger is one static watchdog rule.
type trigger struct {
	variable  string
	above     bool
	value     float64
	eventType string
	severity  int
	cooldown  uint64
}

// triggers is the static rule table. Entries fire independently; multiple
// may fire on the same tick.
var triggers = []trigger{
	{"economy.gdp", false, 100, "economic_crisis", 5, 10},
	{"economy.inflation", true, 50, "hyperinflation", 4, 5},
	{"economy.unemployment", true, 25, "protest", 3, 3},
	{"society.stability", false, 20, "revolution", 5, 20},
	{"society.stability", true, 90, "scandal", 2, 5},
	{"society.radicalization", true, 80, "revolution", 4, 15},
	{"society.radicalization", true, 60, "movement_formed", 2, 5},
	{"economy.budget.reserves", false, 0, "budget_crisis", 3, 5},
}

// Watchdog tracks when each rule last fired.
type Watchdog struct {
	lastFired map[int]uint64
}

// NewWatchdog returns a watchdog with no firing history.
func NewWatchdog() *Watchdog {
	return &Watchdog{lastFired: make(map[int]uint64)}
}

// Scan checks every rule against the current state and appends a
// pre-validated, narrative-only event for each crossing outside its
// cooldown window.
func (w *Watchdog) Scan(s *state.WorldState) {
	tick := s.Meta.Tick
	for i, t := range triggers {
		cur, err := kernel.Resolve(s, t.variable)
		if err != nil {
			slog.Error("watchdog variable missing", "variable", t.variable, "error", err)
			continue
		}
		crossed := (t.above && cur > t.value) || (!t.above && cur < t.value)
		if !crossed {
			continue
		}
		if last, ok := w.lastFired[i]; ok && tick-last <= t.cooldown {
			continue
		}
		w.lastFired[i] = tick

		cond := "below"
		if t.above {
			cond = "above"
		}
		s.Events = append(s.Events, &state.GameEvent{
			ID:          state.NewID("evt", s.Meta.Seed, tick, len(s.Events)),
			Source:      state.SourceCoreEngine,
			Tick:        tick,
			Type:        t.eventType,
			Severity:    t.severity,
			Status:      state.EventApplied,
			Description: fmt.Sprintf("%s crossed %s %.2f (now %.2f)", t.variable, cond, t.value, cur),
		})
		slog.Info("threshold trigger fired",
			"type", t.eventType,
			"variable", t.variable,
			"value", cur,
			"severity", t.severity,
		)
	}
}
