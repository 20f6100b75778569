// Tick orchestration — drives the fixed phase sequence of one tick and
// finalizes the audit log. The caller owns persistence: a tick runs against
// an in-memory state and nothing is durable until the caller commits the
// finalized result, so an interrupted tick leaves storage on the pre-tick
// snapshot.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashko1391/they-voted-for-this/internal/advisors"
	"github.com/sashko1391/they-voted-for-this/internal/metrics"
	"github.com/sashko1391/they-voted-for-this/internal/state"
)

// Ticker runs ticks for one game instance.
type Ticker struct {
	Pipeline *advisors.Pipeline
	Watchdog *Watchdog
}

// NewTicker wires a tick runner over the given advisor pipeline.
func NewTicker(p *advisors.Pipeline) *Ticker {
	return &Ticker{Pipeline: p, Watchdog: NewWatchdog()}
}

// RunTick advances the state by exactly one tick: queued actions, economy
// recalculation, law lifecycle, advisor stages, threshold scan, event
// processing, historian, finalize. No single failure inside aborts the
// tick; the finalize step always runs.
func (t *Ticker) RunTick(ctx context.Context, s *state.WorldState) error {
	start := time.Now()
	entry := state.TickLogEntry{Tick: s.Meta.Tick + 1}

	s.Meta.Phase = state.PhaseProcessing
	entry.ActionsResolved, entry.ActionsSkipped = resolveActions(s)
	metrics.ActionsResolved.WithLabelValues("resolved").Add(float64(entry.ActionsResolved))
	metrics.ActionsResolved.WithLabelValues("skipped").Add(float64(entry.ActionsSkipped))

	recalcEconomy(s)

	newlyActive, activated, rejected := advanceLaws(s)
	entry.LawsActivated = activated
	entry.LawsRejected = rejected
	applyActiveLaws(s)

	s.Meta.Phase = state.PhaseAIEvaluation
	t.Pipeline.Run(ctx, s, newlyActive)

	s.Meta.Phase = state.PhaseResolved
	t.Watchdog.Scan(s)
	entry.EventsApplied, entry.EventsRejected, entry.EventsExpired = processEvents(s)

	t.Pipeline.RunHistorian(ctx, s, tickSummary(s, entry))

	t.finalize(s, &entry)

	metrics.TicksTotal.Inc()
	metrics.TickDuration.Observe(time.Since(start).Seconds())
	slog.Info("tick complete",
		"server", s.Meta.ServerID,
		"tick", s.Meta.Tick,
		"actions", entry.ActionsResolved,
		"events_applied", entry.EventsApplied,
		"laws_activated", entry.LawsActivated,
		"hash", entry.ContentHash,
	)
	return nil
}

// finalize always runs: it advances tick and seed, resets the phase and
// deadline, records the snapshot ring, clears per-tick player flags, and
// appends the audit entry with the post-finalize content hash.
func (t *Ticker) finalize(s *state.WorldState, entry *state.TickLogEntry) {
	s.Meta.Tick++
	s.Meta.Seed++
	s.Meta.Phase = state.PhaseAcceptingActions
	// The deadline advances from its previous value, not from the wall
	// clock, so replays of the same inputs hash identically.
	s.Meta.TickDeadline = s.Meta.TickDeadline.Add(time.Duration(s.Meta.TickIntervalHours) * time.Hour)

	for _, id := range s.PlayerIDs() {
		if c := s.Players[id].Citizen; c != nil {
			c.VotedThisTick = false
		}
	}

	s.Snapshots = append(s.Snapshots, state.Snapshot{
		Tick:      s.Meta.Tick,
		Stability: s.Society.Stability,
		GDP:       s.Economy.GDP,
	})
	if len(s.Snapshots) > state.HistorySnapshotLen {
		s.Snapshots = s.Snapshots[len(s.Snapshots)-state.HistorySnapshotLen:]
	}

	hash, err := s.ContentHash()
	if err != nil {
		slog.Error("content hash failed", "error", err)
		hash = "unavailable"
	}
	entry.ContentHash = hash
	entry.AdvisorOutputs = t.Pipeline.Raw

	s.TickLog = append(s.TickLog, *entry)
	if len(s.TickLog) > state.MaxTickLogEntries {
		s.TickLog = s.TickLog[len(s.TickLog)-state.MaxTickLogEntries:]
	}
}

// tickSummary condenses the tick's outcomes for the historian.
func tickSummary(s *state.WorldState, entry state.TickLogEntry) []string {
	var lines []string
	lines = append(lines, fmt.Sprintf("%d actions resolved, %d skipped", entry.ActionsResolved, entry.ActionsSkipped))
	if entry.LawsActivated > 0 || entry.LawsRejected > 0 {
		lines = append(lines, fmt.Sprintf("%d laws activated, %d rejected at the vote", entry.LawsActivated, entry.LawsRejected))
	}
	for _, e := range s.Events {
		if e.Tick == s.Meta.Tick && e.Status != state.EventExpired {
			lines = append(lines, fmt.Sprintf("event %s (%s, severity %d): %s", e.Type, e.Status, e.Severity, e.Description))
		}
	}
	for _, h := range s.Media.Headlines {
		lines = append(lines, "press: "+h.Text)
	}
	return lines
}
