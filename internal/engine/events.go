// Event processing — priority-ordered application of pending events with
// all-or-nothing modifier batches, plus expiration of applied events.
package engine

import (
	"sort"

	"github.com/sashko1391/they-voted-for-this/internal/kernel"
	"github.com/sashko1391/they-voted-for-this/internal/state"
)

// sourcePriority orders event application. Higher applies first.
var sourcePriority = map[string]int{
	state.SourceCoreEngine:        100,
	state.SourceJudiciary:         85,
	state.SourceCrisis:            70,
	state.SourcePoliticalReaction: 60,
	state.SourceStateAnalyst:      50,
	state.SourceMedia:             10,
}

// processEvents expires due events, then applies pending ones in descending
// source priority (ties broken by id). A batch that fails midway is rolled
// back entirely and the event marked rejected. Returns counts for the tick
// log.
func processEvents(s *state.WorldState) (applied, rejected, expired int) {
	tick := s.Meta.Tick

	for _, e := range s.Events {
		if e.Status == state.EventApplied && e.ExpiresTick != nil && *e.ExpiresTick <= tick {
			e.Status = state.EventExpired
			expired++
		}
	}

	pending := make([]*state.GameEvent, 0)
	for _, e := range s.Events {
		if e.Status == state.EventPending {
			pending = append(pending, e)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		pi, pj := sourcePriority[pending[i].Source], sourcePriority[pending[j].Source]
		if pi != pj {
			return pi > pj
		}
		return pending[i].ID < pending[j].ID
	})

	for _, e := range pending {
		if len(e.Modifiers) == 0 {
			e.Status = state.EventApplied
			setExpiry(e, tick)
			applied++
			continue
		}
		if err := kernel.ApplyBatch(s, e.Modifiers, "event:"+e.ID); err != nil {
			e.Status = state.EventRejected
			rejected++
			continue
		}
		e.Status = state.EventApplied
		setExpiry(e, tick)
		applied++
	}
	return applied, rejected, expired
}

func setExpiry(e *state.GameEvent, tick uint64) {
	if e.DurationTicks != nil {
		exp := tick + *e.DurationTicks
		e.ExpiresTick = &exp
	}
}
