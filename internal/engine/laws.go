// Law lifecycle — one status hop per tick along
// proposed → voting → active/rejected, plus per-tick application of bound
// judiciary interpretations.
package engine

import (
	"log/slog"

	"github.com/sashko1391/they-voted-for-this/internal/kernel"
	"github.com/sashko1391/they-voted-for-this/internal/state"
)

// advanceLaws moves each law at most one status hop and returns the laws
// that entered active this tick (they still need a judiciary
// interpretation bound in the same tick's advisor pass). Laws are visited in
// creation order. Returns counts of activations and vote rejections for the
// tick log.
func advanceLaws(s *state.WorldState) (newlyActive []*state.Law, activated, rejected int) {
	for _, law := range s.Laws {
		switch law.Status {
		case state.LawProposed:
			if s.Meta.Tick > law.ProposedTick {
				law.Status = state.LawVoting
			}
		case state.LawVoting:
			total := law.Votes.For + law.Votes.Against
			if total == 0 {
				// No votes yet; the law waits one more tick.
				continue
			}
			if law.Votes.For > law.Votes.Against {
				law.Status = state.LawActive
				tick := s.Meta.Tick
				law.ActivatedTick = &tick
				s.Government.ActiveLawCount++
				if proposer, ok := s.Players[law.ProposerID]; ok && proposer.Politician != nil {
					proposer.Politician.LawsPassed++
				}
				newlyActive = append(newlyActive, law)
				activated++
			} else {
				law.Status = state.LawRejected
				rejected++
			}
		}
	}
	return newlyActive, activated, rejected
}

// applyActiveLaws applies the modifier batch of every active law with a
// bound, non-rejected interpretation. A kernel rejection rolls the batch
// back and flags the interpretation dead; the law keeps its active status
// with no effect.
func applyActiveLaws(s *state.WorldState) {
	for _, law := range s.Laws {
		if law.Status != state.LawActive || law.Interpretation == nil || law.Interpretation.RejectedByCore {
			continue
		}
		mods := law.Interpretation.Implementation.Modifiers
		if len(mods) == 0 {
			continue
		}
		if err := kernel.ApplyBatch(s, mods, "law:"+law.ID); err != nil {
			law.Interpretation.RejectedByCore = true
			slog.Warn("law interpretation rejected by core", "law", law.ID, "error", err)
		}
	}
}
