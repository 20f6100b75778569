// Pipeline sequencing — the six stages run strictly in order, each inside an
// isolation boundary: a transport error, malformed output, or timeout is
// logged and replaced by the stage's fallback, and never blocks the stages
// after it.
package advisors

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sashko1391/they-voted-for-this/internal/kernel"
	"github.com/sashko1391/they-voted-for-this/internal/metrics"
	"github.com/sashko1391/they-voted-for-this/internal/state"
)

const defaultStageTimeout = 45 * time.Second

// Pipeline drives the advisor stages for one game.
type Pipeline struct {
	Transport    Transport
	StageTimeout time.Duration

	// Raw per-stage response text, captured for the tick log. Reset at the
	// start of each tick.
	Raw map[string]string
}

// NewPipeline returns a pipeline over the given transport. A nil transport
// is valid: the stages are then skipped, and newly active laws are bound a
// no-op interpretation.
func NewPipeline(t Transport) *Pipeline {
	return &Pipeline{Transport: t, StageTimeout: defaultStageTimeout}
}

// call runs one advisor exchange with the stage timeout applied.
func (p *Pipeline) call(ctx context.Context, stage, system string, input any, maxTokens int) (string, error) {
	if p.Transport == nil {
		return "", fmt.Errorf("no transport")
	}
	user, err := userPrompt(input)
	if err != nil {
		return "", err
	}
	timeout := p.StageTimeout
	if timeout <= 0 {
		timeout = defaultStageTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := p.Transport.Complete(cctx, system, user, maxTokens)
	if err != nil {
		return "", err
	}
	if p.Raw != nil {
		p.Raw[stage] = raw
	}
	return raw, nil
}

// stageFallback logs and counts a stage failure.
func stageFallback(stage string, err error) {
	metrics.AdvisorFailures.WithLabelValues(stage).Inc()
	slog.Warn("advisor stage failed, applying fallback", "stage", stage, "error", err)
}

// Run executes stages 1–5 (analyst through crisis) against the state. The
// historian runs separately after event processing; see RunHistorian.
// newlyActive lists laws that entered active this tick and need an
// interpretation bound.
func (p *Pipeline) Run(ctx context.Context, s *state.WorldState, newlyActive []*state.Law) {
	p.Raw = make(map[string]string)

	if p.Transport == nil {
		// Advisors disabled (no API key): stages are skipped outright, not
		// failed. Newly active laws still need an interpretation bound so
		// the lifecycle stays well-formed.
		for _, law := range newlyActive {
			law.Interpretation = noopInterpretation()
		}
		return
	}

	analyst := p.runAnalyst(ctx, s)
	p.runJudiciary(ctx, s, newlyActive)
	p.runMedia(ctx, s, analyst)
	p.runReaction(ctx, s, analyst)
	p.runCrisis(ctx, s)
}

func (p *Pipeline) runAnalyst(ctx context.Context, s *state.WorldState) *AnalystOutput {
	input := analystInput{
		Tick:        s.Meta.Tick,
		Economy:     snapEconomy(s),
		Society:     snapSociety(s),
		ActiveLaws:  s.Government.ActiveLawCount,
		PlayerCount: len(s.Players),
	}
	raw, err := p.call(ctx, StageAnalyst, analystSystem, input, 800)
	if err != nil {
		stageFallback(StageAnalyst, err)
		return analystFallback(s)
	}
	var out AnalystOutput
	if err := decode(raw, analystRequired, &out); err != nil {
		stageFallback(StageAnalyst, err)
		return analystFallback(s)
	}
	return &out
}

// runJudiciary binds an interpretation onto each newly active law and
// attempts its modifier batch immediately. A kernel rejection rolls the
// batch back and flags the interpretation dead; the law stays active.
func (p *Pipeline) runJudiciary(ctx context.Context, s *state.WorldState, newlyActive []*state.Law) {
	for _, law := range newlyActive {
		input := judiciaryInput{
			LawID:        law.ID,
			OriginalText: law.OriginalText,
			ProposedTick: law.ProposedTick,
			Economy:      snapEconomy(s),
			Society:      snapSociety(s),
			Variables:    kernel.Variables(),
		}
		interp := p.interpretLaw(ctx, law, input)
		law.Interpretation = interp

		if len(interp.Implementation.Modifiers) == 0 {
			continue
		}
		if err := kernel.ApplyBatch(s, interp.Implementation.Modifiers, "law:"+law.ID); err != nil {
			interp.RejectedByCore = true
			slog.Warn("judiciary modifiers rejected by core", "law", law.ID, "error", err)
		}
	}
}

func (p *Pipeline) interpretLaw(ctx context.Context, law *state.Law, input judiciaryInput) *state.Interpretation {
	raw, err := p.call(ctx, StageJudiciary, judiciarySystem, input, 1000)
	if err != nil {
		stageFallback(StageJudiciary, err)
		return noopInterpretation()
	}
	var out JudiciaryOutput
	if err := decode(raw, judiciaryRequired, &out); err != nil {
		stageFallback(StageJudiciary, err)
		return noopInterpretation()
	}
	if out.LawID != law.ID {
		stageFallback(StageJudiciary, fmt.Errorf("law_id mismatch: got %q want %q", out.LawID, law.ID))
		return noopInterpretation()
	}
	return &state.Interpretation{
		Interpretation: out.Interpretation,
		Ambiguities:    out.Ambiguities,
		Implementation: out.Implementation,
	}
}

func (p *Pipeline) runMedia(ctx context.Context, s *state.WorldState, analyst *AnalystOutput) {
	var recent []string
	for _, e := range s.Events {
		if e.Tick == s.Meta.Tick {
			recent = append(recent, e.Description)
		}
	}
	var activeLaws []string
	for _, l := range s.Laws {
		if l.Status == state.LawActive {
			activeLaws = append(activeLaws, l.OriginalText)
		}
	}
	input := mediaInput{
		Tick:          s.Meta.Tick,
		AnalystTrends: analyst.Trends,
		AnalystRisks:  analyst.Risks,
		RecentEvents:  recent,
		ActiveLaws:    activeLaws,
		Approval:      s.Government.Approval.Overall,
	}

	out := mediaFallback()
	raw, err := p.call(ctx, StageMedia, mediaSystem, input, 1200)
	if err != nil {
		stageFallback(StageMedia, err)
	} else {
		var parsed MediaOutput
		if err := decode(raw, mediaRequired, &parsed); err != nil {
			stageFallback(StageMedia, err)
		} else {
			out = &parsed
		}
	}
	applyMedia(s, out)
}

// applyMedia replaces headlines and rumors with freshly stamped records and
// appends articles, keeping the most recent ones.
func applyMedia(s *state.WorldState, out *MediaOutput) {
	tick := s.Meta.Tick
	headlines := make([]state.Headline, 0, len(out.Headlines))
	for i, h := range out.Headlines {
		headlines = append(headlines, state.Headline{
			ID:         state.NewID("headline", s.Meta.Seed, tick, i),
			Tick:       tick,
			Text:       h.Text,
			TruthScore: clamp01(h.TruthScore),
		})
	}
	rumors := make([]state.Rumor, 0, len(out.Rumors))
	for i, r := range out.Rumors {
		rumors = append(rumors, state.Rumor{
			ID:          state.NewID("rumor", s.Meta.Seed, tick, i),
			Tick:        tick,
			Text:        r.Text,
			Credibility: clamp01(r.Credibility),
		})
	}
	s.Media.Headlines = headlines
	s.Media.Rumors = rumors

	for i, a := range out.Articles {
		s.Media.Articles = append(s.Media.Articles, state.Article{
			ID:         state.NewID("article", s.Meta.Seed, tick, i),
			Tick:       tick,
			Title:      a.Title,
			Body:       a.Body,
			TruthScore: clamp01(a.TruthScore),
		})
	}
	if len(s.Media.Articles) > state.MaxArticlesKept {
		s.Media.Articles = s.Media.Articles[len(s.Media.Articles)-state.MaxArticlesKept:]
	}
}

func (p *Pipeline) runReaction(ctx context.Context, s *state.WorldState, analyst *AnalystOutput) {
	var headlines []string
	for _, h := range s.Media.Headlines {
		headlines = append(headlines, h.Text)
	}
	var activated []string
	for _, l := range s.Laws {
		if l.Status == state.LawActive && l.ActivatedTick != nil && *l.ActivatedTick == s.Meta.Tick {
			activated = append(activated, l.OriginalText)
		}
	}
	briefs := make([]movementBrief, 0, len(s.Society.Movements))
	for _, m := range s.Society.Movements {
		briefs = append(briefs, movementBrief{
			ID: m.ID, Name: m.Name, Type: m.Type,
			Strength: m.Strength, Members: len(m.MemberPlayerIDs),
		})
	}
	input := reactionInput{
		Tick:            s.Meta.Tick,
		Approval:        s.Government.Approval,
		Society:         snapSociety(s),
		Headlines:       headlines,
		LawsThisTick:    activated,
		Movements:       briefs,
		AnalystRisks:    analyst.Risks,
		ProtestPressure: s.Society.ProtestPressure,
	}

	out := reactionFallback()
	raw, err := p.call(ctx, StageReaction, reactionSystem, input, 1000)
	if err != nil {
		stageFallback(StageReaction, err)
	} else {
		var parsed ReactionOutput
		if err := decode(raw, reactionRequired, &parsed); err != nil {
			stageFallback(StageReaction, err)
		} else {
			// A negative probability would collide with the fallback
			// sentinel; advisor output is clamped into range.
			parsed.ProtestProb = clamp01(parsed.ProtestProb)
			out = &parsed
		}
	}
	applyReaction(s, out)
}

// applyReaction folds public reaction into approvals, protest pressure, and
// the movement roster. Protest pressure only ratchets up here; the downward
// path is the recalculator's natural decay.
func applyReaction(s *state.WorldState, out *ReactionOutput) {
	keys := make([]string, 0, len(out.ApprovalDelta))
	for k := range out.ApprovalDelta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m := state.Modifier{
			Variable:  "government.approval." + k,
			Operation: kernel.OpAdd,
			Value:     out.ApprovalDelta[k],
		}
		if err := kernel.Apply(s, m); err != nil {
			slog.Warn("reaction approval delta skipped", "key", k, "error", err)
		}
	}

	cur := s.Society.ProtestPressure
	if out.ProtestProb < 0 {
		// Fallback path: fixed small bump.
		mustSet(s, "society.protest_pressure", cur+0.02)
	} else if out.ProtestProb > cur {
		mustSet(s, "society.protest_pressure", 0.5*cur+0.5*out.ProtestProb)
	}

	for _, d := range out.Movements {
		applyMovementDirective(s, d)
	}
}

func applyMovementDirective(s *state.WorldState, d MovementDirective) {
	switch d.Action {
	case "create":
		if !validMovementType(d.Type) || d.Name == "" {
			slog.Warn("movement create directive skipped", "name", d.Name, "type", d.Type)
			return
		}
		s.Society.Movements = append(s.Society.Movements, &state.Movement{
			ID:          state.NewID("mov", s.Meta.Seed, s.Meta.Tick, len(s.Society.Movements)),
			Name:        d.Name,
			Type:        d.Type,
			Strength:    clamp01(d.Strength),
			Demands:     d.Demands,
			CreatedTick: s.Meta.Tick,
		})
	case "strengthen":
		if m := s.Movement(d.MovementID); m != nil {
			m.Strength = clamp01(m.Strength + d.Strength)
		}
	case "dissolve":
		kept := s.Society.Movements[:0]
		for _, m := range s.Society.Movements {
			if m.ID == d.MovementID {
				for _, pid := range m.MemberPlayerIDs {
					if p, ok := s.Players[pid]; ok && p.Visible.MovementID == m.ID {
						p.Visible.MovementID = ""
					}
				}
				continue
			}
			kept = append(kept, m)
		}
		s.Society.Movements = kept
	default:
		slog.Warn("unknown movement directive skipped", "action", d.Action)
	}
}

func (p *Pipeline) runCrisis(ctx context.Context, s *state.WorldState) {
	stability := make([]float64, 0, len(s.Snapshots))
	gdp := make([]float64, 0, len(s.Snapshots))
	for _, snap := range s.Snapshots {
		stability = append(stability, snap.Stability)
		gdp = append(gdp, snap.GDP)
	}
	var active []string
	for _, e := range s.Events {
		if e.Status == state.EventApplied && e.ExpiresTick != nil {
			active = append(active, e.Type)
		}
	}
	input := crisisInput{
		Tick:             s.Meta.Tick,
		Economy:          snapEconomy(s),
		Society:          snapSociety(s),
		StabilityHistory: stability,
		GDPHistory:       gdp,
		ActiveEvents:     active,
		Variables:        kernel.Variables(),
	}

	raw, err := p.call(ctx, StageCrisis, crisisSystem, input, 800)
	if err != nil {
		stageFallback(StageCrisis, err)
		return // Inject nothing.
	}
	if isNullLiteral(raw) {
		return // Legitimate quiet tick.
	}
	var out CrisisOutput
	if err := decode(raw, crisisRequired, &out); err != nil {
		stageFallback(StageCrisis, err)
		return
	}
	if out.Severity < 1 || out.Severity > 5 {
		stageFallback(StageCrisis, fmt.Errorf("severity %d out of range", out.Severity))
		return
	}
	s.Events = append(s.Events, &state.GameEvent{
		ID:            state.NewID("evt", s.Meta.Seed, s.Meta.Tick, len(s.Events)),
		Source:        state.SourceCrisis,
		Tick:          s.Meta.Tick,
		Type:          out.EventType,
		Severity:      out.Severity,
		Status:        state.EventPending,
		Description:   out.NarrativeHook,
		Modifiers:     out.Modifiers,
		DurationTicks: out.DurationTicks,
		NarrativeHook: out.NarrativeHook,
	})
}

// RunHistorian executes the final stage after event processing, so the
// chronicle reflects what actually happened. The historian never mutates
// gameplay state; a failure skips the history update entirely.
func (p *Pipeline) RunHistorian(ctx context.Context, s *state.WorldState, tickSummary []string) {
	if p.Transport == nil {
		return
	}
	current := state.Era{Name: "Unrecorded"}
	if n := len(s.History.Eras); n > 0 {
		current = s.History.Eras[n-1]
	}
	players := make([]playerBrief, 0, len(s.Players))
	for _, id := range s.PlayerIDs() {
		pl := s.Players[id]
		players = append(players, playerBrief{ID: pl.ID, Name: pl.Name, Role: pl.Role})
	}
	known := make(map[string]float64, len(s.History.PlayerReputations))
	for id, r := range s.History.PlayerReputations {
		known[id] = r.Score
	}
	input := historianInput{
		Tick:         s.Meta.Tick,
		CurrentEra:   current.Name,
		EraStartTick: current.TickStart,
		TickSummary:  tickSummary,
		Players:      players,
		Reputations:  known,
	}

	raw, err := p.call(ctx, StageHistorian, historianSystem, input, 800)
	if err != nil {
		stageFallback(StageHistorian, err)
		return
	}
	var out HistorianOutput
	if err := decode(raw, historianRequired, &out); err != nil {
		stageFallback(StageHistorian, err)
		return
	}

	if out.EraTransition != nil && out.EraTransition.Name != "" {
		if n := len(s.History.Eras); n > 0 {
			end := s.Meta.Tick
			s.History.Eras[n-1].TickEnd = &end
		}
		s.History.Eras = append(s.History.Eras, state.Era{
			Name:        out.EraTransition.Name,
			Description: out.EraTransition.Description,
			TickStart:   s.Meta.Tick,
		})
	}
	for id, rec := range out.PlayerReputations {
		if _, ok := s.Players[id]; ok {
			s.History.PlayerReputations[id] = rec
		}
	}
}

func validMovementType(t string) bool {
	switch t {
	case state.MovementReform, state.MovementPopulist, state.MovementRadical,
		state.MovementSeparatist, state.MovementLabor, state.MovementBusiness:
		return true
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func mustSet(s *state.WorldState, variable string, v float64) {
	if err := kernel.Apply(s, state.Modifier{Variable: variable, Operation: kernel.OpSet, Value: v}); err != nil {
		slog.Error("pipeline write rejected", "variable", variable, "error", err)
	}
}
