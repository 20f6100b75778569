package advisors

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sashko1391/they-voted-for-this/internal/state"
)

func testState(t *testing.T) *state.WorldState {
	t.Helper()
	return state.New("srv-test", 24, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
}

type stubTransport struct {
	fn func(system string) (string, error)
}

func (s stubTransport) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	return s.fn(system)
}

func TestRunDisabledTransportBindsNoopInterpretations(t *testing.T) {
	s := testState(t)
	law := &state.Law{ID: "law_1", Status: state.LawActive}
	s.Laws = append(s.Laws, law)

	p := NewPipeline(nil)
	p.Run(context.Background(), s, []*state.Law{law})

	require.NotNil(t, law.Interpretation)
	require.Empty(t, law.Interpretation.Implementation.Modifiers)
	require.Empty(t, s.Media.Headlines)
	require.InDelta(t, 50, s.Government.Approval.Overall, 1e-9)
}

func TestApplyMediaStampsRecords(t *testing.T) {
	s := testState(t)
	s.Meta.Tick = 7
	out := &MediaOutput{
		Headlines: []MediaHeadline{{Text: "A", TruthScore: 0.5}, {Text: "B", TruthScore: 2.0}},
		Articles:  []MediaArticle{{Title: "T", Body: "B", TruthScore: 0.7}},
		Rumors:    []MediaRumor{{Text: "R", Credibility: -1}},
	}
	applyMedia(s, out)

	require.Len(t, s.Media.Headlines, 2)
	require.Equal(t, uint64(7), s.Media.Headlines[0].Tick)
	require.NotEmpty(t, s.Media.Headlines[0].ID)
	require.NotEqual(t, s.Media.Headlines[0].ID, s.Media.Headlines[1].ID)
	// Scores clamp into [0,1].
	require.InDelta(t, 1.0, s.Media.Headlines[1].TruthScore, 1e-9)
	require.InDelta(t, 0.0, s.Media.Rumors[0].Credibility, 1e-9)
	require.Len(t, s.Media.Articles, 1)

	// A second press run replaces headlines and rumors but appends articles.
	applyMedia(s, out)
	require.Len(t, s.Media.Headlines, 2)
	require.Len(t, s.Media.Articles, 2)
}

func TestApplyReactionRatchet(t *testing.T) {
	s := testState(t)
	s.Society.ProtestPressure = 0.4

	// Lower probability than current: no downward motion through reaction.
	applyReaction(s, &ReactionOutput{ApprovalDelta: map[string]float64{}, ProtestProb: 0.1})
	require.InDelta(t, 0.4, s.Society.ProtestPressure, 1e-9)

	// Higher probability blends halfway.
	applyReaction(s, &ReactionOutput{ApprovalDelta: map[string]float64{}, ProtestProb: 0.8})
	require.InDelta(t, 0.6, s.Society.ProtestPressure, 1e-9)
}

func TestApplyReactionApprovalDeltas(t *testing.T) {
	s := testState(t)
	applyReaction(s, &ReactionOutput{
		ApprovalDelta: map[string]float64{"overall": -5, "economic": 3, "bogus": 99},
		ProtestProb:   0,
	})
	require.InDelta(t, 45, s.Government.Approval.Overall, 1e-9)
	require.InDelta(t, 53, s.Government.Approval.Economic, 1e-9)
	// Unknown keys are skipped, not fatal.
	require.InDelta(t, 50, s.Government.Approval.Social, 1e-9)
}

func TestMovementDirectives(t *testing.T) {
	s := testState(t)

	applyMovementDirective(s, MovementDirective{
		Action: "create", Name: "Bread and Peace", Type: state.MovementLabor, Strength: 0.6,
	})
	require.Len(t, s.Society.Movements, 1)
	m := s.Society.Movements[0]
	require.Equal(t, state.MovementLabor, m.Type)

	applyMovementDirective(s, MovementDirective{Action: "strengthen", MovementID: m.ID, Strength: 0.7})
	require.InDelta(t, 1.0, m.Strength, 1e-9) // Clamped.

	// Invalid type never creates.
	applyMovementDirective(s, MovementDirective{Action: "create", Name: "X", Type: "anarchist"})
	require.Len(t, s.Society.Movements, 1)

	// Dissolution clears members' movement ids.
	s.Players["p1"] = &state.Player{ID: "p1", Visible: state.VisibleStats{MovementID: m.ID}}
	m.MemberPlayerIDs = []string{"p1"}
	applyMovementDirective(s, MovementDirective{Action: "dissolve", MovementID: m.ID})
	require.Empty(t, s.Society.Movements)
	require.Empty(t, s.Players["p1"].Visible.MovementID)
}

func TestJudiciaryRejectedByCore(t *testing.T) {
	s := testState(t)
	law := &state.Law{ID: "law_1", Status: state.LawActive, OriginalText: "impossible demands"}
	s.Laws = append(s.Laws, law)
	priorGDP := s.Economy.GDP

	transport := stubTransport{fn: func(system string) (string, error) {
		if strings.Contains(system, "constitutional court") {
			return `{"law_id":"law_1","interpretation":"x","ambiguities":[],
				"implementation":{"affected_variables":["economy.gdp"],
				"modifiers":[{"variable":"economy.gdp","operation":"add","value":100},
				             {"variable":"missing.path","operation":"set","value":1}]}}`, nil
		}
		return "", fmt.Errorf("not scripted")
	}}
	p := NewPipeline(transport)
	p.Raw = map[string]string{}
	p.runJudiciary(context.Background(), s, []*state.Law{law})

	require.NotNil(t, law.Interpretation)
	require.True(t, law.Interpretation.RejectedByCore)
	require.Equal(t, state.LawActive, law.Status)
	require.Equal(t, priorGDP, s.Economy.GDP)
}

func TestJudiciaryLawIDMismatchFallsBack(t *testing.T) {
	s := testState(t)
	law := &state.Law{ID: "law_1", Status: state.LawActive}

	transport := stubTransport{fn: func(system string) (string, error) {
		return `{"law_id":"law_9","interpretation":"x","ambiguities":[],
			"implementation":{"affected_variables":[],"modifiers":[]}}`, nil
	}}
	p := NewPipeline(transport)
	p.Raw = map[string]string{}
	p.runJudiciary(context.Background(), s, []*state.Law{law})

	require.NotNil(t, law.Interpretation)
	require.Empty(t, law.Interpretation.Implementation.Modifiers)
	require.False(t, law.Interpretation.RejectedByCore)
}

func TestCrisisSeverityOutOfRangeInjectsNothing(t *testing.T) {
	s := testState(t)
	transport := stubTransport{fn: func(system string) (string, error) {
		return `{"event_type":"meteor","severity":9,"modifiers":[],
			"narrative_hook":"doom","duration_ticks":null}`, nil
	}}
	p := NewPipeline(transport)
	p.Raw = map[string]string{}
	p.runCrisis(context.Background(), s)
	require.Empty(t, s.Events)
}

func TestCrisisNullIsQuietSuccess(t *testing.T) {
	s := testState(t)
	transport := stubTransport{fn: func(system string) (string, error) {
		return "null", nil
	}}
	p := NewPipeline(transport)
	p.Raw = map[string]string{}
	p.runCrisis(context.Background(), s)
	require.Empty(t, s.Events)
}

func TestHistorianEraTransition(t *testing.T) {
	s := testState(t)
	s.Meta.Tick = 12
	transport := stubTransport{fn: func(system string) (string, error) {
		return `{"era_transition":{"name":"The Long Strike","description":"Labor rises."},
			"summary":"Everything changed.",
			"player_reputations":{"ghost":{"summary":"unknown","score":1}}}`, nil
	}}
	p := NewPipeline(transport)
	p.Raw = map[string]string{}
	p.RunHistorian(context.Background(), s, []string{"strike began"})

	require.Len(t, s.History.Eras, 2)
	require.NotNil(t, s.History.Eras[0].TickEnd)
	require.Equal(t, uint64(12), *s.History.Eras[0].TickEnd)
	require.Equal(t, "The Long Strike", s.History.Eras[1].Name)
	// Reputations for unknown players are dropped.
	require.Empty(t, s.History.PlayerReputations)
}
