package engine

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sashko1391/they-voted-for-this/internal/state"
)

func TestProjectViewDeterministic(t *testing.T) {
	s := newTestState(t)
	addCitizen(s, "alice", true)

	v1 := ProjectView(s, "alice")
	v2 := ProjectView(s, "alice")
	require.Equal(t, v1, v2)
}

func TestProjectViewCategoriesInEnumeratedSets(t *testing.T) {
	s := newTestState(t)
	addCitizen(s, "alice", true)

	trends := map[string]bool{"rising": true, "falling": true, "stable": true}
	avail := map[string]bool{"abundant": true, "normal": true, "scarce": true, "shortage": true}
	approvals := map[string]bool{"popular": true, "mixed": true, "unpopular": true, "crisis": true}

	for seed := int32(1); seed <= 50; seed++ {
		s.Meta.Seed = seed
		v := ProjectView(s, "alice")
		require.True(t, trends[v.PriceTrend], "price_trend %q", v.PriceTrend)
		require.True(t, avail[v.Availability], "availability %q", v.Availability)
		require.True(t, approvals[v.ApprovalVague], "approval %q", v.ApprovalVague)
	}
}

func TestProjectViewRoleBlocks(t *testing.T) {
	s := newTestState(t)
	addCitizen(s, "alice", true)
	b := addBusiness(s, "boss")
	b.Business.StrikeRisk = 0.9
	pol := addPolitician(s, "rep")
	pol.Politician.LawsProposed = 3

	cv := ProjectView(s, "alice")
	require.NotNil(t, cv.Citizen)
	require.Nil(t, cv.Business)
	require.True(t, cv.Citizen.Employed)

	bv := ProjectView(s, "boss")
	require.NotNil(t, bv.Business)
	require.Equal(t, "striking", bv.Business.LaborMood)
	require.Equal(t, 5, bv.Business.Employees)

	pv := ProjectView(s, "rep")
	require.NotNil(t, pv.Politician)
	require.Equal(t, 3, pv.Politician.LawsProposed)
	// The estimates are perturbed but bounded by the noise magnitude.
	require.InDelta(t, s.Government.Approval.Overall, pv.Politician.ApprovalEstimate, 8.5)
	require.InDelta(t, s.Economy.Unemployment, pv.Politician.UnemploymentEstimate, 3.1)
}

func TestProjectViewLeaksNothingHidden(t *testing.T) {
	s := newTestState(t)
	p := addPolitician(s, "rep")
	p.Hidden.Corruption = 42
	p.Hidden.Influence = 17
	law := &state.Law{ID: "law_1", Status: state.LawVoting, OriginalText: "tax the wind",
		Votes: state.VoteTally{For: 7, Against: 3}}
	s.Laws = append(s.Laws, law)

	v := ProjectView(s, "rep")
	data, err := json.Marshal(v)
	require.NoError(t, err)
	out := string(data)

	for _, forbidden := range []string{"hidden", "corruption", "influence", "votes", "tallies", "radicalization", "public_trust"} {
		require.False(t, strings.Contains(out, forbidden), "view leaks %q: %s", forbidden, out)
	}
	// The law itself is visible, without its tallies.
	require.Contains(t, out, "tax the wind")
}

func TestProjectViewUnknownPlayer(t *testing.T) {
	s := newTestState(t)
	require.Nil(t, ProjectView(s, "ghost"))
}

func TestProjectViewWealthRounded(t *testing.T) {
	s := newTestState(t)
	c := addCitizen(s, "alice", true)
	c.Visible.Wealth = 123.456789

	v := ProjectView(s, "alice")
	require.Equal(t, 123.46, v.Wealth)
}
