package kernel

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sashko1391/they-voted-for-this/internal/state"
)

func testState(t *testing.T) *state.WorldState {
	t.Helper()
	return state.New("srv-test", 24, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
}

func TestApplyOperations(t *testing.T) {
	s := testState(t)

	require.NoError(t, Apply(s, state.Modifier{Variable: "economy.gdp", Operation: OpSet, Value: 2000}))
	require.Equal(t, 2000.0, s.Economy.GDP)

	require.NoError(t, Apply(s, state.Modifier{Variable: "economy.gdp", Operation: OpAdd, Value: -500}))
	require.Equal(t, 1500.0, s.Economy.GDP)

	require.NoError(t, Apply(s, state.Modifier{Variable: "economy.gdp", Operation: OpMultiply, Value: 2}))
	require.Equal(t, 3000.0, s.Economy.GDP)

	lo, hi := 100.0, 200.0
	require.NoError(t, Apply(s, state.Modifier{Variable: "economy.gdp", Operation: OpClamp, Min: &lo, Max: &hi}))
	require.Equal(t, 200.0, s.Economy.GDP)
}

func TestApplyHardClampTruncatesSilently(t *testing.T) {
	s := testState(t)

	// A set far above the bound succeeds but lands on the bound.
	require.NoError(t, Apply(s, state.Modifier{Variable: "economy.gdp", Operation: OpSet, Value: 1e9}))
	require.Equal(t, 100000.0, s.Economy.GDP)

	require.NoError(t, Apply(s, state.Modifier{Variable: "society.protest_pressure", Operation: OpAdd, Value: 5}))
	require.Equal(t, 1.0, s.Society.ProtestPressure)

	require.NoError(t, Apply(s, state.Modifier{Variable: "economy.inflation", Operation: OpSet, Value: -100}))
	require.Equal(t, -20.0, s.Economy.Inflation)
}

func TestApplyRejectsUnknownVariable(t *testing.T) {
	s := testState(t)
	err := Apply(s, state.Modifier{Variable: "economy.nonsense", Operation: OpSet, Value: 1})
	require.ErrorIs(t, err, ErrVariableNotFound)

	err = Apply(s, state.Modifier{Variable: "players.alice.wealth", Operation: OpSet, Value: 1})
	require.ErrorIs(t, err, ErrVariableNotFound)
}

func TestApplyRejectsNonFinite(t *testing.T) {
	s := testState(t)
	prior := s.Economy.Budget.Deficit

	err := Apply(s, state.Modifier{Variable: "economy.budget.deficit", Operation: OpAdd, Value: math.Inf(1)})
	require.ErrorIs(t, err, ErrNotFinite)
	require.Equal(t, prior, s.Economy.Budget.Deficit)

	err = Apply(s, state.Modifier{Variable: "economy.budget.deficit", Operation: OpMultiply, Value: math.NaN()})
	require.ErrorIs(t, err, ErrNotFinite)
}

func TestApplyRejectsUnknownOperation(t *testing.T) {
	s := testState(t)
	err := Apply(s, state.Modifier{Variable: "economy.gdp", Operation: "divide", Value: 2})
	require.ErrorIs(t, err, ErrUnknownOperation)
}

func TestApplyBatchRollsBackOnFailure(t *testing.T) {
	s := testState(t)
	priorGDP := s.Economy.GDP
	priorTrust := s.Society.PublicTrust

	mods := []state.Modifier{
		{Variable: "economy.gdp", Operation: OpAdd, Value: 500},
		{Variable: "society.public_trust", Operation: OpAdd, Value: 10},
		{Variable: "does.not.exist", Operation: OpSet, Value: 1},
	}
	err := ApplyBatch(s, mods, "event:test")
	require.ErrorIs(t, err, ErrVariableNotFound)

	// Both completed writes are restored.
	require.Equal(t, priorGDP, s.Economy.GDP)
	require.Equal(t, priorTrust, s.Society.PublicTrust)
}

func TestApplyBatchSucceedsWhole(t *testing.T) {
	s := testState(t)
	mods := []state.Modifier{
		{Variable: "economy.gdp", Operation: OpAdd, Value: 500},
		{Variable: "society.stability", Operation: OpAdd, Value: -5},
	}
	require.NoError(t, ApplyBatch(s, mods, "event:test"))
	require.Equal(t, 1500.0, s.Economy.GDP)
	require.Equal(t, 65.0, s.Society.Stability)
}

func TestVariablesCoverHardConstraints(t *testing.T) {
	vars := Variables()
	set := make(map[string]bool, len(vars))
	for _, v := range vars {
		set[v] = true
	}
	for path := range hardConstraints {
		require.True(t, set[path], "constrained path %s must be addressable", path)
	}
}
