package game

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sashko1391/they-voted-for-this/internal/persistence"
	"github.com/sashko1391/they-voted-for-this/internal/state"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := persistence.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewRegistry(ctx, store, nil, 24, 4)
}

func TestCreateAndJoin(t *testing.T) {
	r := testRegistry(t)
	g, res, err := r.Create("founder", state.RolePolitician)
	require.NoError(t, err)
	require.Len(t, res.PlayerToken, 32)
	require.Equal(t, g, r.Get(g.ID))

	res2, err := g.Join("worker", state.RoleCitizen)
	require.NoError(t, err)
	require.NotEqual(t, res.PlayerID, res2.PlayerID)

	_, err = g.Join("x", "warlord")
	require.ErrorIs(t, err, ErrInvalidRole)
}

func TestJoinRejectedOutsideActionPhase(t *testing.T) {
	r := testRegistry(t)
	g, _, err := r.Create("founder", state.RoleCitizen)
	require.NoError(t, err)

	g.mu.Lock()
	g.st.Meta.Phase = state.PhaseProcessing
	g.mu.Unlock()

	_, err = g.Join("late", state.RoleCitizen)
	require.ErrorIs(t, err, ErrWrongPhase)
}

func TestSubmitActionValidation(t *testing.T) {
	r := testRegistry(t)
	g, res, err := r.Create("founder", state.RoleCitizen)
	require.NoError(t, err)

	// Bad token.
	_, _, err = g.SubmitAction(res.PlayerID, "nope", state.Action{Type: "work"})
	require.ErrorIs(t, err, ErrUnauthorized)

	// Wrong role for the action type.
	_, _, err = g.SubmitAction(res.PlayerID, res.PlayerToken, state.Action{Type: "produce"})
	require.ErrorIs(t, err, ErrWrongRole)

	// Five actions queue, the sixth is rejected.
	for i := 1; i <= 5; i++ {
		pending, _, err := g.SubmitAction(res.PlayerID, res.PlayerToken, state.Action{Type: "work"})
		require.NoError(t, err)
		require.Equal(t, i, pending)
	}
	pending, _, err := g.SubmitAction(res.PlayerID, res.PlayerToken, state.Action{Type: "work"})
	require.ErrorIs(t, err, ErrTooManyQueued)
	require.Equal(t, 5, pending)
}

func TestRunTickCommitsAtomically(t *testing.T) {
	r := testRegistry(t)
	g, res, err := r.Create("founder", state.RoleCitizen)
	require.NoError(t, err)

	_, _, err = g.SubmitAction(res.PlayerID, res.PlayerToken, state.Action{Type: "work"})
	require.NoError(t, err)

	require.NoError(t, g.RunTick(context.Background()))
	require.Equal(t, uint64(1), g.st.Meta.Tick)

	// The committed snapshot matches the in-memory state.
	saved, tokens, err := r.store.LoadGame(g.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), saved.Meta.Tick)
	require.Contains(t, tokens, res.PlayerID)
	require.Empty(t, saved.Players[res.PlayerID].ActionsPending)
}

func TestRestoreResumesGames(t *testing.T) {
	store, err := persistence.Open(filepath.Join(t.TempDir(), "restore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r1 := NewRegistry(ctx, store, nil, 24, 4)
	g, res, err := r1.Create("founder", state.RoleCitizen)
	require.NoError(t, err)
	require.NoError(t, g.RunTick(context.Background()))
	r1.StopAll()

	r2 := NewRegistry(ctx, store, nil, 24, 4)
	require.NoError(t, r2.Restore())
	restored := r2.Get(g.ID)
	require.NotNil(t, restored)
	require.Equal(t, uint64(1), restored.st.Meta.Tick)

	// Credentials survive the restart.
	_, _, err = restored.SubmitAction(res.PlayerID, res.PlayerToken, state.Action{Type: "work"})
	require.NoError(t, err)
}

func TestStatusCounts(t *testing.T) {
	r := testRegistry(t)
	g, _, err := r.Create("founder", state.RolePolitician)
	require.NoError(t, err)

	st := g.Status()
	require.True(t, st.Initialized)
	require.Equal(t, 1, st.PlayerCount)
	require.Len(t, st.Players, 1)
	require.Equal(t, state.RolePolitician, st.Players[0].Role)
}
