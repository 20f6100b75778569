package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sashko1391/they-voted-for-this/internal/state"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := openTestStore(t)

	ws := state.New("srv-1", 12, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	ws.Meta.Tick = 4
	ws.Players["p1"] = &state.Player{ID: "p1", Name: "Ada", Role: state.RoleCitizen, Alive: true,
		Citizen: &state.CitizenData{Employed: true}}
	tokens := map[string]string{"p1": "abcdefghijklmnopqrstuvwxyz012345"}

	require.NoError(t, store.SaveGame(ws, tokens))

	got, gotTokens, err := store.LoadGame("srv-1")
	require.NoError(t, err)
	require.Equal(t, uint64(4), got.Meta.Tick)
	require.Equal(t, 12, got.Meta.TickIntervalHours)
	require.Equal(t, "Ada", got.Players["p1"].Name)
	require.Equal(t, tokens, gotTokens)
}

func TestSaveReplacesTokens(t *testing.T) {
	store := openTestStore(t)
	ws := state.New("srv-1", 24, time.Now())

	require.NoError(t, store.SaveGame(ws, map[string]string{"p1": "tok1", "p2": "tok2"}))
	require.NoError(t, store.SaveGame(ws, map[string]string{"p1": "tok1"}))

	_, tokens, err := store.LoadGame("srv-1")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
}

func TestLoadMissingGame(t *testing.T) {
	store := openTestStore(t)
	_, _, err := store.LoadGame("nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListGameIDs(t *testing.T) {
	store := openTestStore(t)
	for _, id := range []string{"srv-b", "srv-a"} {
		ws := state.New(id, 24, time.Now())
		require.NoError(t, store.SaveGame(ws, nil))
	}
	ids, err := store.ListGameIDs()
	require.NoError(t, err)
	require.Equal(t, []string{"srv-a", "srv-b"}, ids)
}
