// Game registry — creates, restores, and looks up running instances.
package game

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sashko1391/they-voted-for-this/internal/advisors"
	"github.com/sashko1391/they-voted-for-this/internal/persistence"
	"github.com/sashko1391/they-voted-for-this/internal/state"
)

// Registry holds every running game in this process.
type Registry struct {
	store     *persistence.Store
	transport advisors.Transport

	// baseCtx bounds every game's schedule loop; request contexts are too
	// short-lived for that.
	baseCtx context.Context

	tickIntervalHours int
	maxPlayers        int

	mu    sync.RWMutex
	games map[string]*Game
}

// NewRegistry wires a registry over shared storage and advisor transport.
// Schedules started by this registry stop when ctx is cancelled.
func NewRegistry(ctx context.Context, store *persistence.Store, transport advisors.Transport, tickIntervalHours, maxPlayers int) *Registry {
	return &Registry{
		store:             store,
		transport:         transport,
		baseCtx:           ctx,
		tickIntervalHours: tickIntervalHours,
		maxPlayers:        maxPlayers,
		games:             make(map[string]*Game),
	}
}

// Create starts a new game and joins its first player.
func (r *Registry) Create(playerName, playerRole string) (*Game, *JoinResult, error) {
	serverID := uuid.NewString()
	st := state.New(serverID, r.tickIntervalHours, time.Now())

	g := newGame(st, make(map[string]string), r.store, r.transport, r.maxPlayers)
	res, err := g.Join(playerName, playerRole)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	r.games[serverID] = g
	r.mu.Unlock()

	go g.Schedule(r.baseCtx)
	slog.Info("game created", "server", serverID, "interval_hours", r.tickIntervalHours)
	return g, res, nil
}

// Get returns a running game by id, or nil.
func (r *Registry) Get(serverID string) *Game {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.games[serverID]
}

// Restore reloads every saved game from storage and resumes its schedule.
func (r *Registry) Restore() error {
	ids, err := r.store.ListGameIDs()
	if err != nil {
		return fmt.Errorf("restore games: %w", err)
	}
	for _, id := range ids {
		st, tokens, err := r.store.LoadGame(id)
		if err != nil {
			slog.Error("skipping unloadable game", "server", id, "error", err)
			continue
		}
		g := newGame(st, tokens, r.store, r.transport, r.maxPlayers)

		r.mu.Lock()
		r.games[id] = g
		r.mu.Unlock()

		go g.Schedule(r.baseCtx)
		slog.Info("game restored", "server", id, "tick", st.Meta.Tick)
	}
	return nil
}

// StopAll halts every game's schedule loop and waits for any tick already
// in progress to finish its commit.
func (r *Registry) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, g := range r.games {
		g.Stop()
	}
	// A running tick holds the game's lock until its commit returns.
	for _, g := range r.games {
		g.mu.Lock()
		g.mu.Unlock()
	}
}
