// Package game owns running game instances. Each game is a single-writer
// domain: one mutex serializes join/action/view/status handling and tick
// processing, while different games run fully in parallel.
package game

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sashko1391/they-voted-for-this/internal/advisors"
	"github.com/sashko1391/they-voted-for-this/internal/engine"
	"github.com/sashko1391/they-voted-for-this/internal/persistence"
	"github.com/sashko1391/they-voted-for-this/internal/state"
)

// User-facing errors, mapped to HTTP statuses at the API boundary.
var (
	ErrUnauthorized  = errors.New("invalid player credentials")
	ErrServerFull    = errors.New("server full")
	ErrWrongPhase    = errors.New("not accepting actions in current phase")
	ErrWrongRole     = errors.New("action not allowed for role")
	ErrTooManyQueued = errors.New("pending action limit reached")
	ErrInvalidRole   = errors.New("invalid player role")
	ErrPlayerDead    = errors.New("player is not alive")
)

// Game is one running instance.
type Game struct {
	ID string

	mu     sync.Mutex
	st     *state.WorldState
	tokens map[string]string
	ticker *engine.Ticker
	store  *persistence.Store

	maxPlayers int
	stop       chan struct{}
	stopOnce   sync.Once
}

// newGame wires a game around existing state and tokens.
func newGame(st *state.WorldState, tokens map[string]string, store *persistence.Store, transport advisors.Transport, maxPlayers int) *Game {
	return &Game{
		ID:         st.Meta.ServerID,
		st:         st,
		tokens:     tokens,
		ticker:     engine.NewTicker(advisors.NewPipeline(transport)),
		store:      store,
		maxPlayers: maxPlayers,
		stop:       make(chan struct{}),
	}
}

// newToken returns an opaque 32-char lowercase alphanumeric auth token.
// Tokens are credentials, not gameplay state, so process entropy is fine
// here.
func newToken() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is unrecoverable for credential issuance.
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf)
}

// auth verifies a playerId/token pair.
func (g *Game) auth(playerID, token string) bool {
	want, ok := g.tokens[playerID]
	return ok && token != "" && want == token
}

// JoinResult is what a successful join returns to the handler.
type JoinResult struct {
	PlayerID     string
	PlayerToken  string
	Tick         uint64
	TickDeadline time.Time
}

// Join adds a player. Fails when the game is full or not accepting actions.
func (g *Game) Join(name, role string) (*JoinResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch role {
	case state.RoleCitizen, state.RoleBusinessOwner, state.RolePolitician:
	default:
		return nil, ErrInvalidRole
	}
	if g.st.Meta.Phase != state.PhaseAcceptingActions {
		return nil, ErrWrongPhase
	}
	if len(g.st.Players) >= g.maxPlayers {
		return nil, ErrServerFull
	}

	p := &state.Player{
		ID:         state.NewID("player", g.st.Meta.Seed, g.st.Meta.Tick, len(g.st.Players)),
		Name:       name,
		Role:       role,
		JoinedTick: g.st.Meta.Tick,
		Alive:      true,
		Visible:    state.VisibleStats{Wealth: 100},
	}
	switch role {
	case state.RoleCitizen:
		// Seeded coin flip decides starting employment; nothing in the
		// action set changes it afterward.
		employed := state.Uniform(int64(g.st.Meta.Seed)*7919+int64(g.st.Meta.Tick), len(g.st.Players)) < 0.8
		p.Citizen = &state.CitizenData{Employed: employed, Satisfaction: 50}
	case state.RoleBusinessOwner:
		p.Business = &state.BusinessData{ProductionCapacity: 10, WageLevel: 1.0, Employees: 5}
	case state.RolePolitician:
		p.Politician = &state.PoliticianData{}
	}

	token := newToken()
	g.st.Players[p.ID] = p
	g.tokens[p.ID] = token

	if err := g.persistLocked(); err != nil {
		delete(g.st.Players, p.ID)
		delete(g.tokens, p.ID)
		return nil, fmt.Errorf("persist join: %w", err)
	}

	slog.Info("player joined", "server", g.ID, "player", p.ID, "role", role)
	return &JoinResult{
		PlayerID:     p.ID,
		PlayerToken:  token,
		Tick:         g.st.Meta.Tick,
		TickDeadline: g.st.Meta.TickDeadline,
	}, nil
}

// SubmitAction queues one action for the next tick. Over-limit submissions
// are rejected with a distinct error and never mutate state.
func (g *Game) SubmitAction(playerID, token string, action state.Action) (pending int, tick uint64, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.auth(playerID, token) {
		return 0, 0, ErrUnauthorized
	}
	p := g.st.Players[playerID]
	if p == nil {
		return 0, 0, ErrUnauthorized
	}
	if !p.Alive {
		return 0, 0, ErrPlayerDead
	}
	if g.st.Meta.Phase != state.PhaseAcceptingActions {
		return 0, 0, ErrWrongPhase
	}
	if !engine.RoleAllows(p.Role, action.Type) {
		return 0, 0, ErrWrongRole
	}
	if len(p.ActionsPending) >= state.MaxPendingActions {
		return len(p.ActionsPending), g.st.Meta.Tick, ErrTooManyQueued
	}

	p.ActionsPending = append(p.ActionsPending, action)
	return len(p.ActionsPending), g.st.Meta.Tick, nil
}

// View returns the player's projection of the current state.
func (g *Game) View(playerID, token string) (*engine.View, uint64, string, time.Time, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.auth(playerID, token) {
		return nil, 0, "", time.Time{}, ErrUnauthorized
	}
	v := engine.ProjectView(g.st, playerID)
	if v == nil {
		return nil, 0, "", time.Time{}, ErrUnauthorized
	}
	return v, g.st.Meta.Tick, g.st.Meta.Phase, g.st.Meta.TickDeadline, nil
}

// PlayerSummary is one row of the status listing.
type PlayerSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	Alive   bool   `json:"alive"`
	Pending int    `json:"pending_actions"`
}

// Status describes the game without exposing player-scoped detail.
type Status struct {
	Initialized  bool            `json:"initialized"`
	Tick         uint64          `json:"tick"`
	Phase        string          `json:"phase"`
	TickDeadline time.Time       `json:"tick_deadline"`
	PlayerCount  int             `json:"player_count"`
	LawCounts    map[string]int  `json:"law_counts"`
	EventCounts  map[string]int  `json:"event_counts"`
	Players      []PlayerSummary `json:"players"`
}

// Status returns aggregate counts and a per-player summary.
func (g *Game) Status() *Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := &Status{
		Initialized:  true,
		Tick:         g.st.Meta.Tick,
		Phase:        g.st.Meta.Phase,
		TickDeadline: g.st.Meta.TickDeadline,
		PlayerCount:  len(g.st.Players),
		LawCounts:    make(map[string]int),
		EventCounts:  make(map[string]int),
	}
	for _, l := range g.st.Laws {
		st.LawCounts[l.Status]++
	}
	for _, e := range g.st.Events {
		st.EventCounts[e.Status]++
	}
	for _, id := range g.st.PlayerIDs() {
		p := g.st.Players[id]
		st.Players = append(st.Players, PlayerSummary{
			ID: p.ID, Name: p.Name, Role: p.Role, Alive: p.Alive,
			Pending: len(p.ActionsPending),
		})
	}
	return st
}

// RunTick executes one tick against a clone of the state and swaps the
// clone in only after it persists. An error or interruption anywhere
// before the swap leaves both memory and storage on the pre-tick snapshot.
func (g *Game) RunTick(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	work, err := g.st.Clone()
	if err != nil {
		return fmt.Errorf("clone state: %w", err)
	}
	if err := g.ticker.RunTick(ctx, work); err != nil {
		return fmt.Errorf("tick %d: %w", g.st.Meta.Tick, err)
	}
	if err := g.store.SaveGame(work, g.tokens); err != nil {
		return fmt.Errorf("commit tick %d: %w", work.Meta.Tick, err)
	}
	g.st = work
	return nil
}

// persistLocked saves the current state and tokens. Caller holds g.mu.
func (g *Game) persistLocked() error {
	return g.store.SaveGame(g.st, g.tokens)
}

// Schedule runs the wall-clock tick loop until the context is cancelled or
// the game is stopped. Ticks fire at the state's deadline; after downtime
// the next tick fires immediately and the schedule realigns from there
// (missed ticks are not replayed).
func (g *Game) Schedule(ctx context.Context) {
	for {
		g.mu.Lock()
		deadline := g.st.Meta.TickDeadline
		g.mu.Unlock()

		wait := time.Until(deadline)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-g.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := g.RunTick(ctx); err != nil {
			slog.Error("tick failed", "server", g.ID, "error", err)
			// Back off before retrying so a persistent failure doesn't spin.
			select {
			case <-ctx.Done():
				return
			case <-time.After(30 * time.Second):
			}
			continue
		}

		// A deadline far in the past (downtime) realigns to now + interval.
		g.mu.Lock()
		if time.Until(g.st.Meta.TickDeadline) < 0 {
			g.st.Meta.TickDeadline = time.Now().Add(time.Duration(g.st.Meta.TickIntervalHours) * time.Hour)
		}
		g.mu.Unlock()
	}
}

// Stop halts the schedule loop.
func (g *Game) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
}
