// Package persistence provides SQLite-backed game storage. Each game's
// world state is persisted as one opaque JSON value alongside a sidecar of
// player auth tokens; a tick commits both in a single transaction, so an
// interrupted tick leaves the previous snapshot intact.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/sashko1391/they-voted-for-this/internal/state"
)

// ErrNotFound is returned when a game id has no saved state.
var ErrNotFound = errors.New("game not found")

// Store wraps a SQLite connection for game persistence.
type Store struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*Store, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	st := &Store{conn: conn}
	if err := st.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

// Close closes the database connection.
func (st *Store) Close() error {
	return st.conn.Close()
}

func (st *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS games (
		server_id TEXT PRIMARY KEY,
		state_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS player_tokens (
		server_id TEXT NOT NULL,
		player_id TEXT NOT NULL,
		token TEXT NOT NULL,
		PRIMARY KEY (server_id, player_id)
	);

	CREATE INDEX IF NOT EXISTS idx_tokens_server ON player_tokens(server_id);
	`
	_, err := st.conn.Exec(schema)
	return err
}

// SaveGame writes a game's state and its token sidecar atomically
// (full replace of the tokens for that game).
func (st *Store) SaveGame(s *state.WorldState, tokens map[string]string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tx, err := st.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO games (server_id, state_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(server_id) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at`,
		s.Meta.ServerID, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert game %s: %w", s.Meta.ServerID, err)
	}

	if _, err := tx.Exec("DELETE FROM player_tokens WHERE server_id = ?", s.Meta.ServerID); err != nil {
		return err
	}
	for playerID, token := range tokens {
		if _, err := tx.Exec(
			"INSERT INTO player_tokens (server_id, player_id, token) VALUES (?, ?, ?)",
			s.Meta.ServerID, playerID, token,
		); err != nil {
			return fmt.Errorf("insert token for %s: %w", playerID, err)
		}
	}

	return tx.Commit()
}

// LoadGame restores one game's state and tokens.
func (st *Store) LoadGame(serverID string) (*state.WorldState, map[string]string, error) {
	var blob string
	err := st.conn.Get(&blob, "SELECT state_json FROM games WHERE server_id = ?", serverID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load game %s: %w", serverID, err)
	}

	var ws state.WorldState
	if err := json.Unmarshal([]byte(blob), &ws); err != nil {
		return nil, nil, fmt.Errorf("unmarshal game %s: %w", serverID, err)
	}
	if ws.Players == nil {
		ws.Players = make(map[string]*state.Player)
	}
	if ws.History.PlayerReputations == nil {
		ws.History.PlayerReputations = make(map[string]state.ReputationRecord)
	}

	rows, err := st.conn.Queryx("SELECT player_id, token FROM player_tokens WHERE server_id = ?", serverID)
	if err != nil {
		return nil, nil, fmt.Errorf("load tokens %s: %w", serverID, err)
	}
	defer rows.Close()

	tokens := make(map[string]string)
	for rows.Next() {
		var playerID, token string
		if err := rows.Scan(&playerID, &token); err != nil {
			return nil, nil, err
		}
		tokens[playerID] = token
	}
	return &ws, tokens, rows.Err()
}

// ListGameIDs returns the ids of every saved game.
func (st *Store) ListGameIDs() ([]string, error) {
	var ids []string
	if err := st.conn.Select(&ids, "SELECT server_id FROM games ORDER BY server_id"); err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return ids, nil
}
