// Content hashing for the tick audit log.
package state

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// ContentHash returns the SHA-256 hex digest of the state's canonical JSON
// form. The tick log is excluded: its entries embed this hash, so including
// it would make the digest self-referential. Map keys are emitted in sorted
// order by encoding/json, which keeps the encoding canonical.
func (s *WorldState) ContentHash() (string, error) {
	shadow := *s
	shadow.TickLog = nil
	data, err := json.Marshal(&shadow)
	if err != nil {
		return "", fmt.Errorf("marshal state for hash: %w", err)
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum), nil
}

// Clone returns a deep copy of the state via its JSON form. Ticks run
// against a clone and swap it in at finalize, so an interrupted tick leaves
// the live state untouched.
func (s *WorldState) Clone() (*WorldState, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal state for clone: %w", err)
	}
	var out WorldState
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal state clone: %w", err)
	}
	if out.Players == nil {
		out.Players = make(map[string]*Player)
	}
	if out.Government.BudgetAllocation == nil {
		out.Government.BudgetAllocation = make(map[string]float64)
	}
	if out.History.PlayerReputations == nil {
		out.History.PlayerReputations = make(map[string]ReputationRecord)
	}
	return &out, nil
}
