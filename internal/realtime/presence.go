package realtime

import (
	"sort"
	"sync"
	"time"
)

// Identity is the per-session participant identity attached to a connection.
type Identity struct {
	UserGuid string `json:"userGuid"`
	Name     string `json:"name"`
	Country  string `json:"country,omitempty"`
}

// RosterEntry is one participant's presence record.
type RosterEntry struct {
	Identity
	ConnectionID string    `json:"-"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// Roster tracks the participant presence of a single session, keyed by the
// identity guid issued at registration. A participant reconnecting with the
// same guid replaces their prior entry instead of duplicating it.
type Roster struct {
	mu      sync.Mutex
	entries map[string]RosterEntry // userGuid -> entry
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{entries: make(map[string]RosterEntry)}
}

// Join records a participant connection. Returns true when the identity was
// already present (a reconnect replacing the prior connection).
func (r *Roster) Join(id Identity, connectionID string) (replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prior, exists := r.entries[id.UserGuid]
	entry := RosterEntry{Identity: id, ConnectionID: connectionID, JoinedAt: time.Now()}
	if exists {
		// Keep the original join time across reconnects.
		entry.JoinedAt = prior.JoinedAt
	}
	r.entries[id.UserGuid] = entry
	return exists
}

// Leave removes the entry for a connection. A stale connection (one already
// replaced by a reconnect with the same guid) does not remove the newer
// entry. Returns the departed identity and whether an entry was removed.
func (r *Roster) Leave(userGuid, connectionID string) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, exists := r.entries[userGuid]
	if !exists || entry.ConnectionID != connectionID {
		return Identity{}, false
	}
	delete(r.entries, userGuid)
	return entry.Identity, true
}

// Count returns the number of distinct active participants.
func (r *Roster) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshot returns the roster ordered by join time.
func (r *Roster) Snapshot() []RosterEntry {
	r.mu.Lock()
	out := make([]RosterEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}
