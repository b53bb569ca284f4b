package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRosterJoinAndCount(t *testing.T) {
	r := NewRoster()
	assert.Equal(t, 0, r.Count())

	replaced := r.Join(Identity{UserGuid: "g1", Name: "Amina"}, "conn1")
	assert.False(t, replaced)
	replaced = r.Join(Identity{UserGuid: "g2", Name: "Bilal"}, "conn2")
	assert.False(t, replaced)
	assert.Equal(t, 2, r.Count())
}

func TestRosterReconnectReplacesEntry(t *testing.T) {
	r := NewRoster()
	r.Join(Identity{UserGuid: "g1", Name: "Amina"}, "conn1")
	first := r.Snapshot()[0].JoinedAt

	replaced := r.Join(Identity{UserGuid: "g1", Name: "Amina"}, "conn2")
	assert.True(t, replaced)
	assert.Equal(t, 1, r.Count(), "reconnect must not inflate the count")

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "conn2", snap[0].ConnectionID)
	assert.Equal(t, first, snap[0].JoinedAt, "original join time survives reconnect")
}

func TestRosterLeaveStaleConnection(t *testing.T) {
	r := NewRoster()
	r.Join(Identity{UserGuid: "g1", Name: "Amina"}, "conn1")
	r.Join(Identity{UserGuid: "g1", Name: "Amina"}, "conn2")

	// The replaced connection closing must not evict the live entry.
	_, removed := r.Leave("g1", "conn1")
	assert.False(t, removed)
	assert.Equal(t, 1, r.Count())

	id, removed := r.Leave("g1", "conn2")
	assert.True(t, removed)
	assert.Equal(t, "Amina", id.Name)
	assert.Equal(t, 0, r.Count())
}

func TestRosterLeaveUnknownGuid(t *testing.T) {
	r := NewRoster()
	_, removed := r.Leave("missing", "conn1")
	assert.False(t, removed)
}

func TestRosterSnapshotOrderedByJoin(t *testing.T) {
	r := NewRoster()
	r.Join(Identity{UserGuid: "g1", Name: "first"}, "c1")
	r.Join(Identity{UserGuid: "g2", Name: "second"}, "c2")
	r.Join(Identity{UserGuid: "g3", Name: "third"}, "c3")

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	for i := 1; i < len(snap); i++ {
		assert.False(t, snap[i].JoinedAt.Before(snap[i-1].JoinedAt))
	}
}
