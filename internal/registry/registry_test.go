package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectDisconnectRoundTrip(t *testing.T) {
	r := New()
	r.Connect(Player{ID: 1, Name: "alice", Guest: false, DiscordID: "d1", HWID: "h1"})

	assert.Equal(t, 1, r.PlayerCount())
	name, ok := r.PlayerName(1)
	require.True(t, ok)
	assert.Equal(t, "alice", name)

	r.Disconnect(1)
	assert.Equal(t, 0, r.PlayerCount())
	_, ok = r.PlayerName(1)
	assert.False(t, ok)
}

func TestVehicleLifecycle(t *testing.T) {
	r := New()
	r.Connect(Player{ID: 1, Name: "alice"})
	r.AddVehicle(1, 100, "sedan")
	r.AddVehicle(1, 101, "truck")

	vehicles, ok := r.Vehicles(1)
	require.True(t, ok)
	assert.Len(t, vehicles, 2)
	assert.Equal(t, "sedan", vehicles[100])

	assert.True(t, r.RemoveVehicle(1, 100))
	assert.False(t, r.RemoveVehicle(1, 100))

	vehicles, _ = r.Vehicles(1)
	assert.Len(t, vehicles, 1)
}

func TestVehiclesCopyIsIndependent(t *testing.T) {
	r := New()
	r.Connect(Player{ID: 1, Name: "alice"})
	r.AddVehicle(1, 100, "sedan")

	v, _ := r.Vehicles(1)
	v[999] = "mutated"

	fresh, _ := r.Vehicles(1)
	assert.NotContains(t, fresh, 999)
}

func TestConnectAssignsDistinctSessionIDs(t *testing.T) {
	r := New()
	r.Connect(Player{ID: 1, Name: "alice"})
	first := r.SessionID(1)
	assert.NotEmpty(t, first)

	r.Connect(Player{ID: 1, Name: "alice"})
	second := r.SessionID(1)
	assert.NotEmpty(t, second)
	assert.NotEqual(t, first, second)

	r.Disconnect(1)
	assert.Empty(t, r.SessionID(1))
}

func TestIsSyncedDefaultsFalseUntilMarked(t *testing.T) {
	r := New()
	r.Connect(Player{ID: 1, Name: "alice"})
	assert.False(t, r.IsSynced(1))

	r.MarkSynced(1)
	assert.True(t, r.IsSynced(1))
}

func TestIsSyncedUnknownPlayerIsFalse(t *testing.T) {
	r := New()
	assert.False(t, r.IsSynced(99))
}

func TestDropPlayerRemovesEntry(t *testing.T) {
	r := New()
	r.Connect(Player{ID: 1, Name: "alice"})
	assert.True(t, r.DropPlayer(1, "banned"))
	assert.False(t, r.IsConnected(1))
	assert.False(t, r.DropPlayer(1, "banned"))
}

func TestCacheDisabledPassesThrough(t *testing.T) {
	r := New()
	r.Connect(Player{ID: 1, Name: "alice"})
	c := NewCache(r, "")

	name, ok := c.PlayerName(1)
	require.True(t, ok)
	assert.Equal(t, "alice", name)
	assert.Equal(t, 1, c.PlayerCount())
}
