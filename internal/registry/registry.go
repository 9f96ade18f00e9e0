// Package registry implements the in-memory ClientRegistry the Host API
// Surface reads player/vehicle state from, plus an optional Redis
// read-through cache in front of it, grounded on the teacher's
// internal/cache.Cache connection-pool pattern (spec.md §4.6).
package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/beamnet/drivesim-server/internal/hostapi"
)

// Player is one connected client's registry-visible state.
type Player struct {
	ID        int
	Name      string
	Guest     bool
	DiscordID string
	HWID      string
	Vehicles  map[int]string // vehicle ID -> model name

	// SessionID distinguishes one connection from the next reuse of the
	// same player ID, so a reconnect can be told apart from a stale handle
	// to the previous session. It is read through Registry.SessionID.
	SessionID string

	// Synced reports whether the network layer has finished the initial
	// map/vehicle state handshake with this client. SendChatMessage's
	// unicast path skips a player who isn't synced yet.
	Synced bool
}

// Registry is the in-memory ClientRegistry implementation: the
// authoritative source the network layer updates as players connect,
// spawn vehicles, and disconnect.
type Registry struct {
	mu      sync.RWMutex
	players map[int]*Player
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{players: make(map[int]*Player)}
}

// Connect adds or replaces a player's entry. A fresh SessionID is assigned
// regardless of what the caller set, since it identifies this connection
// specifically, not the player ID.
func (r *Registry) Connect(p Player) {
	if p.Vehicles == nil {
		p.Vehicles = make(map[int]string)
	}
	p.SessionID = uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := p
	r.players[p.ID] = &cp
}

// SessionID returns the current connection's session identifier for
// playerID, or "" if they are not connected.
func (r *Registry) SessionID(playerID int) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.players[playerID]; ok {
		return p.SessionID
	}
	return ""
}

// MarkSynced flips playerID's Synced flag once the network layer finishes
// the initial state handshake with them. A no-op if playerID isn't
// connected.
func (r *Registry) MarkSynced(playerID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[playerID]; ok {
		p.Synced = true
	}
}

// IsSynced reports whether playerID has finished the initial state
// handshake. An unknown playerID reports false.
func (r *Registry) IsSynced(playerID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[playerID]
	return ok && p.Synced
}

// Disconnect removes a player's entry.
func (r *Registry) Disconnect(playerID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.players, playerID)
}

// AddVehicle records a spawned vehicle for playerID.
func (r *Registry) AddVehicle(playerID, vehicleID int, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[playerID]
	if !ok {
		return
	}
	p.Vehicles[vehicleID] = model
}

func (r *Registry) PlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

func (r *Registry) IsConnected(playerID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.players[playerID]
	return ok
}

func (r *Registry) PlayerName(playerID int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[playerID]
	if !ok {
		return "", false
	}
	return p.Name, true
}

func (r *Registry) IsGuest(playerID int) (bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[playerID]
	if !ok {
		return false, false
	}
	return p.Guest, true
}

func (r *Registry) PlayerIDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int, 0, len(r.players))
	for id := range r.players {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) Vehicles(playerID int) (map[int]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[playerID]
	if !ok {
		return nil, false
	}
	out := make(map[int]string, len(p.Vehicles))
	for k, v := range p.Vehicles {
		out[k] = v
	}
	return out, true
}

func (r *Registry) DiscordID(playerID int) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.players[playerID]; ok {
		return p.DiscordID
	}
	return ""
}

func (r *Registry) HWID(playerID int) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.players[playerID]; ok {
		return p.HWID
	}
	return ""
}

func (r *Registry) RemoveVehicle(playerID, vehicleID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[playerID]
	if !ok {
		return false
	}
	if _, ok := p.Vehicles[vehicleID]; !ok {
		return false
	}
	delete(p.Vehicles, vehicleID)
	return true
}

// DropPlayer removes a player from the registry and reports whether the
// network layer should be told to disconnect them. The kick banner and
// socket close happen in the transport Hub: the Host API Surface's
// DropPlayer calls this and then Transport.Disconnect itself.
func (r *Registry) DropPlayer(playerID int, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.players[playerID]; !ok {
		return false
	}
	delete(r.players, playerID)
	return true
}

var _ hostapi.ClientRegistry = (*Registry)(nil)
