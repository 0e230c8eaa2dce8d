// File: internal/socket/manager.go
// Quiz Engine - Socket Manager: admission, room topology, broadcast

package socket

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Room names a logical broadcast group. Every PIN has one per role
// plus the combined "all" room.
type Room string

const (
	RoomAll        Room = "all"
	RoomPlayers    Room = "players"
	RoomModerators Room = "moderators"
	RoomPanels     Room = "panels"
)

// ErrGlobalCapacity / ErrGameCapacity are returned by admission checks.
var (
	ErrGlobalCapacity = fmt.Errorf("server at connection capacity")
	ErrGameCapacity   = fmt.Errorf("game at player capacity")
)

type pinRooms struct {
	all        map[string]*Client
	players    map[string]*Client
	moderators map[string]*Client
	panels     map[string]*Client
}

func newPinRooms() *pinRooms {
	return &pinRooms{
		all:        make(map[string]*Client),
		players:    make(map[string]*Client),
		moderators: make(map[string]*Client),
		panels:     make(map[string]*Client),
	}
}

func (pr *pinRooms) room(r Room) map[string]*Client {
	switch r {
	case RoomPlayers:
		return pr.players
	case RoomModerators:
		return pr.moderators
	case RoomPanels:
		return pr.panels
	default:
		return pr.all
	}
}

// Manager owns every live connection, the per-PIN room topology, and
// the last-broadcast state blob used for delta compression.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]*Client
	pins    map[string]*pinRooms

	globalCap int
	playerCap int

	lastBlob map[string]map[string]any
	lastHash map[string]uint64

	batch *Batcher
}

// NewManager creates a Socket Manager with the given admission caps.
// batchSize/batchTimeoutMS configure the attached write-batch queue.
func NewManager(globalCap, playerCap, batchSize, batchTimeoutMS int) *Manager {
	m := &Manager{
		clients:   make(map[string]*Client),
		pins:      make(map[string]*pinRooms),
		globalCap: globalCap,
		playerCap: playerCap,
		lastBlob:  make(map[string]map[string]any),
		lastHash:  make(map[string]uint64),
	}
	m.batch = newBatcher(batchSize, batchTimeoutMS)
	return m
}

// Register admits a new client if the global cap allows it.
func (m *Manager) Register(c *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.clients) >= m.globalCap {
		return ErrGlobalCapacity
	}
	m.clients[c.ID] = c
	return nil
}

// Unregister removes a client from every room it belongs to and from
// the connection table.
func (m *Manager) Unregister(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, c.ID)
	for _, pr := range m.pins {
		delete(pr.all, c.ID)
		delete(pr.players, c.ID)
		delete(pr.moderators, c.ID)
		delete(pr.panels, c.ID)
	}
}

func (m *Manager) pinRoomsFor(pin string) *pinRooms {
	pr, ok := m.pins[pin]
	if !ok {
		pr = newPinRooms()
		m.pins[pin] = pr
	}
	return pr
}

// JoinRoom subscribes a client to a PIN's role room and the combined
// "all" room. Player joins are subject to the per-game player cap.
func (m *Manager) JoinRoom(pin string, role Room, c *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pr := m.pinRoomsFor(pin)
	if role == RoomPlayers && len(pr.players) >= m.playerCap {
		return ErrGameCapacity
	}

	pr.room(role)[c.ID] = c
	pr.all[c.ID] = c
	return nil
}

// LeavePin removes a client from every room for a single PIN (used on
// explicit leave_game, distinct from Unregister's full-disconnect sweep).
func (m *Manager) LeavePin(pin string, c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.pins[pin]
	if !ok {
		return
	}
	delete(pr.all, c.ID)
	delete(pr.players, c.ID)
	delete(pr.moderators, c.ID)
	delete(pr.panels, c.ID)
}

// Send unicasts a pre-encoded message to one client.
func (m *Manager) Send(c *Client, message []byte) {
	c.Enqueue(message)
}

// Broadcast fans out a pre-encoded message to every client in a PIN's room.
func (m *Manager) Broadcast(pin string, room Room, message []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pr, ok := m.pins[pin]
	if !ok {
		return
	}
	for _, c := range pr.room(room) {
		c.Enqueue(message)
	}
}

// RoomSize reports how many clients are in a PIN's room, e.g. for a
// moderator's connected-count display.
func (m *Manager) RoomSize(pin string, room Room) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pr, ok := m.pins[pin]
	if !ok {
		return 0
	}
	return len(pr.room(room))
}

// Get returns a registered client by id, for the latency sampler's ping
// fan-out (which only has socket ids from the Session Registry).
func (m *Manager) Get(id string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	return c, ok
}

// GlobalCount returns the number of currently registered connections.
func (m *Manager) GlobalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Batcher exposes the attached write-batch queue so lifecycle code can
// drive its flush timer and the protocol handler can enqueue writes.
func (m *Manager) Batcher() *Batcher {
	return m.batch
}

// BroadcastState diffs blob against the last full state broadcast for
// pin and sends only the changed top-level fields to room, encoded as
// JSON. forceFull bypasses diffing entirely (role-join, reconnection,
// phase transitions). If nothing changed and forceFull is false,
// nothing is sent.
func (m *Manager) BroadcastState(pin string, room Room, eventName string, blob map[string]any, forceFull bool) error {
	m.mu.Lock()
	prevHash, hadPrev := m.lastHash[pin]
	newHash := hashBlob(blob)

	var payload map[string]any
	if forceFull || !hadPrev || newHash != prevHash {
		if forceFull || !hadPrev {
			payload = blob
		} else {
			payload = diffBlob(m.lastBlob[pin], blob)
			if len(payload) == 0 {
				m.mu.Unlock()
				return nil
			}
		}
		m.lastBlob[pin] = blob
		m.lastHash[pin] = newHash
	}
	m.mu.Unlock()

	if payload == nil {
		return nil
	}

	envelope := map[string]any{"event": eventName, "data": payload}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode state broadcast: %w", err)
	}
	m.Broadcast(pin, room, encoded)
	return nil
}

func diffBlob(prev, next map[string]any) map[string]any {
	diff := make(map[string]any)
	for k, v := range next {
		pv, ok := prev[k]
		if !ok {
			diff[k] = v
			continue
		}
		pvJSON, _ := json.Marshal(pv)
		vJSON, _ := json.Marshal(v)
		if string(pvJSON) != string(vJSON) {
			diff[k] = v
		}
	}
	return diff
}

// EvictPin drops a PIN's room topology and cached state blob once its
// Game Instance is reaped from memory.
func (m *Manager) EvictPin(pin string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pins, pin)
	delete(m.lastBlob, pin)
	delete(m.lastHash, pin)
}
