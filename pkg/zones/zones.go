// Package zones tracks which peers occupy which zone. Membership and the
// reverse index are updated under one lock so a peer is never observed in
// two zones, or in none, during a transition.
package zones

import (
	"fmt"
	"sync"
)

type Manager struct {
	mu       sync.RWMutex
	zones    map[string]map[uint32]struct{}
	peerZone map[uint32]string
}

func NewManager() *Manager {
	return &Manager{
		zones:    make(map[string]map[uint32]struct{}),
		peerZone: make(map[uint32]string),
	}
}

// Join adds a peer to a zone. The peer must not already be in a zone.
func (m *Manager) Join(peerID uint32, zone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.peerZone[peerID]; ok {
		return fmt.Errorf("peer %d is already in zone %s", peerID, current)
	}
	m.join(peerID, zone)
	return nil
}

// Leave removes a peer from its zone. It returns the zone left.
func (m *Manager) Leave(peerID uint32) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	zone, ok := m.peerZone[peerID]
	if !ok {
		return "", fmt.Errorf("peer %d is not in a zone", peerID)
	}
	m.leave(peerID, zone)
	return zone, nil
}

// Transition moves a peer between zones atomically. It returns the zone
// the peer came from.
func (m *Manager) Transition(peerID uint32, zone string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from, ok := m.peerZone[peerID]
	if !ok {
		return "", fmt.Errorf("peer %d is not in a zone", peerID)
	}
	if from == zone {
		return from, fmt.Errorf("peer %d is already in zone %s", peerID, zone)
	}
	m.leave(peerID, from)
	m.join(peerID, zone)
	return from, nil
}

// Zone returns the zone a peer currently occupies.
func (m *Manager) Zone(peerID uint32) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	zone, ok := m.peerZone[peerID]
	return zone, ok
}

// Members returns the peers in a zone.
func (m *Manager) Members(zone string) []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := make([]uint32, 0, len(m.zones[zone]))
	for id := range m.zones[zone] {
		members = append(members, id)
	}
	return members
}

// SameZone reports whether two peers occupy the same zone.
func (m *Manager) SameZone(a, b uint32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	za, ok := m.peerZone[a]
	if !ok {
		return false
	}
	zb, ok := m.peerZone[b]
	return ok && za == zb
}

// Zones returns a snapshot of all zone memberships.
func (m *Manager) Zones() map[string][]uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]uint32, len(m.zones))
	for zone, members := range m.zones {
		ids := make([]uint32, 0, len(members))
		for id := range members {
			ids = append(ids, id)
		}
		out[zone] = ids
	}
	return out
}

func (m *Manager) join(peerID uint32, zone string) {
	members, ok := m.zones[zone]
	if !ok {
		members = make(map[uint32]struct{})
		m.zones[zone] = members
	}
	members[peerID] = struct{}{}
	m.peerZone[peerID] = zone
}

func (m *Manager) leave(peerID uint32, zone string) {
	delete(m.zones[zone], peerID)
	if len(m.zones[zone]) == 0 {
		delete(m.zones, zone)
	}
	delete(m.peerZone, peerID)
}
