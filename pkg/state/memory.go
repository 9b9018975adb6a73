package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/emberforge/vanguard/pkg/messages"
)

type InMemoryStateManager struct {
	lock sync.RWMutex
	view *WorldView
}

func NewInMemoryStateManager() *InMemoryStateManager {
	return &InMemoryStateManager{
		view: &WorldView{
			Zones:      make(map[string][]uint32),
			Entities:   make(map[uint32]messages.EntitySnapshot),
			Characters: make(map[int32]messages.EntitySnapshot),
		},
	}
}

func (m *InMemoryStateManager) Get(ctx context.Context) (*WorldView, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	copy := &WorldView{
		Tick:       m.view.Tick,
		Timestamp:  m.view.Timestamp,
		Zones:      make(map[string][]uint32, len(m.view.Zones)),
		Entities:   make(map[uint32]messages.EntitySnapshot, len(m.view.Entities)),
		Characters: make(map[int32]messages.EntitySnapshot, len(m.view.Characters)),
	}
	for zone, members := range m.view.Zones {
		copy.Zones[zone] = append([]uint32(nil), members...)
	}
	for id, snap := range m.view.Entities {
		copy.Entities[id] = snap
	}
	for id, snap := range m.view.Characters {
		copy.Characters[id] = snap
	}

	return copy, nil
}

func (m *InMemoryStateManager) Set(ctx context.Context, view *WorldView) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if view == nil {
		return fmt.Errorf("world view is nil")
	}

	m.view = view
	return nil
}
