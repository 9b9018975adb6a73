package zones

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_joinAndLeave(t *testing.T) {
	m := NewManager()

	require.NoError(t, m.Join(1, "hub"))
	require.NoError(t, m.Join(2, "hub"))

	zone, ok := m.Zone(1)
	require.True(t, ok)
	assert.Equal(t, "hub", zone)
	assert.ElementsMatch(t, []uint32{1, 2}, m.Members("hub"))

	// a peer occupies exactly one zone
	assert.Error(t, m.Join(1, "arena"))

	left, err := m.Leave(1)
	require.NoError(t, err)
	assert.Equal(t, "hub", left)
	assert.ElementsMatch(t, []uint32{2}, m.Members("hub"))

	_, err = m.Leave(1)
	assert.Error(t, err, "leaving twice fails")
}

func TestManager_transitionIsAtomic(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Join(1, "hub"))

	from, err := m.Transition(1, "arena")
	require.NoError(t, err)
	assert.Equal(t, "hub", from)

	// after the transition the peer is in exactly one zone
	zone, ok := m.Zone(1)
	require.True(t, ok)
	assert.Equal(t, "arena", zone)
	assert.Empty(t, m.Members("hub"))
	assert.ElementsMatch(t, []uint32{1}, m.Members("arena"))

	_, err = m.Transition(2, "arena")
	assert.Error(t, err, "cannot transition a peer that is nowhere")
}

func TestManager_sameZone(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Join(1, "hub"))
	require.NoError(t, m.Join(2, "hub"))
	require.NoError(t, m.Join(3, "arena"))

	assert.True(t, m.SameZone(1, 2))
	assert.False(t, m.SameZone(1, 3))
	assert.False(t, m.SameZone(1, 99))
}

func TestManager_zonesSnapshot(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Join(1, "hub"))
	require.NoError(t, m.Join(2, "arena"))

	snapshot := m.Zones()
	assert.Len(t, snapshot, 2)
	assert.ElementsMatch(t, []uint32{1}, snapshot["hub"])
	assert.ElementsMatch(t, []uint32{2}, snapshot["arena"])

	// the snapshot is detached from the manager
	snapshot["hub"] = append(snapshot["hub"], 99)
	assert.ElementsMatch(t, []uint32{1}, m.Members("hub"))
}

func TestManager_emptyZonesAreDropped(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Join(1, "hub"))

	_, err := m.Transition(1, "arena")
	require.NoError(t, err)

	assert.NotContains(t, m.Zones(), "hub")
}
