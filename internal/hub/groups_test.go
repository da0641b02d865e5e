package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupIndex_JoinLeave(t *testing.T) {
	g := NewGroupIndex(0)

	assert.True(t, g.Join("c1", "lobby"))
	assert.Equal(t, []string{"c1"}, g.Members("lobby"))
	assert.Equal(t, []string{"lobby"}, g.GroupsOf("c1"))

	g.Leave("c1", "lobby")
	assert.Empty(t, g.Members("lobby"))
	assert.Empty(t, g.GroupsOf("c1"))
	assert.Equal(t, 0, g.GroupCount(), "emptied group must leave no residual entry")
}

func TestGroupIndex_JoinIdempotent(t *testing.T) {
	g := NewGroupIndex(2)

	assert.True(t, g.Join("c1", "lobby"))
	assert.True(t, g.Join("c1", "lobby"), "re-join of an existing member is a no-op success")
	assert.Equal(t, 1, g.Size("lobby"))
}

func TestGroupIndex_Capacity(t *testing.T) {
	g := NewGroupIndex(2)

	assert.True(t, g.Join("c1", "room"))
	assert.True(t, g.Join("c2", "room"))
	assert.False(t, g.Join("c3", "room"), "third distinct join must be refused")
	assert.Equal(t, 2, g.Size("room"))
	assert.Empty(t, g.GroupsOf("c3"), "refused join must not mutate either side")

	// A member at capacity can still re-join.
	assert.True(t, g.Join("c2", "room"))
}

func TestGroupIndex_RemoveConn(t *testing.T) {
	g := NewGroupIndex(0)
	require.True(t, g.Join("c1", "a"))
	require.True(t, g.Join("c1", "b"))
	require.True(t, g.Join("c2", "b"))

	g.RemoveConn("c1")

	assert.Empty(t, g.GroupsOf("c1"))
	assert.Equal(t, 0, g.Size("a"), "group a emptied, record deleted")
	assert.Equal(t, []string{"c2"}, g.Members("b"))
	assert.Equal(t, 1, g.GroupCount())
}

func TestGroupIndex_MembersSnapshot(t *testing.T) {
	g := NewGroupIndex(0)
	require.True(t, g.Join("c1", "room"))

	snapshot := g.Members("room")
	require.True(t, g.Join("c2", "room"))

	assert.Len(t, snapshot, 1, "snapshot must not observe later joins")
	assert.Len(t, g.Members("room"), 2)
}
