package broadcast

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddRemoveSize(t *testing.T) {
	r := newRegistry()
	a, b := newFakeConn(), newFakeConn()

	r.add(a, "")
	r.add(b, "u-1")
	assert.Equal(t, 2, r.size())

	e, ok := r.get(b.ID())
	require.True(t, ok)
	assert.True(t, e.alive)
	assert.Equal(t, "u-1", e.userID)

	_, removed := r.remove(a.ID())
	assert.True(t, removed)
	assert.Equal(t, 1, r.size())
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := newRegistry()
	c := newFakeConn()
	r.add(c, "")

	_, first := r.remove(c.ID())
	_, second := r.remove(c.ID())
	_, unknown := r.remove(uuid.New())

	assert.True(t, first)
	assert.False(t, second)
	assert.False(t, unknown)
	assert.Equal(t, 0, r.size())
}

func TestRegistry_ForEachVisitsAllAndAllowsRemoval(t *testing.T) {
	r := newRegistry()
	conns := []*fakeConn{newFakeConn(), newFakeConn(), newFakeConn()}
	for _, c := range conns {
		r.add(c, "")
	}

	seen := map[uuid.UUID]int{}
	r.forEach(func(e *entry) {
		seen[e.conn.ID()]++
		r.remove(e.conn.ID())
	})

	assert.Len(t, seen, 3)
	for _, c := range conns {
		assert.Equal(t, 1, seen[c.ID()])
	}
	assert.Equal(t, 0, r.size())
}

func TestRegistry_SizeTracksSequences(t *testing.T) {
	r := newRegistry()
	ids := make([]uuid.UUID, 0, 5)
	for range 5 {
		c := newFakeConn()
		r.add(c, "")
		ids = append(ids, c.ID())
	}
	for _, id := range ids[:3] {
		r.remove(id)
		r.remove(id)
	}
	assert.Equal(t, 2, r.size())
}
