// internal/registry/registry_test.go
package registry

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndMeta(t *testing.T) {
	r := New(nil)
	conn := r.Register()
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, Meta{}, conn.Meta())

	r.SetMeta(conn.ID, Meta{UserID: "u1"})
	r.SetMeta(conn.ID, Meta{MatchID: "m1"})
	assert.Equal(t, Meta{UserID: "u1", MatchID: "m1"}, conn.Meta())

	// Empty fields never clobber existing identity.
	r.SetMeta(conn.ID, Meta{})
	assert.Equal(t, Meta{UserID: "u1", MatchID: "m1"}, conn.Meta())

	// Unknown ids are a no-op.
	r.SetMeta(uuid.New(), Meta{UserID: "ghost"})
}

func TestListByMatch(t *testing.T) {
	r := New(nil)
	a := r.Register()
	b := r.Register()
	r.Register() // never bound to a match

	r.SetMeta(a.ID, Meta{UserID: "u1", MatchID: "m1"})
	r.SetMeta(b.ID, Meta{UserID: "u2", MatchID: "m1"})

	conns := r.ListByMatch("m1")
	require.Len(t, conns, 2)
	assert.Empty(t, r.ListByMatch("m2"))
}

func TestSendNonBlocking(t *testing.T) {
	r := New(nil)
	conn := r.Register()

	// Fill the queue; the overflow send drops instead of blocking.
	for i := 0; i < outQueueSize; i++ {
		require.True(t, conn.Send([]byte("x")))
	}
	assert.False(t, conn.Send([]byte("overflow")))
}

func TestRemoveClosesQueue(t *testing.T) {
	r := New(nil)
	conn := r.Register()
	require.True(t, conn.Send([]byte("one")))

	r.Remove(conn.ID)
	r.Remove(conn.ID) // idempotent

	assert.False(t, conn.Send([]byte("after close")))
	assert.Equal(t, 0, r.Len())

	// The write pump drains what was queued, then sees the close.
	data, ok := <-conn.Out()
	require.True(t, ok)
	assert.Equal(t, []byte("one"), data)
	_, ok = <-conn.Out()
	assert.False(t, ok)
}
