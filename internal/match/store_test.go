// internal/match/store_test.go
package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutGetDelete(t *testing.T) {
	s := NewStore()
	m := newMatch("m1", "u1", "Ada", DefaultQuestions())

	require.True(t, s.Put(m))
	got, ok := s.Get("m1")
	require.True(t, ok)
	assert.Same(t, m, got)

	// Second put with the same id leaves the original in place.
	other := newMatch("m1", "u2", "Bob", DefaultQuestions())
	assert.False(t, s.Put(other))
	got, _ = s.Get("m1")
	assert.Same(t, m, got)

	assert.True(t, s.Delete("m1"))
	assert.False(t, s.Delete("m1"))
	_, ok = s.Get("m1")
	assert.False(t, ok)
}

func TestStoreListLen(t *testing.T) {
	s := NewStore()
	assert.Equal(t, 0, s.Len())
	s.Put(newMatch("m1", "u1", "Ada", nil))
	s.Put(newMatch("m2", "u2", "Bob", nil))
	assert.Equal(t, 2, s.Len())
	assert.Len(t, s.List(), 2)
}
