package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRejectsSystemWrites(t *testing.T) {
	s := NewMemoryStore()
	assert.Error(t, s.Set("Capacity", "90"))
	assert.Error(t, s.Declare("Player", "x"))
}

func TestStoreRejectsUnprefixedNames(t *testing.T) {
	s := NewMemoryStore()
	assert.Error(t, s.Set("score", "1"))
	assert.Error(t, s.Set("Flow:", "1"))
	assert.NoError(t, s.Set("Flow:score", "1"))
}

func TestUndeclaredLookupFails(t *testing.T) {
	s := NewMemoryStore()
	_, ok := s.Get("Flow:missing")
	assert.False(t, ok)
	assert.False(t, s.Exists("Flow:missing"))
}

func TestDeclareIsDefaultOnCreate(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Declare("Flow:hp", "10"))
	v, ok := s.Get("Flow:hp")
	require.True(t, ok)
	assert.Equal(t, "10", v)

	// A second declare must not clobber the current value.
	require.NoError(t, s.Set("Flow:hp", "3"))
	require.NoError(t, s.Declare("Flow:hp", "10"))
	v, _ = s.Get("Flow:hp")
	assert.Equal(t, "3", v)
}

func TestSubstitute(t *testing.T) {
	s := NewMemoryStore()
	s.SetSystem("Player", "Sam")
	s.SetSystem("Capacity", "42")
	require.NoError(t, s.Set("Flow:mood", "wry"))

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"system token", "Hello [Player]!", "Hello Sam!"},
		{"flow token", "Mood: [Flow:mood]", "Mood: wry"},
		{"mixed", "[Player] is at [Capacity]%", "Sam is at 42%"},
		{"unknown stays verbatim", "Hi [Stranger] and [Flow:nope]", "Hi [Stranger] and [Flow:nope]"},
		{"case sensitive", "[player]", "[player]"},
		{"no tokens", "plain text", "plain text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Substitute(tt.template, s))
		})
	}
}
