package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRegistry_OpenAttachGet(t *testing.T) {
	r := NewSessionRegistry()
	id := r.Open("trading-cycle")

	require.NoError(t, r.Attach(id, "task-1"))
	require.NoError(t, r.Attach(id, "task-2"))

	s := r.Get(id)
	require.NotNil(t, s)
	assert.Equal(t, "trading-cycle", s.AgentType)
	assert.Equal(t, []string{"task-1", "task-2"}, s.TaskIDs)
	assert.False(t, s.Ended)
}

func TestSessionRegistry_GetReturnsCopy(t *testing.T) {
	r := NewSessionRegistry()
	id := r.Open("research")
	require.NoError(t, r.Attach(id, "task-1"))

	s := r.Get(id)
	s.TaskIDs[0] = "mutated"
	s.Ended = true

	again := r.Get(id)
	assert.Equal(t, []string{"task-1"}, again.TaskIDs, "callers must not reach the registry's state")
	assert.False(t, again.Ended)
}

func TestSessionRegistry_AttachUnknownOrEnded(t *testing.T) {
	r := NewSessionRegistry()

	var unknown *UnknownSessionError
	err := r.Attach("missing", "task-1")
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "missing", unknown.SessionID)

	id := r.Open("research")
	require.NoError(t, r.Close(id))
	err = r.Attach(id, "task-1")
	require.ErrorAs(t, err, &unknown, "an ended session accepts no new tasks")
}

func TestSessionRegistry_CloseIsTerminal(t *testing.T) {
	r := NewSessionRegistry()
	id := r.Open("research")

	require.NoError(t, r.Close(id))
	assert.True(t, r.Get(id).Ended)

	var unknown *UnknownSessionError
	require.ErrorAs(t, r.Close(id), &unknown, "double close reports the session as gone")
}

func TestSessionRegistry_CountsOpenOnly(t *testing.T) {
	r := NewSessionRegistry()
	a := r.Open("a")
	r.Open("b")
	r.Open("c")
	assert.Equal(t, 3, r.Count())

	require.NoError(t, r.Close(a))
	assert.Equal(t, 2, r.Count())

	r.CloseAll()
	assert.Equal(t, 0, r.Count())
}

func TestSessionRegistry_GetUnknown(t *testing.T) {
	r := NewSessionRegistry()
	assert.Nil(t, r.Get("missing"))
}
