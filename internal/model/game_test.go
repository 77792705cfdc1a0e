package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGame_SetResult_AppliesExactlyOnce(t *testing.T) {
	g := NewGame("g1", "ng1v1", []string{"a"}, []string{"b"})

	require.NoError(t, g.SetResult(0))
	assert.NotNil(t, g.Result)
	assert.Equal(t, 0, *g.Result)

	err := g.SetResult(1)
	require.Error(t, err)
	var engErr *EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindStateViolation, engErr.Kind())
}

func TestGame_AllMembers(t *testing.T) {
	g := NewGame("g1", "ng2v2", []string{"a", "b"}, []string{"c", "d"})
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, g.AllMembers())
}

func TestGame_MarkScored(t *testing.T) {
	g := NewGame("g1", "ng1v1", []string{"a"}, []string{"b"})
	assert.False(t, g.Scored())
	g.MarkScored()
	assert.True(t, g.Scored())
}
