package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Scout", ClassScout.String())
	assert.Equal(t, "Engineer", ClassEngineer.String())
	assert.Equal(t, "Other", ClassOther.String())
	assert.Equal(t, "Other", Class(200).String())
}

func TestClasses_ExcludesOther(t *testing.T) {
	t.Parallel()

	assert.Len(t, Classes, int(ClassCount)-1)
	for _, c := range Classes {
		assert.NotEqual(t, ClassOther, c)
	}
}

func TestTeamString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Red", TeamRed.String())
	assert.Equal(t, "Blu", TeamBlu.String())
	assert.Equal(t, "Unassigned", Team(200).String())
}

func TestCacheKeyHex(t *testing.T) {
	t.Parallel()

	key := CacheKey{0x00, 0x01, 0xAB, 0xFF}
	hex := key.Hex()
	assert.Len(t, hex, 32)
	assert.Equal(t, "0001abff", hex[:8])
}

func TestAnalysedDemo_PlayerCreatesOnce(t *testing.T) {
	t.Parallel()

	d := NewAnalysedDemo(Header{})
	first := d.Player(42)
	require.NotNil(t, first)
	first.Name = "alice"

	assert.Same(t, first, d.Player(42))
	assert.Len(t, d.Players, 1)
}
