package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCommandIdIsDeterministic(t *testing.T) {
	a := NewCommandId("Play_Footsteps")
	b := NewCommandId("Play_Footsteps")
	assert.Equal(t, a, b)
}

func TestNewCommandIdDistinguishesNames(t *testing.T) {
	a := NewCommandId("Play_Footsteps")
	b := NewCommandId("Play_Jump")
	assert.NotEqual(t, a, b)
}

func TestEventIdAllocatorSkipsZeroAndIncrements(t *testing.T) {
	a := newEventIdAllocator()
	first := a.allocate()
	second := a.allocate()

	assert.NotEqual(t, InvalidEventId, first)
	assert.Equal(t, first+1, second)
}

func TestEventIdAllocatorWrapsPastZero(t *testing.T) {
	a := &eventIdAllocator{next: 0}
	id := a.allocate()
	assert.Equal(t, EventId(1), id)
}
