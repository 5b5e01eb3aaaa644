package mvrb

import (
	"cmp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntryPoints(t *testing.T) {
	e := newEntryPoints[int, int](cmp.Compare[int])
	a := newNode([]int{10, 11}, []int{0, 0})
	b := newNode([]int{20, 21}, []int{0, 0})
	c := newNode([]int{30}, []int{0})
	for _, n := range []*node[int, int]{a, b, c} {
		e.add(n)
	}
	e.add(newNode[int, int](nil, nil))
	assert.Equal(t, 3, e.len())

	assert.Nil(t, e.floor(5))
	assert.Same(t, a, e.ceiling(5))
	assert.Same(t, b, e.floor(25))
	assert.Same(t, c, e.ceiling(25))
	assert.Same(t, c, e.floor(99))
	assert.Nil(t, e.ceiling(99))

	// first key of b changes
	b.insertSlot(0, 15, 0)
	e.rekey(b)
	assert.Same(t, b, e.floor(16))
	assert.Same(t, a, e.floor(14))
	assert.Equal(t, 3, e.len())

	e.remove(a)
	assert.False(t, a.epRegistered)
	assert.Nil(t, e.floor(14))
	assert.Equal(t, []*node[int, int]{b, c}, e.nodes())

	// an unregistered node is not picked up by rekey
	a.insertSlot(0, 1, 0)
	e.rekey(a)
	assert.Equal(t, 2, e.len())

	e.clear()
	assert.Zero(t, e.len())
	assert.False(t, b.epRegistered)
	assert.False(t, c.epRegistered)
}
