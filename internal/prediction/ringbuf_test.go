package prediction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputRing_OrderPreserved(t *testing.T) {
	r := NewInputRing(8)
	for seq := uint32(1); seq <= 5; seq++ {
		r.Push(BufferedInput{Seq: seq})
	}

	all := r.All()
	require.Len(t, all, 5)
	for i, in := range all {
		assert.Equal(t, uint32(i+1), in.Seq)
	}

	first, last := r.Span()
	assert.Equal(t, uint32(1), first)
	assert.Equal(t, uint32(5), last)
}

func TestInputRing_DropThrough(t *testing.T) {
	r := NewInputRing(8)
	for seq := uint32(1); seq <= 6; seq++ {
		r.Push(BufferedInput{Seq: seq})
	}

	r.DropThrough(4)
	assert.Equal(t, 2, r.Len())
	first, _ := r.Span()
	assert.Equal(t, uint32(5), first)

	// Повторный (устаревший) ack ничего не меняет
	r.DropThrough(2)
	assert.Equal(t, 2, r.Len())
}

func TestInputRing_OverflowDropsOldest(t *testing.T) {
	r := NewInputRing(4)
	for seq := uint32(1); seq <= 7; seq++ {
		r.Push(BufferedInput{Seq: seq})
	}

	assert.Equal(t, 4, r.Len())
	assert.Equal(t, uint64(3), r.Dropped())

	first, last := r.Span()
	assert.Equal(t, uint32(4), first, "старейшие вводы выброшены")
	assert.Equal(t, uint32(7), last)
}
