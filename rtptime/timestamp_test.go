package rtptime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name string
		a    MediaTS
		b    MediaTS
		want int32
	}{
		{name: "equal", a: 100, b: 100, want: 0},
		{name: "forward", a: 580, b: 100, want: 480},
		{name: "backward", a: 100, b: 580, want: -480},
		{name: "wrap_forward", a: 480, b: math.MaxUint32 - 479, want: 960},
		{name: "wrap_backward", a: math.MaxUint32 - 479, b: 480, want: -960},
		{name: "zero_boundary", a: 0, b: math.MaxUint32, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Diff(tt.a, tt.b))
		})
	}
}

func TestAfterBefore(t *testing.T) {
	assert.True(t, After(10, 5))
	assert.False(t, After(5, 10))
	assert.True(t, Before(5, 10))
	assert.False(t, Before(10, 5))

	// Across the wrap boundary the later timestamp is numerically smaller.
	assert.True(t, After(5, math.MaxUint32-5))
	assert.True(t, Before(math.MaxUint32-5, 5))
}

func TestSeqDiff(t *testing.T) {
	assert.Equal(t, int16(1), SeqDiff(0, math.MaxUint16))
	assert.Equal(t, int16(-1), SeqDiff(math.MaxUint16, 0))
	assert.Equal(t, int16(100), SeqDiff(150, 50))
	assert.True(t, SeqBefore(math.MaxUint16, 0))
	assert.False(t, SeqBefore(0, math.MaxUint16))
}
