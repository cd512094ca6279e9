package celltrack

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelabel(t *testing.T) {
	blobs := Label(asciiFrame(t,
		"##..#",
		"##...",
	), LabelOptions{})
	require.Equal(t, 2, blobs.Len())

	dst := []uint16{9, 9, 9, 9, 9, 9, 9, 9, 9, 9}
	require.NoError(t, Relabel(&blobs, []uint32{7, 3}, dst))
	assert.Equal(t, []uint16{7, 7, 0, 0, 3, 7, 7, 0, 0, 0}, dst, "buffer must be fully overwritten")
}

func TestRelabelIdempotent(t *testing.T) {
	blobs := Label(asciiFrame(t,
		"#..#",
		"#..#",
	), LabelOptions{})
	ids := []uint32{4, 11}
	first := make([]uint16, 8)
	require.NoError(t, Relabel(&blobs, ids, first))

	// Relabeling the output with the identity of its own values yields the same raster
	again := Label(Frame{Width: 4, Height: 2, Pix: first}, LabelOptions{})
	second := make([]uint16, 8)
	require.NoError(t, Relabel(&again, ids, second))
	assert.Equal(t, first, second)
}

func TestRelabelErrors(t *testing.T) {
	blobs := Label(asciiFrame(t, "#.#"), LabelOptions{})

	err := Relabel(&blobs, []uint32{1, 2}, make([]uint16, 2))
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	err = Relabel(&blobs, []uint32{1}, make([]uint16, 3))
	assert.Error(t, err)

	err = Relabel(&blobs, []uint32{1, 0}, make([]uint16, 3))
	assert.Error(t, err)

	err = Relabel(&blobs, []uint32{1, math.MaxUint16 + 1}, make([]uint16, 3))
	assert.True(t, errors.Is(err, ErrIDOverflow))
}
