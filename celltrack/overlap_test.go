package celltrack

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeOverlaps(t *testing.T) {
	prev := Label(asciiFrame(t,
		"###...",
		"###..#",
		"......",
	), LabelOptions{})
	prev.Index = 0
	next := Label(asciiFrame(t,
		".#.#..",
		".#.#..",
		"......",
	), LabelOptions{Connectivity: Connectivity4})
	next.Index = 1
	require.Equal(t, 2, prev.Len())
	require.Equal(t, 2, next.Len())

	ov, err := ComputeOverlaps(&prev, &next)
	require.NoError(t, err)
	expected := []OverlapEdge{
		{From: 1, To: 1, Pixels: 2},
	}
	assert.Equal(t, expected, ov.Edges)
	assert.Equal(t, 1, ov.OutDegree(1))
	assert.Equal(t, 0, ov.OutDegree(2), "right blob of prev has no successor")
	assert.Equal(t, 1, ov.InDegree(1))
	assert.Equal(t, 0, ov.InDegree(2), "pixel overlap is required, adjacency is not enough")
}

func TestComputeOverlapsSplitAndMerge(t *testing.T) {
	prev := Label(asciiFrame(t,
		"##..##",
		"##..##",
	), LabelOptions{})
	next := Label(asciiFrame(t,
		"######",
		"......",
	), LabelOptions{})
	ov, err := ComputeOverlaps(&prev, &next)
	require.NoError(t, err)
	assert.Equal(t, []OverlapEdge{
		{From: 1, To: 1, Pixels: 2},
		{From: 2, To: 1, Pixels: 2},
	}, ov.Edges)
	assert.Equal(t, 2, ov.InDegree(1))
	assert.Equal(t, []int{0, 1}, ov.Incoming[0])

	// Reversed direction is a split
	ov, err = ComputeOverlaps(&next, &prev)
	require.NoError(t, err)
	assert.Equal(t, []OverlapEdge{
		{From: 1, To: 1, Pixels: 2},
		{From: 1, To: 2, Pixels: 2},
	}, ov.Edges)
	assert.Equal(t, 2, ov.OutDegree(1))
}

func TestComputeOverlapsShapeMismatch(t *testing.T) {
	prev := Label(asciiFrame(t, "##", "##"), LabelOptions{})
	next := Label(asciiFrame(t, "###", "###"), LabelOptions{})
	_, err := ComputeOverlaps(&prev, &next)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}
