package celltrack

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// asciiFrame builds frame from rows where '.' is background, '#' is foreground value 1
// and digits are labeled foreground values.
func asciiFrame(t *testing.T, rows ...string) Frame {
	t.Helper()
	require.NotEmpty(t, rows)
	width := len(rows[0])
	frame := Frame{Width: width, Height: len(rows), Pix: make([]uint16, width*len(rows))}
	for r, row := range rows {
		require.Len(t, row, width, "row %d", r)
		for c, ch := range row {
			switch {
			case ch == '.':
			case ch == '#':
				frame.Pix[r*width+c] = 1
			case ch >= '1' && ch <= '9':
				frame.Pix[r*width+c] = uint16(ch - '0')
			default:
				t.Fatalf("unexpected character %q", ch)
			}
		}
	}
	return frame
}

// asciiStack builds stack where every frame is given as a slice of rows
func asciiStack(t *testing.T, frames ...[]string) *MemoryStack {
	t.Helper()
	out := make([]Frame, len(frames))
	for i, rows := range frames {
		out[i] = asciiFrame(t, rows...)
	}
	stack, err := NewMemoryStack(out)
	require.NoError(t, err)
	return stack
}

// resolveStack labels every frame and feeds the resolver, returning per-frame global IDs
func resolveStack(t *testing.T, resolver *Resolver, opts LabelOptions, frames ...[]string) [][]uint32 {
	t.Helper()
	out := make([][]uint32, 0, len(frames))
	var prev *FrameBlobs
	for i, rows := range frames {
		blobs := Label(asciiFrame(t, rows...), opts)
		blobs.Index = i
		var ov *Overlaps
		if prev != nil {
			var err error
			ov, err = ComputeOverlaps(prev, &blobs)
			require.NoError(t, err)
		}
		ids, err := resolver.Step(&blobs, ov)
		require.NoError(t, err, "frame %d", i)
		out = append(out, ids)
		prev = &blobs
	}
	return out
}

// syntheticBlobs returns frame arena with n blobs of given areas (1 when omitted); rasters are left empty
func syntheticBlobs(index int, areas ...int) *FrameBlobs {
	fb := &FrameBlobs{Index: index}
	for i, area := range areas {
		fb.Blobs = append(fb.Blobs, Blob{Label: int32(i + 1), Area: area})
	}
	return fb
}

// syntheticOverlaps builds overlap set from explicit edges (must be sorted by From, To)
func syntheticOverlaps(numPrev, numNext int, edges ...OverlapEdge) *Overlaps {
	ov := &Overlaps{
		Edges:    edges,
		Outgoing: make([][]int, numPrev),
		Incoming: make([][]int, numNext),
	}
	for i, edge := range edges {
		ov.Outgoing[edge.From-1] = append(ov.Outgoing[edge.From-1], i)
		ov.Incoming[edge.To-1] = append(ov.Incoming[edge.To-1], i)
	}
	return ov
}
