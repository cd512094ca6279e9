package celltrack

import (
	"sort"

	"github.com/pkg/errors"
)

// OverlapEdge links blob From of frame t with blob To of frame t+1.
// Pixels is the number of coordinates that are foreground in both.
type OverlapEdge struct {
	From   int32
	To     int32
	Pixels int
}

// Overlaps is the correspondence between two consecutive frames.
// Edges are sorted by (From, To). Outgoing[a-1] and Incoming[b-1] hold indices into Edges.
type Overlaps struct {
	Edges    []OverlapEdge
	Outgoing [][]int
	Incoming [][]int
}

// OutDegree returns number of successors of blob a in the previous frame
func (ov *Overlaps) OutDegree(a int32) int {
	return len(ov.Outgoing[a-1])
}

// InDegree returns number of predecessors of blob b in the next frame
func (ov *Overlaps) InDegree(b int32) int {
	return len(ov.Incoming[b-1])
}

// ComputeOverlaps counts pixel overlap between every blob of prev and every blob of next.
// Only the bounding box of each prev blob is scanned, so the cost follows the foreground
// size instead of the frame size times the number of blobs. Pairs with zero overlap are not reported.
func ComputeOverlaps(prev, next *FrameBlobs) (*Overlaps, error) {
	if prev.Width != next.Width || prev.Height != next.Height {
		return nil, errors.Wrapf(ErrShapeMismatch, "frame %d is %dx%d, frame %d is %dx%d", prev.Index, prev.Height, prev.Width, next.Index, next.Height, next.Width)
	}
	ov := &Overlaps{
		Edges:    make([]OverlapEdge, 0, maxInt(prev.Len(), next.Len())),
		Outgoing: make([][]int, prev.Len()),
		Incoming: make([][]int, next.Len()),
	}
	counts := make(map[int32]int)
	successors := make([]int32, 0, 4)
	for i := range prev.Blobs {
		blob := &prev.Blobs[i]
		for row := blob.Box.MinRow; row <= blob.Box.MaxRow; row++ {
			offset := row * prev.Width
			for col := blob.Box.MinCol; col <= blob.Box.MaxCol; col++ {
				idx := offset + col
				if prev.Labels[idx] != blob.Label {
					continue
				}
				if succ := next.Labels[idx]; succ != 0 {
					if _, ok := counts[succ]; !ok {
						successors = append(successors, succ)
					}
					counts[succ]++
				}
			}
		}
		sort.Slice(successors, func(x, y int) bool { return successors[x] < successors[y] })
		for _, succ := range successors {
			ov.Outgoing[blob.Label-1] = append(ov.Outgoing[blob.Label-1], len(ov.Edges))
			ov.Incoming[succ-1] = append(ov.Incoming[succ-1], len(ov.Edges))
			ov.Edges = append(ov.Edges, OverlapEdge{From: blob.Label, To: succ, Pixels: counts[succ]})
			delete(counts, succ)
		}
		successors = successors[:0]
	}
	return ov, nil
}
