package celltrack

import (
	"math"

	"github.com/pkg/errors"
)

// Relabel rewrites the local label raster of one frame into global IDs.
// ids[i] is the global ID of local label i+1. Background stays 0.
// dst must have Width*Height elements; it is fully overwritten, so the same buffer can be reused frame after frame.
func Relabel(blobs *FrameBlobs, ids []uint32, dst []uint16) error {
	if len(dst) != len(blobs.Labels) {
		return errors.Wrapf(ErrShapeMismatch, "output has %d pixels, frame %d has %d", len(dst), blobs.Index, len(blobs.Labels))
	}
	if len(ids) != blobs.Len() {
		return errors.Errorf("frame %d: %d IDs for %d blobs", blobs.Index, len(ids), blobs.Len())
	}
	for _, id := range ids {
		if id == 0 {
			return errors.Errorf("frame %d: blob without global ID", blobs.Index)
		}
		if id > math.MaxUint16 {
			return errors.Wrapf(ErrIDOverflow, "frame %d: ID %d does not fit into 16 bits", blobs.Index, id)
		}
	}
	for idx, label := range blobs.Labels {
		if label == 0 {
			dst[idx] = 0
			continue
		}
		dst[idx] = uint16(ids[label-1])
	}
	return nil
}
