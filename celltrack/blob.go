package celltrack

// Blob is a connected foreground component of one frame.
// It never outlives the processing step of its frame.
type Blob struct {
	// Label is the frame-local label, unique within the frame and starting at 1
	Label int32
	// Area is the pixel count
	Area int
	// Box is the inclusive bounding box
	Box Box
	// Centroid is the mean pixel position (X is column, Y is row)
	Centroid Point
}

// FrameBlobs is the per-frame arena of blobs plus the local label raster.
// Blobs[i] carries Label i+1; Labels holds 0 for background or filtered-out pixels.
type FrameBlobs struct {
	Index  int
	Width  int
	Height int
	Labels []int32
	Blobs  []Blob
}

// Blob returns blob by its local label
func (fb *FrameBlobs) Blob(label int32) *Blob {
	if label < 1 || int(label) > len(fb.Blobs) {
		return nil
	}
	return &fb.Blobs[label-1]
}

// Len returns number of blobs
func (fb *FrameBlobs) Len() int {
	return len(fb.Blobs)
}

// Pixels calls fn for each pixel of the blob in row-major order
func (fb *FrameBlobs) Pixels(label int32, fn func(row, col int)) {
	blob := fb.Blob(label)
	if blob == nil {
		return
	}
	for row := blob.Box.MinRow; row <= blob.Box.MaxRow; row++ {
		offset := row * fb.Width
		for col := blob.Box.MinCol; col <= blob.Box.MaxCol; col++ {
			if fb.Labels[offset+col] == label {
				fn(row, col)
			}
		}
	}
}
