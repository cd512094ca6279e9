package celltrack

// Connectivity defines which neighbours join pixels into one blob
type Connectivity uint8

const (
	// Connectivity8 joins pixels touching by an edge or a corner
	Connectivity8 Connectivity = iota
	// Connectivity4 joins pixels touching by an edge only
	Connectivity4
)

var (
	neighbours4 = [][2]int{{-1, 0}, {0, -1}, {0, 1}, {1, 0}}
	neighbours8 = [][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
)

func (c Connectivity) String() string {
	switch c {
	case Connectivity4:
		return "4"
	default:
		return "8"
	}
}

// LabelOptions configures the connected-component labeler.
type LabelOptions struct {
	Connectivity Connectivity
	// MinSize drops blobs with fewer pixels. Zero keeps everything.
	MinSize int
	// MaxSize drops blobs with more pixels. Zero means unbounded.
	MaxSize int
}

func (opts LabelOptions) keep(area int) bool {
	if area < opts.MinSize {
		return false
	}
	if opts.MaxSize > 0 && area > opts.MaxSize {
		return false
	}
	return true
}

// compStats accumulates statistics of a single component while it is flooded
type compStats struct {
	area   int
	box    Box
	sumRow int
	sumCol int
}

// Label splits frame into connected components.
// Neighbouring pixels join the same blob only when their raster values are equal, so labeled
// masks keep touching cells apart. Blobs outside [MinSize, MaxSize] are erased, the
// survivors are numbered 1..n in row-major order of their first pixel.
// An empty frame yields zero blobs.
func Label(frame Frame, opts LabelOptions) FrameBlobs {
	width, height := frame.Width, frame.Height
	out := FrameBlobs{
		Width:  width,
		Height: height,
		Labels: make([]int32, width*height),
	}
	dirs := neighbours8
	if opts.Connectivity == Connectivity4 {
		dirs = neighbours4
	}

	comps := make([]compStats, 0)
	queue := make([]int, 0, 1024)
	var provisional int32
	for idx, value := range frame.Pix {
		if value == 0 || out.Labels[idx] != 0 {
			continue
		}
		provisional++
		row, col := idx/width, idx%width
		st := compStats{box: NewBoxAt(row, col)}
		out.Labels[idx] = provisional
		queue = append(queue[:0], idx)
		for len(queue) > 0 {
			ci := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			cr, cc := ci/width, ci%width
			st.area++
			st.sumRow += cr
			st.sumCol += cc
			st.box.Extend(cr, cc)
			for _, d := range dirs {
				nr, nc := cr+d[0], cc+d[1]
				if nr < 0 || nr >= height || nc < 0 || nc >= width {
					continue
				}
				ni := nr*width + nc
				if out.Labels[ni] != 0 || frame.Pix[ni] != value {
					continue
				}
				out.Labels[ni] = provisional
				queue = append(queue, ni)
			}
		}
		comps = append(comps, st)
	}

	// Size filter + compaction of labels
	remap := make([]int32, len(comps)+1)
	out.Blobs = make([]Blob, 0, len(comps))
	for i, st := range comps {
		if !opts.keep(st.area) {
			continue
		}
		label := int32(len(out.Blobs) + 1)
		remap[i+1] = label
		out.Blobs = append(out.Blobs, Blob{
			Label: label,
			Area:  st.area,
			Box:   st.box,
			Centroid: Point{
				X: float64(st.sumCol) / float64(st.area),
				Y: float64(st.sumRow) / float64(st.area),
			},
		})
	}
	if len(out.Blobs) != len(comps) {
		for idx, label := range out.Labels {
			if label != 0 {
				out.Labels[idx] = remap[label]
			}
		}
	}
	return out
}
