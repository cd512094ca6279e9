package celltrack

// TrackState is the lifecycle state of a cell identity
type TrackState uint8

const (
	// TrackActive means the track was seen in the most recently resolved frame
	TrackActive TrackState = iota
	// TrackTerminated is absorbing: a terminated track is never extended again
	TrackTerminated
)

func (s TrackState) String() string {
	switch s {
	case TrackActive:
		return "active"
	case TrackTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Track is a persistent cell identity. It stores the frame range and flags only, never blob geometry.
type Track struct {
	// ID is the global cell ID. IDs start at 1 and are never reused
	ID uint32
	// FirstFrame is the frame of birth
	FirstFrame int
	// LastFrame is the last frame the track was seen in
	LastFrame int
	State     TrackState
	// Good is false once the track took part in a split or a merge. It never becomes true again
	Good bool
	// ParentID is the track this one split off from (0 for regular births)
	ParentID uint32
	// MergedInto is the track that absorbed this one (0 unless consumed by a merge)
	MergedInto uint32
	// Frames is the number of frames the track spans
	Frames int
	// LastCentroid is the (optionally smoothed) centroid in LastFrame
	LastCentroid Point
	// Velocity is the estimated centroid velocity in pixels per frame. Only filled when motion estimation is enabled
	Velocity Point
	// PathLength is the distance travelled by the centroid, in pixels
	PathLength float64
}

// Active reports whether track is still alive
func (track *Track) Active() bool {
	return track.State == TrackActive
}

// extend moves the track into frame t
func (track *Track) extend(t int) {
	track.LastFrame = t
	track.Frames = t - track.FirstFrame + 1
}

// terminate closes the track. Terminated tracks are never mutated again.
func (track *Track) terminate() {
	track.State = TrackTerminated
}

// markAmbiguous drops the good flag. Terminated tracks are left untouched.
func (track *Track) markAmbiguous() {
	if track.State == TrackTerminated {
		return
	}
	track.Good = false
}
