package celltrack

import (
	"math"

	"github.com/pkg/errors"
)

// Ranking selects the criterion that decides which candidate inherits an identity on splits and merges
type Ranking uint8

const (
	// RankOverlap prefers the largest pixel overlap
	RankOverlap Ranking = iota
	// RankArea prefers the largest destination blob; overlap is the secondary key
	RankArea
)

func (r Ranking) String() string {
	switch r {
	case RankArea:
		return "area"
	default:
		return "overlap"
	}
}

// TieBreak decides between candidates with identical ranking keys
type TieBreak uint8

const (
	// TieOldest lets the lowest global ID (oldest track) win
	TieOldest TieBreak = iota
	// TieYoungest lets the highest global ID win
	TieYoungest
)

func (t TieBreak) String() string {
	switch t {
	case TieYoungest:
		return "youngest"
	default:
		return "oldest"
	}
}

// ResolverConfig configures the identity resolver
type ResolverConfig struct {
	Ranking  Ranking
	TieBreak TieBreak
	// MaxID is the largest global ID that may be handed out. Default is math.MaxUint16
	MaxID uint32
	// Motion enables Kalman smoothing of track centroids
	Motion bool
}

// Resolver turns per-frame blobs and their overlaps into persistent cell identities.
// It must be fed frames strictly in order: Step for frame t+1 depends on the outcome of frame t.
type Resolver struct {
	ranking  Ranking
	tieBreak TieBreak
	maxID    uint32
	// Main storage: tracks[id-1]
	tracks []Track
	// Global IDs of the blobs of the most recently resolved frame, indexed by local label - 1
	prevIDs []uint32
	// Index of the most recently resolved frame, -1 before the first one
	frame      int
	terminated []uint32
	motion     *MotionEstimator
}

// NewResolver creates new instance of Resolver
func NewResolver(cfg ResolverConfig) *Resolver {
	maxID := cfg.MaxID
	if maxID == 0 {
		maxID = math.MaxUint16
	}
	resolver := &Resolver{
		ranking:  cfg.Ranking,
		tieBreak: cfg.TieBreak,
		maxID:    maxID,
		tracks:   make([]Track, 0, 64),
		frame:    -1,
	}
	if cfg.Motion {
		resolver.motion = NewMotionEstimator()
	}
	return resolver
}

// Frame returns index of the most recently resolved frame (-1 before the first Step)
func (r *Resolver) Frame() int {
	return r.frame
}

// NextID returns the global ID the next birth will receive
func (r *Resolver) NextID() uint32 {
	return uint32(len(r.tracks)) + 1
}

// Track returns track by global ID
func (r *Resolver) Track(id uint32) (Track, bool) {
	if id == 0 || int(id) > len(r.tracks) {
		return Track{}, false
	}
	return r.tracks[id-1], true
}

// Tracks returns a copy of the track table ordered by global ID
func (r *Resolver) Tracks() []Track {
	out := make([]Track, len(r.tracks))
	copy(out, r.tracks)
	return out
}

// Terminated returns IDs of tracks terminated by the most recent Step
func (r *Resolver) Terminated() []uint32 {
	return r.terminated
}

// Step resolves the transition from the previously resolved frame into next and
// returns the global ID of every blob of next (indexed by local label - 1).
// The returned slice belongs to the caller.
// The first call must pass nil overlaps: every blob of the first frame is a birth.
func (r *Resolver) Step(next *FrameBlobs, ov *Overlaps) ([]uint32, error) {
	t := r.frame + 1
	ids := make([]uint32, next.Len())
	r.terminated = r.terminated[:0]

	if r.frame < 0 {
		if ov != nil && len(ov.Edges) > 0 {
			return nil, errors.New("first frame can't have predecessors")
		}
		for i := range next.Blobs {
			id, err := r.birth(t, true, 0)
			if err != nil {
				return nil, errors.Wrapf(err, "frame %d", t)
			}
			ids[i] = id
		}
		if err := r.observeAll(next, ids); err != nil {
			return nil, err
		}
		r.frame = t
		return r.keep(ids), nil
	}

	if ov == nil {
		return nil, errors.Errorf("overlaps between frames %d and %d are missing", r.frame, t)
	}
	if len(ov.Outgoing) != len(r.prevIDs) || len(ov.Incoming) != next.Len() {
		return nil, errors.Wrapf(ErrShapeMismatch, "overlaps cover %d->%d blobs, frames have %d->%d", len(ov.Outgoing), len(ov.Incoming), len(r.prevIDs), next.Len())
	}

	// 1. Greedy assignment over ranked edges. An edge hands the parent's ID to the child
	// only if neither of them has been used, so 1:1 continuations always succeed and
	// splits/merges keep the best ranked correspondence.
	usedParent := make([]bool, len(r.prevIDs))
	// ambiguousChild marks children touched by a split or merge
	ambiguousChild := make([]bool, next.Len())
	// Top ranked edge of every blob, used for lineage
	bestIn := make([]*rankedEdge, next.Len())
	bestOut := make([]*rankedEdge, len(r.prevIDs))
	priorityQueue := make(edgeHeap, 0, len(ov.Edges))
	for _, edge := range ov.Edges {
		item := r.rank(edge, next)
		priorityQueue.Push(item)
		if ov.OutDegree(edge.From) > 1 || ov.InDegree(edge.To) > 1 {
			ambiguousChild[edge.To-1] = true
			// Parent is still active here: flag it before anything terminates
			r.tracks[r.prevIDs[edge.From-1]-1].markAmbiguous()
		}
	}
	for priorityQueue.Len() > 0 {
		item := priorityQueue.Pop()
		from, to := item.edge.From-1, item.edge.To-1
		if bestIn[to] == nil {
			bestIn[to] = item
		}
		if bestOut[from] == nil {
			bestOut[from] = item
		}
		if usedParent[from] || ids[to] != 0 {
			continue
		}
		id := r.prevIDs[from]
		usedParent[from] = true
		ids[to] = id
		r.tracks[id-1].extend(t)
	}

	// 2. Births: blobs without predecessors and split children that lost the ranking.
	// Allocated in local label order, so IDs follow first appearance.
	for i := range ids {
		if ids[i] != 0 {
			continue
		}
		var parentID uint32
		if bestIn[i] != nil {
			parentID = r.prevIDs[bestIn[i].edge.From-1]
		}
		id, err := r.birth(t, !ambiguousChild[i], parentID)
		if err != nil {
			return nil, errors.Wrapf(err, "frame %d", t)
		}
		ids[i] = id
	}

	// 3. Deaths: parents that handed their ID to nobody. With successors it is a merge consumption.
	for i, used := range usedParent {
		if used {
			continue
		}
		id := r.prevIDs[i]
		track := &r.tracks[id-1]
		if bestOut[i] != nil {
			track.MergedInto = ids[bestOut[i].edge.To-1]
		}
		track.terminate()
		r.terminated = append(r.terminated, id)
		if r.motion != nil {
			r.motion.Drop(id)
		}
	}

	if err := r.observeAll(next, ids); err != nil {
		return nil, err
	}
	r.frame = t
	return r.keep(ids), nil
}

// keep stores ids as the mapping of the current frame and returns a copy for the caller
func (r *Resolver) keep(ids []uint32) []uint32 {
	r.prevIDs = ids
	out := make([]uint32, len(ids))
	copy(out, ids)
	return out
}

// rank computes ordering keys of an edge
func (r *Resolver) rank(edge OverlapEdge, next *FrameBlobs) *rankedEdge {
	item := &rankedEdge{
		edge:  edge,
		score: edge.Pixels,
		age:   int64(r.prevIDs[edge.From-1]),
	}
	if r.ranking == RankArea {
		item.score = next.Blobs[edge.To-1].Area
	}
	if r.tieBreak == TieYoungest {
		item.age = -item.age
	}
	return item
}

// birth registers new track in frame t
func (r *Resolver) birth(t int, good bool, parentID uint32) (uint32, error) {
	if uint64(len(r.tracks))+1 > uint64(r.maxID) {
		return 0, errors.Wrapf(ErrIDOverflow, "can't allocate ID above %d", r.maxID)
	}
	id := uint32(len(r.tracks)) + 1
	r.tracks = append(r.tracks, Track{
		ID:         id,
		FirstFrame: t,
		LastFrame:  t,
		State:      TrackActive,
		Good:       good,
		ParentID:   parentID,
		Frames:     1,
	})
	return id, nil
}

// observeAll records blob positions of the freshly resolved frame into the track table
func (r *Resolver) observeAll(next *FrameBlobs, ids []uint32) error {
	t := r.frame + 1
	for i := range next.Blobs {
		blob := &next.Blobs[i]
		track := &r.tracks[ids[i]-1]
		center := blob.Centroid
		if r.motion != nil {
			var velocity Point
			var err error
			center, velocity, err = r.motion.Observe(track.ID, blob)
			if err != nil {
				return errors.Wrapf(err, "frame %d", next.Index)
			}
			track.Velocity = velocity
		}
		if track.FirstFrame < t {
			track.PathLength += euclideanDistance(track.LastCentroid, center)
		}
		track.LastCentroid = center
	}
	return nil
}
