package celltrack

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/pkg/errors"
)

// MotionEstimator smooths the centroid of every active track with an 8-D Kalman filter.
// State vector: [cx, cy, w, h, vx, vy, vw, vh] - center position, size, and velocities.
// Filters exist only for active tracks, they are dropped as soon as a track terminates.
type MotionEstimator struct {
	dt      float64
	filters map[uint32]*kalman_filter.KalmanBBox
}

// NewMotionEstimator creates estimator with time step of one frame
func NewMotionEstimator() *MotionEstimator {
	return NewMotionEstimatorWithTime(1.0)
}

// NewMotionEstimatorWithTime creates estimator with specified time step between frames
func NewMotionEstimatorWithTime(dt float64) *MotionEstimator {
	return &MotionEstimator{
		dt:      dt,
		filters: make(map[uint32]*kalman_filter.KalmanBBox),
	}
}

func (m *MotionEstimator) newFilter(blob *Blob) *kalman_filter.KalmanBBox {
	// Kalman filter props
	uCx := 0.0
	uCy := 0.0
	uW := 0.0
	uH := 0.0
	stdDevA := 2.0
	stdDevMCx := 0.1
	stdDevMCy := 0.1
	stdDevMW := 0.1
	stdDevMH := 0.1
	return kalman_filter.NewKalmanBBox(
		m.dt, uCx, uCy, uW, uH,
		stdDevA, stdDevMCx, stdDevMCy, stdDevMW, stdDevMH,
		kalman_filter.WithStateBBox(blob.Centroid.X, blob.Centroid.Y, float64(blob.Box.Width()), float64(blob.Box.Height())),
	)
}

// Observe feeds track's blob of the current frame into its filter.
// Returns smoothed centroid and velocity (pixels per time step). A track seen for the first time gets zero velocity.
func (m *MotionEstimator) Observe(id uint32, blob *Blob) (Point, Point, error) {
	kf, ok := m.filters[id]
	if !ok {
		m.filters[id] = m.newFilter(blob)
		return blob.Centroid, Point{}, nil
	}
	kf.Predict()
	err := kf.Update(blob.Centroid.X, blob.Centroid.Y, float64(blob.Box.Width()), float64(blob.Box.Height()))
	if err != nil {
		return Point{}, Point{}, errors.Wrapf(err, "Can't update motion filter of track %d", id)
	}
	cx, cy, _, _ := kf.GetState()
	vx, vy, _, _ := kf.GetVelocity()
	return Point{X: cx, Y: cy}, Point{X: vx, Y: vy}, nil
}

// Drop forgets the filter of a terminated track
func (m *MotionEstimator) Drop(id uint32) {
	delete(m.filters, id)
}

// Len returns number of tracks currently carrying a filter
func (m *MotionEstimator) Len() int {
	return len(m.filters)
}
