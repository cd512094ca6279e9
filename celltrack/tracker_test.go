package celltrack

import (
	"bytes"
	"context"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cancellingSink cancels the run right after frame `after` was stored
type cancellingSink struct {
	*MemorySink
	after  int
	cancel context.CancelFunc
}

func (sink *cancellingSink) WriteFrame(t int, labels []uint16) error {
	if err := sink.MemorySink.WriteFrame(t, labels); err != nil {
		return err
	}
	if t == sink.after {
		sink.cancel()
	}
	return nil
}

// randomStack draws drifting rectangles, so cells wander, touch, merge and split
func randomStack(t *testing.T, seed int64, frames, height, width, cells int) *MemoryStack {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	type cell struct {
		row, col, h, w int
	}
	population := make([]cell, cells)
	for i := range population {
		population[i] = cell{
			row: rng.Intn(height - 8),
			col: rng.Intn(width - 8),
			h:   2 + rng.Intn(5),
			w:   2 + rng.Intn(5),
		}
	}
	out := make([]Frame, frames)
	for f := range out {
		frame := Frame{Width: width, Height: height, Pix: make([]uint16, width*height)}
		for i := range population {
			c := &population[i]
			c.row = minInt(maxInt(c.row+rng.Intn(3)-1, 0), height-c.h)
			c.col = minInt(maxInt(c.col+rng.Intn(3)-1, 0), width-c.w)
			// Some cells blink out for a frame
			if rng.Intn(15) == 0 {
				continue
			}
			for row := c.row; row < c.row+c.h; row++ {
				for col := c.col; col < c.col+c.w; col++ {
					frame.Pix[row*width+col] = 1
				}
			}
		}
		out[f] = frame
	}
	stack, err := NewMemoryStack(out)
	require.NoError(t, err)
	return stack
}

func runStack(t *testing.T, cfg Config, stack *MemoryStack) (*Result, *MemorySink) {
	t.Helper()
	frames, height, width := stack.Shape()
	sink := NewMemorySink(frames, height, width)
	result, err := NewTracker(cfg).Run(context.Background(), stack, sink)
	require.NoError(t, err)
	return result, sink
}

func TestTrackerStaticCell(t *testing.T) {
	frame := []string{
		".....",
		".##..",
		".##..",
	}
	stack := asciiStack(t, frame, frame, frame, frame, frame)
	result, sink := runStack(t, Config{FOV: "fov-1"}, stack)

	expected := []uint16{0, 0, 0, 0, 0, 0, 1, 1, 0, 0, 0, 1, 1, 0, 0}
	for i, out := range sink.Frames {
		assert.Equal(t, expected, out, "frame %d", i)
	}
	assert.Equal(t, "fov-1", result.FOV)
	assert.Equal(t, 5, result.TotalFrames)
	assert.Equal(t, 5, result.FramesProcessed)
	require.Len(t, result.Tracks, 1)
	assert.Len(t, result.Good(), 1)
	assert.Empty(t, result.Ambiguous())
	assert.NotEqual(t, uuid.Nil, result.RunID)
}

func TestTrackerMaskStack(t *testing.T) {
	masks := [][]bool{
		{
			true, true, false,
			false, false, false,
		},
		{
			false, true, true,
			false, false, false,
		},
		{
			false, true, true,
			false, false, true,
		},
	}
	stack, err := NewMaskStack(2, 3, masks)
	require.NoError(t, err)
	result, sink := runStack(t, Config{}, stack)

	expected := [][]uint16{
		{1, 1, 0, 0, 0, 0},
		{0, 1, 1, 0, 0, 0},
		{0, 1, 1, 0, 0, 1},
	}
	assert.Equal(t, expected, sink.Frames)
	require.Len(t, result.Tracks, 1)
	assert.Equal(t, 3, result.Tracks[0].Frames)
}

func TestMaskStackShapeErrors(t *testing.T) {
	_, err := NewMaskStack(2, 3, [][]bool{make([]bool, 5)})
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	_, err = NewMaskStack(-1, 3, nil)
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	// -1 x -2 passes the pixel count check but not the dimension check
	_, err = NewMaskStack(-1, -2, [][]bool{{true, true}})
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestTrackerEmptyMovie(t *testing.T) {
	empty := []string{"....", "...."}
	result, sink := runStack(t, Config{}, asciiStack(t, empty, empty, empty))
	assert.Empty(t, result.Tracks)
	for i, out := range sink.Frames {
		assert.Equal(t, make([]uint16, 8), out, "frame %d", i)
	}

	noFrames, err := NewMemoryStack(nil)
	require.NoError(t, err)
	result, err = NewTracker(Config{}).Run(context.Background(), noFrames, NewMemorySink(0, 0, 0))
	require.NoError(t, err)
	assert.Zero(t, result.TotalFrames)
	assert.Empty(t, result.Tracks)
}

func TestTrackerCancellation(t *testing.T) {
	frame := []string{
		"......",
		".###..",
		".###..",
	}
	frames := make([][]string, 20)
	for i := range frames {
		frames[i] = frame
	}
	stack := asciiStack(t, frames...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &cancellingSink{MemorySink: NewMemorySink(20, 3, 6), after: 10, cancel: cancel}
	result, err := NewTracker(Config{}).Run(ctx, stack, sink)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInterrupted))
	require.NotNil(t, result)
	assert.Equal(t, 11, result.FramesProcessed)
	for i := 0; i <= 10; i++ {
		assert.NotNil(t, sink.Frames[i], "frame %d must be fully written", i)
	}
	for i := 11; i < 20; i++ {
		assert.Nil(t, sink.Frames[i], "frame %d must be absent", i)
	}
	require.Len(t, result.Tracks, 1)
	assert.Equal(t, 10, result.Tracks[0].LastFrame)
}

func TestTrackerShapeMismatch(t *testing.T) {
	frame := []string{"##", ".."}
	stack := asciiStack(t, frame, frame, frame, frame)

	sink := NewMemorySink(5, 2, 2)
	result, err := NewTracker(Config{}).Run(context.Background(), stack, sink)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
	assert.Nil(t, result)
	for _, out := range sink.Frames {
		assert.Nil(t, out, "nothing is written on shape errors")
	}

	_, err = NewTracker(Config{}).Run(context.Background(), stack, NewMemorySink(4, 2, 3))
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	_, err = NewTracker(Config{}).Run(context.Background(), nil, sink)
	assert.Error(t, err)

	_, err = NewMemoryStack([]Frame{
		{Width: 2, Height: 1, Pix: []uint16{0, 1}},
		{Width: 1, Height: 2, Pix: []uint16{0, 1}},
	})
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestTrackerIDOverflowKeepsWrittenFrames(t *testing.T) {
	stack := asciiStack(t,
		[]string{"#....."},
		[]string{"#..#.."},
		[]string{"#..#.#"},
	)
	sink := NewMemorySink(3, 1, 6)
	tracker := NewTracker(Config{Resolver: ResolverConfig{MaxID: 2}})
	result, err := tracker.Run(context.Background(), stack, sink)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIDOverflow))
	assert.Equal(t, 2, result.FramesProcessed)
	assert.Equal(t, []uint16{1, 0, 0, 0, 0, 0}, sink.Frames[0])
	assert.Equal(t, []uint16{1, 0, 0, 2, 0, 0}, sink.Frames[1])
	assert.Nil(t, sink.Frames[2])
}

func TestTrackerProgress(t *testing.T) {
	empty := []string{"..", ".."}
	frames := make([][]string, 10)
	for i := range frames {
		frames[i] = empty
	}
	calls := make([][2]int, 0)
	cfg := Config{
		FOV:           "A1",
		ProgressEvery: 3,
		Progress: func(current, total int, message string) {
			calls = append(calls, [2]int{current, total})
			assert.Equal(t, "tracking A1", message)
		},
	}
	runStack(t, cfg, asciiStack(t, frames...))
	assert.Equal(t, [][2]int{{3, 10}, {6, 10}, {9, 10}, {10, 10}}, calls)
}

func TestTrackerLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	frame := []string{"#."}
	tracker := NewTracker(Config{Logger: logger}).WithFOV("B7")
	result, err := tracker.Run(context.Background(), asciiStack(t, frame, frame), NewMemorySink(2, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, "B7", result.FOV)
	assert.Contains(t, buf.String(), "tracking finished")
	assert.Contains(t, buf.String(), "fov=B7")
	assert.Contains(t, buf.String(), result.RunID.String())
}

func TestTrackerDeterminism(t *testing.T) {
	stack := randomStack(t, 7, 25, 40, 40, 12)
	first, firstSink := runStack(t, Config{}, stack)
	second, secondSink := runStack(t, Config{}, stack)
	if diff := cmp.Diff(firstSink.Frames, secondSink.Frames); diff != "" {
		t.Errorf("Output rasters differ (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Tracks, second.Tracks); diff != "" {
		t.Errorf("Track tables differ (-first +second):\n%s", diff)
	}
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestTrackerProperties(t *testing.T) {
	for _, seed := range []int64{1, 2, 3} {
		stack := randomStack(t, seed, 30, 48, 48, 14)
		result, sink := runStack(t, Config{}, stack)
		frames, height, width := stack.Shape()

		presence := make(map[uint16][]int)
		var lastNew uint16
		for f := 0; f < frames; f++ {
			out := sink.Frames[f]
			require.NotNil(t, out)

			// Every ID marks exactly one connected blob of its frame
			relabeled := Label(Frame{Width: width, Height: height, Pix: out}, LabelOptions{})
			blobsPerID := make(map[uint16]int)
			for _, blob := range relabeled.Blobs {
				var id uint16
				relabeled.Pixels(blob.Label, func(row, col int) {
					id = out[row*width+col]
				})
				blobsPerID[id]++
			}
			for id, count := range blobsPerID {
				assert.Equal(t, 1, count, "seed %d frame %d: ID %d", seed, f, id)
			}

			// New IDs show up in increasing order
			seen := make(map[uint16]bool)
			for _, id := range out {
				if id == 0 || seen[id] {
					continue
				}
				seen[id] = true
				if _, ok := presence[id]; !ok {
					assert.Equal(t, lastNew+1, id, "seed %d frame %d", seed, f)
					lastNew = id
				}
				presence[id] = append(presence[id], f)
			}

			// An ID kept between consecutive frames shares at least one pixel
			if f > 0 {
				prev := sink.Frames[f-1]
				shared := make(map[uint16]bool)
				for i, id := range out {
					if id != 0 && prev[i] == id {
						shared[id] = true
					}
				}
				for id := range seen {
					if presence[id][0] < f {
						assert.True(t, shared[id], "seed %d frame %d: ID %d jumped", seed, f, id)
					}
				}
			}
		}

		// Track table agrees with the rasters: every track spans a contiguous run of frames
		require.Len(t, result.Tracks, int(lastNew))
		for _, track := range result.Tracks {
			present := presence[uint16(track.ID)]
			require.NotEmpty(t, present, "seed %d: track %d", seed, track.ID)
			assert.Equal(t, track.FirstFrame, present[0])
			assert.Equal(t, track.LastFrame, present[len(present)-1])
			assert.Len(t, present, track.Frames)
			assert.Equal(t, track.LastFrame-track.FirstFrame+1, track.Frames)
			if track.Active() {
				assert.Equal(t, frames-1, track.LastFrame)
			}
			if track.ParentID != 0 || track.MergedInto != 0 {
				assert.False(t, track.Good, "seed %d: track %d", seed, track.ID)
			}
		}
	}
}
