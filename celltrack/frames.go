package celltrack

import (
	"github.com/pkg/errors"
)

// Frame is a single 2D raster of one timepoint. Pix is row-major with len == Width*Height.
// Zero is background; any other value is foreground. Binary masks use 1 for foreground,
// labeled masks may use any nonzero values.
type Frame struct {
	Width  int
	Height int
	Pix    []uint16
}

// NewMaskFrame builds frame from boolean mask
func NewMaskFrame(width, height int, mask []bool) (Frame, error) {
	if len(mask) != width*height {
		return Frame{}, errors.Wrapf(ErrShapeMismatch, "mask has %d pixels, expected %dx%d", len(mask), height, width)
	}
	pix := make([]uint16, len(mask))
	for i, fg := range mask {
		if fg {
			pix[i] = 1
		}
	}
	return Frame{Width: width, Height: height, Pix: pix}, nil
}

// Validate checks that raster length matches frame dimensions
func (f Frame) Validate() error {
	if f.Width < 0 || f.Height < 0 {
		return errors.Wrapf(ErrShapeMismatch, "negative dimensions %dx%d", f.Height, f.Width)
	}
	if len(f.Pix) != f.Width*f.Height {
		return errors.Wrapf(ErrShapeMismatch, "raster has %d pixels, expected %dx%d", len(f.Pix), f.Height, f.Width)
	}
	return nil
}

// FrameSource hands out frames on demand so long movies never have to be fully loaded.
type FrameSource interface {
	// Shape returns number of frames and per-frame dimensions
	Shape() (frames, height, width int)
	// Frame returns raster for timepoint t. The returned frame is only valid until the next call.
	Frame(t int) (Frame, error)
}

// Validator is implemented by sources that are able to check every frame's dimensions up front.
type Validator interface {
	Validate() error
}

// LabelSink receives relabeled frames. Exactly one pipeline owns a sink at a time.
type LabelSink interface {
	Shape() (frames, height, width int)
	// WriteFrame stores the whole frame t. Implementations must either store it entirely or not at all.
	WriteFrame(t int, labels []uint16) error
}

// MemoryStack is an in-memory FrameSource
type MemoryStack struct {
	height int
	width  int
	frames []Frame
}

// NewMemoryStack creates stack from frames. All frames must share the same dimensions.
func NewMemoryStack(frames []Frame) (*MemoryStack, error) {
	stack := &MemoryStack{frames: frames}
	if len(frames) > 0 {
		stack.height = frames[0].Height
		stack.width = frames[0].Width
	}
	if err := stack.Validate(); err != nil {
		return nil, err
	}
	return stack, nil
}

// NewMaskStack creates stack from boolean masks
func NewMaskStack(height, width int, masks [][]bool) (*MemoryStack, error) {
	frames := make([]Frame, len(masks))
	for t, mask := range masks {
		frame, err := NewMaskFrame(width, height, mask)
		if err != nil {
			return nil, errors.Wrapf(err, "frame %d", t)
		}
		frames[t] = frame
	}
	stack := &MemoryStack{height: height, width: width, frames: frames}
	if err := stack.Validate(); err != nil {
		return nil, err
	}
	return stack, nil
}

// Shape returns stack's dimensions
func (stack *MemoryStack) Shape() (int, int, int) {
	return len(stack.frames), stack.height, stack.width
}

// Frame returns frame t
func (stack *MemoryStack) Frame(t int) (Frame, error) {
	if t < 0 || t >= len(stack.frames) {
		return Frame{}, errors.Errorf("frame %d out of range [0, %d)", t, len(stack.frames))
	}
	return stack.frames[t], nil
}

// Validate checks that every frame has the stack's dimensions
func (stack *MemoryStack) Validate() error {
	if stack.height < 0 || stack.width < 0 {
		return errors.Wrapf(ErrShapeMismatch, "negative dimensions %dx%d", stack.height, stack.width)
	}
	for t, frame := range stack.frames {
		if err := frame.Validate(); err != nil {
			return errors.Wrapf(err, "frame %d", t)
		}
		if frame.Height != stack.height || frame.Width != stack.width {
			return errors.Wrapf(ErrShapeMismatch, "frame %d is %dx%d, stack is %dx%d", t, frame.Height, frame.Width, stack.height, stack.width)
		}
	}
	return nil
}

// MemorySink is an in-memory LabelSink. Frames that were never written stay nil.
type MemorySink struct {
	height int
	width  int
	Frames [][]uint16
}

// NewMemorySink allocates sink for n frames of given size
func NewMemorySink(frames, height, width int) *MemorySink {
	return &MemorySink{
		height: height,
		width:  width,
		Frames: make([][]uint16, frames),
	}
}

// Shape returns sink's dimensions
func (sink *MemorySink) Shape() (int, int, int) {
	return len(sink.Frames), sink.height, sink.width
}

// WriteFrame copies labels into frame t
func (sink *MemorySink) WriteFrame(t int, labels []uint16) error {
	if t < 0 || t >= len(sink.Frames) {
		return errors.Errorf("frame %d out of range [0, %d)", t, len(sink.Frames))
	}
	if len(labels) != sink.height*sink.width {
		return errors.Wrapf(ErrShapeMismatch, "frame %d has %d labels, expected %d", t, len(labels), sink.height*sink.width)
	}
	out := make([]uint16, len(labels))
	copy(out, labels)
	sink.Frames[t] = out
	return nil
}

// Frame returns written frame t as a labeled Frame, so a sink can be read back as a source.
// Frames that were never written come back as background.
func (sink *MemorySink) Frame(t int) (Frame, error) {
	if t < 0 || t >= len(sink.Frames) {
		return Frame{}, errors.Errorf("frame %d out of range [0, %d)", t, len(sink.Frames))
	}
	pix := sink.Frames[t]
	if pix == nil {
		pix = make([]uint16, sink.height*sink.width)
	}
	return Frame{Width: sink.width, Height: sink.height, Pix: pix}, nil
}
