package framestore

import (
	"encoding/binary"
	"os"

	"github.com/LdDl/cell-tracker-go/celltrack"
	"github.com/pkg/errors"
)

// Shape describes dimensions of a stack: number of frames and per-frame size
type Shape struct {
	Frames int
	Height int
	Width  int
}

// Pixels returns number of pixels per frame
func (s Shape) Pixels() int {
	return s.Height * s.Width
}

func (s Shape) validate() error {
	if s.Frames < 0 || s.Height < 0 || s.Width < 0 {
		return errors.Wrapf(celltrack.ErrShapeMismatch, "invalid shape %dx%dx%d", s.Frames, s.Height, s.Width)
	}
	return nil
}

// RawSource reads a stack stored in memory layout (frame, row, column) from a file.
// Depth is 1 for uint8 masks and 2 for little-endian uint16 label rasters.
// Only one frame is held in memory at a time.
type RawSource struct {
	file  *os.File
	shape Shape
	depth int
	buf   []byte
	pix   []uint16
}

// OpenRawSource opens the stack file. Its size must match shape exactly.
func OpenRawSource(path string, shape Shape, depth int) (*RawSource, error) {
	if depth != 1 && depth != 2 {
		return nil, errors.Errorf("unsupported pixel depth %d", depth)
	}
	if err := shape.validate(); err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "Can't open raw stack")
	}
	src := &RawSource{
		file:  file,
		shape: shape,
		depth: depth,
		buf:   make([]byte, shape.Pixels()*depth),
		pix:   make([]uint16, shape.Pixels()),
	}
	if err := src.Validate(); err != nil {
		file.Close()
		return nil, err
	}
	return src, nil
}

// Shape returns stack's dimensions
func (src *RawSource) Shape() (int, int, int) {
	return src.shape.Frames, src.shape.Height, src.shape.Width
}

// Validate checks that the file holds exactly Frames*Height*Width pixels
func (src *RawSource) Validate() error {
	info, err := src.file.Stat()
	if err != nil {
		return errors.Wrap(err, "Can't stat raw stack")
	}
	expected := int64(src.shape.Frames) * int64(src.shape.Pixels()) * int64(src.depth)
	if info.Size() != expected {
		return errors.Wrapf(celltrack.ErrShapeMismatch, "raw stack has %d bytes, shape %dx%dx%d needs %d", info.Size(), src.shape.Frames, src.shape.Height, src.shape.Width, expected)
	}
	return nil
}

// Frame reads frame t. The returned raster is reused by the next call.
func (src *RawSource) Frame(t int) (celltrack.Frame, error) {
	if t < 0 || t >= src.shape.Frames {
		return celltrack.Frame{}, errors.Errorf("frame %d out of range [0, %d)", t, src.shape.Frames)
	}
	offset := int64(t) * int64(len(src.buf))
	if _, err := src.file.ReadAt(src.buf, offset); err != nil {
		return celltrack.Frame{}, errors.Wrapf(err, "Can't read frame %d", t)
	}
	if src.depth == 1 {
		for i, b := range src.buf {
			src.pix[i] = uint16(b)
		}
	} else {
		for i := range src.pix {
			src.pix[i] = binary.LittleEndian.Uint16(src.buf[2*i:])
		}
	}
	return celltrack.Frame{Width: src.shape.Width, Height: src.shape.Height, Pix: src.pix}, nil
}

// Close closes underlying file
func (src *RawSource) Close() error {
	return src.file.Close()
}

// RawSink writes uint16 little-endian label rasters in memory layout (frame, row, column).
// The file is pre-sized on creation, so frames that are never written read back as background.
type RawSink struct {
	file  *os.File
	shape Shape
	buf   []byte
}

// CreateRawSink creates (or truncates) the output file
func CreateRawSink(path string, shape Shape) (*RawSink, error) {
	if err := shape.validate(); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "Can't create raw output")
	}
	size := int64(shape.Frames) * int64(shape.Pixels()) * 2
	if err := file.Truncate(size); err != nil {
		file.Close()
		return nil, errors.Wrap(err, "Can't allocate raw output")
	}
	return &RawSink{
		file:  file,
		shape: shape,
		buf:   make([]byte, shape.Pixels()*2),
	}, nil
}

// Shape returns output dimensions
func (sink *RawSink) Shape() (int, int, int) {
	return sink.shape.Frames, sink.shape.Height, sink.shape.Width
}

// WriteFrame stores frame t with a single positioned write
func (sink *RawSink) WriteFrame(t int, labels []uint16) error {
	if t < 0 || t >= sink.shape.Frames {
		return errors.Errorf("frame %d out of range [0, %d)", t, sink.shape.Frames)
	}
	if len(labels) != sink.shape.Pixels() {
		return errors.Wrapf(celltrack.ErrShapeMismatch, "frame %d has %d labels, expected %d", t, len(labels), sink.shape.Pixels())
	}
	for i, v := range labels {
		binary.LittleEndian.PutUint16(sink.buf[2*i:], v)
	}
	if _, err := sink.file.WriteAt(sink.buf, int64(t)*int64(len(sink.buf))); err != nil {
		return errors.Wrapf(err, "Can't write frame %d", t)
	}
	return nil
}

// Close flushes and closes underlying file
func (sink *RawSink) Close() error {
	if err := sink.file.Sync(); err != nil {
		sink.file.Close()
		return errors.Wrap(err, "Can't sync raw output")
	}
	return sink.file.Close()
}
