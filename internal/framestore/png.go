package framestore

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/LdDl/cell-tracker-go/celltrack"
	"github.com/pkg/errors"
)

// PNGSource reads a field of view stored as a directory of PNG masks, one file per frame in
// lexical order of file names. Gray and 16-bit gray images keep their pixel values, so
// labeled masks stay labeled; any other color model is reduced to 16-bit luminance.
type PNGSource struct {
	files  []string
	height int
	width  int
	pix    []uint16
}

// OpenPNGSource lists the PNG files of dir and reads dimensions of the first one
func OpenPNGSource(dir string) (*PNGSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "Can't list frames")
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.ToLower(filepath.Ext(entry.Name())) != ".png" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	src := &PNGSource{files: files}
	if len(files) == 0 {
		return src, nil
	}
	cfg, err := decodeConfig(files[0])
	if err != nil {
		return nil, err
	}
	src.height = cfg.Height
	src.width = cfg.Width
	src.pix = make([]uint16, cfg.Height*cfg.Width)
	return src, nil
}

func decodeConfig(path string) (image.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return image.Config{}, errors.Wrap(err, "Can't open frame")
	}
	defer file.Close()
	cfg, err := png.DecodeConfig(file)
	if err != nil {
		return image.Config{}, errors.Wrapf(err, "Can't decode header of %s", filepath.Base(path))
	}
	return cfg, nil
}

// Files returns frame file paths in processing order
func (src *PNGSource) Files() []string {
	return src.files
}

// Shape returns stack's dimensions
func (src *PNGSource) Shape() (int, int, int) {
	return len(src.files), src.height, src.width
}

// Validate reads headers of every frame and checks that all frames share the same dimensions
func (src *PNGSource) Validate() error {
	for t, path := range src.files {
		cfg, err := decodeConfig(path)
		if err != nil {
			return errors.Wrapf(err, "frame %d", t)
		}
		if cfg.Height != src.height || cfg.Width != src.width {
			return errors.Wrapf(celltrack.ErrShapeMismatch, "frame %d (%s) is %dx%d, stack is %dx%d", t, filepath.Base(path), cfg.Height, cfg.Width, src.height, src.width)
		}
	}
	return nil
}

// Frame decodes frame t. The returned raster is reused by the next call.
func (src *PNGSource) Frame(t int) (celltrack.Frame, error) {
	if t < 0 || t >= len(src.files) {
		return celltrack.Frame{}, errors.Errorf("frame %d out of range [0, %d)", t, len(src.files))
	}
	file, err := os.Open(src.files[t])
	if err != nil {
		return celltrack.Frame{}, errors.Wrapf(err, "Can't open frame %d", t)
	}
	defer file.Close()
	img, err := png.Decode(file)
	if err != nil {
		return celltrack.Frame{}, errors.Wrapf(err, "Can't decode frame %d", t)
	}
	bounds := img.Bounds()
	if bounds.Dy() != src.height || bounds.Dx() != src.width {
		return celltrack.Frame{}, errors.Wrapf(celltrack.ErrShapeMismatch, "frame %d is %dx%d, stack is %dx%d", t, bounds.Dy(), bounds.Dx(), src.height, src.width)
	}
	for y := 0; y < src.height; y++ {
		for x := 0; x < src.width; x++ {
			src.pix[y*src.width+x] = pixelValue(img, bounds.Min.X+x, bounds.Min.Y+y)
		}
	}
	return celltrack.Frame{Width: src.width, Height: src.height, Pix: src.pix}, nil
}

func pixelValue(img image.Image, x, y int) uint16 {
	switch im := img.(type) {
	case *image.Gray16:
		return im.Gray16At(x, y).Y
	case *image.Gray:
		return uint16(im.GrayAt(x, y).Y)
	case *image.Paletted:
		return uint16(im.ColorIndexAt(x, y))
	default:
		return color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
	}
}

// PNGSink writes every frame as a 16-bit gray PNG into a directory.
// Each frame goes to a temporary file first and is renamed into place, so a frame file is either complete or absent.
type PNGSink struct {
	dir    string
	frames int
	height int
	width  int
	img    *image.Gray16
}

// NewPNGSink creates output directory if needed
func NewPNGSink(dir string, frames, height, width int) (*PNGSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "Can't create output directory")
	}
	return &PNGSink{
		dir:    dir,
		frames: frames,
		height: height,
		width:  width,
		img:    image.NewGray16(image.Rect(0, 0, width, height)),
	}, nil
}

// Shape returns output dimensions
func (sink *PNGSink) Shape() (int, int, int) {
	return sink.frames, sink.height, sink.width
}

// tempPattern names frames being written. It must not end in .png, so a file left behind by
// a crash is never picked up as a frame.
const tempPattern = ".track-*.tmp"

// FramePath returns file path of frame t
func (sink *PNGSink) FramePath(t int) string {
	return filepath.Join(sink.dir, fmt.Sprintf("track%04d.png", t))
}

// WriteFrame encodes frame t
func (sink *PNGSink) WriteFrame(t int, labels []uint16) error {
	if t < 0 || t >= sink.frames {
		return errors.Errorf("frame %d out of range [0, %d)", t, sink.frames)
	}
	if len(labels) != sink.height*sink.width {
		return errors.Wrapf(celltrack.ErrShapeMismatch, "frame %d has %d labels, expected %d", t, len(labels), sink.height*sink.width)
	}
	for i, v := range labels {
		// Gray16 stores big-endian samples
		sink.img.Pix[2*i] = uint8(v >> 8)
		sink.img.Pix[2*i+1] = uint8(v)
	}
	tmp, err := os.CreateTemp(sink.dir, tempPattern)
	if err != nil {
		return errors.Wrapf(err, "Can't create frame %d", t)
	}
	if err := png.Encode(tmp, sink.img); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "Can't encode frame %d", t)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "Can't write frame %d", t)
	}
	if err := os.Rename(tmp.Name(), sink.FramePath(t)); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "Can't store frame %d", t)
	}
	return nil
}
