package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/LdDl/cell-tracker-go/celltrack"
	"github.com/LdDl/cell-tracker-go/internal/batch"
	"github.com/LdDl/cell-tracker-go/internal/framestore"
)

// layout tells where inputs, outputs and ground truth of a FOV live on disk.
// With raw set every FOV is a single stack file, otherwise a directory of PNG frames.
type layout struct {
	out   string
	eval  string
	raw   *framestore.Shape
	depth int
}

func noopClose() error { return nil }

// parseShape reads FRAMESxHEIGHTxWIDTH
func parseShape(s string) (framestore.Shape, error) {
	parts := strings.Split(strings.ToLower(s), "x")
	if len(parts) != 3 {
		return framestore.Shape{}, errors.Errorf("shape %q is not FRAMESxHEIGHTxWIDTH", s)
	}
	dims := make([]int, 3)
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || v < 0 {
			return framestore.Shape{}, errors.Errorf("shape %q has bad dimension %q", s, part)
		}
		dims[i] = v
	}
	return framestore.Shape{Frames: dims[0], Height: dims[1], Width: dims[2]}, nil
}

// fovName is the input's base name. Raw stack files lose their extension.
func (lay layout) fovName(input string) string {
	base := filepath.Base(filepath.Clean(input))
	if lay.raw == nil {
		return base
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (lay layout) outputPath(fov string) string {
	if lay.raw != nil {
		return filepath.Join(lay.out, fov+".raw")
	}
	return filepath.Join(lay.out, fov)
}

func (lay layout) truthPath(fov string) string {
	if lay.raw != nil {
		return filepath.Join(lay.eval, fov+".raw")
	}
	return filepath.Join(lay.eval, fov)
}

// job builds batch job reading input and writing labeled frames into the output root
func (lay layout) job(input string) batch.Job {
	fov := lay.fovName(input)
	return batch.Job{
		FOV: fov,
		Open: func() (celltrack.FrameSource, celltrack.LabelSink, func() error, error) {
			if lay.raw != nil {
				return lay.openRaw(input, fov)
			}
			src, err := framestore.OpenPNGSource(input)
			if err != nil {
				return nil, nil, nil, err
			}
			frames, height, width := src.Shape()
			sink, err := framestore.NewPNGSink(lay.outputPath(fov), frames, height, width)
			if err != nil {
				return nil, nil, nil, err
			}
			return src, sink, nil, nil
		},
	}
}

func (lay layout) openRaw(input, fov string) (celltrack.FrameSource, celltrack.LabelSink, func() error, error) {
	src, err := framestore.OpenRawSource(input, *lay.raw, lay.depth)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := os.MkdirAll(lay.out, 0755); err != nil {
		src.Close()
		return nil, nil, nil, errors.Wrap(err, "Can't create output directory")
	}
	sink, err := framestore.CreateRawSink(lay.outputPath(fov), *lay.raw)
	if err != nil {
		src.Close()
		return nil, nil, nil, err
	}
	closeFn := func() error {
		sinkErr := sink.Close()
		if err := src.Close(); err != nil {
			return err
		}
		return sinkErr
	}
	return src, sink, closeFn, nil
}

// openOutput reads back labeled frames written for fov
func (lay layout) openOutput(fov string) (celltrack.FrameSource, func() error, error) {
	if lay.raw != nil {
		src, err := framestore.OpenRawSource(lay.outputPath(fov), *lay.raw, 2)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	}
	src, err := framestore.OpenPNGSource(lay.outputPath(fov))
	if err != nil {
		return nil, nil, err
	}
	return src, noopClose, nil
}

// openTruth reads ground-truth labels of fov. Raw ground truth is always uint16.
func (lay layout) openTruth(fov string) (celltrack.FrameSource, func() error, error) {
	if lay.raw != nil {
		src, err := framestore.OpenRawSource(lay.truthPath(fov), *lay.raw, 2)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	}
	src, err := framestore.OpenPNGSource(lay.truthPath(fov))
	if err != nil {
		return nil, nil, err
	}
	return src, noopClose, nil
}
