package celltrack

import (
	"math"
	"testing"
)

const (
	eps = 0.00001
)

func TestEuclideanDistance(t *testing.T) {
	p1 := Point{X: 341, Y: 264}
	p2 := Point{X: 421, Y: 427}
	correnctAnswer := 181.57367
	answer := euclideanDistance(p1, p2)
	if math.Abs(answer-correnctAnswer) > eps {
		t.Errorf("Wrong answer: %v, correct answer: %v", answer, correnctAnswer)
	}
}

func TestBoxExtend(t *testing.T) {
	box := NewBoxAt(5, 5)
	box.Extend(2, 7)
	box.Extend(6, 1)
	expected := Box{MinRow: 2, MinCol: 1, MaxRow: 6, MaxCol: 7}
	if box != expected {
		t.Errorf("Expected box %v, got %v", expected, box)
	}
	if box.Height() != 5 || box.Width() != 7 || box.Area() != 35 {
		t.Errorf("Wrong dimensions: %dx%d (area %d)", box.Height(), box.Width(), box.Area())
	}
}

func TestPixelIoU(t *testing.T) {
	if pixelIoU(10, 10, 0) != 0 {
		t.Error("Disjoint sets must have zero IoU")
	}
	if math.Abs(pixelIoU(10, 10, 10)-1.0) > eps {
		t.Error("Identical sets must have IoU 1")
	}
	if math.Abs(pixelIoU(6, 4, 2)-0.25) > eps {
		t.Errorf("Wrong IoU: %v", pixelIoU(6, 4, 2))
	}
}
