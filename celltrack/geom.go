package celltrack

import (
	"math"
)

// Box is an inclusive pixel bounding box: rows [MinRow, MaxRow], cols [MinCol, MaxCol].
type Box struct {
	MinRow int
	MinCol int
	MaxRow int
	MaxCol int
}

// NewBoxAt returns single-pixel box
func NewBoxAt(row, col int) Box {
	return Box{
		MinRow: row,
		MinCol: col,
		MaxRow: row,
		MaxCol: col,
	}
}

// Extend grows box so it contains given pixel
func (b *Box) Extend(row, col int) {
	b.MinRow = minInt(b.MinRow, row)
	b.MinCol = minInt(b.MinCol, col)
	b.MaxRow = maxInt(b.MaxRow, row)
	b.MaxCol = maxInt(b.MaxCol, col)
}

// Height returns number of rows covered by box
func (b Box) Height() int {
	return b.MaxRow - b.MinRow + 1
}

// Width returns number of columns covered by box
func (b Box) Width() int {
	return b.MaxCol - b.MinCol + 1
}

// Area returns number of pixels covered by box (not by the blob inside it)
func (b Box) Area() int {
	return b.Height() * b.Width()
}

// Point is a sub-pixel position. X is column, Y is row.
type Point struct {
	X float64
	Y float64
}

func euclideanDistance(p1, p2 Point) float64 {
	return math.Sqrt(math.Pow(p1.X-p2.X, 2) + math.Pow(p1.Y-p2.Y, 2))
}
