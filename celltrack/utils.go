package celltrack

// pixelIoU calculates Intersection over Union of two pixel sets given their areas and the size of their intersection.
func pixelIoU(areaA, areaB, inter int) float64 {
	if inter == 0 {
		return 0.0
	}
	union := areaA + areaB - inter
	if union <= 0 {
		return 0.0
	}
	return float64(inter) / float64(union)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
