package celltrack

import (
	"gonum.org/v1/gonum/stat"
)

// Summary aggregates a track table for reporting
type Summary struct {
	Tracks    int
	Good      int
	Ambiguous int
	// Active counts tracks alive in the last processed frame
	Active int
	// Splits counts tracks born from a split
	Splits int
	// Merges counts tracks consumed by a merge
	Merges int
	// Lifetime statistics in frames
	MeanLifetime   float64
	StdDevLifetime float64
	MaxLifetime    int
	// MeanPathLength is the mean centroid path length in pixels
	MeanPathLength float64
}

// Summarize computes Summary of given track table
func Summarize(tracks []Track) Summary {
	summary := Summary{Tracks: len(tracks)}
	if len(tracks) == 0 {
		return summary
	}
	lifetimes := make([]float64, len(tracks))
	paths := make([]float64, len(tracks))
	for i := range tracks {
		track := &tracks[i]
		if track.Good {
			summary.Good++
		} else {
			summary.Ambiguous++
		}
		if track.Active() {
			summary.Active++
		}
		if track.ParentID != 0 {
			summary.Splits++
		}
		if track.MergedInto != 0 {
			summary.Merges++
		}
		lifetimes[i] = float64(track.Frames)
		paths[i] = track.PathLength
		summary.MaxLifetime = maxInt(summary.MaxLifetime, track.Frames)
	}
	summary.MeanPathLength = stat.Mean(paths, nil)
	if len(lifetimes) == 1 {
		summary.MeanLifetime = lifetimes[0]
		return summary
	}
	summary.MeanLifetime, summary.StdDevLifetime = stat.MeanStdDev(lifetimes, nil)
	return summary
}
