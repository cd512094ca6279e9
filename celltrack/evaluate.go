package celltrack

import (
	"sort"

	"github.com/arthurkushman/go-hungarian"
	"github.com/pkg/errors"
)

// EvaluationReport accumulates tracking quality against ground truth
type EvaluationReport struct {
	Frames         int
	TruthObjects   int
	TruePositives  int
	FalsePositives int
	FalseNegatives int
	// IDSwitches counts ground-truth cells matched to a different predicted ID than the last time they were matched
	IDSwitches int
}

// MOTA returns Multiple Object Tracking Accuracy: 1 - (FN + FP + IDSW) / GT
func (report EvaluationReport) MOTA() float64 {
	if report.TruthObjects == 0 {
		return 0.0
	}
	errs := report.FalseNegatives + report.FalsePositives + report.IDSwitches
	return 1.0 - float64(errs)/float64(report.TruthObjects)
}

// Precision returns TP / (TP + FP)
func (report EvaluationReport) Precision() float64 {
	if report.TruePositives+report.FalsePositives == 0 {
		return 0.0
	}
	return float64(report.TruePositives) / float64(report.TruePositives+report.FalsePositives)
}

// Recall returns TP / (TP + FN)
func (report EvaluationReport) Recall() float64 {
	if report.TruePositives+report.FalseNegatives == 0 {
		return 0.0
	}
	return float64(report.TruePositives) / float64(report.TruePositives+report.FalseNegatives)
}

// Evaluator compares predicted labeled frames with ground-truth labeled frames.
// Cells are matched per frame by the Hungarian algorithm on pixel IoU.
type Evaluator struct {
	// Minimum IoU for a match. Default 0.5
	minIoU    float64
	report    EvaluationReport
	lastMatch map[uint16]uint16
}

// NewEvaluator creates new instance of Evaluator. Non-positive minIoU falls back to 0.5
func NewEvaluator(minIoU float64) *Evaluator {
	if minIoU <= 0 {
		minIoU = 0.5
	}
	return &Evaluator{
		minIoU:    minIoU,
		lastMatch: make(map[uint16]uint16),
	}
}

// Report returns accumulated statistics
func (ev *Evaluator) Report() EvaluationReport {
	return ev.report
}

type labelPair struct {
	truth     uint16
	predicted uint16
}

// AddFrame matches one frame. Both rasters hold global IDs with 0 as background.
func (ev *Evaluator) AddFrame(truth, predicted []uint16) error {
	if len(truth) != len(predicted) {
		return errors.Wrapf(ErrShapeMismatch, "truth has %d pixels, prediction has %d", len(truth), len(predicted))
	}
	truthArea := make(map[uint16]int)
	predArea := make(map[uint16]int)
	inter := make(map[labelPair]int)
	for i, tid := range truth {
		pid := predicted[i]
		if tid != 0 {
			truthArea[tid]++
		}
		if pid != 0 {
			predArea[pid]++
		}
		if tid != 0 && pid != 0 {
			inter[labelPair{truth: tid, predicted: pid}]++
		}
	}
	truthIDs := sortedKeys(truthArea)
	predIDs := sortedKeys(predArea)

	ev.report.Frames++
	ev.report.TruthObjects += len(truthIDs)

	matches := ev.match(truthIDs, predIDs, truthArea, predArea, inter)
	ev.report.TruePositives += len(matches)
	ev.report.FalseNegatives += len(truthIDs) - len(matches)
	ev.report.FalsePositives += len(predIDs) - len(matches)
	for _, m := range matches {
		if prev, ok := ev.lastMatch[m.truth]; ok && prev != m.predicted {
			ev.report.IDSwitches++
		}
		ev.lastMatch[m.truth] = m.predicted
	}
	return nil
}

// match solves the assignment between truth and predicted cells of one frame
func (ev *Evaluator) match(truthIDs, predIDs []uint16, truthArea, predArea map[uint16]int, inter map[labelPair]int) []labelPair {
	numTruth := len(truthIDs)
	numPred := len(predIDs)
	if numTruth == 0 || numPred == 0 {
		return []labelPair{}
	}
	// Square matrix padded with 0.0 (lowest IoU)
	paddedSize := maxInt(numTruth, numPred)
	iouMatrix := make([][]float64, paddedSize)
	for i := range iouMatrix {
		iouMatrix[i] = make([]float64, paddedSize)
	}
	for i, tid := range truthIDs {
		for j, pid := range predIDs {
			pair := labelPair{truth: tid, predicted: pid}
			iouMatrix[i][j] = pixelIoU(truthArea[tid], predArea[pid], inter[pair])
		}
	}
	assignmentsMap := hungarian.SolveMax(iouMatrix)
	matches := make([]labelPair, 0, minInt(numTruth, numPred))
	for truthIdx, rowMap := range assignmentsMap {
		for predIdx := range rowMap {
			if truthIdx >= numTruth || predIdx >= numPred {
				continue
			}
			// Hungarian always assigns; weak pairs are not matches
			if iouMatrix[truthIdx][predIdx] < ev.minIoU || iouMatrix[truthIdx][predIdx] == 0 {
				continue
			}
			matches = append(matches, labelPair{truth: truthIDs[truthIdx], predicted: predIDs[predIdx]})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].truth < matches[j].truth })
	return matches
}

// Evaluate compares two labeled stacks frame by frame
func Evaluate(truth, predicted FrameSource, minIoU float64) (EvaluationReport, error) {
	frames, height, width := truth.Shape()
	pFrames, pHeight, pWidth := predicted.Shape()
	if frames != pFrames || height != pHeight || width != pWidth {
		return EvaluationReport{}, errors.Wrapf(ErrShapeMismatch, "truth is %dx%dx%d, prediction is %dx%dx%d", frames, height, width, pFrames, pHeight, pWidth)
	}
	ev := NewEvaluator(minIoU)
	for t := 0; t < frames; t++ {
		truthFrame, err := truth.Frame(t)
		if err != nil {
			return ev.Report(), errors.Wrapf(err, "Can't read truth frame %d", t)
		}
		predFrame, err := predicted.Frame(t)
		if err != nil {
			return ev.Report(), errors.Wrapf(err, "Can't read predicted frame %d", t)
		}
		if err := ev.AddFrame(truthFrame.Pix, predFrame.Pix); err != nil {
			return ev.Report(), errors.Wrapf(err, "frame %d", t)
		}
	}
	return ev.Report(), nil
}

func sortedKeys(m map[uint16]int) []uint16 {
	keys := make([]uint16, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
