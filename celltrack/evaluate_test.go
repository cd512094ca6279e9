package celltrack

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluatorPerfectMatch(t *testing.T) {
	ev := NewEvaluator(0)
	truth := []uint16{5, 5, 0, 0, 7, 7, 0, 0}
	require.NoError(t, ev.AddFrame(truth, []uint16{1, 1, 0, 0, 2, 2, 0, 0}))
	require.NoError(t, ev.AddFrame(truth, []uint16{1, 1, 0, 0, 2, 2, 0, 0}))
	report := ev.Report()
	assert.Equal(t, 2, report.Frames)
	assert.Equal(t, 4, report.TruthObjects)
	assert.Equal(t, 4, report.TruePositives)
	assert.Zero(t, report.FalsePositives)
	assert.Zero(t, report.FalseNegatives)
	assert.Zero(t, report.IDSwitches)
	assert.InDelta(t, 1.0, report.MOTA(), eps)
	assert.InDelta(t, 1.0, report.Precision(), eps)
	assert.InDelta(t, 1.0, report.Recall(), eps)
}

func TestEvaluatorIDSwitch(t *testing.T) {
	ev := NewEvaluator(0.5)
	truth := []uint16{5, 5, 0, 0, 7, 7, 0, 0}
	require.NoError(t, ev.AddFrame(truth, []uint16{1, 1, 0, 0, 2, 2, 0, 0}))
	require.NoError(t, ev.AddFrame(truth, []uint16{3, 3, 0, 0, 2, 2, 0, 0}))
	report := ev.Report()
	assert.Equal(t, 1, report.IDSwitches)
	assert.Equal(t, 4, report.TruePositives)
	assert.InDelta(t, 0.75, report.MOTA(), eps)
}

func TestEvaluatorFalsePositive(t *testing.T) {
	ev := NewEvaluator(0.5)
	require.NoError(t, ev.AddFrame(
		[]uint16{5, 5, 0, 0, 0, 0, 0, 0},
		[]uint16{1, 1, 0, 0, 2, 2, 0, 0},
	))
	report := ev.Report()
	assert.Equal(t, 1, report.TruePositives)
	assert.Equal(t, 1, report.FalsePositives)
	assert.Zero(t, report.FalseNegatives)
	assert.InDelta(t, 0.5, report.Precision(), eps)
	assert.InDelta(t, 1.0, report.Recall(), eps)
}

func TestEvaluatorWeakOverlap(t *testing.T) {
	ev := NewEvaluator(0.5)
	require.NoError(t, ev.AddFrame(
		[]uint16{5, 5, 5, 5, 0, 0, 7, 7},
		[]uint16{1, 0, 0, 0, 0, 0, 2, 2},
	))
	report := ev.Report()
	assert.Equal(t, 1, report.TruePositives)
	assert.Equal(t, 1, report.FalsePositives)
	assert.Equal(t, 1, report.FalseNegatives)
}

func TestEvaluatorEmptyFrames(t *testing.T) {
	ev := NewEvaluator(0.5)
	require.NoError(t, ev.AddFrame(make([]uint16, 4), []uint16{0, 3, 3, 0}))
	report := ev.Report()
	assert.Zero(t, report.TruthObjects)
	assert.Equal(t, 1, report.FalsePositives)
	assert.Zero(t, report.MOTA())
}

func TestEvaluateStacks(t *testing.T) {
	truth := asciiStack(t,
		[]string{"11..22", "11..22"},
		[]string{"11..22", "11..22"},
	)
	predicted := asciiStack(t,
		[]string{"22..11", "22..11"},
		[]string{"22..11", "22..11"},
	)
	report, err := Evaluate(truth, predicted, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 4, report.TruePositives)
	assert.Zero(t, report.IDSwitches, "consistent renaming is not a switch")

	short := asciiStack(t, []string{"11..22", "11..22"})
	_, err = Evaluate(truth, short, 0.5)
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	err = NewEvaluator(0.5).AddFrame(make([]uint16, 3), make([]uint16, 4))
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}
