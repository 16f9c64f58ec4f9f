package scoring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func emptyVector() []int {
	v := make([]int, VectorSize)
	for i := range v {
		v[i] = Missing
	}
	return v
}

func TestFlattenPlacesAnswersInSlots(t *testing.T) {
	merged := map[string][]int{
		"Anxiety": {1, 2, 3},
		"Stress":  {4},
	}
	vector := Flatten(merged)
	require.Len(t, vector, VectorSize)

	anxiety, _ := Lookup("Anxiety")
	require.Equal(t, 1, vector[anxiety.StartIndex])
	require.Equal(t, 2, vector[anxiety.StartIndex+1])
	require.Equal(t, 3, vector[anxiety.StartIndex+2])
	require.Equal(t, Missing, vector[anxiety.StartIndex+3])

	stress, _ := Lookup("Stress")
	require.Equal(t, 4, vector[stress.StartIndex])
}

func TestFlattenDropsOverflowAndUnknown(t *testing.T) {
	overflow := make([]int, 20)
	merged := map[string][]int{
		"Anxiety":     overflow, // GAD-7 holds 7 items
		"Nonexistent": {1, 2},
	}
	vector := Flatten(merged)

	anxiety, _ := Lookup("Anxiety")
	next := vector[anxiety.StartIndex+anxiety.ItemCount]
	require.Equal(t, Missing, next)
}

func TestScoreRejectsWrongLength(t *testing.T) {
	_, err := Score([]int{1, 2, 3})
	require.Error(t, err)
}

func TestScoreGAD7Banding(t *testing.T) {
	anxiety, _ := Lookup("Anxiety")

	vector := emptyVector()
	for i := 0; i < anxiety.ItemCount; i++ {
		vector[anxiety.StartIndex+i] = 2
	}
	result, err := Score(vector)
	require.NoError(t, err)
	require.Equal(t, 14, result.Scores["Anxiety"])
	require.Equal(t, "Moderate", result.Severity["Anxiety"])
}

func TestScoreMissingTreatedAsZero(t *testing.T) {
	result, err := Score(emptyVector())
	require.NoError(t, err)
	require.Equal(t, 0, result.Scores["Anxiety"])
	require.Equal(t, "Minimal", result.Severity["Anxiety"])
	require.Equal(t, "No Insomnia", result.Severity["Insomnia"])
}

func TestScoreASRSScreenPositive(t *testing.T) {
	adhd, _ := Lookup("ADD / ADHD")

	vector := emptyVector()
	// Four shaded Part A responses trigger the screen regardless of total.
	for i := 0; i < 4; i++ {
		vector[adhd.StartIndex+i] = 4
	}
	result, err := Score(vector)
	require.NoError(t, err)
	require.Equal(t, "Highly Consistent with Adult ADHD (Screen Positive)", result.Severity["ADD / ADHD"])
	require.Equal(t, 16, result.Scores["ADD / ADHD"])
}

func TestScoreASRSScreenNegativeUsesBands(t *testing.T) {
	adhd, _ := Lookup("ADD / ADHD")

	vector := emptyVector()
	vector[adhd.StartIndex] = 1 // unshaded for item 1
	result, err := Score(vector)
	require.NoError(t, err)
	require.Equal(t, "Low", result.Severity["ADD / ADHD"])
}

func TestScoreMDQCriteria(t *testing.T) {
	mdq, _ := Lookup("Bipolar disorder (BD)")

	vector := emptyVector()
	for i := 0; i < 7; i++ {
		vector[mdq.StartIndex+i] = 1
	}
	vector[mdq.StartIndex+13] = 1
	vector[mdq.StartIndex+14] = 2

	result, err := Score(vector)
	require.NoError(t, err)
	require.Equal(t, 1, result.Scores["Bipolar disorder (BD)"])
	require.Equal(t, "Positive Bipolar Screen (All 3 Criteria Met)", result.Severity["Bipolar disorder (BD)"])

	// Dropping any one criterion flips the screen negative.
	vector[mdq.StartIndex+14] = 1
	result, err = Score(vector)
	require.NoError(t, err)
	require.Equal(t, 0, result.Scores["Bipolar disorder (BD)"])
}

func TestScoreMBISubscales(t *testing.T) {
	mbi, _ := Lookup("Burnout")

	vector := emptyVector()
	for i := 0; i < mbi.ItemCount; i++ {
		vector[mbi.StartIndex+i] = 3
	}
	result, err := Score(vector)
	require.NoError(t, err)
	// EE = 21, DP = 21, PA = 24
	require.Equal(t, 66, result.Scores["Burnout"])
	require.Equal(t, "EE: Moderate, DP: High, PA: Low Accomplishment", result.Severity["Burnout"])
	require.NotNil(t, result.Subscales["Burnout"])
}

func TestExpectedAnswerCount(t *testing.T) {
	require.Equal(t, 7, ExpectedAnswerCount("Anxiety"))
	require.Equal(t, 18, ExpectedAnswerCount("ADD / ADHD"))
	require.Equal(t, 0, ExpectedAnswerCount("Nonexistent"))
}

func TestPhobiaHasCeilingButNoVectorSlot(t *testing.T) {
	// Every probe-order instrument must carry a nonzero ceiling so the
	// conversation can finish it and move on.
	for _, name := range Names {
		require.Positive(t, ExpectedAnswerCount(name), name)
	}

	phobia, ok := Lookup("Phobia")
	require.True(t, ok)
	require.Equal(t, 10, phobia.ItemCount)
	require.Negative(t, phobia.StartIndex)

	// Slotless answers never leak into the vector or the result.
	vector := Flatten(map[string][]int{"Phobia": {4, 4, 4}})
	require.Equal(t, emptyVector(), vector)

	result, err := Score(vector)
	require.NoError(t, err)
	require.NotContains(t, result.Scores, "Phobia")
	require.NotContains(t, result.Severity, "Phobia")
}
