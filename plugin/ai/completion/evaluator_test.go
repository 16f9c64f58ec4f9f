package completion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedEvaluator(now time.Time) *Evaluator {
	e := NewEvaluator()
	e.Now = func() time.Time { return now }
	return e
}

func answerBlock(instruments []string, perInstrument int) map[string][]int {
	collected := make(map[string][]int, len(instruments))
	for _, name := range instruments {
		answers := make([]int, perInstrument)
		collected[name] = answers
	}
	return collected
}

func TestShouldComplete(t *testing.T) {
	e := NewEvaluator()
	e.MinRequiredAnswers = 150

	require.False(t, e.ShouldComplete(answerBlock([]string{"Depression", "Anxiety"}, 55)))
	require.True(t, e.ShouldComplete(answerBlock([]string{"Depression", "Anxiety", "Stress", "Sleep"}, 50)))
}

func TestEvaluateSufficientWithBreadthAndSignal(t *testing.T) {
	now := time.Now()
	e := fixedEvaluator(now)
	e.MinRequiredAnswers = 150

	history := []UserMessage{
		{Text: "it's been a rough month", CreatedAt: now.Add(-9 * time.Minute)},
		{Text: "mostly at night", CreatedAt: now.Add(-5 * time.Minute)},
		{Text: "I'm done, thanks for listening", CreatedAt: now.Add(-time.Minute)},
	}
	collected := answerBlock([]string{"Depression", "Anxiety", "Stress"}, 50)

	v := e.Evaluate(history, collected, nil, now.Add(-10*time.Minute))
	require.True(t, v.ShouldEnd)
	require.InDelta(t, 0.95, v.Confidence, 0.001)
	require.Len(t, v.Topics, 3)
}

func TestEvaluateTooLongForcesEnd(t *testing.T) {
	now := time.Now()
	e := fixedEvaluator(now)
	e.MinRequiredAnswers = 150

	history := make([]UserMessage, 12)
	for i := range history {
		history[i] = UserMessage{Text: "still thinking about it", CreatedAt: now}
	}
	collected := answerBlock([]string{"Depression", "Anxiety"}, 45)

	v := e.Evaluate(history, collected, nil, now.Add(-40*time.Minute))
	require.True(t, v.ShouldEnd)
	require.Equal(t, forceEndConfidence, v.Confidence)
}

func TestEvaluateUserSignalWithSufficiency(t *testing.T) {
	now := time.Now()
	e := fixedEvaluator(now)
	e.MinRequiredAnswers = 150

	history := []UserMessage{
		{Text: "that's all I wanted to share", CreatedAt: now},
	}
	collected := answerBlock([]string{"Depression", "Anxiety"}, 60)

	v := e.Evaluate(history, collected, nil, now.Add(-2*time.Minute))
	require.True(t, v.ShouldEnd)
	require.Equal(t, userSignalConfidence, v.Confidence)
}

func TestEvaluateContinues(t *testing.T) {
	now := time.Now()
	e := fixedEvaluator(now)
	e.MinRequiredAnswers = 150

	history := []UserMessage{
		{Text: "I've been feeling anxious lately", CreatedAt: now},
	}
	collected := answerBlock([]string{"Anxiety"}, 3)

	v := e.Evaluate(history, collected, nil, now.Add(-time.Minute))
	require.False(t, v.ShouldEnd)
	require.InDelta(t, float64(3)/150*0.5, v.Confidence, 0.001)
	require.Equal(t, "continuing assessment", v.Reason)
}

func TestEvaluateShortAckIsOnlyPartialCredit(t *testing.T) {
	now := time.Now()
	e := fixedEvaluator(now)
	e.MinRequiredAnswers = 150

	history := []UserMessage{
		{Text: "okay", CreatedAt: now},
	}
	collected := answerBlock([]string{"Depression", "Anxiety"}, 60)

	// Partial credit never satisfies the strong-signal branch on its own.
	v := e.Evaluate(history, collected, nil, now.Add(-2*time.Minute))
	require.False(t, v.ShouldEnd)
}

func TestEvaluateCompletedInstrumentsCountTowardBreadth(t *testing.T) {
	now := time.Now()
	e := fixedEvaluator(now)
	e.MinRequiredAnswers = 100

	history := make([]UserMessage, 9)
	for i := range history {
		history[i] = UserMessage{Text: "talking it through", CreatedAt: now}
	}
	collected := answerBlock([]string{"Stress"}, 110)

	v := e.Evaluate(history, collected, []string{"Depression", "Anxiety"}, now.Add(-6*time.Minute))
	require.True(t, v.ShouldEnd)
	require.ElementsMatch(t, []string{"Depression", "Anxiety", "Stress"}, v.Topics)
}
