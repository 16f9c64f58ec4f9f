package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuestionInstrument(t *testing.T) {
	require.Equal(t, "depression", QuestionInstrument("depression_q1"))
	require.Equal(t, "social_anxiety", QuestionInstrument("social_anxiety_q12"))
	require.Equal(t, "", QuestionInstrument("no-ordinal"))
	require.Equal(t, "", QuestionInstrument("_q3"))
}

func TestTopicFromInstrument(t *testing.T) {
	require.Equal(t, "Depression", TopicFromInstrument("depression"))
	require.Equal(t, "Social Anxiety", TopicFromInstrument("social_anxiety"))
}

func TestMergedAnswersFoldsWithoutDuplication(t *testing.T) {
	s := &Session{
		CollectedAnswers: map[string][]int{
			"Depression": {2, 1},
		},
		StructuredAnswers: map[string]int{
			"depression_q3": 3,
			"depression_q1": 2, // value already present, not re-appended
			"anxiety_q1":    1,
		},
	}

	merged := s.MergedAnswers()
	require.Equal(t, []int{2, 1, 3}, merged["Depression"])
	require.Equal(t, []int{1}, merged["Anxiety"])

	// The fold never mutates the underlying views.
	require.Equal(t, []int{2, 1}, s.CollectedAnswers["Depression"])
	require.Len(t, s.StructuredAnswers, 3)
}

func TestMergedAnswersIsIdempotent(t *testing.T) {
	s := &Session{
		CollectedAnswers:  map[string][]int{"Anxiety": {3}},
		StructuredAnswers: map[string]int{"anxiety_q2": 3, "anxiety_q4": 0},
	}

	first := s.MergedAnswers()
	second := s.MergedAnswers()
	require.Equal(t, first, second)
	require.Equal(t, []int{3, 0}, first["Anxiety"])
}

func TestMergedAnswersUnknownQuestionID(t *testing.T) {
	s := &Session{
		StructuredAnswers: map[string]int{"garbled": 2},
	}
	merged := s.MergedAnswers()
	require.Equal(t, []int{2}, merged["Unknown"])
}

func TestTotalAnswers(t *testing.T) {
	s := &Session{
		CollectedAnswers: map[string][]int{
			"Depression": {1, 2, 3},
			"Anxiety":    {0},
		},
	}
	require.Equal(t, 4, s.TotalAnswers())
}

func TestEncodeDecodeSessionFields(t *testing.T) {
	original := &Session{
		CompletedInstruments: []string{"Depression"},
		CollectedAnswers:     map[string][]int{"Depression": {1, 2}},
		StructuredAnswers:    map[string]int{"anxiety_q1": 3},
		PresentedInstruments: []string{"Depression", "Anxiety"},
	}

	completed, collected, structured, presented, err := EncodeSessionFields(original)
	require.NoError(t, err)

	decoded := &Session{}
	require.NoError(t, DecodeSessionFields(decoded, completed, collected, structured, presented))
	require.Equal(t, original.CompletedInstruments, decoded.CompletedInstruments)
	require.Equal(t, original.CollectedAnswers, decoded.CollectedAnswers)
	require.Equal(t, original.StructuredAnswers, decoded.StructuredAnswers)
	require.Equal(t, original.PresentedInstruments, decoded.PresentedInstruments)
}

func TestEncodeSessionFieldsNilMaps(t *testing.T) {
	completed, collected, structured, presented, err := EncodeSessionFields(&Session{})
	require.NoError(t, err)
	require.Equal(t, "[]", completed)
	require.Equal(t, "{}", collected)
	require.Equal(t, "{}", structured)
	require.Equal(t, "[]", presented)
}
