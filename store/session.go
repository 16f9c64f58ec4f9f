package store

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Session is the central long-lived intake entity. Answer state is kept
// in two independently appended views: CollectedAnswers grows per
// instrument as free-text answers are extracted, StructuredAnswers
// records tool-call submissions keyed by question id. The two are merged
// without duplication at finalization.
type Session struct {
	ID                   string
	OwnerID              *string
	CurrentInstrument    string
	CompletedInstruments []string
	CollectedAnswers     map[string][]int
	StructuredAnswers    map[string]int
	PresentedInstruments []string
	Insights             string // JSON string, opaque mergeable accumulator
	IsComplete           bool
	StartedTs            int64
	LastActivityTs       int64
	CompletedTs          int64
}

// Clone returns a deep copy detached from the receiver. The cache hands
// out clones so no two callers ever share answer maps or slices.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	if s.OwnerID != nil {
		owner := *s.OwnerID
		clone.OwnerID = &owner
	}
	clone.CompletedInstruments = append([]string(nil), s.CompletedInstruments...)
	clone.PresentedInstruments = append([]string(nil), s.PresentedInstruments...)
	if s.CollectedAnswers != nil {
		clone.CollectedAnswers = make(map[string][]int, len(s.CollectedAnswers))
		for k, v := range s.CollectedAnswers {
			clone.CollectedAnswers[k] = append([]int(nil), v...)
		}
	}
	if s.StructuredAnswers != nil {
		clone.StructuredAnswers = make(map[string]int, len(s.StructuredAnswers))
		for k, v := range s.StructuredAnswers {
			clone.StructuredAnswers[k] = v
		}
	}
	return &clone
}

type FindSession struct {
	ID                 *string
	OwnerID            *string
	IsComplete         *bool
	LastActivityBefore *int64
}

type UpdateSession struct {
	ID                   string
	OwnerID              *string
	CurrentInstrument    *string
	CompletedInstruments *[]string
	CollectedAnswers     *map[string][]int
	StructuredAnswers    *map[string]int
	PresentedInstruments *[]string
	Insights             *string
	IsComplete           *bool
	LastActivityTs       *int64
	CompletedTs          *int64
}

type DeleteSession struct {
	ID string
}

// QuestionInstrument splits a structured question id of the form
// "<instrument>_q<k>" into its instrument part. Returns an empty string
// when the id does not follow the convention.
func QuestionInstrument(questionID string) string {
	idx := strings.LastIndex(questionID, "_q")
	if idx <= 0 {
		return ""
	}
	return questionID[:idx]
}

// TopicFromInstrument renders an instrument key as a display topic:
// underscores become spaces and each word is title-cased.
func TopicFromInstrument(instrument string) string {
	words := strings.Split(instrument, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// MergedAnswers folds StructuredAnswers into a copy of CollectedAnswers
// without mutating either view. Structured answers map to the display
// topic of their question id; a value already present under that topic
// is not re-appended, which keeps the merge idempotent.
func (s *Session) MergedAnswers() map[string][]int {
	merged := make(map[string][]int, len(s.CollectedAnswers))
	for topic, answers := range s.CollectedAnswers {
		merged[topic] = append([]int(nil), answers...)
	}

	// Deterministic fold order across the map.
	questionIDs := make([]string, 0, len(s.StructuredAnswers))
	for questionID := range s.StructuredAnswers {
		questionIDs = append(questionIDs, questionID)
	}
	sort.Strings(questionIDs)

	for _, questionID := range questionIDs {
		value := s.StructuredAnswers[questionID]
		instrument := QuestionInstrument(questionID)
		topic := "Unknown"
		if instrument != "" {
			topic = TopicFromInstrument(instrument)
		}
		if containsInt(merged[topic], value) {
			continue
		}
		merged[topic] = append(merged[topic], value)
	}
	return merged
}

func containsInt(values []int, v int) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}

// TotalAnswers counts answers across all instruments.
func (s *Session) TotalAnswers() int {
	total := 0
	for _, answers := range s.CollectedAnswers {
		total += len(answers)
	}
	return total
}

// EncodeField renders one map-valued session field as JSON for storage.
func EncodeField(v any) (string, error) {
	return encodeJSON(v)
}

// encodeJSON and decodeJSON are shared by the db drivers for the
// map-valued session columns.
func encodeJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode session field")
	}
	return string(raw), nil
}

func decodeJSON(raw string, v any) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return errors.Wrap(err, "failed to decode session field")
	}
	return nil
}

// EncodeSessionFields renders the map-valued session fields as JSON for
// storage. Nil maps encode as empty collections.
func EncodeSessionFields(s *Session) (completed, collected, structured, presented string, err error) {
	if completed, err = encodeJSON(orEmptySlice(s.CompletedInstruments)); err != nil {
		return
	}
	if collected, err = encodeJSON(orEmptyAnswers(s.CollectedAnswers)); err != nil {
		return
	}
	if structured, err = encodeJSON(orEmptyInts(s.StructuredAnswers)); err != nil {
		return
	}
	presented, err = encodeJSON(orEmptySlice(s.PresentedInstruments))
	return
}

// DecodeSessionFields populates the map-valued session fields from their
// stored JSON representation.
func DecodeSessionFields(s *Session, completed, collected, structured, presented string) error {
	if err := decodeJSON(completed, &s.CompletedInstruments); err != nil {
		return err
	}
	if err := decodeJSON(collected, &s.CollectedAnswers); err != nil {
		return err
	}
	if err := decodeJSON(structured, &s.StructuredAnswers); err != nil {
		return err
	}
	return decodeJSON(presented, &s.PresentedInstruments)
}

func orEmptySlice(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func orEmptyAnswers(v map[string][]int) map[string][]int {
	if v == nil {
		return map[string][]int{}
	}
	return v
}

func orEmptyInts(v map[string]int) map[string]int {
	if v == nil {
		return map[string]int{}
	}
	return v
}
