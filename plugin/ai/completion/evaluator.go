// Package completion decides when an intake conversation has gathered
// enough signal to stop. The full evaluator combines four independent
// heuristics with explicit precedence so the outcome stays auditable;
// a cheaper coarse gate serves the in-loop path.
package completion

import (
	"strings"
	"time"
)

const (
	// DefaultMinRequiredAnswers is the answer-vector floor used when a
	// caller does not supply instrument-specific totals.
	DefaultMinRequiredAnswers = 150

	sufficiencyThreshold  = 0.70
	forceEndSufficiency   = 0.5
	reasonableDuration    = 5 * time.Minute
	reasonableExchanges   = 8
	tooLongDuration       = 30 * time.Minute
	tooLongExchanges      = 50
	minTopicBreadth       = 3
	maxConfidence         = 0.95
	forceEndConfidence    = 0.7
	userSignalConfidence  = 0.85
	userSignalWindow      = 3
	shortAckMaxWords      = 4
	fullSignalStrength    = 1.0
	partialSignalStrength = 0.5
)

// UserMessage is the slice of history the evaluator inspects: only user
// turns, in conversation order.
type UserMessage struct {
	Text      string
	CreatedAt time.Time
}

// Verdict is the outcome of a full evaluation.
type Verdict struct {
	ShouldEnd  bool     `json:"shouldEnd"`
	Reason     string   `json:"reason"`
	Confidence float64  `json:"confidence"`
	Topics     []string `json:"topics"`
}

// Evaluator holds the tunables for the full completion check.
type Evaluator struct {
	MinRequiredAnswers int
	Now                func() time.Time
}

// NewEvaluator returns an Evaluator with the default answer floor.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		MinRequiredAnswers: DefaultMinRequiredAnswers,
		Now:                time.Now,
	}
}

var completionPhrases = []string{
	"i'm done",
	"im done",
	"that's all",
	"thats all",
	"that is all",
	"nothing else",
	"no more questions",
	"finish",
	"we're done",
	"can we stop",
	"i want to stop",
	"wrap up",
	"that's everything",
}

var shortAcks = []string{
	"ok", "okay", "sure", "yes", "yeah", "yep", "fine", "alright", "thanks", "thank you",
}

// Evaluate runs the four-signal completion heuristic. History carries
// only user turns; collected maps instrument name to its answers so far.
func (e *Evaluator) Evaluate(history []UserMessage, collected map[string][]int, completedInstruments []string, startedAt time.Time) Verdict {
	topics := touchedTopics(collected, completedInstruments)

	total := 0
	for _, answers := range collected {
		total += len(answers)
	}
	minRequired := e.MinRequiredAnswers
	if minRequired <= 0 {
		minRequired = DefaultMinRequiredAnswers
	}
	sufficiency := float64(total) / float64(minRequired)
	if sufficiency > 1 {
		sufficiency = 1
	}
	sufficient := sufficiency >= sufficiencyThreshold

	signal := e.userSignal(history)
	strongSignal := signal >= fullSignalStrength

	duration := e.Now().Sub(startedAt)
	exchanges := len(history)
	reasonable := duration >= reasonableDuration && exchanges >= reasonableExchanges
	tooLong := duration > tooLongDuration || exchanges > tooLongExchanges

	breadth := len(topics) >= minTopicBreadth

	switch {
	case sufficient && breadth && (strongSignal || reasonable):
		conf := sufficiency*0.5 + signal*0.45
		if conf > maxConfidence {
			conf = maxConfidence
		}
		return Verdict{ShouldEnd: true, Reason: "sufficient data across topics", Confidence: conf, Topics: topics}
	case tooLong && sufficiency > forceEndSufficiency:
		return Verdict{ShouldEnd: true, Reason: "session exceeded time or exchange limits", Confidence: forceEndConfidence, Topics: topics}
	case strongSignal && sufficient:
		return Verdict{ShouldEnd: true, Reason: "user indicated completion", Confidence: userSignalConfidence, Topics: topics}
	default:
		return Verdict{ShouldEnd: false, Reason: "continuing assessment", Confidence: sufficiency * 0.5, Topics: topics}
	}
}

// ShouldComplete is the coarse in-loop gate: total answers against a
// fixed floor. It is intentionally more permissive than Evaluate and the
// two can disagree; the full evaluator is reserved for explicit
// completion queries.
func (e *Evaluator) ShouldComplete(collected map[string][]int) bool {
	total := 0
	for _, answers := range collected {
		total += len(answers)
	}
	minRequired := e.MinRequiredAnswers
	if minRequired <= 0 {
		minRequired = DefaultMinRequiredAnswers
	}
	return total >= minRequired
}

// userSignal scans the last few user turns for completion intent.
// Explicit phrases get full credit, short generic acknowledgements
// partial credit.
func (e *Evaluator) userSignal(history []UserMessage) float64 {
	start := len(history) - userSignalWindow
	if start < 0 {
		start = 0
	}
	best := 0.0
	for _, msg := range history[start:] {
		lowered := strings.ToLower(strings.TrimSpace(msg.Text))
		if lowered == "" {
			continue
		}
		for _, p := range completionPhrases {
			if strings.Contains(lowered, p) {
				return fullSignalStrength
			}
		}
		if len(strings.Fields(lowered)) <= shortAckMaxWords {
			trimmed := strings.Trim(lowered, ".!?, ")
			for _, ack := range shortAcks {
				if trimmed == ack {
					best = partialSignalStrength
				}
			}
		}
	}
	return best
}

func touchedTopics(collected map[string][]int, completed []string) []string {
	seen := make(map[string]bool)
	topics := make([]string, 0, len(collected)+len(completed))
	for _, name := range completed {
		if !seen[name] {
			seen[name] = true
			topics = append(topics, name)
		}
	}
	for name, answers := range collected {
		if len(answers) > 0 && !seen[name] {
			seen[name] = true
			topics = append(topics, name)
		}
	}
	return topics
}
