// Package insights accumulates free-form signal from the conversation:
// sentiment cues, mentioned conditions, care preferences, urgency hints,
// and treatment goals. Extraction combines a best-effort model pass with
// rule-based patterns; accumulated insights only ever grow.
package insights

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mindgate/intake/plugin/ai"
)

// Sentiment summarizes the conversation's emotional tone.
type Sentiment struct {
	Overall   string   `json:"overall"`
	Intensity float64  `json:"intensity"`
	Keywords  []string `json:"keywords"`
}

// Condition is a mental-health condition the user appears to mention.
type Condition struct {
	Condition  string  `json:"condition"`
	Confidence float64 `json:"confidence"`
	Context    string  `json:"context"`
}

// Preferences captures care-delivery wishes surfaced in conversation.
type Preferences struct {
	TherapyStyle             []string `json:"therapyStyle,omitempty"`
	TherapistCharacteristics []string `json:"therapistCharacteristics,omitempty"`
	SessionFormat            []string `json:"sessionFormat,omitempty"`
	CommunicationStyle       string   `json:"communicationStyle,omitempty"`
}

// Urgency carries the graded urgency level with its triggering phrases.
type Urgency struct {
	Level      string   `json:"level"`
	Indicators []string `json:"indicators"`
}

// Insights is the mergeable accumulator persisted on the session.
type Insights struct {
	Sentiment           Sentiment   `json:"sentiment"`
	MentionedConditions []Condition `json:"mentionedConditions"`
	Preferences         Preferences `json:"preferences"`
	UrgencyIndicators   Urgency     `json:"urgencyIndicators"`
	LanguagePreferences []string    `json:"languagePreferences"`
	PastExperiences     []string    `json:"pastTherapyExperiences"`
	TreatmentGoals      []string    `json:"treatmentGoals"`
	AdditionalNotes     []string    `json:"additionalNotes"`
}

// Empty returns the neutral zero insight set.
func Empty() Insights {
	return Insights{
		Sentiment:         Sentiment{Overall: "neutral"},
		UrgencyIndicators: Urgency{Level: "low"},
	}
}

// Extractor derives insights from conversation history.
type Extractor struct {
	client ai.Client
}

func NewExtractor(client ai.Client) *Extractor {
	return &Extractor{client: client}
}

// Extract analyzes the conversation. The model pass is best effort; when
// it fails, rule-based extraction alone is returned.
func (e *Extractor) Extract(ctx context.Context, history []ai.Message) Insights {
	var parts []string
	for _, msg := range history {
		if msg.Role == "user" && strings.TrimSpace(msg.Content) != "" {
			parts = append(parts, msg.Content)
		}
	}
	userText := strings.Join(parts, " ")
	if strings.TrimSpace(userText) == "" {
		return Empty()
	}

	rules := extractWithRules(userText)
	if e.client == nil {
		return rules
	}
	modelInsights, ok := e.extractWithModel(ctx, history)
	if !ok {
		return rules
	}
	return Merge(modelInsights, rules)
}

const extractionPrompt = `Analyze this mental health conversation and extract structured insights as JSON:

{
  "sentiment": {"overall": "positive|neutral|negative|mixed", "intensity": 0.0, "keywords": []},
  "mentionedConditions": [{"condition": "", "confidence": 0.0, "context": ""}],
  "preferences": {"therapyStyle": [], "therapistCharacteristics": [], "sessionFormat": [], "communicationStyle": ""},
  "urgencyIndicators": {"level": "low|medium|high|critical", "indicators": []},
  "languagePreferences": [],
  "pastTherapyExperiences": [],
  "treatmentGoals": [],
  "additionalNotes": []
}

Only include fields that are clearly present in the conversation. Return valid JSON only.`

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

func (e *Extractor) extractWithModel(ctx context.Context, history []ai.Message) (Insights, bool) {
	messages := make([]ai.Message, 0, len(history)+1)
	systemSeen := false
	for _, msg := range history {
		if msg.Role == "system" && !systemSeen {
			messages = append(messages, ai.SystemPrompt(msg.Content+"\n\n---\n\n"+extractionPrompt))
			systemSeen = true
			continue
		}
		messages = append(messages, msg)
	}
	if !systemSeen {
		messages = append([]ai.Message{ai.SystemPrompt(extractionPrompt)}, messages...)
	}

	response, err := e.client.Generate(ctx, messages, ai.Options{Temperature: 0.2, MaxTokens: 1500})
	if err != nil {
		slog.Warn("insight extraction failed, using rule-based only", "error", err)
		return Insights{}, false
	}

	raw := jsonObjectPattern.FindString(ai.CleanResponse(response))
	if raw == "" {
		slog.Warn("no insight object found in model response")
		return Insights{}, false
	}

	parsed := Empty()
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		slog.Warn("failed to decode insight object", "error", err)
		return Insights{}, false
	}
	return parsed, true
}

var positiveWords = []string{"better", "improved", "good", "happy", "relief", "hope"}
var negativeWords = []string{"bad", "terrible", "awful", "hopeless", "desperate", "suffering"}

var criticalIndicators = []string{"suicidal", "kill myself", "end my life", "harm myself"}
var highIndicators = []string{"emergency", "urgent", "crisis", "can't cope", "breaking down"}

var languageHints = map[string][]string{
	"English": {"english", "speak english"},
	"Tagalog": {"tagalog", "filipino"},
	"Spanish": {"spanish", "español"},
}

func extractWithRules(userText string) Insights {
	lowered := strings.ToLower(userText)
	out := Empty()
	out.Sentiment.Intensity = 0.5

	positive, negative := 0, 0
	for _, w := range positiveWords {
		if strings.Contains(lowered, w) {
			positive++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lowered, w) {
			negative++
		}
	}
	switch {
	case negative > positive*2:
		out.Sentiment.Overall = "negative"
		out.Sentiment.Intensity = minFloat(1, 0.5+float64(negative)*0.1)
	case positive > negative*2:
		out.Sentiment.Overall = "positive"
		out.Sentiment.Intensity = minFloat(1, 0.5+float64(positive)*0.1)
	case positive > 0 && negative > 0:
		out.Sentiment.Overall = "mixed"
	}

	if hits := contained(lowered, criticalIndicators); len(hits) > 0 {
		out.UrgencyIndicators = Urgency{Level: "critical", Indicators: hits}
	} else if hits := contained(lowered, highIndicators); len(hits) > 0 {
		out.UrgencyIndicators = Urgency{Level: "high", Indicators: hits}
	}

	for lang, hints := range languageHints {
		if len(contained(lowered, hints)) > 0 {
			out.LanguagePreferences = append(out.LanguagePreferences, lang)
		}
	}

	if strings.Contains(lowered, "online") || strings.Contains(lowered, "video") {
		out.Preferences.SessionFormat = append(out.Preferences.SessionFormat, "online")
	}
	if strings.Contains(lowered, "in-person") || strings.Contains(lowered, "face to face") {
		out.Preferences.SessionFormat = append(out.Preferences.SessionFormat, "in-person")
	}

	if strings.Contains(lowered, "therapy before") || strings.Contains(lowered, "counselor") {
		out.PastExperiences = append(out.PastExperiences, "Has previous therapy experience")
	}

	goalHints := []string{"want to", "goal", "hope to", "would like to", "need to"}
	for _, sentence := range splitSentences(userText) {
		if len(contained(strings.ToLower(sentence), goalHints)) > 0 {
			out.TreatmentGoals = append(out.TreatmentGoals, strings.TrimSpace(sentence))
		}
	}

	return out
}

// Merge folds next into prior without losing accumulated signal: lists
// union, urgency only escalates, and a neutral sentiment never replaces
// a committed one.
func Merge(prior, next Insights) Insights {
	out := prior

	if next.Sentiment.Overall != "" && next.Sentiment.Overall != "neutral" {
		if out.Sentiment.Overall == "neutral" || out.Sentiment.Overall == "" || next.Sentiment.Intensity > out.Sentiment.Intensity {
			out.Sentiment.Overall = next.Sentiment.Overall
			out.Sentiment.Intensity = next.Sentiment.Intensity
		}
	}
	out.Sentiment.Keywords = unionStrings(out.Sentiment.Keywords, next.Sentiment.Keywords)

	out.MentionedConditions = unionConditions(out.MentionedConditions, next.MentionedConditions)

	out.Preferences.TherapyStyle = unionStrings(out.Preferences.TherapyStyle, next.Preferences.TherapyStyle)
	out.Preferences.TherapistCharacteristics = unionStrings(out.Preferences.TherapistCharacteristics, next.Preferences.TherapistCharacteristics)
	out.Preferences.SessionFormat = unionStrings(out.Preferences.SessionFormat, next.Preferences.SessionFormat)
	if out.Preferences.CommunicationStyle == "" {
		out.Preferences.CommunicationStyle = next.Preferences.CommunicationStyle
	}

	if urgencyRank(next.UrgencyIndicators.Level) > urgencyRank(out.UrgencyIndicators.Level) {
		out.UrgencyIndicators.Level = next.UrgencyIndicators.Level
	}
	out.UrgencyIndicators.Indicators = unionStrings(out.UrgencyIndicators.Indicators, next.UrgencyIndicators.Indicators)

	out.LanguagePreferences = unionStrings(out.LanguagePreferences, next.LanguagePreferences)
	out.PastExperiences = unionStrings(out.PastExperiences, next.PastExperiences)
	out.TreatmentGoals = unionStrings(out.TreatmentGoals, next.TreatmentGoals)
	out.AdditionalNotes = unionStrings(out.AdditionalNotes, next.AdditionalNotes)

	return out
}

func urgencyRank(level string) int {
	switch level {
	case "critical":
		return 3
	case "high":
		return 2
	case "medium":
		return 1
	default:
		return 0
	}
}

func contained(lowered string, keywords []string) []string {
	var hits []string
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
}

func unionStrings(prior, next []string) []string {
	if len(next) == 0 {
		return prior
	}
	seen := make(map[string]bool, len(prior))
	out := prior
	for _, s := range prior {
		seen[s] = true
	}
	for _, s := range next {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func unionConditions(prior, next []Condition) []Condition {
	if len(next) == 0 {
		return prior
	}
	seen := make(map[string]bool, len(prior))
	out := prior
	for _, c := range prior {
		seen[c.Condition] = true
	}
	for _, c := range next {
		if c.Condition != "" && !seen[c.Condition] {
			seen[c.Condition] = true
			out = append(out, c)
		}
	}
	return out
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
