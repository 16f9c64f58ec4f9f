// Package selector decides which screening instrument to probe next.
// Suggestions combine model-backed conversation analysis with keyword
// matching; the model path is best effort and rate limited, keyword
// matching always runs.
package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/time/rate"

	"github.com/mindgate/intake/plugin/ai"
)

// Level grades how urgently the conversation needs attention.
type Level string

const (
	UrgencyLow      Level = "low"
	UrgencyMedium   Level = "medium"
	UrgencyHigh     Level = "high"
	UrgencyCritical Level = "critical"
)

// Suggestion ranks one instrument for the current conversation.
type Suggestion struct {
	Questionnaire string  `json:"questionnaire"`
	Priority      int     `json:"priority"`
	Reasoning     string  `json:"reasoning"`
	Confidence    float64 `json:"confidence"`
}

// Result is a full selection outcome: ranked suggestions, the derived
// probe order, and an urgency grade.
type Result struct {
	Suggestions      []Suggestion `json:"suggestedQuestionnaires"`
	RecommendedOrder []string     `json:"recommendedOrder"`
	Urgency          Level        `json:"urgencyLevel"`
}

// Selector produces instrument suggestions. The zero value is not
// usable; construct with NewSelector.
type Selector struct {
	client  ai.Client
	limiter *rate.Limiter
}

// NewSelector builds a Selector. suggestionsPerMinute bounds how often
// the model-backed analysis may run; keyword matching is unaffected.
func NewSelector(client ai.Client, suggestionsPerMinute float64) *Selector {
	if suggestionsPerMinute <= 0 {
		suggestionsPerMinute = 6
	}
	return &Selector{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(suggestionsPerMinute/60), 1),
	}
}

// Instruments returns the known instrument names in deterministic order.
func Instruments() []string {
	names := make([]string, 0, len(conditionKeywords))
	for name := range conditionKeywords {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Next returns the first recommended instrument not yet completed, or
// the empty string when none remain.
func Next(completed []string, result Result) string {
	done := make(map[string]bool, len(completed))
	for _, name := range completed {
		done[name] = true
	}
	for _, name := range result.RecommendedOrder {
		if !done[name] {
			return name
		}
	}
	return ""
}

// Suggest analyzes the conversation and returns ranked instrument
// suggestions. Model failures degrade to keyword matching alone and are
// never returned as errors.
func (s *Selector) Suggest(ctx context.Context, history []ai.Message) Result {
	var parts []string
	for _, msg := range history {
		if msg.Role == "user" && strings.TrimSpace(msg.Content) != "" {
			parts = append(parts, msg.Content)
		}
	}
	userText := strings.Join(parts, " ")
	if strings.TrimSpace(userText) == "" {
		return Defaults()
	}

	var aiSuggestions []Suggestion
	if s.client != nil && s.limiter.Allow() {
		aiSuggestions = s.analyze(ctx, userText, history)
	}
	keywordMatches := matchKeywords(userText)
	suggestions := combine(aiSuggestions, keywordMatches)

	urgency := determineUrgency(userText, suggestions)

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Priority != suggestions[j].Priority {
			return suggestions[i].Priority > suggestions[j].Priority
		}
		return suggestions[i].Questionnaire < suggestions[j].Questionnaire
	})

	order := make([]string, 0, len(suggestions))
	for _, sg := range suggestions {
		order = append(order, sg.Questionnaire)
	}
	return Result{Suggestions: suggestions, RecommendedOrder: order, Urgency: urgency}
}

// Defaults is the selection used before any user input exists: common
// starting instruments in a fixed order.
func Defaults() Result {
	suggestions := []Suggestion{
		{Questionnaire: "Depression", Priority: 5, Reasoning: "Common starting point for mental health assessment", Confidence: 0.3},
		{Questionnaire: "Anxiety", Priority: 5, Reasoning: "Common starting point for mental health assessment", Confidence: 0.3},
		{Questionnaire: "Stress", Priority: 4, Reasoning: "General assessment starting point", Confidence: 0.2},
	}
	order := make([]string, 0, len(suggestions))
	for _, sg := range suggestions {
		order = append(order, sg.Questionnaire)
	}
	return Result{Suggestions: suggestions, RecommendedOrder: order, Urgency: UrgencyLow}
}

var jsonArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

func (s *Selector) analyze(ctx context.Context, userText string, history []ai.Message) []Suggestion {
	prompt := analysisPrompt(userText)

	messages := make([]ai.Message, 0, len(history)+1)
	systemSeen := false
	for _, msg := range history {
		if msg.Role == "system" && !systemSeen {
			messages = append(messages, ai.SystemPrompt(msg.Content+"\n\n---\n\n"+prompt))
			systemSeen = true
			continue
		}
		messages = append(messages, msg)
	}
	if !systemSeen {
		messages = append([]ai.Message{ai.SystemPrompt(prompt)}, messages...)
	}

	response, err := s.client.Generate(ctx, messages, ai.Options{Temperature: 0.3, MaxTokens: 1000})
	if err != nil {
		slog.Warn("suggestion analysis failed, falling back to keyword matching", "error", err)
		return nil
	}

	raw := jsonArrayPattern.FindString(ai.CleanResponse(response))
	if raw == "" {
		slog.Warn("no suggestion array found in model response")
		return nil
	}

	var parsed []Suggestion
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		slog.Warn("failed to decode suggestion array", "error", err)
		return nil
	}

	valid := parsed[:0]
	for _, item := range parsed {
		if strings.TrimSpace(item.Questionnaire) == "" {
			continue
		}
		item.Priority = clampInt(item.Priority, 1, 10, 5)
		item.Confidence = clampFloat(item.Confidence, 0, 1, 0.5)
		valid = append(valid, item)
	}
	return valid
}

func analysisPrompt(userText string) string {
	return fmt.Sprintf(`Analyze the following mental health conversation and suggest which questionnaires from this list are most relevant:

Available questionnaires: %s

User's messages: "%s"

CRITICAL: Be PROACTIVE - if the user mentions ANY symptoms, feelings, or concerns that relate to a questionnaire, suggest it immediately. Don't wait for multiple mentions.

For each relevant questionnaire, provide the exact questionnaire name, a priority score (1-10), brief reasoning, and a confidence level (0.0-1.0).

Format your response as a JSON array:
[{"questionnaire": "Anxiety", "priority": 9, "reasoning": "User mentions anxiety and insomnia", "confidence": 0.85}]

Be generous with suggestions. Only return an empty array if there are truly no relevant questionnaires.`,
		strings.Join(Instruments(), ", "), userText)
}

func matchKeywords(userText string) []Suggestion {
	lowered := strings.ToLower(userText)

	var matches []Suggestion
	for _, questionnaire := range Instruments() {
		var matched []string
		for _, keyword := range conditionKeywords[questionnaire] {
			if strings.Contains(lowered, keyword) {
				matched = append(matched, keyword)
			}
		}
		if len(matched) == 0 {
			continue
		}
		preview := matched
		if len(preview) > 3 {
			preview = preview[:3]
		}
		matches = append(matches, Suggestion{
			Questionnaire: questionnaire,
			Priority:      clampInt(5+len(matched), 1, 10, 5),
			Reasoning:     "Mentioned keywords: " + strings.Join(preview, ", "),
			Confidence:    clampFloat(0.5+float64(len(matched))*0.1, 0, 1, 0.5),
		})
	}
	return matches
}

// combine merges model suggestions with keyword matches, keeping the
// stronger priority and confidence when both mention an instrument.
func combine(aiSuggestions, keywordMatches []Suggestion) []Suggestion {
	byName := make(map[string]Suggestion, len(aiSuggestions)+len(keywordMatches))
	for _, sg := range aiSuggestions {
		byName[sg.Questionnaire] = sg
	}
	for _, match := range keywordMatches {
		existing, ok := byName[match.Questionnaire]
		if !ok {
			byName[match.Questionnaire] = match
			continue
		}
		merged := Suggestion{
			Questionnaire: match.Questionnaire,
			Priority:      existing.Priority,
			Reasoning:     existing.Reasoning + ". " + match.Reasoning,
			Confidence:    existing.Confidence,
		}
		if match.Priority > merged.Priority {
			merged.Priority = match.Priority
		}
		if match.Confidence > merged.Confidence {
			merged.Confidence = match.Confidence
		}
		byName[match.Questionnaire] = merged
	}

	combined := make([]Suggestion, 0, len(byName))
	for _, sg := range byName {
		combined = append(combined, sg)
	}
	return combined
}

func determineUrgency(userText string, suggestions []Suggestion) Level {
	lowered := strings.ToLower(userText)

	for _, kw := range criticalKeywords {
		if strings.Contains(lowered, kw) {
			return UrgencyCritical
		}
	}
	for _, kw := range highUrgencyKeywords {
		if strings.Contains(lowered, kw) {
			return UrgencyHigh
		}
	}

	highPriority := 0
	for _, sg := range suggestions {
		if sg.Priority >= 8 {
			highPriority++
		}
	}
	if highPriority >= 2 {
		return UrgencyHigh
	}

	if len(suggestions) > 0 || len(lowered) > 100 {
		return UrgencyMedium
	}
	return UrgencyLow
}

func clampInt(v, lo, hi, fallback int) int {
	if v == 0 {
		return fallback
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
