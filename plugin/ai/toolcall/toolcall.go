// Package toolcall parses the embedded rating-question directive out of
// model free-text replies. The protocol is deliberately fail-open: any
// malformed directive is treated as plain conversation.
package toolcall

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// Marker prefixes the single-line JSON directive inside an assistant reply.
const Marker = "TOOL_CALL:"

// DirectiveAskQuestion is the only directive the protocol recognizes.
const DirectiveAskQuestion = "ask_question"

// Option is one enumerated answer for a rating question.
type Option struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

// ToolCall is a structured "ask a rating question" directive extracted
// from a single assistant message. It is derived per message and never
// persisted.
type ToolCall struct {
	Name       string   `json:"name"`
	QuestionID string   `json:"questionId"`
	Topic      string   `json:"topic"`
	Question   string   `json:"question"`
	Options    []Option `json:"options"`
}

// Result is the outcome of parsing a raw model reply.
type Result struct {
	// ConversationalText is the reply with the directive line removed,
	// or the original text when no valid directive was found.
	ConversationalText string
	// ToolCall is nil unless exactly one well-formed directive was found.
	ToolCall *ToolCall
}

// Parse splits a raw model reply into conversational text and an optional
// tool call. At most one directive per reply is honored; a second marker
// line is left in place as plain text.
func Parse(raw string) Result {
	idx := strings.Index(raw, Marker)
	if idx < 0 {
		return Result{ConversationalText: raw}
	}

	// The directive payload runs to the end of the marker line.
	payloadStart := idx + len(Marker)
	payloadEnd := len(raw)
	if nl := strings.IndexByte(raw[payloadStart:], '\n'); nl >= 0 {
		payloadEnd = payloadStart + nl
	}
	payload := strings.TrimSpace(raw[payloadStart:payloadEnd])

	call, ok := decode(payload)
	if !ok {
		// Fail open: the caller falls back to free-text extraction.
		return Result{ConversationalText: raw}
	}

	text := raw[:idx] + raw[payloadEnd:]
	return Result{
		ConversationalText: strings.TrimSpace(text),
		ToolCall:           call,
	}
}

func decode(payload string) (*ToolCall, bool) {
	var call ToolCall
	if err := json.Unmarshal([]byte(payload), &call); err != nil {
		slog.Debug("malformed tool call payload ignored", "error", err)
		return nil, false
	}

	if call.Name != DirectiveAskQuestion {
		return nil, false
	}
	if strings.TrimSpace(call.QuestionID) == "" {
		return nil, false
	}
	if strings.TrimSpace(call.Question) == "" {
		return nil, false
	}
	if len(call.Options) == 0 {
		return nil, false
	}
	for _, opt := range call.Options {
		if strings.TrimSpace(opt.Label) == "" {
			return nil, false
		}
	}

	return &call, true
}

// PromptInstructions returns the system-prompt fragment teaching the model
// how to emit the directive for the given instrument.
func PromptInstructions(instrument string) string {
	var b strings.Builder
	b.WriteString("When you need a rating answer, append exactly one line of the form:\n")
	b.WriteString(Marker)
	b.WriteString(` {"name":"ask_question","questionId":"<instrument>_q<n>","topic":"`)
	b.WriteString(instrument)
	b.WriteString(`","question":"<the question>","options":[{"value":0,"label":"Not at all"},{"value":1,"label":"Several days"},{"value":2,"label":"More than half the days"},{"value":3,"label":"Nearly every day"}]}`)
	b.WriteString("\nKeep the rest of your reply conversational. Never emit more than one directive per reply.")
	return b.String()
}
