// Package fallback produces safe replies when the upstream model is
// unavailable. The user-visible text never exposes failure internals;
// the operator note is the only place the failure class surfaces.
package fallback

import (
	"strings"

	"github.com/mindgate/intake/plugin/ai"
)

const greetingMaxWords = 6

var greetings = []string{
	"hi", "hello", "hey", "good morning", "good afternoon", "good evening", "howdy", "yo",
}

const opener = "Hi, I'm here to help you with a brief mental health check-in. " +
	"To get started, could you tell me a bit about how you've been feeling lately? " +
	"For example, how has your mood, sleep, or energy been over the past couple of weeks?"

const acknowledgement = "Thank you for sharing that with me. I want to make sure I understand your experience properly.\n\n" +
	"While I gather my thoughts, it would help to know a few things:\n" +
	"- How long have you been feeling this way?\n" +
	"- Are there particular situations or times of day when it feels worse?\n" +
	"- Has it affected your work, relationships, or daily routines?\n" +
	"- On a scale of 0 to 4, how intense would you say it feels right now?"

// operatorNotes are appended as a diagnostic hint per failure class. They
// describe the class only, never credentials, endpoints, or raw upstream
// error text.
var operatorNotes = map[ai.FailureClass]string{
	ai.FailureConfig:    "(note for staff: assistant configuration issue, check model settings)",
	ai.FailureAuth:      "(note for staff: assistant authentication issue, check provider credentials)",
	ai.FailureRateLimit: "(note for staff: assistant is rate limited, responses may be delayed)",
	ai.FailureServer:    "(note for staff: assistant provider reported a server error)",
	ai.FailureNetwork:   "(note for staff: assistant provider is unreachable)",
	ai.FailureUnknown:   "(note for staff: assistant is temporarily degraded)",
}

// Respond builds a reply for the given failure class. Short greeting-like
// input gets the standard intake opener so the outage stays invisible;
// longer input gets an empathetic acknowledgement with generic probes and
// an operator diagnostic note.
func Respond(lastUserText string, class ai.FailureClass) string {
	if isGreeting(lastUserText) {
		return opener
	}

	note, ok := operatorNotes[class]
	if !ok {
		note = operatorNotes[ai.FailureUnknown]
	}
	return acknowledgement + "\n\n" + note
}

func isGreeting(text string) bool {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return true
	}
	if len(strings.Fields(lowered)) > greetingMaxWords {
		return false
	}
	trimmed := strings.Trim(lowered, ".!?, ")
	for _, g := range greetings {
		if trimmed == g || strings.HasPrefix(trimmed, g+" ") {
			return true
		}
	}
	return false
}
