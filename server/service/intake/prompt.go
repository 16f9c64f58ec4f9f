package intake

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mindgate/intake/plugin/ai"
	"github.com/mindgate/intake/plugin/ai/toolcall"
	"github.com/mindgate/intake/server/service/scoring"
	"github.com/mindgate/intake/store"
)

const basePrompt = `You are a warm, professional mental health intake assistant. You help people share how they have been feeling through natural conversation while gradually collecting standardized screening answers.

Guidelines:
- Be empathetic and conversational. Never sound like a form.
- Ask one thing at a time and acknowledge what the user shares.
- When a rating is needed, use the structured question directive.
- Never diagnose. Never give medical advice. If the user describes intent to harm themselves or others, acknowledge it with care and encourage them to contact a crisis line or emergency services.`

// buildSystemPrompt assembles the outbound system instructions: base
// context, active-instrument scoring context, and a summary of any
// just-submitted structured answers so the model can acknowledge them
// without re-asking. The active instrument is passed separately because
// a fresh session's choice is not persisted until the turn commits.
func buildSystemPrompt(session *store.Session, currentInstrument string, justSubmitted map[string]int) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if currentInstrument != "" {
		b.WriteString("\n\n")
		b.WriteString(instrumentContext(currentInstrument, session.CollectedAnswers[currentInstrument]))
		b.WriteString("\n\n")
		b.WriteString(toolcall.PromptInstructions(currentInstrument))
	}

	if len(justSubmitted) > 0 {
		b.WriteString("\n\n")
		b.WriteString(structuredSummary(justSubmitted))
	}

	return b.String()
}

func instrumentContext(name string, collected []int) string {
	expected := scoring.ExpectedAnswerCount(name)
	var b strings.Builder
	fmt.Fprintf(&b, "Current focus: the %q screening instrument.", name)
	if expected > 0 {
		fmt.Fprintf(&b, " It has %d rating questions; %d answered so far.", expected, len(collected))
	}
	if inst, ok := scoring.Lookup(name); ok {
		fmt.Fprintf(&b, " Ratings use the %s scale.", inst.Code)
	}
	return b.String()
}

func structuredSummary(justSubmitted map[string]int) string {
	ids := make([]string, 0, len(justSubmitted))
	for id := range justSubmitted {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	b.WriteString("The user just submitted these structured answers; acknowledge them briefly and do not re-ask:")
	for _, id := range ids {
		fmt.Fprintf(&b, "\n- %s: %d", id, justSubmitted[id])
	}
	return b.String()
}

// historyToMessages converts the persisted conversation into model
// messages, guaranteeing exactly one leading system message. Stored
// system messages beyond the first are dropped.
func historyToMessages(systemPrompt string, history []*store.Message) []ai.Message {
	messages := make([]ai.Message, 0, len(history)+1)
	messages = append(messages, ai.SystemPrompt(systemPrompt))
	for _, m := range history {
		switch m.Role {
		case store.MessageRoleUser:
			messages = append(messages, ai.UserMessage(m.Content))
		case store.MessageRoleAssistant:
			messages = append(messages, ai.AssistantMessage(m.Content))
		}
	}
	return messages
}
