package store

type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

type MessageKind string

const (
	// MessageKindChat is genuine conversational text.
	MessageKindChat MessageKind = "CHAT"
	// MessageKindAnswerAck marks the synthetic message generated by the
	// structured-answer flow. The flag is set by the submitting endpoint,
	// never inferred from message content.
	MessageKindAnswerAck MessageKind = "ANSWER_ACK"
	// MessageKindFallback marks an assistant reply produced without the
	// upstream model.
	MessageKindFallback MessageKind = "FALLBACK"
)

// Message is one turn of a session's conversation, immutable once
// written. The ordered sequence per session is the canonical history.
type Message struct {
	ID         int32
	UID        string
	SessionID  string
	Role       MessageRole
	Kind       MessageKind
	Content    string
	Instrument string
	CreatedTs  int64
}

type FindMessage struct {
	ID        *int32
	UID       *string
	SessionID *string
	Role      *MessageRole
}

type DeleteMessage struct {
	ID        *int32
	SessionID *string
}
