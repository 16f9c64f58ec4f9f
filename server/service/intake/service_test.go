package intake

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mindgate/intake/plugin/ai"
	"github.com/mindgate/intake/plugin/ai/selector"
	"github.com/mindgate/intake/store"
)

// scriptedClient answers enrichment calls with empty JSON and chat calls
// with a fixed reply (or error), so tests stay deterministic even though
// insight extraction and suggestion analysis run concurrently.
type scriptedClient struct {
	mu        sync.Mutex
	reply     string
	err       error
	chatCalls [][]ai.Message
}

func (c *scriptedClient) Generate(_ context.Context, messages []ai.Message, _ ai.Options) (string, error) {
	sys := ""
	if len(messages) > 0 && messages[0].Role == "system" {
		sys = messages[0].Content
	}
	switch {
	case strings.Contains(sys, "extract structured insights"):
		return "{}", nil
	case strings.Contains(sys, "suggest which questionnaires"):
		return "[]", nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make([]ai.Message, len(messages))
	copy(copied, messages)
	c.chatCalls = append(c.chatCalls, copied)
	if c.err != nil {
		return "", ai.Classify(c.err)
	}
	return c.reply, nil
}

func (c *scriptedClient) lastChatSystem() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.chatCalls) == 0 {
		return ""
	}
	last := c.chatCalls[len(c.chatCalls)-1]
	if len(last) == 0 || last[0].Role != "system" {
		return ""
	}
	return last[0].Content
}

func newTestService(t *testing.T, client ai.Client) (*Service, *memStore) {
	t.Helper()
	ms := newMemStore()
	return NewService(ms, client, nil), ms
}

func mutateSession(ms *memStore, id string, fn func(*store.Session)) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	fn(ms.sessions[id])
}

func storedSession(ms *memStore, id string) *store.Session {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	s, ok := ms.sessions[id]
	if !ok {
		return nil
	}
	return s.Clone()
}

func sessionMessages(ms *memStore, id string) []*store.Message {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var list []*store.Message
	for _, m := range ms.messages {
		if m.SessionID == id {
			copied := *m
			list = append(list, &copied)
		}
	}
	return list
}

func TestStartSessionSeedsSystemMessage(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, &scriptedClient{reply: "ok"})

	session, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)
	require.Nil(t, session.OwnerID)
	require.NotZero(t, session.StartedTs)

	msgs := sessionMessages(ms, session.ID)
	require.Len(t, msgs, 1)
	require.Equal(t, store.MessageRoleSystem, msgs[0].Role)
	require.Contains(t, msgs[0].Content, "intake assistant")
}

func TestSendMessageUnknownSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &scriptedClient{reply: "ok"})

	_, err := svc.SendMessage(ctx, "no-such-session", nil, "hello")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestOwnershipChecks(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &scriptedClient{reply: "ok"})

	owner := "user-1"
	other := "user-2"
	owned, err := svc.StartSession(ctx, &owner)
	require.NoError(t, err)
	anonymous, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)

	_, err = svc.GetSession(ctx, owned.ID, nil)
	require.ErrorIs(t, err, ErrOwnershipMismatch)

	_, err = svc.GetSession(ctx, owned.ID, &other)
	require.ErrorIs(t, err, ErrOwnershipMismatch)

	_, err = svc.GetSession(ctx, anonymous.ID, &owner)
	require.ErrorIs(t, err, ErrOwnershipMismatch)

	_, err = svc.GetSession(ctx, owned.ID, &owner)
	require.NoError(t, err)
	_, err = svc.GetSession(ctx, anonymous.ID, nil)
	require.NoError(t, err)
}

func TestSendMessageCompletedSessionIsNoOp(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, &scriptedClient{reply: "ok"})

	session, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)
	mutateSession(ms, session.ID, func(s *store.Session) {
		s.IsComplete = true
		s.LastActivityTs = 12345
	})

	resp, err := svc.SendMessage(ctx, session.ID, nil, "one more thing")
	require.NoError(t, err)
	require.True(t, resp.IsComplete)
	require.Equal(t, alreadyCompleteReply, resp.Reply)

	// Nothing may change: no new messages, activity timestamp untouched.
	require.Len(t, sessionMessages(ms, session.ID), 1)
	require.Equal(t, int64(12345), storedSession(ms, session.ID).LastActivityTs)
}

func TestSendMessageParsesToolCall(t *testing.T) {
	ctx := context.Background()
	client := &scriptedClient{reply: "Thanks for sharing that.\n" +
		`TOOL_CALL: {"name":"ask_question","questionId":"depression_q1","topic":"Depression","question":"Little interest or pleasure in doing things?","options":[{"value":0,"label":"Not at all"},{"value":3,"label":"Nearly every day"}]}`}
	svc, ms := newTestService(t, client)

	session, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)

	resp, err := svc.SendMessage(ctx, session.ID, nil, "hello there")
	require.NoError(t, err)
	require.Equal(t, "Thanks for sharing that.", resp.Reply)
	require.NotNil(t, resp.ToolCall)
	require.Equal(t, "depression_q1", resp.ToolCall.QuestionID)
	require.Equal(t, "Depression", resp.ToolCall.Topic)

	// With no signal in the conversation the default probe order applies.
	require.Equal(t, "Depression", resp.CurrentInstrument)
	stored := storedSession(ms, session.ID)
	require.Equal(t, "Depression", stored.CurrentInstrument)
	require.Contains(t, stored.PresentedInstruments, "Depression")

	// The directive never reaches the persisted conversation.
	msgs := sessionMessages(ms, session.ID)
	require.Len(t, msgs, 3)
	assistant := msgs[2]
	require.Equal(t, store.MessageRoleAssistant, assistant.Role)
	require.Equal(t, "Thanks for sharing that.", assistant.Content)
	require.NotContains(t, assistant.Content, "TOOL_CALL:")
}

func TestSendMessageExtractsFreeTextAnswer(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, &scriptedClient{reply: "I hear you."})

	session, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)
	mutateSession(ms, session.ID, func(s *store.Session) {
		s.CurrentInstrument = "Anxiety"
	})

	resp, err := svc.SendMessage(ctx, session.ID, nil, "nearly every day, honestly")
	require.NoError(t, err)
	require.Equal(t, "Anxiety", resp.CurrentInstrument)
	require.Equal(t, []int{3}, storedSession(ms, session.ID).CollectedAnswers["Anxiety"])
}

func TestInstrumentCompletionAdvances(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, &scriptedClient{reply: "Noted."})

	session, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)
	mutateSession(ms, session.ID, func(s *store.Session) {
		s.CurrentInstrument = "Anxiety"
		s.CollectedAnswers["Anxiety"] = []int{1, 1, 1, 1, 1, 1}
	})

	resp, err := svc.SendMessage(ctx, session.ID, nil, "3")
	require.NoError(t, err)

	stored := storedSession(ms, session.ID)
	require.Len(t, stored.CollectedAnswers["Anxiety"], 7)
	require.Equal(t, []string{"Anxiety"}, stored.CompletedInstruments)
	require.Equal(t, "Depression", resp.CurrentInstrument)
	require.Equal(t, "Depression", stored.CurrentInstrument)
}

func TestExtractionStopsAtInstrumentCeiling(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, &scriptedClient{reply: "Noted."})

	session, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)
	mutateSession(ms, session.ID, func(s *store.Session) {
		s.CurrentInstrument = "Anxiety"
		s.CollectedAnswers["Anxiety"] = []int{2, 2, 2, 2, 2, 2, 2}
	})

	_, err = svc.SendMessage(ctx, session.ID, nil, "2")
	require.NoError(t, err)

	stored := storedSession(ms, session.ID)
	require.Len(t, stored.CollectedAnswers["Anxiety"], 7)
	require.Contains(t, stored.CompletedInstruments, "Anxiety")
}

func TestPhobiaInstrumentCompletesAndAdvances(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, &scriptedClient{reply: "Noted."})

	session, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)
	mutateSession(ms, session.ID, func(s *store.Session) {
		s.CurrentInstrument = "Phobia"
		s.CollectedAnswers["Phobia"] = []int{3, 3, 3, 3, 3, 3, 3, 3, 3}
	})

	resp, err := svc.SendMessage(ctx, session.ID, nil, "3")
	require.NoError(t, err)

	stored := storedSession(ms, session.ID)
	require.Len(t, stored.CollectedAnswers["Phobia"], 10)
	require.Contains(t, stored.CompletedInstruments, "Phobia")
	require.NotEqual(t, "Phobia", resp.CurrentInstrument)
	require.NotEmpty(t, resp.CurrentInstrument)
}

func TestFallbackOnModelFailure(t *testing.T) {
	ctx := context.Background()
	client := &scriptedClient{err: &ai.ClassifiedError{Class: ai.FailureRateLimit}}
	svc, ms := newTestService(t, client)

	session, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)
	mutateSession(ms, session.ID, func(s *store.Session) {
		s.CurrentInstrument = "Anxiety"
		answers := make([]int, 160)
		s.CollectedAnswers["Stress"] = answers
	})

	resp, err := svc.SendMessage(ctx, session.ID, nil, "I have been feeling exhausted and on edge for months now")
	require.NoError(t, err)
	require.True(t, resp.IsFallback)
	require.Contains(t, resp.Reply, "rate limited")
	require.NotContains(t, strings.ToLower(resp.Reply), "api key")

	// A fallback turn never completes the session, even past the answer
	// floor.
	require.False(t, resp.IsComplete)
	require.False(t, storedSession(ms, session.ID).IsComplete)

	msgs := sessionMessages(ms, session.ID)
	assistant := msgs[len(msgs)-1]
	require.Equal(t, store.MessageRoleAssistant, assistant.Role)
	require.Equal(t, store.MessageKindFallback, assistant.Kind)
}

func TestFallbackGreetingGetsOpener(t *testing.T) {
	ctx := context.Background()
	client := &scriptedClient{err: &ai.ClassifiedError{Class: ai.FailureServer}}
	svc, _ := newTestService(t, client)

	session, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)

	resp, err := svc.SendMessage(ctx, session.ID, nil, "hi")
	require.NoError(t, err)
	require.True(t, resp.IsFallback)
	require.Contains(t, resp.Reply, "check-in")
	require.NotContains(t, resp.Reply, "note for staff")
}

func TestSubmitStructuredAnswer(t *testing.T) {
	ctx := context.Background()
	client := &scriptedClient{reply: "Got it, thank you."}
	svc, ms := newTestService(t, client)

	session, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)

	resp, err := svc.SubmitStructuredAnswer(ctx, session.ID, nil, "anxiety_q2", 3)
	require.NoError(t, err)
	require.Equal(t, "Got it, thank you.", resp.Reply)

	stored := storedSession(ms, session.ID)
	require.Equal(t, []int{3}, stored.CollectedAnswers["Anxiety"])
	require.Equal(t, 3, stored.StructuredAnswers["anxiety_q2"])

	// The synthetic inbound turn carries the answer-ack kind.
	msgs := sessionMessages(ms, session.ID)
	require.Len(t, msgs, 3)
	require.Equal(t, store.MessageRoleUser, msgs[1].Role)
	require.Equal(t, store.MessageKindAnswerAck, msgs[1].Kind)
	require.Equal(t, "Answer submitted.", msgs[1].Content)

	// The model is told what was just submitted so it can acknowledge
	// without re-asking.
	require.Contains(t, client.lastChatSystem(), "anxiety_q2: 3")
}

func TestSubmitStructuredAnswerCompletedSession(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, &scriptedClient{reply: "ok"})

	session, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)
	mutateSession(ms, session.ID, func(s *store.Session) { s.IsComplete = true })

	resp, err := svc.SubmitStructuredAnswer(ctx, session.ID, nil, "anxiety_q1", 2)
	require.NoError(t, err)
	require.True(t, resp.IsComplete)
	require.Empty(t, storedSession(ms, session.ID).StructuredAnswers)
}

func TestCoarseGateCompletesSession(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, &scriptedClient{reply: "Thank you."})

	session, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)
	mutateSession(ms, session.ID, func(s *store.Session) {
		s.CurrentInstrument = "Anxiety"
		answers := make([]int, 149)
		for i := range answers {
			answers[i] = 1
		}
		s.CollectedAnswers["Stress"] = answers
	})

	resp, err := svc.SendMessage(ctx, session.ID, nil, "2")
	require.NoError(t, err)
	require.True(t, resp.IsComplete)
	require.NotNil(t, resp.Results)

	stored := storedSession(ms, session.ID)
	require.True(t, stored.IsComplete)
	require.NotZero(t, stored.CompletedTs)
}

func TestCompleteSession(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, &scriptedClient{reply: "ok"})

	session, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)
	mutateSession(ms, session.ID, func(s *store.Session) {
		s.CollectedAnswers["Anxiety"] = []int{2, 2, 2, 2, 2, 2, 2}
	})

	result, err := svc.CompleteSession(ctx, session.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, 14, result.Scores["Anxiety"])
	require.True(t, storedSession(ms, session.ID).IsComplete)

	// Completing again just returns the scores.
	again, err := svc.CompleteSession(ctx, session.ID, nil)
	require.NoError(t, err)
	require.Equal(t, result.Scores["Anxiety"], again.Scores["Anxiety"])
}

func TestCompletionDropsSuggestionState(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &scriptedClient{reply: "ok"})

	session, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)
	svc.mu.Lock()
	svc.suggestions[session.ID] = selector.Defaults()
	svc.mu.Unlock()

	_, err = svc.CompleteSession(ctx, session.ID, nil)
	require.NoError(t, err)

	svc.mu.Lock()
	_, ok := svc.suggestions[session.ID]
	svc.mu.Unlock()
	require.False(t, ok)
}

func TestEvaluateCompletionIgnoresAckTurns(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, &scriptedClient{reply: "ok"})

	session, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)
	mutateSession(ms, session.ID, func(s *store.Session) {
		s.CollectedAnswers["Anxiety"] = []int{1, 2, 3}
	})
	now := time.Now().Unix()
	ms.messages = append(ms.messages,
		&store.Message{SessionID: session.ID, Role: store.MessageRoleUser, Kind: store.MessageKindAnswerAck, Content: "Answer submitted.", CreatedTs: now},
		&store.Message{SessionID: session.ID, Role: store.MessageRoleUser, Kind: store.MessageKindChat, Content: "mostly my sleep has been bad", CreatedTs: now},
	)

	verdict, err := svc.EvaluateCompletion(ctx, session.ID, nil)
	require.NoError(t, err)
	require.False(t, verdict.ShouldEnd)
	require.InDelta(t, 3.0/150*0.5, verdict.Confidence, 1e-9)
	require.Equal(t, []string{"Anxiety"}, verdict.Topics)
}

func TestLinkAnonymousSession(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, &scriptedClient{reply: "ok"})

	session, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)
	mutateSession(ms, session.ID, func(s *store.Session) {
		s.CollectedAnswers["Anxiety"] = []int{2, 2, 2, 2, 2, 2, 2}
	})

	linked, err := svc.LinkAnonymousSession(ctx, session.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, session.ID, linked.SessionID)
	require.Len(t, linked.Answers, 201)
	require.NotNil(t, linked.Results)
	require.Equal(t, 14, linked.Results.Scores["Anxiety"])

	stored := storedSession(ms, session.ID)
	require.NotNil(t, stored.OwnerID)
	require.Equal(t, "user-1", *stored.OwnerID)

	_, err = svc.LinkAnonymousSession(ctx, session.ID, "user-2")
	require.ErrorIs(t, err, ErrAlreadyLinked)
}

func TestConcurrentTurnsRespectCeiling(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, &scriptedClient{reply: "Noted."})

	session, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)
	mutateSession(ms, session.ID, func(s *store.Session) {
		s.CurrentInstrument = "Anxiety"
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SendMessage(ctx, session.ID, nil, "3")
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	stored := storedSession(ms, session.ID)
	require.Len(t, stored.CollectedAnswers["Anxiety"], 7)

	seen := 0
	for _, name := range stored.CompletedInstruments {
		if name == "Anxiety" {
			seen++
		}
	}
	require.Equal(t, 1, seen)
}
