// Package intake implements the conversation orchestrator: session
// lifecycle, message dispatch through the model client, tool-call and
// free-text answer capture, instrument selection, and completion.
package intake

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/mindgate/intake/internal/observability"
	"github.com/mindgate/intake/internal/profile"
	"github.com/mindgate/intake/plugin/ai"
	"github.com/mindgate/intake/plugin/ai/completion"
	"github.com/mindgate/intake/plugin/ai/extract"
	"github.com/mindgate/intake/plugin/ai/fallback"
	"github.com/mindgate/intake/plugin/ai/insights"
	"github.com/mindgate/intake/plugin/ai/selector"
	"github.com/mindgate/intake/plugin/ai/toolcall"
	"github.com/mindgate/intake/server/service/scoring"
	"github.com/mindgate/intake/store"
)

var (
	// ErrSessionNotFound is returned when a session id does not resolve.
	ErrSessionNotFound = errors.New("session not found")
	// ErrOwnershipMismatch is returned when the supplied owner identity
	// conflicts with the session's recorded owner.
	ErrOwnershipMismatch = errors.New("session does not belong to caller")
	// ErrAlreadyLinked is returned when linking a session that already
	// has an owner.
	ErrAlreadyLinked = errors.New("session is already linked to an owner")
)

const alreadyCompleteReply = "The assessment is already complete."

// Store is the persistence surface the orchestrator consumes.
type Store interface {
	CreateSession(ctx context.Context, create *store.Session) (*store.Session, error)
	GetSession(ctx context.Context, id string) (*store.Session, error)
	ListSessions(ctx context.Context, find *store.FindSession) ([]*store.Session, error)
	UpdateSession(ctx context.Context, update *store.UpdateSession) (*store.Session, error)
	DeleteSession(ctx context.Context, delete *store.DeleteSession) error
	CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error)
	ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error)
}

// Response is the outcome of one conversational turn.
type Response struct {
	Reply             string             `json:"response"`
	IsComplete        bool               `json:"isComplete"`
	IsFallback        bool               `json:"isFallback,omitempty"`
	ToolCall          *toolcall.ToolCall `json:"toolCall,omitempty"`
	CurrentInstrument string             `json:"currentInstrument,omitempty"`
	Results           *scoring.Result    `json:"results,omitempty"`
}

// SessionSummary is the listing view of a session: enough to render a
// history entry without exposing collected answers.
type SessionSummary struct {
	ID                   string   `json:"id"`
	StartedTs            int64    `json:"startedTs"`
	CompletedTs          int64    `json:"completedTs,omitempty"`
	IsComplete           bool     `json:"isComplete"`
	CompletedInstruments []string `json:"completedInstruments"`
}

// SessionState bundles a session with its conversation for resume/get.
type SessionState struct {
	Session  *store.Session   `json:"session"`
	Messages []*store.Message `json:"messages"`
}

// LinkResult is returned when an anonymous session is claimed by an
// owner: the linked session plus its current scores.
type LinkResult struct {
	SessionID string          `json:"sessionId"`
	Results   *scoring.Result `json:"results"`
	Answers   []int           `json:"answers"`
	Insights  string          `json:"conversationInsights,omitempty"`
}

// Service is the conversation orchestrator. All session mutations are
// serialized per session id.
type Service struct {
	store     Store
	client    ai.Client
	selector  *selector.Selector
	insights  *insights.Extractor
	evaluator *completion.Evaluator
	locks     *sessionLocks

	enrichTimeout time.Duration
	now           func() time.Time

	mu          sync.Mutex
	suggestions map[string]selector.Result
}

// NewService wires the orchestrator from its collaborators.
func NewService(st Store, client ai.Client, p *profile.Profile) *Service {
	evaluator := completion.NewEvaluator()
	evaluator.MinRequiredAnswers = scoring.MinRequiredAnswers

	enrichTimeout := 15 * time.Second
	suggestionRate := 6.0
	if p != nil {
		if p.EnrichmentTimeout > 0 {
			enrichTimeout = p.EnrichmentTimeout
		}
		if p.SuggestionRate > 0 {
			suggestionRate = p.SuggestionRate
		}
	}

	return &Service{
		store:         st,
		client:        client,
		selector:      selector.NewSelector(client, suggestionRate),
		insights:      insights.NewExtractor(client),
		evaluator:     evaluator,
		locks:         newSessionLocks(),
		enrichTimeout: enrichTimeout,
		now:           time.Now,
		suggestions:   make(map[string]selector.Result),
	}
}

// StartSession creates a new session, anonymous or owned.
func (s *Service) StartSession(ctx context.Context, ownerID *string) (*store.Session, error) {
	now := s.now().Unix()
	session := &store.Session{
		ID:                uuid.NewString(),
		OwnerID:           ownerID,
		CollectedAnswers:  map[string][]int{},
		StructuredAnswers: map[string]int{},
		StartedTs:         now,
		LastActivityTs:    now,
	}
	created, err := s.store.CreateSession(ctx, session)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session")
	}

	if _, err := s.store.CreateMessage(ctx, &store.Message{
		UID:       shortuuid.New(),
		SessionID: created.ID,
		Role:      store.MessageRoleSystem,
		Kind:      store.MessageKindChat,
		Content:   basePrompt,
		CreatedTs: now,
	}); err != nil {
		return nil, errors.Wrap(err, "failed to seed system message")
	}

	return created, nil
}

// SendMessage handles one genuine user turn.
func (s *Service) SendMessage(ctx context.Context, sessionID string, ownerID *string, text string) (*Response, error) {
	return s.handleMessage(ctx, sessionID, ownerID, text, store.MessageKindChat, nil)
}

// SubmitStructuredAnswer records a tool-call answer and runs the
// acknowledgement turn. The synthetic inbound message carries the
// answer-ack kind so downstream steps skip enrichment and extraction.
func (s *Service) SubmitStructuredAnswer(ctx context.Context, sessionID string, ownerID *string, questionID string, value int) (*Response, error) {
	s.locks.Lock(sessionID)

	session, err := s.loadSession(ctx, sessionID, ownerID)
	if err != nil {
		s.locks.Unlock(sessionID)
		return nil, err
	}
	if session.IsComplete {
		s.locks.Unlock(sessionID)
		return &Response{Reply: alreadyCompleteReply, IsComplete: true}, nil
	}

	topic := "Unknown"
	if instrument := store.QuestionInstrument(questionID); instrument != "" {
		topic = store.TopicFromInstrument(instrument)
	}

	collected := copyAnswers(session.CollectedAnswers)
	collected[topic] = append(collected[topic], value)
	structured := copyInts(session.StructuredAnswers)
	structured[questionID] = value

	now := s.now().Unix()
	if _, err := s.store.UpdateSession(ctx, &store.UpdateSession{
		ID:                sessionID,
		CollectedAnswers:  &collected,
		StructuredAnswers: &structured,
		LastActivityTs:    &now,
	}); err != nil {
		s.locks.Unlock(sessionID)
		return nil, errors.Wrap(err, "failed to record structured answer")
	}
	s.locks.Unlock(sessionID)

	return s.handleMessage(ctx, sessionID, ownerID, "Answer submitted.", store.MessageKindAnswerAck, map[string]int{questionID: value})
}

// handleMessage is the single mutation path for a session's
// conversation. The per-session lock is held for all state mutation and
// released around the model call.
func (s *Service) handleMessage(ctx context.Context, sessionID string, ownerID *string, text string, kind store.MessageKind, justSubmitted map[string]int) (*Response, error) {
	s.locks.Lock(sessionID)
	locked := true
	defer func() {
		if locked {
			s.locks.Unlock(sessionID)
		}
	}()

	session, err := s.loadSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}
	if session.IsComplete {
		return &Response{Reply: alreadyCompleteReply, IsComplete: true}, nil
	}

	ownerLabel := ""
	if ownerID != nil {
		ownerLabel = *ownerID
	}
	reqCtx := observability.NewRequestContext(slog.Default(), sessionID, ownerLabel)

	now := s.now().Unix()

	// Persist the inbound message first so no user input is lost even if
	// downstream steps fail.
	if _, err := s.store.CreateMessage(ctx, &store.Message{
		UID:        shortuuid.New(),
		SessionID:  sessionID,
		Role:       store.MessageRoleUser,
		Kind:       kind,
		Content:    text,
		Instrument: session.CurrentInstrument,
		CreatedTs:  now,
	}); err != nil {
		return nil, errors.Wrap(err, "failed to persist user message")
	}

	history, err := s.store.ListMessages(ctx, &store.FindMessage{SessionID: &sessionID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load conversation history")
	}

	// Best-effort enrichment: skipped for answer acknowledgements to
	// avoid redundant model calls.
	insightsJSON := session.Insights
	if kind == store.MessageKindChat {
		insightsJSON = s.enrich(ctx, session, history, justSubmitted)
	}

	currentInstrument := session.CurrentInstrument
	if currentInstrument == "" {
		currentInstrument = s.nextInstrument(sessionID, session.CompletedInstruments)
	}

	systemPrompt := buildSystemPrompt(session, currentInstrument, justSubmitted)
	messages := historyToMessages(systemPrompt, history)

	// The lock protects state mutation, not the network call.
	s.locks.Unlock(sessionID)
	locked = false
	reply, callErr := s.client.Generate(ctx, messages, ai.Options{})
	s.locks.Lock(sessionID)
	locked = true

	// A structured answer may have landed while the lock was released;
	// re-read before mutating.
	fresh, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to re-read session")
	}
	if fresh == nil {
		return nil, ErrSessionNotFound
	}
	if fresh.IsComplete {
		return &Response{Reply: alreadyCompleteReply, IsComplete: true}, nil
	}
	session = fresh
	if session.CurrentInstrument != "" {
		currentInstrument = session.CurrentInstrument
	}

	var conversational string
	var call *toolcall.ToolCall
	assistantKind := store.MessageKindChat
	isFallback := false
	if callErr != nil {
		class := ai.ClassOf(callErr)
		reqCtx.Warn("model call failed, serving fallback",
			slog.String(observability.LogFieldFailureClass, string(class)))
		conversational = fallback.Respond(text, class)
		assistantKind = store.MessageKindFallback
		isFallback = true
	} else {
		parsed := toolcall.Parse(ai.CleanResponse(reply))
		conversational = parsed.ConversationalText
		call = parsed.ToolCall
	}

	// Only the conversational text is stored; the directive block never
	// becomes conversation content.
	if _, err := s.store.CreateMessage(ctx, &store.Message{
		UID:        shortuuid.New(),
		SessionID:  sessionID,
		Role:       store.MessageRoleAssistant,
		Kind:       assistantKind,
		Content:    conversational,
		Instrument: currentInstrument,
		CreatedTs:  s.now().Unix(),
	}); err != nil {
		return nil, errors.Wrap(err, "failed to persist assistant message")
	}

	collected := copyAnswers(session.CollectedAnswers)
	completedInstruments := append([]string(nil), session.CompletedInstruments...)

	// Free-text extraction runs only for genuine user turns; structured
	// submissions are already recorded.
	if kind == store.MessageKindChat && currentInstrument != "" {
		if v := extract.Extract(text); v != nil {
			expected := scoring.ExpectedAnswerCount(currentInstrument)
			if expected == 0 || len(collected[currentInstrument]) < expected {
				collected[currentInstrument] = append(collected[currentInstrument], *v)
			}
		}
	}

	if currentInstrument != "" {
		expected := scoring.ExpectedAnswerCount(currentInstrument)
		if expected > 0 && len(collected[currentInstrument]) >= expected && !containsString(completedInstruments, currentInstrument) {
			completedInstruments = append(completedInstruments, currentInstrument)
			currentInstrument = s.nextInstrument(sessionID, completedInstruments)
		}
	}

	resp := &Response{
		Reply:             conversational,
		ToolCall:          call,
		IsFallback:        isFallback,
		CurrentInstrument: currentInstrument,
	}

	update := &store.UpdateSession{
		ID:                   sessionID,
		CurrentInstrument:    &currentInstrument,
		CollectedAnswers:     &collected,
		CompletedInstruments: &completedInstruments,
		LastActivityTs:       &now,
	}
	if currentInstrument != "" && !containsString(session.PresentedInstruments, currentInstrument) {
		presented := append(append([]string(nil), session.PresentedInstruments...), currentInstrument)
		update.PresentedInstruments = &presented
	}
	if insightsJSON != session.Insights {
		update.Insights = &insightsJSON
	}

	// The coarse in-loop gate; a fallback turn never completes the
	// session.
	if !isFallback && s.evaluator.ShouldComplete(collected) {
		isComplete := true
		completedTs := s.now().Unix()
		update.IsComplete = &isComplete
		update.CompletedTs = &completedTs
		resp.IsComplete = true

		scored := s.scoreSession(&store.Session{
			CollectedAnswers:  collected,
			StructuredAnswers: session.StructuredAnswers,
		})
		resp.Results = scored
	}

	if _, err := s.store.UpdateSession(ctx, update); err != nil {
		return nil, errors.Wrap(err, "failed to persist session state")
	}
	if resp.IsComplete {
		s.dropSuggestion(sessionID)
	}

	reqCtx.Info("turn handled",
		slog.String(observability.LogFieldInstrument, currentInstrument),
		slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))
	return resp, nil
}

// CompleteSession explicitly finishes a session and returns its scores.
func (s *Service) CompleteSession(ctx context.Context, sessionID string, ownerID *string) (*scoring.Result, error) {
	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	session, err := s.loadSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}

	if !session.IsComplete {
		isComplete := true
		completedTs := s.now().Unix()
		if _, err := s.store.UpdateSession(ctx, &store.UpdateSession{
			ID:          sessionID,
			IsComplete:  &isComplete,
			CompletedTs: &completedTs,
		}); err != nil {
			return nil, errors.Wrap(err, "failed to complete session")
		}
	}
	s.dropSuggestion(sessionID)

	return s.scoreSession(session), nil
}

// EvaluateCompletion runs the full multi-criteria evaluator. Unlike the
// in-loop gate, this never mutates the session; the two can disagree by
// design, the gate being the more permissive.
func (s *Service) EvaluateCompletion(ctx context.Context, sessionID string, ownerID *string) (*completion.Verdict, error) {
	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	session, err := s.loadSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}
	history, err := s.store.ListMessages(ctx, &store.FindMessage{SessionID: &sessionID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load conversation history")
	}

	userTurns := make([]completion.UserMessage, 0, len(history))
	for _, m := range history {
		if m.Role == store.MessageRoleUser && m.Kind == store.MessageKindChat {
			userTurns = append(userTurns, completion.UserMessage{
				Text:      m.Content,
				CreatedAt: time.Unix(m.CreatedTs, 0),
			})
		}
	}

	verdict := s.evaluator.Evaluate(userTurns, session.MergedAnswers(), session.CompletedInstruments, time.Unix(session.StartedTs, 0))
	return &verdict, nil
}

// LinkAnonymousSession claims an anonymous session for an owner and
// returns its current scores.
func (s *Service) LinkAnonymousSession(ctx context.Context, sessionID string, ownerID string) (*LinkResult, error) {
	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load session")
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.OwnerID != nil {
		return nil, ErrAlreadyLinked
	}

	if _, err := s.store.UpdateSession(ctx, &store.UpdateSession{
		ID:      sessionID,
		OwnerID: &ownerID,
	}); err != nil {
		return nil, errors.Wrap(err, "failed to link session")
	}

	vector := scoring.Flatten(session.MergedAnswers())
	result, err := scoring.Score(vector)
	if err != nil {
		return nil, errors.Wrap(err, "failed to score session")
	}

	return &LinkResult{
		SessionID: sessionID,
		Results:   result,
		Answers:   vector,
		Insights:  session.Insights,
	}, nil
}

// GetSession returns the session record after ownership checks.
func (s *Service) GetSession(ctx context.Context, sessionID string, ownerID *string) (*store.Session, error) {
	return s.loadSession(ctx, sessionID, ownerID)
}

// ResumeSession returns the session with its full conversation so a
// client can pick up where it left off.
func (s *Service) ResumeSession(ctx context.Context, sessionID string, ownerID *string) (*SessionState, error) {
	session, err := s.loadSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, &store.FindMessage{SessionID: &sessionID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load conversation history")
	}
	return &SessionState{Session: session, Messages: messages}, nil
}

// ListSessions returns listing summaries of the caller's sessions, most
// recent first. Answer payloads stay out of the listing; resume/get is
// the path for full state.
func (s *Service) ListSessions(ctx context.Context, ownerID string) ([]*SessionSummary, error) {
	sessions, err := s.store.ListSessions(ctx, &store.FindSession{OwnerID: &ownerID})
	if err != nil {
		return nil, err
	}
	summaries := make([]*SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, &SessionSummary{
			ID:                   session.ID,
			StartedTs:            session.StartedTs,
			CompletedTs:          session.CompletedTs,
			IsComplete:           session.IsComplete,
			CompletedInstruments: append([]string(nil), session.CompletedInstruments...),
		})
	}
	return summaries, nil
}

func (s *Service) loadSession(ctx context.Context, sessionID string, ownerID *string) (*store.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load session")
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if err := checkOwnership(session, ownerID); err != nil {
		return nil, err
	}
	return session, nil
}

// checkOwnership enforces the access rule in both directions: an owned
// session cannot be used anonymously or by a different owner, and an
// anonymous session cannot be used while claiming an owner (linking is
// the explicit path for that).
func checkOwnership(session *store.Session, ownerID *string) error {
	if session.OwnerID != nil {
		if ownerID == nil || *ownerID != *session.OwnerID {
			return ErrOwnershipMismatch
		}
		return nil
	}
	if ownerID != nil {
		return ErrOwnershipMismatch
	}
	return nil
}

// enrich refreshes insight accumulation and the instrument suggestion.
// Both are best effort with a bounded deadline; failures are logged by
// the components and never propagate.
func (s *Service) enrich(ctx context.Context, session *store.Session, history []*store.Message, justSubmitted map[string]int) string {
	ectx, cancel := context.WithTimeout(ctx, s.enrichTimeout)
	defer cancel()

	msgs := make([]ai.Message, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, ai.Message{Role: string(m.Role), Content: m.Content})
	}

	merged := session.Insights

	g, gctx := errgroup.WithContext(ectx)
	g.Go(func() error {
		extracted := s.insights.Extract(gctx, msgs)
		prior := insights.Empty()
		if session.Insights != "" {
			if err := decodeInsights(session.Insights, &prior); err != nil {
				slog.Warn("discarding unreadable insight state", "session_id", session.ID, "error", err)
				prior = insights.Empty()
			}
		}
		next := insights.Merge(prior, extracted)
		encoded, err := encodeInsights(next)
		if err != nil {
			return nil
		}
		merged = encoded
		return nil
	})

	// The suggestion refresh is the expensive optional call: only when no
	// instrument is active and no structured answer just landed.
	if session.CurrentInstrument == "" && len(justSubmitted) == 0 && !recentAnswerAck(history) {
		g.Go(func() error {
			result := s.selector.Suggest(gctx, msgs)
			s.mu.Lock()
			s.suggestions[session.ID] = result
			s.mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return merged
}

// recentAnswerAck reports whether a structured answer landed within the
// last two turns, excluding the just-appended inbound message.
func recentAnswerAck(history []*store.Message) bool {
	if len(history) < 2 {
		return false
	}
	start := len(history) - 3
	if start < 0 {
		start = 0
	}
	for _, m := range history[start : len(history)-1] {
		if m.Kind == store.MessageKindAnswerAck {
			return true
		}
	}
	return false
}

// nextInstrument picks the next instrument to probe: the last
// suggestion's first incomplete candidate, then the deterministic
// default order.
// dropSuggestion forgets a session's cached selector result so the map
// does not outlive the sessions it indexes.
func (s *Service) dropSuggestion(sessionID string) {
	s.mu.Lock()
	delete(s.suggestions, sessionID)
	s.mu.Unlock()
}

func (s *Service) nextInstrument(sessionID string, completed []string) string {
	s.mu.Lock()
	suggestion, ok := s.suggestions[sessionID]
	s.mu.Unlock()
	if !ok || len(suggestion.RecommendedOrder) == 0 {
		suggestion = selector.Defaults()
	}

	if next := selector.Next(completed, suggestion); next != "" {
		return next
	}
	for _, name := range scoring.Names {
		if !containsString(completed, name) {
			return name
		}
	}
	return ""
}

func (s *Service) scoreSession(session *store.Session) *scoring.Result {
	vector := scoring.Flatten(session.MergedAnswers())
	result, err := scoring.Score(vector)
	if err != nil {
		slog.Error("failed to score session", "error", err)
		return nil
	}
	return result
}

func copyAnswers(src map[string][]int) map[string][]int {
	out := make(map[string][]int, len(src))
	for k, v := range src {
		out[k] = append([]int(nil), v...)
	}
	return out
}

func copyInts(src map[string]int) map[string]int {
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
