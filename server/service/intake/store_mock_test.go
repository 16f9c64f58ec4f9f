package intake

import (
	"context"
	"errors"
	"sync"

	"github.com/mindgate/intake/store"
)

// memStore is an in-memory Store used by the service tests. It clones
// sessions on every read the way the real store hands out detached
// copies.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*store.Session
	messages []*store.Message
	nextID   int32

	// afterList, when set, runs after ListSessions returns its snapshot.
	// Tests use it to interleave writes between a listing and the
	// per-record re-read.
	afterList func()
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*store.Session)}
}

func (m *memStore) CreateSession(_ context.Context, create *store.Session) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[create.ID] = create.Clone()
	return create.Clone(), nil
}

func (m *memStore) GetSession(_ context.Context, id string) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (m *memStore) ListSessions(_ context.Context, find *store.FindSession) ([]*store.Session, error) {
	m.mu.Lock()
	var list []*store.Session
	for _, s := range m.sessions {
		if find.ID != nil && s.ID != *find.ID {
			continue
		}
		if find.OwnerID != nil && (s.OwnerID == nil || *s.OwnerID != *find.OwnerID) {
			continue
		}
		if find.IsComplete != nil && s.IsComplete != *find.IsComplete {
			continue
		}
		if find.LastActivityBefore != nil && s.LastActivityTs >= *find.LastActivityBefore {
			continue
		}
		list = append(list, s.Clone())
	}
	m.mu.Unlock()
	if m.afterList != nil {
		m.afterList()
	}
	return list, nil
}

func (m *memStore) UpdateSession(_ context.Context, update *store.UpdateSession) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[update.ID]
	if !ok {
		return nil, errors.New("session not found")
	}
	if update.OwnerID != nil {
		owner := *update.OwnerID
		s.OwnerID = &owner
	}
	if update.CurrentInstrument != nil {
		s.CurrentInstrument = *update.CurrentInstrument
	}
	if update.CompletedInstruments != nil {
		s.CompletedInstruments = append([]string(nil), (*update.CompletedInstruments)...)
	}
	if update.CollectedAnswers != nil {
		s.CollectedAnswers = make(map[string][]int, len(*update.CollectedAnswers))
		for k, v := range *update.CollectedAnswers {
			s.CollectedAnswers[k] = append([]int(nil), v...)
		}
	}
	if update.StructuredAnswers != nil {
		s.StructuredAnswers = make(map[string]int, len(*update.StructuredAnswers))
		for k, v := range *update.StructuredAnswers {
			s.StructuredAnswers[k] = v
		}
	}
	if update.PresentedInstruments != nil {
		s.PresentedInstruments = append([]string(nil), (*update.PresentedInstruments)...)
	}
	if update.Insights != nil {
		s.Insights = *update.Insights
	}
	if update.IsComplete != nil {
		s.IsComplete = *update.IsComplete
	}
	if update.LastActivityTs != nil {
		s.LastActivityTs = *update.LastActivityTs
	}
	if update.CompletedTs != nil {
		s.CompletedTs = *update.CompletedTs
	}
	return s.Clone(), nil
}

func (m *memStore) DeleteSession(_ context.Context, del *store.DeleteSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dst := m.messages[:0]
	for _, msg := range m.messages {
		if msg.SessionID != del.ID {
			dst = append(dst, msg)
		}
	}
	m.messages = dst
	delete(m.sessions, del.ID)
	return nil
}

func (m *memStore) CreateMessage(_ context.Context, create *store.Message) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	create.ID = m.nextID
	copied := *create
	m.messages = append(m.messages, &copied)
	return create, nil
}

func (m *memStore) ListMessages(_ context.Context, find *store.FindMessage) ([]*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*store.Message
	for _, msg := range m.messages {
		if find.SessionID != nil && msg.SessionID != *find.SessionID {
			continue
		}
		if find.Role != nil && msg.Role != *find.Role {
			continue
		}
		copied := *msg
		list = append(list, &copied)
	}
	return list, nil
}

func (m *memStore) DeleteMessages(_ context.Context, del *store.DeleteMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dst := m.messages[:0]
	for _, msg := range m.messages {
		if del.SessionID != nil && msg.SessionID == *del.SessionID {
			continue
		}
		if del.ID != nil && msg.ID == *del.ID {
			continue
		}
		dst = append(dst, msg)
	}
	m.messages = dst
	return nil
}
