package store

import (
	"context"
	"time"

	"github.com/mindgate/intake/internal/profile"
	"github.com/mindgate/intake/store/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	cacheConfig cache.Config

	// sessionCache holds recently read sessions keyed by id. Every write
	// path invalidates before returning.
	sessionCache *cache.Cache
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	cacheConfig := cache.Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        1000,
	}

	return &Store{
		driver:       driver,
		profile:      profile,
		cacheConfig:  cacheConfig,
		sessionCache: cache.New(cacheConfig),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	s.sessionCache.Close()
	return s.driver.Close()
}

func (s *Store) CreateSession(ctx context.Context, create *Session) (*Session, error) {
	session, err := s.driver.CreateSession(ctx, create)
	if err != nil {
		return nil, err
	}
	s.sessionCache.Set(session.ID, session.Clone())
	return session, nil
}

func (s *Store) ListSessions(ctx context.Context, find *FindSession) ([]*Session, error) {
	return s.driver.ListSessions(ctx, find)
}

// GetSession returns the session with the given id, or nil when absent.
// Every call returns a detached copy; callers may mutate the result
// without affecting the cache or other readers.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	if cached, ok := s.sessionCache.Get(id); ok {
		if session, ok := cached.(*Session); ok {
			return session.Clone(), nil
		}
	}
	list, err := s.driver.ListSessions(ctx, &FindSession{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	s.sessionCache.Set(id, list[0].Clone())
	return list[0], nil
}

func (s *Store) UpdateSession(ctx context.Context, update *UpdateSession) (*Session, error) {
	s.sessionCache.Delete(update.ID)
	session, err := s.driver.UpdateSession(ctx, update)
	if err != nil {
		return nil, err
	}
	s.sessionCache.Set(session.ID, session.Clone())
	return session, nil
}

func (s *Store) DeleteSession(ctx context.Context, delete *DeleteSession) error {
	s.sessionCache.Delete(delete.ID)
	return s.driver.DeleteSession(ctx, delete)
}

func (s *Store) CreateMessage(ctx context.Context, create *Message) (*Message, error) {
	return s.driver.CreateMessage(ctx, create)
}

func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	return s.driver.ListMessages(ctx, find)
}

func (s *Store) DeleteMessages(ctx context.Context, delete *DeleteMessage) error {
	return s.driver.DeleteMessages(ctx, delete)
}
