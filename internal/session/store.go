package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"geno-backend/internal/models"
)

// Store owns every conversation. History is append-only per session.
type Store interface {
	// Append adds turn to the end of the session, creating it if absent.
	Append(ctx context.Context, sessionID string, turn models.Turn) error
	// AppendExisting adds turn to a live session and fails with
	// ErrSessionEvicted when the session is gone.
	AppendExisting(ctx context.Context, sessionID string, turn models.Turn) error
	// History returns a copy of the session's turns in append order, or an
	// empty slice for an unknown session.
	History(ctx context.Context, sessionID string) ([]models.Turn, error)
}

// ErrSessionEvicted means the session was dropped by the TTL or the session
// cap between two appends of the same exchange.
var ErrSessionEvicted = errors.New("session expired")

// Options bound the in-memory store. Zero values mean unbounded.
type Options struct {
	// TTL drops a whole session once it has gone this long without a new turn.
	TTL time.Duration
	// MaxSessions caps live sessions; the least recently used one is dropped.
	MaxSessions int
	// OnEvict is called when a session is dropped by TTL or MaxSessions.
	// It must not call back into the store.
	OnEvict func(sessionID string, turns int)
}

// MemoryStore keeps sessions in process memory. Turns inside a live session
// are never trimmed; eviction only ever removes entire sessions.
type MemoryStore struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, []models.Turn]
}

func NewMemoryStore(opts Options) *MemoryStore {
	var onEvict func(string, []models.Turn)
	if opts.OnEvict != nil {
		onEvict = func(key string, turns []models.Turn) {
			opts.OnEvict(key, len(turns))
		}
	}

	return &MemoryStore{
		sessions: expirable.NewLRU[string, []models.Turn](opts.MaxSessions, onEvict, opts.TTL),
	}
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, turn models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns, _ := s.sessions.Get(sessionID)
	s.sessions.Add(sessionID, append(turns, turn))
	return nil
}

func (s *MemoryStore) AppendExisting(_ context.Context, sessionID string, turn models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns, ok := s.sessions.Get(sessionID)
	if !ok {
		return ErrSessionEvicted
	}
	s.sessions.Add(sessionID, append(turns, turn))
	return nil
}

func (s *MemoryStore) History(_ context.Context, sessionID string) ([]models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns, ok := s.sessions.Get(sessionID)
	if !ok {
		return []models.Turn{}, nil
	}

	out := make([]models.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// Len reports the number of live sessions.
func (s *MemoryStore) Len() int {
	return s.sessions.Len()
}

var _ Store = (*MemoryStore)(nil)
