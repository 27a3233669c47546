package store

import (
	"context"
	"sync"
)

// MemoryStore keeps the pair in process. Several session managers can share one
// instance, in which case it behaves like browser storage shared between tabs.
type MemoryStore struct {
	mu       sync.Mutex
	tokens   Tokens
	watchers map[int]chan Event
	nextID   int
}

var (
	_ Store   = (*MemoryStore)(nil)
	_ Watcher = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{watchers: make(map[int]chan Event)}
}

func (s *MemoryStore) Load(_ context.Context) (Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tokens.Complete() {
		return Tokens{}, ErrNoTokens
	}
	return s.tokens, nil
}

func (s *MemoryStore) Save(_ context.Context, tokens Tokens) error {
	if err := validatePair(tokens); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = tokens
	s.notifyLocked(Event{Type: EventSaved})
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = Tokens{}
	s.notifyLocked(Event{Type: EventCleared})
	return nil
}

func (s *MemoryStore) Watch(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, 8)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, id)
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}

// notifyLocked never blocks. A full buffer already holds an event that makes
// the watcher reload, so dropping another one loses nothing.
func (s *MemoryStore) notifyLocked(ev Event) {
	for _, ch := range s.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
}
