package store

import (
	"context"
	"sync"
	"time"

	"github.com/semihsipahi/climblearn-api/internal/domain"
)

// MemoryStore is a goroutine-safe Repository backed by maps.
// State is lost on restart; it serves tests and local experiments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.LearningSession
	logs     map[string][]domain.InteractionLog
}

var _ Repository = (*MemoryStore)(nil)

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*domain.LearningSession),
		logs:     make(map[string][]domain.InteractionLog),
	}
}

func (s *MemoryStore) CreateSession(_ context.Context, session *domain.LearningSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.Version = 1
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (*domain.LearningSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return session.Clone(), nil
}

func (s *MemoryStore) SaveSession(_ context.Context, session *domain.LearningSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[session.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != session.Version {
		return ErrVersionConflict
	}

	session.Version++
	session.UpdatedAt = time.Now().UTC()
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *MemoryStore) InsertLog(_ context.Context, entry *domain.InteractionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs[entry.SessionID] = append(s.logs[entry.SessionID], *entry)
	return nil
}

func (s *MemoryStore) ListLogs(_ context.Context, sessionID string) ([]domain.InteractionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.InteractionLog, len(s.logs[sessionID]))
	copy(out, s.logs[sessionID])
	return out, nil
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }
func (s *MemoryStore) Close() error                 { return nil }
