package store

import (
	"context"
	"sync"

	"github.com/haasonsaas/concierge/internal/audit"
	"github.com/haasonsaas/concierge/pkg/models"
)

// MemoryStore is an in-memory Store for tests and single-process runs.
// All reads return clones so callers cannot mutate stored rows.
type MemoryStore struct {
	mu      sync.RWMutex
	inbound []*models.InboundMessage
	records []*audit.ToolRecord
	states  map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string][]byte)}
}

func (s *MemoryStore) InsertInbound(_ context.Context, msg *models.InboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *msg
	s.inbound = append(s.inbound, &clone)
	return nil
}

func (s *MemoryStore) ListInbound(_ context.Context, provider models.Provider, limit int) ([]*models.InboundMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.InboundMessage
	for i := len(s.inbound) - 1; i >= 0; i-- {
		if provider != "" && s.inbound[i].Provider != provider {
			continue
		}
		clone := *s.inbound[i]
		out = append(out, &clone)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertToolRecord(_ context.Context, rec *audit.ToolRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *rec
	s.records = append(s.records, &clone)
	return nil
}

func (s *MemoryStore) ListToolRecords(_ context.Context, sessionID string, limit int) ([]*audit.ToolRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*audit.ToolRecord
	for _, rec := range s.records {
		if sessionID != "" && rec.SessionID != sessionID {
			continue
		}
		clone := *rec
		out = append(out, &clone)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveState(_ context.Context, sessionID string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := make([]byte, len(state))
	copy(clone, state)
	s.states[sessionID] = clone
	return nil
}

func (s *MemoryStore) LoadState(_ context.Context, sessionID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := make([]byte, len(state))
	copy(clone, state)
	return clone, nil
}

func (s *MemoryStore) Close() error { return nil }
