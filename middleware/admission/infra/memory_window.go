package infra

import (
	"context"
	"sync"
	"time"

	"social-gateway/middleware/admission/domain"
)

// MemoryWindowStore é uma implementação em memória de domain.WindowStore com
// a mesma semântica do store Redis (contagem exclui o evento atual, tentativas
// contam, poda oportunista por checagem).
//
// Útil para testes e desenvolvimento single-instance. Não coordena entre
// processos: com mais de um gateway o limite vira por instância.
type MemoryWindowStore struct {
	mu           sync.Mutex
	entries      map[domain.Key]*windowEntry
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type windowEntry struct {
	events   []int64 // timestamps em ms, ordenados por inserção
	lastSeen time.Time
}

type MemoryWindowOption func(*MemoryWindowStore)

func WithWindowIdleTTL(d time.Duration) MemoryWindowOption {
	return func(s *MemoryWindowStore) { s.idleTTL = d }
}

func WithWindowCleanupEvery(d time.Duration) MemoryWindowOption {
	return func(s *MemoryWindowStore) { s.cleanupEvery = d }
}

func NewMemoryWindowStore(opts ...MemoryWindowOption) *MemoryWindowStore {
	s := &MemoryWindowStore{
		entries:      make(map[domain.Key]*windowEntry),
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Slide implementa domain.WindowStore.
func (s *MemoryWindowStore) Slide(_ context.Context, key domain.Key, now time.Time, window time.Duration) (int64, error) {
	nowMs := now.UnixMilli()
	cutoff := nowMs - window.Milliseconds()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		ent = &windowEntry{}
		s.entries[key] = ent
	}
	ent.lastSeen = now

	// poda os eventos fora da janela (score <= now-window)
	valid := ent.events[:0]
	for _, ts := range ent.events {
		if ts > cutoff {
			valid = append(valid, ts)
		}
	}
	ent.events = valid

	count := int64(len(ent.events))
	ent.events = append(ent.events, nowMs)
	return count, nil
}

func (s *MemoryWindowStore) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que remove chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryWindowStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
