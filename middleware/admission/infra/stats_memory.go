package infra

import (
	"context"
	"sync"

	"social-gateway/middleware/admission/domain"
)

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    map[domain.Outcome]int64
	byPolicy map[string]map[domain.Outcome]int64
	byKey    map[string]map[domain.Outcome]int64

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		total:    make(map[domain.Outcome]int64),
		byPolicy: make(map[string]map[domain.Outcome]int64),
		byKey:    make(map[string]map[domain.Outcome]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	outcome := ev.Outcome
	if outcome == "" {
		outcome = domain.OutcomeAllowed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total[outcome]++

	if ev.Policy != "" {
		m := s.byPolicy[ev.Policy]
		if m == nil {
			m = make(map[domain.Outcome]int64)
			s.byPolicy[ev.Policy] = m
		}
		m[outcome]++
	}

	if s.trackKeys && ev.Key != "" {
		m := s.byKey[string(ev.Key)]
		if m == nil {
			m = make(map[domain.Outcome]int64)
			s.byKey[string(ev.Key)] = m
		}
		m[outcome]++
	}
	return nil
}

func (s *MemoryStatsStore) Total(outcome domain.Outcome) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total[outcome]
}

func (s *MemoryStatsStore) ByPolicy(policy string, outcome domain.Outcome) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byPolicy[policy][outcome]
}

func (s *MemoryStatsStore) ByKey(key string, outcome domain.Outcome) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byKey[key][outcome]
}
