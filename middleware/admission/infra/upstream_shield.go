package infra

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Shield é um token bucket por upstream (não por cliente): limita o total de
// requests encaminhados a cada backend, independente da admissão por chave.
// É a última linha de proteção de um backend degradado.
type Shield struct {
	mu           sync.Mutex
	entries      map[string]*shieldEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type shieldEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type ShieldOption func(*Shield)

func WithShieldIdleTTL(d time.Duration) ShieldOption {
	return func(s *Shield) { s.idleTTL = d }
}

func WithShieldCleanupEvery(d time.Duration) ShieldOption {
	return func(s *Shield) { s.cleanupEvery = d }
}

func NewShield(rps float64, burst int, opts ...ShieldOption) *Shield {
	s := &Shield{
		entries:      make(map[string]*shieldEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Shield) RPS() float64 { return float64(s.rps) }
func (s *Shield) Burst() int   { return s.burst }

// Allow consome um token do bucket do upstream informado.
func (s *Shield) Allow(upstream string) bool {
	return s.limiter(upstream).Allow()
}

func (s *Shield) limiter(upstream string) *rate.Limiter {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[upstream]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[upstream] = &shieldEntry{lim: lim, lastSeen: now}
	return lim
}

func (s *Shield) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa buckets inativos periodicamente.
// Pare cancelando o contexto.
func (s *Shield) StartJanitor(ctx context.Context) {
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
