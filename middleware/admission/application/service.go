package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"social-gateway/middleware/admission/domain"
)

// Service concentra o algoritmo de janela deslizante.
//
// Ele não sabe nada sobre HTTP (headers/status/fail-open): ou retorna uma
// Decision, ou retorna um erro tipado de store. Quem decide o que fazer com o
// erro é o chamador.
type Service struct {
	Store domain.WindowStore

	// Now permite injetar o relógio nos testes. Se nil, usa time.Now.
	Now func() time.Time
}

// Decide checks whether one more event may be admitted for key under limits.
//
// A contagem vinda do store exclui o evento recém registrado, então:
//
//	allowed   = count < max
//	remaining = max(0, max - count - 1)
//	resetAt   = now + window
func (s Service) Decide(ctx context.Context, key domain.Key, limits domain.Limits) (domain.Decision, error) {
	if key == "" {
		return domain.Decision{}, errors.New("admission: empty rate limit key")
	}
	if !limits.Valid() {
		return domain.Decision{}, fmt.Errorf("admission: invalid limits (window=%s max=%d)", limits.Window, limits.Max)
	}
	if s.Store == nil {
		return domain.Decision{}, fmt.Errorf("admission: %w: no store configured", domain.ErrStoreUnavailable)
	}

	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	count, err := s.Store.Slide(ctx, key, now, limits.Window)
	if err != nil {
		return domain.Decision{}, err
	}

	remaining := limits.Max - int(count) - 1
	if remaining < 0 {
		remaining = 0
	}

	return domain.Decision{
		Allowed:   count < int64(limits.Max),
		Limit:     limits.Max,
		Remaining: remaining,
		ResetAt:   now.Add(limits.Window),
	}, nil
}
