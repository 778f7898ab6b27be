package domain

import "errors"

// Erros de store. O algoritmo de janela não decide fail-open sozinho: ele
// devolve um desses erros tipados e o guard na borda HTTP escolhe admitir.
var (
	ErrStoreUnavailable = errors.New("window store unavailable")
	ErrStoreTimeout     = errors.New("window store timeout")
	ErrStoreProtocol    = errors.New("window store protocol error")
)

// IsStoreError reports whether err belongs to the store error family.
func IsStoreError(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrStoreTimeout) ||
		errors.Is(err, ErrStoreProtocol)
}
