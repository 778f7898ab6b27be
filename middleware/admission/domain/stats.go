package domain

import (
	"context"
	"time"
)

// Resultado de uma passagem pelo guard, do ponto de vista das estatísticas.
//
// FailOpen* existem separados de Denied de propósito: "store fora do ar" e
// "key generator com bug" são problemas diferentes e precisam ser observáveis
// separadamente, mesmo que o efeito para o cliente (admitir) seja o mesmo.
type Outcome string

const (
	OutcomeAllowed       Outcome = "allowed"
	OutcomeDenied        Outcome = "denied"
	OutcomeFailOpenKey   Outcome = "failopen_keyfn"
	OutcomeFailOpenStore Outcome = "failopen_store"
)

// StatsEvent representa uma decisão do guard de admissão.
//
// Method/Path são strings genéricas de propósito (serve para web, gRPC, etc).
// Cuidado com cardinalidade ao habilitar rastreio por Key.
type StatsEvent struct {
	Key     Key
	Policy  string
	Outcome Outcome

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência das estatísticas de admissão.
//
// O guard trata erro como best-effort (nunca derruba o request por causa de
// estatística).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
