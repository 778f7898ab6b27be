package domain

import (
	"context"
	"time"
)

// Key identifica o sujeito sendo limitado (ex: rate_limit:ip:1.2.3.4,
// rate_limit:user:42, ou uma chave customizada da policy).
type Key string

// Limits é a parte declarativa de uma policy de admissão: quantos eventos
// (Max) cabem em uma janela deslizante (Window).
type Limits struct {
	Window time.Duration
	Max    int
}

// Valid reports whether the limits make sense for the window algorithm.
func (l Limits) Valid() bool {
	return l.Window > 0 && l.Max > 0
}

// Decision é o resultado de uma checagem de admissão. É calculada a cada
// request e nunca cacheada.
//
// Remaining nunca é negativo; Limit é sempre o Max configurado na policy,
// independente do resultado.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// WindowStore é o estado compartilhado do limiter. Todas as instâncias do
// gateway falam com o mesmo store, então o limite é global e não por processo.
//
// Slide executa, de forma atômica por chave:
//
//  1. remove os eventos com score <= now-window (fora da janela);
//  2. conta os eventos restantes — a contagem retornada EXCLUI o evento
//     registrado no passo 3;
//  3. registra um novo evento em now, incondicionalmente (tentativas contam,
//     não só admissões);
//  4. renova a expiração da chave para ceil(window) segundos.
//
// Nenhuma checagem concorrente para a mesma chave pode observar a mesma
// contagem pré-update; a implementação deve usar o primitivo transacional do
// store (script/transação), não apenas um round trip em lote.
type WindowStore interface {
	Slide(ctx context.Context, key Key, now time.Time, window time.Duration) (count int64, err error)
}
