package infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"social-gateway/middleware/admission/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slideScript executa os quatro passos da janela deslizante em uma unidade
// atômica do lado do Redis. Um pipeline não basta: ele agrupa o round trip,
// mas não serializa contra outras conexões — duas checagens concorrentes
// poderiam ler a mesma contagem pré-update.
//
// O retorno é a contagem de eventos na janela ANTES do ZADD, ou seja, exclui
// o evento sendo registrado. O ZADD acontece mesmo quando a decisão vai ser
// "negado": tentativas contam, não só admissões.
const slideScript = `
local zkey   = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local ttl    = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", zkey, 0, now - window)
local count = redis.call("ZCARD", zkey)
redis.call("ZADD", zkey, now, member)
redis.call("EXPIRE", zkey, ttl)
return count
`

// RedisWindowStore implementa domain.WindowStore sobre um sorted set por
// chave: cada membro é um timestamp de evento (score em ms desde epoch) e a
// chave expira sozinha após ceil(window) segundos de inatividade.
//
// Como o store é compartilhado por todas as instâncias do gateway, o limite
// resultante é global, não por processo.
type RedisWindowStore struct {
	rdb    *redis.Client
	prefix string
	script *redis.Script

	// instance+seq garantem que cada chamada contribui exatamente um membro
	// contável, mesmo com timestamps idênticos no mesmo milissegundo (em um
	// processo ou entre gateways).
	instance string
	seq      atomic.Int64
}

type RedisWindowOption func(*RedisWindowStore)

// WithKeyPrefix define o namespace das chaves no Redis (padrão "gw:ratelimit:").
func WithKeyPrefix(prefix string) RedisWindowOption {
	return func(s *RedisWindowStore) {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" && !strings.HasSuffix(prefix, ":") {
			prefix += ":"
		}
		s.prefix = prefix
	}
}

func NewRedisWindowStore(rdb *redis.Client, opts ...RedisWindowOption) *RedisWindowStore {
	s := &RedisWindowStore{
		rdb:      rdb,
		prefix:   "gw:ratelimit:",
		script:   redis.NewScript(slideScript),
		instance: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Slide implementa domain.WindowStore.
func (s *RedisWindowStore) Slide(ctx context.Context, key domain.Key, now time.Time, window time.Duration) (int64, error) {
	nowMs := now.UnixMilli()
	count, err := s.script.Run(ctx, s.rdb,
		[]string{s.keyFor(key)},
		nowMs,
		window.Milliseconds(),
		ttlSeconds(window),
		s.memberFor(nowMs),
	).Int64()
	if err != nil {
		return 0, classify(err)
	}
	return count, nil
}

func (s *RedisWindowStore) keyFor(key domain.Key) string {
	return s.prefix + string(key)
}

func (s *RedisWindowStore) memberFor(nowMs int64) string {
	return fmt.Sprintf("%d:%s:%d", nowMs, s.instance, s.seq.Add(1))
}

// ttlSeconds arredonda a janela para cima em segundos inteiros, para a chave
// nunca expirar antes do fim da janela.
func ttlSeconds(window time.Duration) int64 {
	secs := window.Milliseconds() / 1000
	if window.Milliseconds()%1000 != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}

// classify traduz falhas do cliente Redis para a família de erros tipados do
// domínio. O guard usa isso só para logar/contar; todas resolvem em fail-open.
func classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", domain.ErrStoreTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrStoreTimeout, err)
	}

	var oe *net.OpError
	if errors.As(err, &oe) || errors.Is(err, redis.ErrClosed) || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	return fmt.Errorf("%w: %v", domain.ErrStoreProtocol, err)
}
