package infra

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"social-gateway/middleware/admission/domain"
)

func TestRedisWindowStore_KeyPrefix(t *testing.T) {
	s := NewRedisWindowStore(nil, WithKeyPrefix("gw:ratelimit"))
	if got := s.keyFor("rate_limit:ip:1.2.3.4"); got != "gw:ratelimit:rate_limit:ip:1.2.3.4" {
		t.Fatalf("unexpected redis key %q", got)
	}

	// prefixo vazio desliga o namespace
	s = NewRedisWindowStore(nil, WithKeyPrefix(""))
	if got := s.keyFor("k"); got != "k" {
		t.Fatalf("expected bare key, got %q", got)
	}
}

func TestRedisWindowStore_MembersNeverCollide(t *testing.T) {
	// dois eventos no mesmo milissegundo não podem virar o mesmo membro do
	// sorted set, senão um ZADD sobrescreve o outro e a contagem perde evento.
	s := NewRedisWindowStore(nil)

	m1 := s.memberFor(1700000000000)
	m2 := s.memberFor(1700000000000)
	if m1 == m2 {
		t.Fatalf("expected distinct members for colliding timestamps, got %q twice", m1)
	}

	other := NewRedisWindowStore(nil)
	if s.memberFor(1700000000000) == other.memberFor(1700000000000) {
		t.Fatalf("expected distinct members across store instances")
	}
}

func TestTTLSeconds_RoundsUp(t *testing.T) {
	cases := []struct {
		window time.Duration
		want   int64
	}{
		{1000 * time.Millisecond, 1},
		{1500 * time.Millisecond, 2},
		{900000 * time.Millisecond, 900},
		{10 * time.Millisecond, 1},
	}
	for _, c := range cases {
		if got := ttlSeconds(c.window); got != c.want {
			t.Fatalf("ttlSeconds(%s): expected %d, got %d", c.window, c.want, got)
		}
	}
}

func TestClassify_MapsErrorFamilies(t *testing.T) {
	if err := classify(context.DeadlineExceeded); !errors.Is(err, domain.ErrStoreTimeout) {
		t.Fatalf("expected timeout classification, got %v", err)
	}

	opErr := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	if err := classify(opErr); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected unavailable classification, got %v", err)
	}

	if err := classify(errors.New("WRONGTYPE Operation against a key")); !errors.Is(err, domain.ErrStoreProtocol) {
		t.Fatalf("expected protocol classification, got %v", err)
	}

	if classify(nil) != nil {
		t.Fatalf("expected nil to stay nil")
	}
}
