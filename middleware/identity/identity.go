package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Caller é a identidade opcional fornecida por um passo de autenticação.
type Caller struct {
	ID string
}

type ctxKey struct{}

// With devolve um contexto carregando o caller.
func With(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext lê o caller do contexto, se houver.
func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ctxKey{}).(Caller)
	return c, ok
}

// CallerID tem a assinatura esperada pelo guard de admissão (CallerFunc).
func CallerID(r *http.Request) (string, bool) {
	c, ok := FromContext(r.Context())
	if !ok || c.ID == "" {
		return "", false
	}
	return c.ID, true
}

// Middleware extrai um bearer token HS256 do header Authorization e, se o
// token for válido, anexa Caller{ID: sub} ao contexto. Nunca rejeita.
func Middleware(secret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, ok := parseCaller(r, secret); ok {
				r = r.WithContext(With(r.Context(), c))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func parseCaller(r *http.Request, secret string) (Caller, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return Caller{}, false
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return Caller{}, false
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return Caller{}, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Caller{}, false
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Caller{}, false
	}

	return Caller{ID: sub}, true
}
