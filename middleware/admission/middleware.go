package admission

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"social-gateway/middleware/admission/application"
	"social-gateway/middleware/admission/domain"
)

const (
	defaultMessage = "Too many requests, please try again later."
	exceededError  = "Rate limit exceeded"
)

// CallerFunc consulta a identidade do caller anexada ao request por um passo
// de autenticação externo (quando houver). O guard só lê, nunca valida.
type CallerFunc func(r *http.Request) (id string, ok bool)

type Options struct {
	// Windows é o algoritmo de janela (application.Service sobre um WindowStore).
	Windows application.Service
	// Catalog resolve policies por nome. Nome desconhecido = rota sem policy.
	Catalog *Catalog
	// Stats é best-effort; nil desliga.
	Stats domain.StatsStore
	// CallerFn, quando definido, é preferido sobre o IP na chave padrão.
	CallerFn CallerFunc
	// TrustProxyHeaders habilita X-Forwarded-For / X-Real-Ip na derivação de IP.
	TrustProxyHeaders bool
	Logger            *log.Logger
}

// Guard é o checkpoint por request. Todo estado durável vive no WindowStore;
// o guard em si não guarda nada entre requests.
type Guard struct {
	opts Options
}

func NewGuard(opts Options) *Guard {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Guard{opts: opts}
}

// Limit retorna o middleware que aplica a policy nomeada à rota. Rotas que
// não montam Limit (ou montam um nome não registrado) ficam sem throttling:
// o padrão é deliberadamente "livre a menos que declarado".
func (g *Guard) Limit(policyName string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pol, ok := g.opts.Catalog.Resolve(policyName)
			if !ok {
				// sem policy: nenhum estado tocado, nenhum header emitido
				next.ServeHTTP(w, r)
				return
			}
			g.check(w, r, pol, next)
		})
	}
}

func (g *Guard) check(w http.ResponseWriter, r *http.Request, pol Policy, next http.Handler) {
	key, err := g.deriveKey(r, pol)
	if err != nil {
		// bug em key generator custom não é igual a store fora do ar: loga e
		// conta em canal próprio, mas o efeito para o cliente é o mesmo
		// (admite, sem headers).
		g.opts.Logger.Printf("admission: key derivation failed (policy %q): %v", pol.Name, err)
		g.record(r, pol, "", domain.OutcomeFailOpenKey)
		next.ServeHTTP(w, r)
		return
	}

	dec, err := g.opts.Windows.Decide(r.Context(), key, pol.limits())
	if err != nil {
		g.opts.Logger.Printf("admission: window store error (policy %q, key %q): %v", pol.Name, key, err)
		g.record(r, pol, key, domain.OutcomeFailOpenStore)
		next.ServeHTTP(w, r)
		return
	}

	setQuotaHeaders(w, dec)

	if !dec.Allowed {
		g.record(r, pol, key, domain.OutcomeDenied)
		if pol.OnExceeded != nil {
			pol.OnExceeded(w, r, dec)
			return
		}
		g.reject(w, pol, dec)
		return
	}

	g.record(r, pol, key, domain.OutcomeAllowed)
	next.ServeHTTP(w, r)
}

// deriveKey segue a precedência: generator da policy (verbatim), identidade
// do caller, IP. Panic dentro de um generator custom é recuperado aqui e
// tratado como falha de derivação.
func (g *Guard) deriveKey(r *http.Request, pol Policy) (key domain.Key, err error) {
	if pol.KeyFn != nil {
		defer func() {
			if rec := recover(); rec != nil {
				key, err = "", fmt.Errorf("key generator panicked: %v", rec)
			}
		}()
		k := pol.KeyFn(r)
		if k == "" {
			return "", errors.New("key generator returned an empty key")
		}
		return domain.Key(k), nil
	}

	if g.opts.CallerFn != nil {
		if id, ok := g.opts.CallerFn(r); ok {
			return domain.Key("rate_limit:user:" + id), nil
		}
	}

	return domain.Key("rate_limit:ip:" + clientIP(r, g.opts.TrustProxyHeaders)), nil
}

// clientIP: primeiro hop do X-Forwarded-For, depois X-Real-Ip, depois o host
// do peer; "unknown" como último recurso.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
		if rip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); rip != "" {
			return rip
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// setQuotaHeaders emite o par padronizado e o par legado, permitido ou não.
// Remaining nos dois reflete a decisão; Reset é ISO no padronizado e unix
// seconds no legado.
func setQuotaHeaders(w http.ResponseWriter, dec domain.Decision) {
	h := w.Header()
	h.Set("RateLimit-Limit", formatInt(dec.Limit))
	h.Set("RateLimit-Remaining", formatInt(dec.Remaining))
	h.Set("RateLimit-Reset", formatISO(dec.ResetAt))
	h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
	h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
	h.Set("X-RateLimit-Reset", formatUnix(dec.ResetAt))
}

type rejectionBody struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Error      string `json:"error"`
}

func (g *Guard) reject(w http.ResponseWriter, pol Policy, dec domain.Decision) {
	msg := pol.Message
	if msg == "" {
		msg = defaultMessage
	}

	retry := time.Until(dec.ResetAt)
	if retry < 0 {
		retry = 0
	}
	w.Header().Set("Retry-After", formatInt(int(retry.Seconds())+1))

	body, err := json.Marshal(rejectionBody{
		Success:    false,
		StatusCode: http.StatusTooManyRequests,
		Message:    msg,
		Error:      exceededError,
	})
	if err != nil {
		http.Error(w, exceededError, http.StatusTooManyRequests)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write(body)
}

func (g *Guard) record(r *http.Request, pol Policy, key domain.Key, outcome domain.Outcome) {
	if g.opts.Stats == nil {
		return
	}
	_ = g.opts.Stats.Record(r.Context(), domain.StatsEvent{
		Key:     key,
		Policy:  pol.Name,
		Outcome: outcome,
		Method:  r.Method,
		Path:    r.URL.Path,
		At:      time.Now(),
	})
}
