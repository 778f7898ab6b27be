package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"social-gateway/middleware/admission"
	"social-gateway/middleware/admission/application"
	"social-gateway/middleware/admission/domain"
	"social-gateway/middleware/admission/infra"
	"social-gateway/middleware/identity"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Store de contagem compartilhado: com Redis o limite é global entre as
	// instâncias do gateway; sem Redis cai para a janela em memória (mesma
	// semântica, mas por instância — só para dev/single-instance).
	var (
		windowStore domain.WindowStore
		statsStore  domain.StatsStore
	)
	if cfg.redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:        cfg.redisAddr,
			Password:    cfg.redisPassword,
			DB:          cfg.redisDB,
			MaxRetries:  cfg.redisMaxRetries,
			DialTimeout: 2 * time.Second,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			// não derruba o boot: o guard fica em fail-open até o store voltar
			log.Printf("redis ping error (admission fails open until the store recovers): %v", err)
		}
		pingCancel()

		windowStore = infra.NewRedisWindowStore(rdb, infra.WithKeyPrefix(cfg.rateKeyPrefix))
		if cfg.statsEnabled {
			statsStore = infra.NewRedisStatsStore(rdb, infra.WithStatsTrackKeys(cfg.statsTrackKeys))
		}
	} else {
		mem := infra.NewMemoryWindowStore()
		mem.StartJanitor(ctx)
		windowStore = mem
		log.Printf("REDIS_ADDR not set: using in-memory window store (limits are per-instance)")
	}

	catalog := admission.NewCatalog()
	if cfg.rateEnabled {
		registerPolicies(catalog)
	} else {
		// catálogo vazio = nenhuma rota resolve policy = tudo passa intocado
		log.Printf("rate limiting disabled by config")
	}

	guard := admission.NewGuard(admission.Options{
		Windows:           application.Service{Store: windowStore},
		Catalog:           catalog,
		Stats:             statsStore,
		CallerFn:          identity.CallerID,
		TrustProxyHeaders: cfg.trustXFF,
	})

	var shield *infra.Shield
	if cfg.shieldRPS > 0 {
		shield = infra.NewShield(cfg.shieldRPS, cfg.shieldBurst)
		shield.StartJanitor(ctx)
	}

	gw := &gateway{
		cfg:    cfg,
		guard:  guard,
		shield: shield,
	}
	if gw.auth, err = newProxy("auth", cfg.authUpstream); err != nil {
		log.Fatalf("invalid AUTH_UPSTREAM_URL: %v", err)
	}
	if gw.profile, err = newProxy("profile", cfg.profileUpstream); err != nil {
		log.Fatalf("invalid PROFILE_UPSTREAM_URL: %v", err)
	}
	if gw.wallet, err = newProxy("wallet", cfg.walletUpstream); err != nil {
		log.Fatalf("invalid WALLET_UPSTREAM_URL: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           gw.mount(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("gateway listening on %s", cfg.listenAddr)
	log.Printf("upstreams: auth=%s profile=%s wallet=%s", cfg.authUpstream, cfg.profileUpstream, cfg.walletUpstream)
	log.Printf("admission: enabled=%v redisAddr=%q keyPrefix=%q trustXFF=%v stats=%v", cfg.rateEnabled, cfg.redisAddr, cfg.rateKeyPrefix, cfg.trustXFF, cfg.statsEnabled)
	log.Printf("concurrency: max=%d acquireTimeout=%s; shield: rps=%.1f burst=%d", cfg.concurrencyMax, cfg.concurrencyTimeout, cfg.shieldRPS, cfg.shieldBurst)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

type gateway struct {
	cfg    config
	guard  *admission.Guard
	shield *infra.Shield

	auth    http.Handler
	profile http.Handler
	wallet  http.Handler
}

// mount monta as rotas. Cada grupo declara a policy de admissão que o
// protege; rotas sem Limit ficam deliberadamente sem throttling (ex: health).
func (gw *gateway) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(admission.ConcurrencyMiddleware(admission.ConcurrencyOptions{
		Max:            gw.cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: gw.cfg.concurrencyTimeout,
	}))
	r.Use(identity.Middleware(gw.cfg.authSecret))

	r.Get("/v1/health", gw.healthHandler)

	r.Route("/v1/auth", func(r chi.Router) {
		r.Use(gw.shieldFor("auth"))
		r.With(gw.guard.Limit("auth-register")).Post("/user", gw.auth.ServeHTTP)
		r.With(gw.guard.Limit("auth-login")).Post("/token", gw.auth.ServeHTTP)
		r.With(gw.guard.Limit("public-read")).Handle("/*", gw.auth)
	})

	r.Route("/v1/users", func(r chi.Router) {
		r.Use(gw.shieldFor("profile"), gw.guard.Limit("user-default"))
		r.Handle("/*", gw.profile)
	})

	r.Route("/v1/relationships", func(r chi.Router) {
		r.Use(gw.shieldFor("profile"), gw.guard.Limit("user-default"))
		r.Handle("/*", gw.profile)
	})

	r.Route("/v1/wallets", func(r chi.Router) {
		r.Use(gw.shieldFor("wallet"), gw.guard.Limit("user-default"))
		r.Handle("/*", gw.wallet)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(gw.shieldFor("profile"), gw.guard.Limit("admin-ops"))
		r.Handle("/*", gw.profile)
	})

	return r
}

func (gw *gateway) shieldFor(upstream string) func(http.Handler) http.Handler {
	return admission.ShieldMiddleware(admission.ShieldOptions{
		Shield:   gw.shield,
		Upstream: upstream,
	})
}

func (gw *gateway) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// registerPolicies declara o catálogo estático do gateway, agrupado por
// classe de sujeito: fluxo de auth (janela longa, teto baixo), usuário
// autenticado (janela curta, teto maior), admin (chave própria) e anônimo.
func registerPolicies(c *admission.Catalog) {
	c.MustRegister(admission.Policy{
		Name:    "auth-login",
		Window:  15 * time.Minute,
		Max:     5,
		Message: "Too many login attempts, please try again later.",
	})
	c.MustRegister(admission.Policy{
		Name:    "auth-register",
		Window:  time.Hour,
		Max:     3,
		Message: "Too many accounts created from this address, please try again later.",
	})
	c.MustRegister(admission.Policy{
		Name:   "user-default",
		Window: time.Minute,
		Max:    60,
	})
	c.MustRegister(admission.Policy{
		Name:   "admin-ops",
		Window: time.Minute,
		Max:    30,
		// dois admins atrás do mesmo IP não dividem cota
		KeyFn: func(r *http.Request) string {
			if id, ok := identity.CallerID(r); ok {
				return "admin:" + id
			}
			return "admin:anonymous"
		},
	})
	c.MustRegister(admission.Policy{
		Name:   "public-read",
		Window: time.Minute,
		Max:    120,
	})
}

func newProxy(name, rawURL string) (http.Handler, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("proxy error (%s upstream): %v", name, err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}
	return proxy, nil
}

type config struct {
	listenAddr string

	authUpstream    string
	profileUpstream string
	walletUpstream  string

	authSecret string

	redisAddr       string
	redisPassword   string
	redisDB         int
	redisMaxRetries int

	rateEnabled   bool
	rateKeyPrefix string
	trustXFF      bool

	statsEnabled   bool
	statsTrackKeys bool

	concurrencyMax     int
	concurrencyTimeout time.Duration

	shieldRPS   float64
	shieldBurst int
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.authUpstream = os.Getenv("AUTH_UPSTREAM_URL")
	cfg.profileUpstream = os.Getenv("PROFILE_UPSTREAM_URL")
	cfg.walletUpstream = os.Getenv("WALLET_UPSTREAM_URL")
	cfg.authSecret = getenvDefault("AUTH_SECRET", "dev-only-secret")

	cfg.redisAddr = os.Getenv("REDIS_ADDR")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)
	cfg.redisMaxRetries = getenvIntDefault("REDIS_MAX_RETRIES", 1)

	cfg.rateEnabled = getenvBoolDefault("RATE_ENABLED", true)
	cfg.rateKeyPrefix = getenvDefault("RATE_KEY_PREFIX", "gw:ratelimit")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", true)

	cfg.statsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.statsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false)

	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.shieldRPS = getenvFloatDefault("UPSTREAM_RPS", 0)
	cfg.shieldBurst = getenvIntDefault("UPSTREAM_BURST", 50)

	for _, u := range []struct{ name, val string }{
		{"AUTH_UPSTREAM_URL", cfg.authUpstream},
		{"PROFILE_UPSTREAM_URL", cfg.profileUpstream},
		{"WALLET_UPSTREAM_URL", cfg.walletUpstream},
	} {
		if strings.TrimSpace(u.val) == "" {
			return config{}, errors.New(u.name + " is required")
		}
	}
	if cfg.redisMaxRetries < 0 {
		return config{}, errors.New("REDIS_MAX_RETRIES must be >= 0")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if cfg.shieldRPS > 0 && cfg.shieldBurst <= 0 {
		return config{}, errors.New("UPSTREAM_BURST must be > 0 when UPSTREAM_RPS is set")
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
