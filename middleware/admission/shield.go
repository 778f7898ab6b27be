package admission

import (
	"net/http"

	"social-gateway/middleware/admission/infra"
)

type ShieldOptions struct {
	Shield   *infra.Shield
	Upstream string
	// RejectStatus padrão é 503: o backend está no limite, não o cliente.
	RejectStatus int
}

// ShieldMiddleware protege um backend específico: independente de qual
// cliente passou pela admissão, o total encaminhado ao upstream respeita o
// bucket dele.
func ShieldMiddleware(opts ShieldOptions) func(next http.Handler) http.Handler {
	if opts.Shield == nil || opts.Upstream == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !opts.Shield.Allow(opts.Upstream) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
