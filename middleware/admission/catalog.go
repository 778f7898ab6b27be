package admission

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"social-gateway/middleware/admission/domain"
)

// KeyFunc deriva a chave de rate limit a partir do request. O retorno é usado
// verbatim; string vazia é tratada como falha de derivação (fail-open).
type KeyFunc func(r *http.Request) string

// ExceededFunc dá à policy controle total sobre a resposta de rejeição.
type ExceededFunc func(w http.ResponseWriter, r *http.Request, dec domain.Decision)

// Policy é uma política de admissão nomeada, anexada a rotas pelo wiring do
// gateway. Imutável depois do registro; declarada na inicialização.
type Policy struct {
	Name    string
	Window  time.Duration
	Max     int
	Message string

	// KeyFn, quando definido, substitui a derivação padrão (caller → IP).
	KeyFn KeyFunc
	// OnExceeded, quando definido, substitui a resposta 429 padrão.
	OnExceeded ExceededFunc
}

func (p Policy) limits() domain.Limits {
	return domain.Limits{Window: p.Window, Max: p.Max}
}

// Catalog é o registro estático de policies: populado na inicialização,
// consultado por nome a cada request. Configuração, não lógica.
type Catalog struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

func NewCatalog() *Catalog {
	return &Catalog{policies: make(map[string]Policy)}
}

func (c *Catalog) Register(p Policy) error {
	if p.Name == "" {
		return fmt.Errorf("admission: policy name is required")
	}
	if !p.limits().Valid() {
		return fmt.Errorf("admission: policy %q must have positive window and max", p.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.policies[p.Name]; exists {
		return fmt.Errorf("admission: policy %q already registered", p.Name)
	}
	c.policies[p.Name] = p
	return nil
}

// MustRegister é o atalho para o wiring de inicialização, onde uma policy
// inválida é erro de programação.
func (c *Catalog) MustRegister(p Policy) {
	if err := c.Register(p); err != nil {
		panic(err)
	}
}

func (c *Catalog) Resolve(name string) (Policy, bool) {
	if c == nil {
		return Policy{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.policies[name]
	return p, ok
}
