// utilitário pequeno para formatação rápida/consistente de valores em headers.
// Evita puxar fmt (que é mais “pesado” e genérico) só para formatação simples.

package admission

import (
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

// formatUnix: segundos desde epoch, para os headers X-RateLimit-* legados.
func formatUnix(t time.Time) string { return strconv.FormatInt(t.Unix(), 10) }

// formatISO: ISO-8601/RFC3339 em UTC, para os headers RateLimit-* padronizados.
func formatISO(t time.Time) string { return t.UTC().Format(time.RFC3339) }
