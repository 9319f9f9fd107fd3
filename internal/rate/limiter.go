// Package rate limita la frecuencia de requests por key (ventana fija).
// El contador vive en el cache backend, así el límite es compartido entre
// réplicas cuando el backend es Redis.
package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mindusforge/mindus-web/internal/cache"
)

// Result es el veredicto de un hit.
type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	CurrentHits int64
}

// Limiter decide si una key puede seguir pegando.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// FixedWindow: ventana fija sencilla (INCR + EXPIRE en el primer hit).
type FixedWindow struct {
	Cache  cache.Client
	Prefix string
	Max    int64
	Window time.Duration
}

// NewFixedWindow crea un limiter de ventana fija.
func NewFixedWindow(c cache.Client, prefix string, max int, window time.Duration) *FixedWindow {
	if prefix == "" {
		prefix = "rl:"
	}
	return &FixedWindow{Cache: c, Prefix: prefix, Max: int64(max), Window: window}
}

func (l *FixedWindow) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	winStart := now.Truncate(l.Window)
	counterKey := fmt.Sprintf("%s%s:%d", l.Prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())

	hits, err := l.Cache.Incr(ctx, counterKey, l.Window)
	if err != nil {
		return Result{}, err
	}

	allowed := hits <= l.Max
	remaining := l.Max - hits
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Allowed:     allowed,
		Remaining:   remaining,
		CurrentHits: hits,
	}
	if !allowed {
		// Retry after: resto de la ventana actual.
		res.RetryAfter = winStart.Add(l.Window).Sub(now)
	}
	return res, nil
}
