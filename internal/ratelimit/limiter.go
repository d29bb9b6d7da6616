// Package ratelimit implements fixed-window admission counters keyed by an
// identifier (IP address, normalized email or a global key).
package ratelimit

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"marketing-api/internal/config"
)

// GlobalKey is the identifier used by tables that count every request together.
const GlobalKey = "global"

// Store holds counter records. Admit must be atomic per key: it either
// creates/replaces an expired record with count 1, increments a live record
// below max, or rejects without touching state.
type Store interface {
	Admit(ctx context.Context, key string, max int, window time.Duration) (bool, error)
}

// Limiter is one named counter table. Tables sharing a Store never see each
// other's keys.
type Limiter struct {
	name   string
	rule   config.Rule
	store  Store
	logger *zap.Logger
}

func NewLimiter(name string, rule config.Rule, store Store, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{name: name, rule: rule, store: store, logger: logger}
}

func (l *Limiter) Name() string {
	return l.name
}

func (l *Limiter) Rule() config.Rule {
	return l.rule
}

// Admit reports whether identifier may proceed. A failing store admits the
// request: limiting is best-effort and must not take the forms down.
func (l *Limiter) Admit(ctx context.Context, identifier string) bool {
	key := l.name + ":" + strings.TrimSpace(identifier)

	ok, err := l.store.Admit(ctx, key, l.rule.Max, l.rule.Window)
	if err != nil {
		l.logger.Warn("Rate limit store failed, admitting request",
			zap.String("table", l.name),
			zap.Error(err),
		)
		return true
	}
	if !ok {
		l.logger.Info("Rate limit exceeded",
			zap.String("table", l.name),
			zap.Int("max", l.rule.Max),
			zap.Duration("window", l.rule.Window),
		)
	}
	return ok
}
