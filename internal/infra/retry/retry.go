// Package retry оборачивает вызовы внешних сервисов в ограниченный повтор
// с экспоненциальной задержкой.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"voice-briefing/internal/infra/metrics"
)

// Policy задаёт число попыток и стартовую задержку.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy используется, если конфиг не задан.
var DefaultPolicy = Policy{MaxAttempts: 3, InitialInterval: 300 * time.Millisecond, MaxInterval: 3 * time.Second}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultPolicy.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultPolicy.MaxInterval
	}
	return p
}

// Permanent помечает ошибку как неповторяемую.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do выполняет fn, повторяя её при ошибке не более MaxAttempts раз.
// Отмена ctx прерывает ожидание между попытками.
func Do(ctx context.Context, p Policy, component string, logger zerolog.Logger, fn func(ctx context.Context) error) error {
	p = p.normalized()
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return fn(ctx)
	}
	notify := func(err error, wait time.Duration) {
		metrics.CollaboratorRetries.WithLabelValues(component).Inc()
		logger.Warn().Err(err).Dur("wait", wait).Str("target", component).Msg("retry: повтор вызова")
	}
	return backoff.RetryNotify(operation, policy, notify)
}
