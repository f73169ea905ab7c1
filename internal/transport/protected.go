package transport

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskhive/pulse/internal/circuitbreaker"
	"github.com/taskhive/pulse/internal/db"
)

// Protected wraps an external transport with a circuit breaker. When the
// downstream channel API is failing, the circuit opens and sends fail
// fast as a non-fatal Failed result instead of piling up on a dead
// service. The in-app transport is never wrapped: its store is local.
type Protected struct {
	inner   Transport
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewProtected wraps a transport with circuit breaker protection.
func NewProtected(inner Transport, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *Protected {
	return &Protected{inner: inner, breaker: breaker, logger: logger}
}

func (p *Protected) Channel() db.Channel { return p.inner.Channel() }

func (p *Protected) Send(ctx context.Context, userID uuid.UUID, msg Message) Result {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected send",
			zap.String("breaker", p.breaker.Name()),
			zap.String("channel", string(p.inner.Channel())),
			zap.String("user_id", userID.String()),
		)
		return Failed(p.inner.Channel(), fmt.Errorf("%w: %s transport unavailable", circuitbreaker.ErrCircuitOpen, p.breaker.Name()))
	}

	result := p.inner.Send(ctx, userID, msg)

	// Skips are not downstream failures; only a Failed send trips the breaker.
	if result.Status == StatusFailed {
		p.breaker.RecordFailure()
	} else {
		p.breaker.RecordSuccess()
	}

	return result
}

// Breaker exposes the underlying circuit breaker for stats endpoints.
func (p *Protected) Breaker() *circuitbreaker.CircuitBreaker {
	return p.breaker
}
