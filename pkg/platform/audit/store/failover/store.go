// Package failover writes audit events to a primary sink and falls back to a
// secondary store while the primary keeps failing.
package failover

import (
	"context"
	"log/slog"

	audit "sprout/pkg/platform/audit"
	"sprout/pkg/platform/circuit"
)

type Store struct {
	primary  audit.Store
	fallback audit.Store
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

type Option func(*Store)

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Store) {
		if b != nil {
			s.breaker = b
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func New(primary, fallback audit.Store, opts ...Option) *Store {
	s := &Store{
		primary:  primary,
		fallback: fallback,
		breaker:  circuit.New("audit_primary"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append writes to the primary unless the breaker refuses it. Refused events
// and events the primary rejects go to the fallback.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if !s.breaker.Allow() {
		return s.fallback.Append(ctx, event)
	}
	err := s.primary.Append(ctx, event)
	if err == nil {
		if _, change := s.breaker.RecordSuccess(); change.Closed {
			s.logger.Info("audit primary recovered", "breaker", s.breaker.Name())
		}
		return nil
	}

	_, change := s.breaker.RecordFailure()
	if change.Opened {
		s.logger.Warn("audit primary failing, circuit opened",
			"breaker", s.breaker.Name(),
			"error", err,
		)
	}
	return s.fallback.Append(ctx, event)
}

// Degraded reports whether the breaker is open.
func (s *Store) Degraded() bool {
	return s.breaker.IsOpen()
}
