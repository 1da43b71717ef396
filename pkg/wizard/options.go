package wizard

import (
	"log/slog"
	"time"

	"github.com/goliatone/go-formwizard/pkg/persist"
	"github.com/goliatone/go-formwizard/pkg/visibility"
)

// Option customises a Session.
type Option func(*Session)

// WithLogger sets the structured logger. Nil keeps the discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVisibility replaces the visibility rules. Steps at or before the
// current index stay displayable whatever the resolver says.
func WithVisibility(resolver visibility.Resolver) Option {
	return func(s *Session) {
		if resolver != nil {
			s.resolver = resolver
			s.explain = false
		}
	}
}

// WithID fixes the session id instead of generating one.
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithClock overrides the time source used for activity tracking.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAdapterOptions forwards options to the persistence adapter.
func WithAdapterOptions(options ...persist.Option) Option {
	return func(s *Session) {
		s.adapterOptions = append(s.adapterOptions, options...)
	}
}
