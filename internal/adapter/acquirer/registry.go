package acquirer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cwygoda/mixpack/internal/config"
	"github.com/cwygoda/mixpack/internal/domain"
)

// ErrNoAcquirer is recorded when no registered acquirer claims a locator.
var ErrNoAcquirer = errors.New("no acquirer for locator")

// Source is an acquirer that claims locators by pattern.
type Source interface {
	domain.Acquirer
	Name() string
	Match(locator string) bool
}

// Registry holds registered acquirers and dispatches to the first match.
type Registry struct {
	sources []Source
	logger  *slog.Logger
}

var _ domain.Acquirer = (*Registry)(nil)

// NewRegistry creates a new acquirer registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// FromConfig builds a registry with one CommandAcquirer per entry, in order.
func FromConfig(acs []config.AcquirerConfig, logger *slog.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	for _, ac := range acs {
		a, err := NewCommandAcquirer(ac, logger)
		if err != nil {
			return nil, err
		}
		r.Register(a)
	}
	return r, nil
}

// Register adds an acquirer to the registry.
func (r *Registry) Register(s Source) {
	r.sources = append(r.sources, s)
}

// Match returns the first acquirer that matches the locator, or nil.
func (r *Registry) Match(locator string) Source {
	for _, s := range r.sources {
		if s.Match(locator) {
			return s
		}
	}
	return nil
}

// Sources returns all registered acquirers.
func (r *Registry) Sources() []Source {
	return r.sources
}

// Acquire hands item to the first matching acquirer.
func (r *Registry) Acquire(ctx context.Context, item domain.TrackItem, dir string) domain.Outcome {
	locator := item.Locator()
	if locator == "" {
		return domain.Outcome{Label: item.Label(), Err: ErrNoLocator}
	}
	s := r.Match(locator)
	if s == nil {
		r.logger.Warn("no acquirer for locator", "locator", locator)
		return domain.Outcome{Label: item.Label(), Err: ErrNoAcquirer}
	}
	return s.Acquire(ctx, item, dir)
}
