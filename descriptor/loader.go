package descriptor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/supplychain-registry-client/interfaces"
)

// Loader fetches the descriptor from the first source that has it.
type Loader struct {
	sources []interfaces.DescriptorSource
	log     *slog.Logger
}

// NewLoader creates a loader trying sources in order.
func NewLoader(sources []interfaces.DescriptorSource, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{
		sources: sources,
		log:     log,
	}
}

// Fetch returns the raw document from the first available source that serves it.
func (l *Loader) Fetch(ctx context.Context) ([]byte, error) {
	start := time.Now()
	var errs []error

	for _, source := range l.sources {
		if !source.Available(ctx) {
			l.log.Debug("Descriptor source unavailable", slog.String("source", source.Name()))
			errs = append(errs, fmt.Errorf("%s: %w", source.Name(), interfaces.ErrBackendUnavailable))
			continue
		}

		data, err := source.Fetch(ctx)
		if err == nil {
			l.log.Info("Fetched registry descriptor",
				slog.String("source", source.Name()),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", source.Name(), err))
		l.log.Debug("Failed to fetch descriptor from source",
			slog.String("source", source.Name()),
			"err", err)
	}

	l.log.Error("All descriptor sources failed",
		slog.Int("failed_sources", len(errs)),
		slog.Duration("duration", time.Since(start)))

	if len(errs) == 0 {
		return nil, interfaces.ErrContentNotFound
	}
	return nil, fmt.Errorf("all descriptor sources failed: %w", errors.Join(errs...))
}

// Load fetches and parses the descriptor.
func (l *Loader) Load(ctx context.Context) (*interfaces.Descriptor, error) {
	data, err := l.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrDescriptorLoadFailed, err)
	}
	return Parse(data)
}

// Available reports whether any source is available.
func (l *Loader) Available(ctx context.Context) bool {
	for _, source := range l.sources {
		if source.Available(ctx) {
			return true
		}
	}
	return false
}

func (l *Loader) Name() string {
	return "descriptor-loader"
}

func (l *Loader) LocationURI() string {
	locations := make([]string, 0, len(l.sources))
	for _, source := range l.sources {
		locations = append(locations, source.LocationURI())
	}
	return "multi:[" + strings.Join(locations, ",") + "]"
}
