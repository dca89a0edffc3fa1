package scripts

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Observer receives the duration of every script run.
type Observer interface {
	ObserveScript(id string, took time.Duration, err error)
}

// Report lists what a run did.
type Report struct {
	Ran     []string
	Skipped []string
}

// Runner executes selected scripts one after another.
type Runner struct {
	registry *Registry
	logger   *slog.Logger
	observer Observer
}

// NewRunner creates a runner over registry. observer may be nil.
func NewRunner(registry *Registry, logger *slog.Logger, observer Observer) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{registry: registry, logger: logger, observer: observer}
}

// Run executes the scripts selected by tags. The first failure stops the
// run; scripts that already ran keep their recorded deployments.
func (r *Runner) Run(ctx context.Context, env *Env, tags []string) (*Report, error) {
	selected, err := r.registry.Select(tags)
	if err != nil {
		return nil, err
	}
	if env.Logger == nil {
		env.Logger = r.logger
	}

	report := &Report{}
	r.logger.Info("running deploy scripts",
		slog.String("network", env.Network),
		slog.Int("count", len(selected)),
		slog.Any("tags", tags),
	)

	for _, s := range selected {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if s.Skip != nil {
			skip, err := s.Skip(ctx, env)
			if err != nil {
				return report, fmt.Errorf("script %s: skip check: %w", s.ID, err)
			}
			if skip {
				r.logger.Info("script skipped", slog.String("script", s.ID))
				report.Skipped = append(report.Skipped, s.ID)
				continue
			}
		}

		start := time.Now()
		err := s.Run(ctx, env)
		took := time.Since(start)
		if r.observer != nil {
			r.observer.ObserveScript(s.ID, took, err)
		}
		if err != nil {
			r.logger.Error("script failed",
				slog.String("script", s.ID),
				slog.String("error", err.Error()),
			)
			return report, fmt.Errorf("script %s: %w", s.ID, err)
		}

		r.logger.Info("script finished",
			slog.String("script", s.ID),
			slog.Duration("took", took),
		)
		report.Ran = append(report.Ran, s.ID)
	}

	return report, nil
}
