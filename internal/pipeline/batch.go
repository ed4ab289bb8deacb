package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/galsynth/internal/galaxy"
)

// BatchResult pairs each input galaxy with its outcome or failure.
type BatchResult struct {
	Galaxy  *galaxy.Galaxy
	Outcome *Outcome
	Err     error
}

// RunBatch runs RunOnGalaxy over galaxies with up to Concurrency in flight.
// Galaxies sharing a source name are processed once, since they would write
// the same directory. A failed galaxy does not stop the others; the returned
// error joins every failure.
func (p *Pipeline) RunBatch(ctx context.Context, galaxies []*galaxy.Galaxy, useCache bool) ([]BatchResult, error) {
	seen := make(map[string]bool, len(galaxies))
	var unique []*galaxy.Galaxy
	for _, g := range galaxies {
		if seen[g.SourceName()] {
			p.cfg.Logger.Warn("skipping duplicate source in batch", slog.String("source", g.SourceName()))
			continue
		}
		seen[g.SourceName()] = true
		unique = append(unique, g)
	}

	results := make([]BatchResult, len(unique))
	var eg errgroup.Group
	eg.SetLimit(p.cfg.Concurrency)

	for i, g := range unique {
		eg.Go(func() error {
			results[i].Galaxy = g
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Outcome, results[i].Err = p.RunOnGalaxy(ctx, g, useCache)
			if results[i].Err != nil {
				p.cfg.Logger.Error("galaxy failed", slog.String("source", g.SourceName()),
					slog.Any("error", results[i].Err))
			}
			return nil
		})
	}
	_ = eg.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	p.cfg.Logger.Info("batch complete", slog.Int("galaxies", len(results)), slog.Int("failed", len(errs)))
	return results, errors.Join(errs...)
}
