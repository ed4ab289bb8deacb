package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/galsynth/internal/artifact"
	"github.com/leapstack-labs/galsynth/internal/galaxy"
	"github.com/leapstack-labs/galsynth/pkg/core"
)

// HostRadiusArcsec is the search radius for the host galaxy.
const HostRadiusArcsec = 10.0

// HostLocator finds the host nearest to a transient position.
type HostLocator interface {
	Nearest(ctx context.Context, pos core.Position, radiusArcsec float64) (core.Position, error)
}

// Config holds resolver collaborators.
type Config struct {
	// SkyPortal is optional; without a token TNS is used directly.
	SkyPortal *SkyPortal
	TNS       *TNS
	Hosts     HostLocator

	// DataDir holds the tns_info.json caches.
	DataDir string

	Logger *slog.Logger
}

// Resolver maps transient names to host galaxies.
type Resolver struct {
	cfg Config
}

// New applies defaults to cfg.
func New(cfg Config) *Resolver {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{cfg: cfg}
}

// SourceInfo returns the transient's coordinates and redshift. SkyPortal is
// preferred when reachable; a SkyPortal lookup failure falls back to TNS.
func (r *Resolver) SourceInfo(ctx context.Context, name string, useCache bool) (*SourceInfo, error) {
	if r.cfg.SkyPortal.HasToken() && r.cfg.SkyPortal.Ping(ctx) {
		info, err := r.cfg.SkyPortal.Source(ctx, name)
		if err == nil {
			return info, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.cfg.Logger.Debug("SkyPortal lookup failed, falling back to TNS",
			slog.String("name", name), slog.Any("error", err))
	}
	return r.tnsInfo(ctx, name, useCache)
}

func (r *Resolver) tnsInfo(ctx context.Context, name string, useCache bool) (*SourceInfo, error) {
	if r.cfg.TNS == nil {
		return nil, fmt.Errorf("%w: no TNS client configured", core.ErrExternalService)
	}
	path := galaxy.OutputDir(r.cfg.DataDir, name).TNSInfo()

	if useCache {
		var info SourceInfo
		err := artifact.ReadJSON(path, &info)
		switch {
		case err == nil:
			r.cfg.Logger.Info("loading cached TNS data", slog.String("name", name))
			return &info, nil
		case !errors.Is(err, core.ErrCacheMiss):
			return nil, err
		}
	}

	r.cfg.Logger.Info("downloading TNS data", slog.String("name", name))
	info, err := r.cfg.TNS.Download(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := artifact.WriteJSON(path, info); err != nil {
		return nil, err
	}
	r.cfg.Logger.Info("saved TNS data", slog.String("path", path))
	return info, nil
}

// ByName resolves name and returns a galaxy centred on the nearest host,
// carrying the transient's redshift when known.
func (r *Resolver) ByName(ctx context.Context, name string, useCache bool) (*galaxy.Galaxy, error) {
	info, err := r.SourceInfo(ctx, name, useCache)
	if err != nil {
		return nil, err
	}
	pos, err := info.Position()
	if err != nil {
		return nil, err
	}
	if r.cfg.Hosts == nil {
		return nil, fmt.Errorf("%w: no host catalog configured", core.ErrExternalService)
	}

	host, err := r.cfg.Hosts.Nearest(ctx, pos, HostRadiusArcsec)
	if err != nil {
		return nil, fmt.Errorf("failed to find host of %s: %w", name, err)
	}
	r.cfg.Logger.Info("resolved host", slog.String("name", name), slog.String("origin", info.Origin),
		slog.Float64("ra", host.RA), slog.Float64("dec", host.Dec))

	return galaxy.New(name, host.RA, host.Dec, info.Redshift)
}
