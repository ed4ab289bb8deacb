package photometry

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/galsynth/internal/artifact"
)

// Cache persists photometry lists as JSON files.
type Cache struct {
	filters FilterSet
	logger  *slog.Logger
}

// NewCache creates a cache that validates loaded bands against filters.
func NewCache(filters FilterSet, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{filters: filters, logger: logger}
}

// Load reads the list at path. A missing file yields core.ErrCacheMiss.
func (c *Cache) Load(path string) ([]Photometry, error) {
	var records []record
	if err := artifact.ReadJSON(path, &records); err != nil {
		return nil, err
	}

	out := make([]Photometry, 0, len(records))
	for i, r := range records {
		p, err := r.decode(c.filters)
		if err != nil {
			return nil, fmt.Errorf("invalid cached photometry entry %d in %s: %w", i, path, err)
		}
		out = append(out, p)
	}

	c.logger.Info("loaded photometry from cache", slog.String("path", path), slog.Int("bands", len(out)))
	return out, nil
}

// Store writes list to path, replacing any previous content.
func (c *Cache) Store(path string, list []Photometry) error {
	if list == nil {
		list = []Photometry{}
	}
	if err := artifact.WriteJSON(path, list); err != nil {
		return fmt.Errorf("failed to store photometry: %w", err)
	}
	c.logger.Info("exported photometry to cache", slog.String("path", path), slog.Int("bands", len(list)))
	return nil
}
