package batch

import (
	"context"

	"go.uber.org/zap"

	"github.com/inodb/exonedge/internal/duckdb"
	"github.com/inodb/exonedge/internal/junction"
	"github.com/inodb/exonedge/internal/locus"
)

// CachedSource serves junctions from a DuckDB cache and falls back to the
// wrapped source on a miss, storing what it fetched.
type CachedSource struct {
	source  JunctionSource
	store   *duckdb.Store
	scope   duckdb.FetchScope
	refresh bool
	logger  *zap.Logger
}

// NewCachedSource wraps source with store. scope must describe source: its
// server, compilation and whether it skips malformed lines. It becomes part
// of every cache key.
func NewCachedSource(source JunctionSource, store *duckdb.Store, scope duckdb.FetchScope) *CachedSource {
	return &CachedSource{
		source: source,
		store:  store,
		scope:  scope,
		logger: zap.NewNop(),
	}
}

// SetRefresh forces every Fetch to bypass the cache and overwrite it.
func (c *CachedSource) SetRefresh(refresh bool) {
	c.refresh = refresh
}

// SetLogger sets the logger for warning and debug messages.
func (c *CachedSource) SetLogger(l *zap.Logger) {
	c.logger = l
}

// Fetch returns cached records for l, fetching and caching them on a miss.
// Cache failures are logged and never fail the fetch.
func (c *CachedSource) Fetch(ctx context.Context, l locus.Locus, filters ...string) ([]junction.Record, error) {
	key := duckdb.NewFetchKey(l, c.scope, filters)

	if !c.refresh {
		records, found, err := c.store.LookupJunctions(key)
		if err != nil {
			c.logger.Warn("junction cache lookup failed", zap.String("locus", key.Locus), zap.Error(err))
		} else if found {
			c.logger.Debug("junction cache hit", zap.String("locus", key.Locus), zap.Int("records", len(records)))
			return records, nil
		}
	}

	records, err := c.source.Fetch(ctx, l, filters...)
	if err != nil {
		return nil, err
	}

	if err := c.store.WriteJunctions(key, records); err != nil {
		c.logger.Warn("junction cache write failed", zap.String("locus", key.Locus), zap.Error(err))
	}
	return records, nil
}
