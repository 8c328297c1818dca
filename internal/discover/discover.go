package discover

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/snikitin/bookcrawler/internal/crawl"
)

// Discovery picks the configured discovery method and degrades from
// sitemaps to the catalog when the site announces none.
type Discovery struct {
	sitemaps *SitemapWalker
	catalog  *CatalogWalker
	logger   *zap.Logger
}

// New wires both walkers from the crawl configuration.
func New(fetcher crawl.Fetcher, cfg crawl.Config, logger *zap.Logger) *Discovery {
	return &Discovery{
		sitemaps: NewSitemapWalker(fetcher, cfg.BaseURL, logger),
		catalog:  NewCatalogWalker(fetcher, cfg.BaseURL, cfg.MaxPagesPerGenre, logger),
		logger:   logger,
	}
}

// Stream returns a channel of candidate book URLs for the given method.
// With the sitemap method an empty robots.txt announcement falls back to
// the catalog walk instead of silently discovering nothing.
func (d *Discovery) Stream(ctx context.Context, method string) (<-chan string, error) {
	switch method {
	case crawl.MethodCatalog:
		return d.catalog.Stream(ctx), nil
	case crawl.MethodSitemap:
		sitemaps, err := d.sitemaps.Sitemaps(ctx)
		if err != nil {
			return nil, fmt.Errorf("discover sitemaps: %w", err)
		}
		if len(sitemaps) == 0 {
			d.logger.Warn("no sitemaps announced, falling back to catalog walk")
			return d.catalog.Stream(ctx), nil
		}
		d.logger.Info("expanding sitemaps", zap.Int("count", len(sitemaps)))
		return d.sitemaps.Stream(ctx, sitemaps), nil
	default:
		return nil, fmt.Errorf("unknown discovery method %q", method)
	}
}
