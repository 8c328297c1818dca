package discover

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/snikitin/bookcrawler/internal/crawl"
)

// SitemapWalker discovers book URLs by expanding the sitemap tree announced
// in robots.txt.
type SitemapWalker struct {
	fetcher crawl.Fetcher
	baseURL string
	logger  *zap.Logger
}

// NewSitemapWalker creates a walker rooted at baseURL.
func NewSitemapWalker(fetcher crawl.Fetcher, baseURL string, logger *zap.Logger) *SitemapWalker {
	return &SitemapWalker{fetcher: fetcher, baseURL: baseURL, logger: logger}
}

// Sitemaps reads robots.txt and returns the sitemap URLs it announces,
// deduplicated and sorted. A 404 robots.txt is not an error, it simply
// announces nothing.
func (w *SitemapWalker) Sitemaps(ctx context.Context) ([]string, error) {
	robotsURL, err := url.JoinPath(w.baseURL, "robots.txt")
	if err != nil {
		return nil, fmt.Errorf("build robots url: %w", err)
	}

	body, err := w.fetcher.Bytes(ctx, robotsURL, crawl.WithOKStatuses(200, 404))
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}

	robots, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	seen := make(map[string]bool)
	var sitemaps []string
	for _, sm := range robots.Sitemaps {
		sm = strings.TrimSpace(sm)
		if sm == "" || seen[sm] {
			continue
		}
		seen[sm] = true
		sitemaps = append(sitemaps, sm)
	}
	sort.Strings(sitemaps)
	return sitemaps, nil
}

// sitemapDoc covers both <sitemapindex> and <urlset> documents. With no
// XMLName the decoder accepts either root element.
type sitemapDoc struct {
	SitemapLocs []string `xml:"sitemap>loc"`
	URLLocs     []string `xml:"url>loc"`
}

// Stream expands the given sitemaps breadth-first and sends every book URL
// found inside. Nested sitemaps (any .xml or .xml.gz loc) are fetched too,
// each exactly once. Broken or blocked sitemaps are skipped, not fatal.
// The channel closes when the walk finishes or ctx is canceled.
func (w *SitemapWalker) Stream(ctx context.Context, sitemaps []string) <-chan string {
	out := make(chan string)

	go func() {
		defer close(out)

		seen := make(map[string]bool)
		var worklist []string
		for _, sm := range sitemaps {
			if sm != "" && !seen[sm] {
				seen[sm] = true
				worklist = append(worklist, sm)
			}
		}

		for len(worklist) > 0 {
			if ctx.Err() != nil {
				return
			}
			sm := worklist[0]
			worklist = worklist[1:]

			raw, err := w.fetcher.Bytes(ctx, sm)
			if err != nil {
				w.logger.Warn("skipping sitemap", zap.String("sitemap", sm), zap.Error(err))
				continue
			}
			decoded, err := maybeGunzip(raw, sm)
			if err != nil {
				w.logger.Warn("skipping undecodable sitemap", zap.String("sitemap", sm), zap.Error(err))
				continue
			}

			var doc sitemapDoc
			if err := xml.Unmarshal(decoded, &doc); err != nil {
				w.logger.Warn("skipping unparsable sitemap", zap.String("sitemap", sm), zap.Error(err))
				continue
			}

			for _, loc := range append(doc.SitemapLocs, doc.URLLocs...) {
				loc = strings.TrimSpace(loc)
				if loc == "" || seen[loc] {
					continue
				}
				seen[loc] = true
				if isNestedSitemap(loc) {
					worklist = append(worklist, loc)
					continue
				}
				if !IsBookURL(loc) {
					continue
				}
				select {
				case out <- loc:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func isNestedSitemap(loc string) bool {
	l := strings.ToLower(loc)
	return strings.HasSuffix(l, ".xml") || strings.HasSuffix(l, ".xml.gz")
}

// maybeGunzip decompresses sitemap payloads served as .xml.gz, detected by
// URL suffix or the gzip magic bytes. Content-Encoding is not trusted here:
// some servers ship gzipped bodies without declaring it.
func maybeGunzip(data []byte, srcURL string) ([]byte, error) {
	gzipped := strings.HasSuffix(strings.ToLower(srcURL), ".gz") ||
		(len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b)
	if !gzipped {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip reader: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress sitemap: %w", err)
	}
	return out, nil
}
