package discover

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/snikitin/bookcrawler/internal/crawl"
)

// genresPath lists every genre of the catalog on one page.
const genresPath = "/pages/new_genres/"

// CatalogWalker discovers book URLs by paging through each genre of the
// public catalog. Slower than sitemaps but works when none are announced.
type CatalogWalker struct {
	fetcher          crawl.Fetcher
	baseURL          string
	maxPagesPerGenre int
	logger           *zap.Logger
}

// NewCatalogWalker creates a walker rooted at baseURL. maxPagesPerGenre
// caps pagination inside a single genre.
func NewCatalogWalker(fetcher crawl.Fetcher, baseURL string, maxPagesPerGenre int, logger *zap.Logger) *CatalogWalker {
	if maxPagesPerGenre <= 0 {
		maxPagesPerGenre = 1
	}
	return &CatalogWalker{
		fetcher:          fetcher,
		baseURL:          baseURL,
		maxPagesPerGenre: maxPagesPerGenre,
		logger:           logger,
	}
}

// GenreURLs fetches the genres index and returns absolute genre page URLs
// in document order, deduplicated.
func (w *CatalogWalker) GenreURLs(ctx context.Context) ([]string, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	indexURL, err := url.JoinPath(w.baseURL, genresPath)
	if err != nil {
		return nil, fmt.Errorf("build genres url: %w", err)
	}

	html, err := w.fetcher.Text(ctx, indexURL)
	if err != nil {
		return nil, fmt.Errorf("fetch genres index: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse genres index: %w", err)
	}

	seen := make(map[string]bool)
	var genres []string
	doc.Find(`a[href^="/genre/"]`).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		u := base.ResolveReference(ref).String()
		if !seen[u] {
			seen[u] = true
			genres = append(genres, u)
		}
	})
	return genres, nil
}

// Stream walks every genre page by page and sends book URLs as they are
// found. Pagination inside a genre stops at the first page yielding no new
// book links or at the page cap. A genre that fails to fetch is skipped.
// The channel closes when the walk finishes or ctx is canceled.
func (w *CatalogWalker) Stream(ctx context.Context) <-chan string {
	out := make(chan string)

	go func() {
		defer close(out)

		genres, err := w.GenreURLs(ctx)
		if err != nil {
			w.logger.Warn("genre discovery failed", zap.Error(err))
			return
		}
		w.logger.Info("walking catalog", zap.Int("genres", len(genres)))

		for _, genre := range genres {
			if ctx.Err() != nil {
				return
			}
			if !w.walkGenre(ctx, genre, out) {
				return
			}
		}
	}()

	return out
}

// walkGenre pages through one genre. Returns false only when ctx ended the
// whole walk.
func (w *CatalogWalker) walkGenre(ctx context.Context, genreURL string, out chan<- string) bool {
	genreBase, err := url.Parse(genreURL)
	if err != nil {
		w.logger.Warn("skipping genre with bad url", zap.String("genre", genreURL), zap.Error(err))
		return true
	}

	seenInGenre := make(map[string]bool)
	for page := 1; page <= w.maxPagesPerGenre; page++ {
		pageURL := genreURL
		if page > 1 {
			pageURL = fmt.Sprintf("%s?page=%d", genreURL, page)
		}

		html, err := w.fetcher.Text(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			w.logger.Warn("genre page fetch failed", zap.String("page", pageURL), zap.Error(err))
			return true
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			w.logger.Warn("genre page parse failed", zap.String("page", pageURL), zap.Error(err))
			return true
		}

		var found []string
		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			if !ok {
				return
			}
			if !strings.Contains(href, "/book/") && !strings.Contains(href, "/audiobook/") {
				return
			}
			// Tracking params vary per placement; strip them so dedupe works.
			href, _, _ = strings.Cut(href, "?")
			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			u := genreBase.ResolveReference(ref).String()
			if !IsBookURL(u) || seenInGenre[u] {
				return
			}
			seenInGenre[u] = true
			found = append(found, u)
		})

		if len(found) == 0 {
			return true
		}
		for _, u := range found {
			select {
			case out <- u:
			case <-ctx.Done():
				return false
			}
		}
	}
	return true
}
