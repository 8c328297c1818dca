package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/snikitin/bookcrawler/internal/crawl"
)

// Extractor classifies fetched pages and pulls book fields out of them.
// The fetcher is only used for the optional reviews deep pass and may be
// nil when that pass is disabled.
type Extractor struct {
	fetcher crawl.Fetcher
	clock   crawl.Clock
	logger  *zap.Logger
}

// New creates an Extractor.
func New(fetcher crawl.Fetcher, clock crawl.Clock, logger *zap.Logger) *Extractor {
	return &Extractor{fetcher: fetcher, clock: clock, logger: logger}
}

// Extract classifies one fetched page. Blocked is detected before anything
// else, then pages resolving to non-book sections are rejected, and only
// then the layered field extraction runs. A page counts as a book when the
// structured data says so or when any layer produced a title.
func (e *Extractor) Extract(_ context.Context, pageURL, html string) crawl.ExtractResult {
	if reason := detectBlocked(html); reason != "" {
		return crawl.ExtractResult{Kind: crawl.PageBlocked, Reason: reason}
	}
	if marker := notBookPath(pageURL); marker != "" {
		return crawl.ExtractResult{
			Kind:   crawl.PageNotBook,
			Reason: fmt.Sprintf("url resolves to a non-book section (%s)", marker),
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return crawl.ExtractResult{Kind: crawl.PageNotBook, Reason: "unparsable html"}
	}

	j := findBookish(parseJSONLD(doc))

	rec := crawl.BookRecord{
		URL:       pageURL,
		ScrapedAt: e.clock.Now().UTC().Format(time.RFC3339),
		Status:    crawl.BookOK,
	}

	var authors []string
	if j != nil {
		rec.Title = asString(j["name"])
		authors = jsonldAuthors(j)
		rec.Rating, rec.RatingCount = jsonldRating(j)
		rec.Price = jsonldPrice(j)
		rec.Genres = joinUnique(jsonldGenres(j))
		rec.Description = asString(j["description"])
		rec.CoverURL = jsonldImage(j)
		rec.Pages = asString(j["numberOfPages"])
	}

	if rec.Title == "" {
		rec.Title = getMeta(doc, "og:title")
	}
	if rec.Title == "" {
		rec.Title = getMeta(doc, "title")
	}
	if rec.Title == "" {
		rec.Title = firstText(doc, titleSelectors)
	}

	if len(authors) == 0 {
		if a := firstText(doc, authorSelectors); a != "" {
			authors = []string{a}
		}
	}
	rec.Authors = joinUnique(authors)

	if rec.Price == "" {
		rec.Price = firstText(doc, priceSelectors)
	}
	if rec.Rating == "" {
		rec.Rating = firstText(doc, ratingSelectors)
	}
	if rec.RatingCount == "" {
		rec.RatingCount = firstText(doc, ratingCountSelectors)
	}
	if rec.Genres == "" {
		rec.Genres = joinUnique(listTexts(doc, genreSelectors))
	}
	if rec.Description == "" {
		rec.Description = getMeta(doc, "og:description")
	}
	if rec.Description == "" {
		rec.Description = getMeta(doc, "description")
	}
	if rec.Description == "" {
		rec.Description = firstText(doc, descriptionSelectors)
	}
	if rec.CoverURL == "" {
		rec.CoverURL = getMeta(doc, "og:image")
	}
	if rec.Pages == "" {
		rec.Pages = firstText(doc, pagesSelectors)
	}

	formats := listTexts(doc, formatSelectors)
	rec.Formats = strings.Join(formats, ", ")
	lowFormats := strings.ToLower(rec.Formats)
	rec.FormatText = flagIf(strings.Contains(lowFormats, "текст"))
	rec.FormatAudio = flagIf(strings.Contains(lowFormats, "аудио"))
	rec.FormatPaper = flagIf(strings.Contains(lowFormats, "бумаж"))

	rec.AgeRestriction = firstText(doc, ageSelectors)
	rec.SeriesTitle = firstText(doc, seriesSelectors)
	rec.InSeries = flagIf(rec.SeriesTitle != "")
	rec.Chapters = strings.Join(listTexts(doc, chapterSelectors), "\n")
	rec.LivelibRating = firstText(doc, livelibRatingSelectors)
	rec.LivelibRatingCount = firstText(doc, livelibRatingCountSelectors)
	rec.ReviewsCount = firstText(doc, reviewsCountSelectors)
	rec.QuotationsCount = firstText(doc, quotationsCountSelectors)

	if j == nil && rec.Title == "" {
		return crawl.ExtractResult{
			Kind:   crawl.PageNotBook,
			Reason: "no layer yielded book-shaped structure",
		}
	}

	res := crawl.ExtractResult{Kind: crawl.PageBook, Book: rec}
	if j != nil {
		for _, er := range jsonldReviews(j) {
			res.Reviews = append(res.Reviews, crawl.ReviewRecord{
				BookURL:     pageURL,
				Author:      er.Author,
				PublishedAt: er.PublishedAt,
				Rating:      er.Rating,
				Text:        er.Text,
				ScrapedAt:   rec.ScrapedAt,
			})
		}
	}
	return res
}

// detectBlocked scans for bot-challenge markers. Returns the marker found
// or empty.
func detectBlocked(html string) string {
	low := strings.ToLower(html)
	for _, marker := range blockedMarkers {
		if strings.Contains(low, marker) {
			return fmt.Sprintf("blocked: page contains %q", marker)
		}
	}
	return ""
}

// notBookPath returns the offending path marker if the URL points at a
// known non-book section.
func notBookPath(pageURL string) string {
	low := strings.ToLower(pageURL)
	for _, marker := range notBookPathMarkers {
		if strings.Contains(low, marker) {
			return marker
		}
	}
	return ""
}

func getMeta(doc *goquery.Document, name string) string {
	for _, attr := range []string{"property", "name"} {
		sel := doc.Find(fmt.Sprintf(`meta[%s=%q]`, attr, name)).First()
		if content, ok := sel.Attr("content"); ok {
			if c := strings.TrimSpace(content); c != "" {
				return c
			}
		}
	}
	return ""
}

// firstText returns the trimmed text of the first selector that matches a
// non-empty element.
func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if t := squashSpace(s.Text()); t != "" {
				found = t
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// listTexts collects texts from the first selector that matches anything,
// deduplicated in document order.
func listTexts(doc *goquery.Document, selectors []string) []string {
	for _, sel := range selectors {
		var out []string
		seen := make(map[string]bool)
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			t := squashSpace(s.Text())
			if t == "" || seen[t] {
				return
			}
			seen[t] = true
			out = append(out, t)
		})
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func joinUnique(items []string) string {
	seen := make(map[string]bool)
	var out []string
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return strings.Join(out, ", ")
}

func squashSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func flagIf(b bool) string {
	if b {
		return "1"
	}
	return ""
}
