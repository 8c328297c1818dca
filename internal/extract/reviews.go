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

// reviewsSubPath is appended to a book URL to reach its full reviews page.
const reviewsSubPath = "otzivi/"

// ExtractReviews collects reader reviews for the book at pageURL. Reviews
// embedded in the page itself (structured data or markup) are preferred;
// when the page carries none and a fetcher is available, the dedicated
// reviews sub-page is fetched and parsed under the same blocked guard.
func (e *Extractor) ExtractReviews(ctx context.Context, pageURL, html string) ([]crawl.ReviewRecord, error) {
	if reason := detectBlocked(html); reason != "" {
		return nil, &crawl.BlockedError{URL: pageURL, Reason: reason}
	}

	scrapedAt := e.clock.Now().UTC().Format(time.RFC3339)
	reviews, err := e.reviewsFromHTML(pageURL, html, scrapedAt)
	if err != nil {
		return nil, err
	}
	if len(reviews) > 0 || e.fetcher == nil {
		return reviews, nil
	}

	deepURL := joinPath(pageURL, reviewsSubPath)
	deepHTML, err := e.fetcher.Text(ctx, deepURL)
	if err != nil {
		return nil, fmt.Errorf("fetch reviews page: %w", err)
	}
	if reason := detectBlocked(deepHTML); reason != "" {
		return nil, &crawl.BlockedError{URL: deepURL, Reason: reason}
	}
	e.logger.Debug("deep reviews pass", zap.String("url", deepURL))
	return e.reviewsFromHTML(pageURL, deepHTML, scrapedAt)
}

// reviewsFromHTML parses both structured-data reviews and review markup
// blocks out of one document.
func (e *Extractor) reviewsFromHTML(bookURL, html, scrapedAt string) ([]crawl.ReviewRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse reviews html: %w", err)
	}

	var reviews []crawl.ReviewRecord
	if j := findBookish(parseJSONLD(doc)); j != nil {
		for _, er := range jsonldReviews(j) {
			reviews = append(reviews, crawl.ReviewRecord{
				BookURL:     bookURL,
				Author:      er.Author,
				PublishedAt: er.PublishedAt,
				Rating:      er.Rating,
				Text:        er.Text,
				ScrapedAt:   scrapedAt,
			})
		}
	}

	for _, sel := range reviewBlockSelectors {
		blocks := doc.Find(sel)
		if blocks.Length() == 0 {
			continue
		}
		blocks.Each(func(_ int, block *goquery.Selection) {
			if rec, ok := parseReviewBlock(block, bookURL, scrapedAt); ok {
				reviews = append(reviews, rec)
			}
		})
		break
	}
	return reviews, nil
}

func parseReviewBlock(block *goquery.Selection, bookURL, scrapedAt string) (crawl.ReviewRecord, bool) {
	rec := crawl.ReviewRecord{
		BookURL:       bookURL,
		Author:        firstTextIn(block, reviewAuthorSelectors),
		PublishedAt:   reviewDate(block),
		Text:          firstTextIn(block, reviewTextSelectors),
		Likes:         firstTextIn(block, reviewLikesSelectors),
		Dislikes:      firstTextIn(block, reviewDislikesSelectors),
		CommentsCount: firstTextIn(block, reviewCommentsSelectors),
		IsLivelib:     strings.Contains(strings.ToLower(attrOr(block, "class", "")), "livelib"),
		ScrapedAt:     scrapedAt,
	}
	if avatar := block.Find(reviewAvatarSelectors[0]).First(); avatar.Length() > 0 {
		rec.AuthorAvatar, _ = avatar.Attr("src")
	}

	block.Find(reviewReplyBlockSelector).Each(func(_ int, rb *goquery.Selection) {
		reply := crawl.Reply{
			Author:      firstTextIn(rb, reviewAuthorSelectors),
			PublishedAt: reviewDate(rb),
			Text:        firstTextIn(rb, reviewTextSelectors),
			Likes:       firstTextIn(rb, reviewLikesSelectors),
			Dislikes:    firstTextIn(rb, reviewDislikesSelectors),
		}
		if avatar := rb.Find(reviewAvatarSelectors[0]).First(); avatar.Length() > 0 {
			reply.AuthorAvatar, _ = avatar.Attr("src")
		}
		if reply.Author != "" || reply.Text != "" {
			rec.Replies = append(rec.Replies, reply)
		}
	})
	rec.RepliesCount = fmt.Sprintf("%d", len(rec.Replies))

	if rec.Author == "" && rec.Text == "" {
		return crawl.ReviewRecord{}, false
	}
	return rec, true
}

// reviewDate prefers the machine-readable datetime attribute over the
// human-facing text.
func reviewDate(block *goquery.Selection) string {
	t := block.Find(reviewDateSelectors[0]).First()
	if t.Length() == 0 {
		return ""
	}
	if dt, ok := t.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
		return strings.TrimSpace(dt)
	}
	return squashSpace(t.Text())
}

func firstTextIn(block *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		var found string
		block.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
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

func attrOr(sel *goquery.Selection, name, fallback string) string {
	if v, ok := sel.Attr(name); ok {
		return v
	}
	return fallback
}

// joinPath appends a sub-path to a URL, tolerating a missing trailing
// slash.
func joinPath(base, sub string) string {
	if strings.HasSuffix(base, "/") {
		return base + sub
	}
	return base + "/" + sub
}
