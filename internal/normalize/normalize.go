// Package normalize canonicalizes raw extracted strings before persistence.
//
// Every function is pure and total: any input, including garbage, yields a
// string, and the empty string specifically means "no parseable value".
// Normalization never fails the pipeline.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/snikitin/bookcrawler/internal/crawl"
)

var (
	numberRe      = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	digitsRe      = regexp.MustCompile(`\d+`)
	guillemetsRe  = regexp.MustCompile(`«([^»]+)»`)
	seriesEntryRe = regexp.MustCompile(`(?i)^Входит в серию\s+`)
	seriesNthRe   = regexp.MustCompile(`(?i)\d+\s+книга\s+из\s+\d+\s+в\s+серии\s+`)
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006",
}

// Date converts an ISO-ish date string to DD.MM.YYYY.
func Date(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.Format("02.01.2006")
		}
		s = strings.TrimSuffix(s, "+00:00")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("02.01.2006")
		}
	}
	return ""
}

// Price extracts the numeric amount and renders it with a decimal comma
// and two digits: "569 RUB" becomes "569,00". No number means empty.
func Price(s string) string {
	m := numberRe.FindString(s)
	if m == "" {
		return ""
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
	if err != nil {
		return ""
	}
	return strings.Replace(fmt.Sprintf("%.2f", f), ".", ",", 1)
}

// AgeRestriction reduces labels like "18+" to the bare integer.
func AgeRestriction(s string) string {
	return digitsRe.FindString(s)
}

// SeriesTitle extracts series names from guillemet-quoted segments, joining
// multiple names with blank lines; without quotes it strips the usual
// "Входит в серию" / "N книга из M в серии" prefixes.
func SeriesTitle(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	if matches := guillemetsRe.FindAllStringSubmatch(s, -1); len(matches) > 0 {
		names := make([]string, 0, len(matches))
		for _, m := range matches {
			names = append(names, m[1])
		}
		return strings.Join(names, "\n\n")
	}
	out := seriesEntryRe.ReplaceAllString(s, "")
	out = seriesNthRe.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// Rating canonicalizes a rating to a dot-decimal numeric string: "4,9"
// becomes "4.9", "5" becomes "5.0". Non-numeric input yields empty.
func Rating(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return ""
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return ""
	}
	out := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out
}

// Count extracts the first run of digits after stripping grouping spaces:
// "1 234" becomes "1234", "547 оценок" becomes "547".
func Count(s string) string {
	s = strings.NewReplacer(" ", "", " ", "", " ", "").Replace(s)
	return digitsRe.FindString(s)
}

// Bool maps boolean-ish input to a strict "1"/"0".
func Bool(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return "1"
	default:
		return "0"
	}
}

// Flag renders a Go bool in the same strict "1"/"0" form.
func Flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// AvatarPresence collapses an avatar URL to a presence marker.
func AvatarPresence(s string) string {
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "http") {
		return "есть"
	}
	return ""
}

// Book returns a copy of rec with every normalizable field canonicalized.
// Free-text fields (title, authors, description, genres, formats, chapters)
// pass through unchanged.
func Book(rec crawl.BookRecord) crawl.BookRecord {
	rec.Price = Price(rec.Price)
	rec.Rating = Rating(rec.Rating)
	rec.RatingCount = Count(rec.RatingCount)
	rec.LivelibRating = Rating(rec.LivelibRating)
	rec.LivelibRatingCount = Count(rec.LivelibRatingCount)
	rec.ReviewsCount = Count(rec.ReviewsCount)
	rec.QuotationsCount = Count(rec.QuotationsCount)
	rec.Pages = Count(rec.Pages)
	rec.AgeRestriction = AgeRestriction(rec.AgeRestriction)
	rec.InSeries = Bool(rec.InSeries)
	rec.SeriesTitle = SeriesTitle(rec.SeriesTitle)
	rec.FormatText = Bool(rec.FormatText)
	rec.FormatAudio = Bool(rec.FormatAudio)
	rec.FormatPaper = Bool(rec.FormatPaper)
	return rec
}

// Review returns a copy of rec with counters, dates, and avatar markers
// canonicalized, including nested replies.
func Review(rec crawl.ReviewRecord) crawl.ReviewRecord {
	rec.Rating = Rating(rec.Rating)
	rec.AuthorAvatar = AvatarPresence(rec.AuthorAvatar)
	rec.PublishedAt = Date(rec.PublishedAt)
	rec.Likes = Count(rec.Likes)
	rec.Dislikes = Count(rec.Dislikes)
	rec.CommentsCount = Count(rec.CommentsCount)
	rec.RepliesCount = Count(rec.RepliesCount)
	for i, reply := range rec.Replies {
		reply.AuthorAvatar = AvatarPresence(reply.AuthorAvatar)
		reply.PublishedAt = Date(reply.PublishedAt)
		reply.Likes = Count(reply.Likes)
		reply.Dislikes = Count(reply.Dislikes)
		rec.Replies[i] = reply
	}
	return rec
}
