// Package crawl defines core types shared across subsystems.
package crawl

// QueueStatus represents the lifecycle state of a queued URL.
type QueueStatus string

// Queue status values persisted in the work store.
const (
	QueuePending    QueueStatus = "pending"
	QueueInProgress QueueStatus = "in_progress"
	QueueDone       QueueStatus = "done"
	QueueFailed     QueueStatus = "failed"
)

// BookStatus marks whether a persisted book row holds extracted data or an error.
type BookStatus string

// Book row status values.
const (
	BookOK    BookStatus = "ok"
	BookError BookStatus = "error"
)

// BookRecord is the persisted metadata for one book page, upserted per crawl.
// All extracted fields are best-effort strings; absent values stay empty.
type BookRecord struct {
	URL                string
	Title              string
	Authors            string
	Price              string
	Rating             string
	RatingCount        string
	Genres             string
	Formats            string
	Description        string
	CoverURL           string
	Pages              string
	AgeRestriction     string
	InSeries           string
	SeriesTitle        string
	FormatText         string
	FormatAudio        string
	FormatPaper        string
	ReviewsCount       string
	QuotationsCount    string
	LivelibRating      string
	LivelibRatingCount string
	Chapters           string
	ScrapedAt          string
	Status             BookStatus
	Error              string
}

// Reply is one nested answer under a review.
type Reply struct {
	Author       string `json:"author"`
	AuthorAvatar string `json:"author_avatar"`
	PublishedAt  string `json:"published_at"`
	Text         string `json:"text"`
	Likes        string `json:"likes"`
	Dislikes     string `json:"dislikes"`
}

// ReviewRecord is one persisted reader review. Identity is content-derived
// so re-crawling the same review updates the row instead of duplicating it.
type ReviewRecord struct {
	ID            string
	BookURL       string
	Author        string
	AuthorAvatar  string
	PublishedAt   string
	Rating        string
	Text          string
	Likes         string
	Dislikes      string
	CommentsCount string
	RepliesCount  string
	Replies       []Reply
	IsLivelib     bool
	ScrapedAt     string
}

// PageKind classifies a fetched page.
type PageKind int

// Extraction outcomes. A page is NotBook only when no extraction layer
// yields even minimal book-shaped structure; Blocked is detected first so
// operators can tell markup drift apart from bot defenses.
const (
	PageBook PageKind = iota
	PageNotBook
	PageBlocked
)

// String renders the kind for logs and error rows.
func (k PageKind) String() string {
	switch k {
	case PageBook:
		return "book"
	case PageNotBook:
		return "not_book"
	case PageBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// ExtractResult is the tagged outcome of extracting one page.
type ExtractResult struct {
	Kind    PageKind
	Reason  string
	Book    BookRecord
	Reviews []ReviewRecord
}

// Summary aggregates crawl progress for operators.
type Summary struct {
	Queue           map[QueueStatus]int64
	Books           map[BookStatus]int64
	LastOKScrapedAt string
}
