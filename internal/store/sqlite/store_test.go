package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/snikitin/bookcrawler/internal/clock/system"
	"github.com/snikitin/bookcrawler/internal/crawl"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "crawl.sqlite"), system.New())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnqueueIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	added, err := s.Enqueue(ctx, []string{
		"https://www.litres.ru/book/a/",
		"https://www.litres.ru/book/b/",
		"https://www.litres.ru/book/c/",
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), added)

	added, err = s.Enqueue(ctx, []string{
		"https://www.litres.ru/book/b/",
		"https://www.litres.ru/book/d/",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), added)

	sum, err := s.StatusSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(4), sum.Queue[crawl.QueuePending])
}

func TestClaimBatchOrdersAndBumpsAttempts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, []string{
		"https://www.litres.ru/book/a/",
		"https://www.litres.ru/book/b/",
		"https://www.litres.ru/book/c/",
	})
	require.NoError(t, err)

	urls, err := s.ClaimBatch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, urls, 2)

	sum, err := s.StatusSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), sum.Queue[crawl.QueueInProgress])
	require.Equal(t, int64(1), sum.Queue[crawl.QueuePending])

	var attempts int
	err = s.db.QueryRow(`SELECT attempts FROM queue WHERE url = ?`, urls[0]).Scan(&attempts)
	require.NoError(t, err)
	require.Equal(t, 1, attempts)
}

func TestClaimBatchNoDoubleClaim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var urls []string
	for i := 0; i < 20; i++ {
		urls = append(urls, "https://www.litres.ru/book/"+string(rune('a'+i))+"/")
	}
	_, err := s.Enqueue(ctx, urls)
	require.NoError(t, err)

	var mu sync.Mutex
	claimed := make(map[string]int)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, err := s.ClaimBatch(ctx, 3)
				require.NoError(t, err)
				if len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, u := range batch {
					claimed[u]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, claimed, 20)
	for u, n := range claimed {
		require.Equalf(t, 1, n, "url %s claimed %d times", u, n)
	}
}

func TestMarkDoneAndFailed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, []string{
		"https://www.litres.ru/book/a/",
		"https://www.litres.ru/book/b/",
	})
	require.NoError(t, err)
	_, err = s.ClaimBatch(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, s.MarkDone(ctx, "https://www.litres.ru/book/a/"))
	require.NoError(t, s.MarkFailed(ctx, "https://www.litres.ru/book/b/", strings.Repeat("x", 5000)))

	sum, err := s.StatusSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), sum.Queue[crawl.QueueDone])
	require.Equal(t, int64(1), sum.Queue[crawl.QueueFailed])

	var lastErr string
	err = s.db.QueryRow(`SELECT last_error FROM queue WHERE url = ?`,
		"https://www.litres.ru/book/b/").Scan(&lastErr)
	require.NoError(t, err)
	require.Len(t, lastErr, maxErrorLen)
}

func TestRecoverInterrupted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, []string{
		"https://www.litres.ru/book/a/",
		"https://www.litres.ru/book/b/",
		"https://www.litres.ru/book/c/",
	})
	require.NoError(t, err)
	_, err = s.ClaimBatch(ctx, 2)
	require.NoError(t, err)

	n, err := s.RecoverInterrupted(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	sum, err := s.StatusSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), sum.Queue[crawl.QueuePending])
	require.Zero(t, sum.Queue[crawl.QueueInProgress])
}

func TestUpsertBookReplacesRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := crawl.BookRecord{
		URL:       "https://www.litres.ru/book/a/",
		Title:     "Первое издание",
		Authors:   "Автор",
		Price:     "569,00",
		ScrapedAt: "2026-08-30T10:00:00Z",
		Status:    crawl.BookOK,
	}
	require.NoError(t, s.UpsertBook(ctx, rec))

	rec.Title = "Второе издание"
	rec.ScrapedAt = "2026-08-31T10:00:00Z"
	require.NoError(t, s.UpsertBook(ctx, rec))

	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	require.Equal(t, "Второе издание", books[0].Title)
	require.Equal(t, "2026-08-31T10:00:00Z", books[0].ScrapedAt)
}

func TestListBooksSkipsErrorRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertBook(ctx, crawl.BookRecord{
		URL:       "https://www.litres.ru/book/ok/",
		Title:     "Книга",
		ScrapedAt: "2026-08-31T10:00:00Z",
		Status:    crawl.BookOK,
	}))
	require.NoError(t, s.UpsertBook(ctx, crawl.BookRecord{
		URL:       "https://www.litres.ru/book/bad/",
		ScrapedAt: "2026-08-31T11:00:00Z",
		Status:    crawl.BookError,
		Error:     "page blocked",
	}))

	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	require.Equal(t, "https://www.litres.ru/book/ok/", books[0].URL)

	sum, err := s.StatusSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), sum.Books[crawl.BookOK])
	require.Equal(t, int64(1), sum.Books[crawl.BookError])
	require.Equal(t, "2026-08-31T10:00:00Z", sum.LastOKScrapedAt)
}

func TestUpsertReviewsComputesStableIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := crawl.ReviewRecord{
		BookURL:     "https://www.litres.ru/book/a/",
		Author:      "Читатель",
		PublishedAt: "20.11.2023",
		Text:        "Отличная книга.",
		Likes:       "3",
		Replies: []crawl.Reply{
			{Author: "Другой", Text: "Согласен", Likes: "1"},
		},
		ScrapedAt: "2026-08-31T10:00:00Z",
	}

	n, err := s.UpsertReviews(ctx, []crawl.ReviewRecord{rec})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// Same content again must update in place, not duplicate.
	rec.Likes = "5"
	n, err = s.UpsertReviews(ctx, []crawl.ReviewRecord{rec})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	reviews, err := s.ListReviews(ctx)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	require.NotEmpty(t, reviews[0].ID)
	require.Equal(t, "5", reviews[0].Likes)
	require.Len(t, reviews[0].Replies, 1)
	require.Equal(t, "Согласен", reviews[0].Replies[0].Text)
}

func TestResetAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, []string{
		"https://www.litres.ru/book/a/",
		"https://www.litres.ru/book/b/",
	})
	require.NoError(t, err)
	_, err = s.ClaimBatch(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, s.MarkDone(ctx, "https://www.litres.ru/book/a/"))
	require.NoError(t, s.UpsertBook(ctx, crawl.BookRecord{
		URL:       "https://www.litres.ru/book/a/",
		Title:     "Книга",
		ScrapedAt: "2026-08-31T10:00:00Z",
		Status:    crawl.BookOK,
	}))
	_, err = s.UpsertReviews(ctx, []crawl.ReviewRecord{{
		BookURL: "https://www.litres.ru/book/a/",
		Author:  "Читатель",
		Text:    "Текст",
	}})
	require.NoError(t, err)

	n, err := s.ResetAll(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	sum, err := s.StatusSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), sum.Queue[crawl.QueuePending])
	require.Empty(t, sum.Books)

	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	require.Empty(t, books)
	reviews, err := s.ListReviews(ctx)
	require.NoError(t, err)
	require.Empty(t, reviews)
}

func TestOpenMigratesOlderBooksTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.sqlite")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE books (
			url TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			scraped_at TEXT NOT NULL,
			status TEXT NOT NULL
		);
	`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO books (url, title, scraped_at, status)
		VALUES (?, ?, ?, ?)`,
		"https://www.litres.ru/book/old/", "Старая книга",
		"2026-01-01T00:00:00Z", "ok")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path, system.New())
	require.NoError(t, err)
	defer s.Close()

	books, err := s.ListBooks(context.Background())
	require.NoError(t, err)
	require.Len(t, books, 1)
	require.Equal(t, "Старая книга", books[0].Title)
	require.Empty(t, books[0].Price)

	// New columns are writable after migration.
	require.NoError(t, s.UpsertBook(context.Background(), crawl.BookRecord{
		URL:           "https://www.litres.ru/book/new/",
		Title:         "Новая книга",
		LivelibRating: "4.5",
		ScrapedAt:     time.Now().UTC().Format(time.RFC3339),
		Status:        crawl.BookOK,
	}))
}
