// Package sqlite persists the crawl queue and extraction results in a
// single local database file. One file is the whole crawl state, so a run
// can be killed and resumed without losing progress.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/snikitin/bookcrawler/internal/crawl"
	"github.com/snikitin/bookcrawler/internal/hash/reviewid"
)

// maxErrorLen caps last_error so a pathological HTML dump cannot bloat the
// queue table.
const maxErrorLen = 2000

// Store implements crawl.Store on a SQLite file.
type Store struct {
	db    *sql.DB
	clock crawl.Clock
}

// Open opens or creates the database at path and brings the schema up to
// date.
func Open(path string, clock crawl.Clock) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Store{db: db, clock: clock}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	if err := s.ensureBookColumns(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate books table: %w", err)
	}
	return s, nil
}

// bookColumns lists the books table in persisted order. Upserts, reads, and
// the additive migration all derive from this one slice.
var bookColumns = []string{
	"url", "title", "authors", "price", "rating", "rating_count",
	"genres", "formats", "description", "cover_url", "pages",
	"age_restriction", "in_series", "series_title",
	"format_text", "format_audio", "format_paper",
	"reviews_count", "quotations_count",
	"livelib_rating", "livelib_rating_count",
	"chapters", "scraped_at", "status", "error",
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS queue (
		url TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		discovered_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS books (
		url TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		authors TEXT NOT NULL DEFAULT '',
		price TEXT NOT NULL DEFAULT '',
		rating TEXT NOT NULL DEFAULT '',
		rating_count TEXT NOT NULL DEFAULT '',
		genres TEXT NOT NULL DEFAULT '',
		formats TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		cover_url TEXT NOT NULL DEFAULT '',
		pages TEXT NOT NULL DEFAULT '',
		age_restriction TEXT NOT NULL DEFAULT '',
		in_series TEXT NOT NULL DEFAULT '',
		series_title TEXT NOT NULL DEFAULT '',
		format_text TEXT NOT NULL DEFAULT '',
		format_audio TEXT NOT NULL DEFAULT '',
		format_paper TEXT NOT NULL DEFAULT '',
		reviews_count TEXT NOT NULL DEFAULT '',
		quotations_count TEXT NOT NULL DEFAULT '',
		livelib_rating TEXT NOT NULL DEFAULT '',
		livelib_rating_count TEXT NOT NULL DEFAULT '',
		chapters TEXT NOT NULL DEFAULT '',
		scraped_at TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS reviews (
		review_id TEXT PRIMARY KEY,
		book_url TEXT NOT NULL,
		author TEXT NOT NULL DEFAULT '',
		author_avatar TEXT NOT NULL DEFAULT '',
		published_at TEXT NOT NULL DEFAULT '',
		rating TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL DEFAULT '',
		likes TEXT NOT NULL DEFAULT '',
		dislikes TEXT NOT NULL DEFAULT '',
		comments_count TEXT NOT NULL DEFAULT '',
		replies_count TEXT NOT NULL DEFAULT '',
		replies_json TEXT NOT NULL DEFAULT '[]',
		is_livelib INTEGER NOT NULL DEFAULT 0,
		scraped_at TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_queue_status ON queue(status, discovered_at);
	CREATE INDEX IF NOT EXISTS idx_reviews_book ON reviews(book_url);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ensureBookColumns adds any books columns missing from an older database
// file. Columns are only ever added, never dropped or retyped.
func (s *Store) ensureBookColumns() error {
	rows, err := s.db.Query(`PRAGMA table_info(books)`)
	if err != nil {
		return fmt.Errorf("read table info: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("scan table info: %w", err)
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, col := range bookColumns {
		if existing[col] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE books ADD COLUMN %s TEXT NOT NULL DEFAULT ''", col)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}
	}
	return nil
}

// Enqueue inserts URLs as pending, skipping any already known in any state.
// Returns the number of rows actually added.
func (s *Store) Enqueue(ctx context.Context, urls []string) (int64, error) {
	if len(urls) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin enqueue: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO queue (url, status, attempts, discovered_at)
		VALUES (?, 'pending', 0, ?)
		ON CONFLICT(url) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare enqueue: %w", err)
	}
	defer stmt.Close()

	now := s.clock.Now().UTC().Format(time.RFC3339)
	var added int64
	for _, u := range urls {
		res, err := stmt.ExecContext(ctx, u, now)
		if err != nil {
			return 0, fmt.Errorf("enqueue %s: %w", u, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("enqueue rows affected: %w", err)
		}
		added += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit enqueue: %w", err)
	}
	return added, nil
}

// ClaimBatch atomically moves up to n of the oldest pending URLs to
// in_progress, bumping their attempt counters, and returns them. Concurrent
// claimants never receive the same URL.
func (s *Store) ClaimBatch(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		UPDATE queue
		SET status = 'in_progress', attempts = attempts + 1
		WHERE url IN (
			SELECT url FROM queue
			WHERE status = 'pending'
			ORDER BY discovered_at, url
			LIMIT ?
		)
		RETURNING url
	`, n)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan claimed url: %w", err)
		}
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed urls: %w", err)
	}
	return urls, nil
}

// MarkDone finalizes a URL as successfully processed.
func (s *Store) MarkDone(ctx context.Context, url string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE queue SET status = 'done', last_error = NULL WHERE url = ?`, url)
	if err != nil {
		return fmt.Errorf("mark done %s: %w", url, err)
	}
	return nil
}

// MarkFailed finalizes a URL as failed, recording a truncated error text.
func (s *Store) MarkFailed(ctx context.Context, url, errText string) error {
	if len(errText) > maxErrorLen {
		errText = errText[:maxErrorLen]
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE queue SET status = 'failed', last_error = ? WHERE url = ?`, errText, url)
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", url, err)
	}
	return nil
}

// UpsertBook replaces the entire row for rec.URL. Re-crawling a book always
// reflects the newest extraction, including downgrades to error rows.
func (s *Store) UpsertBook(ctx context.Context, rec crawl.BookRecord) error {
	assigns := make([]string, 0, len(bookColumns)-1)
	for _, col := range bookColumns[1:] {
		assigns = append(assigns, fmt.Sprintf("%s = excluded.%s", col, col))
	}
	query := fmt.Sprintf(`
		INSERT INTO books (%s)
		VALUES (%s)
		ON CONFLICT(url) DO UPDATE SET %s
	`,
		strings.Join(bookColumns, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(bookColumns)), ", "),
		strings.Join(assigns, ", "),
	)

	_, err := s.db.ExecContext(ctx, query,
		rec.URL, rec.Title, rec.Authors, rec.Price, rec.Rating, rec.RatingCount,
		rec.Genres, rec.Formats, rec.Description, rec.CoverURL, rec.Pages,
		rec.AgeRestriction, rec.InSeries, rec.SeriesTitle,
		rec.FormatText, rec.FormatAudio, rec.FormatPaper,
		rec.ReviewsCount, rec.QuotationsCount,
		rec.LivelibRating, rec.LivelibRatingCount,
		rec.Chapters, rec.ScrapedAt, string(rec.Status), rec.Error,
	)
	if err != nil {
		return fmt.Errorf("upsert book %s: %w", rec.URL, err)
	}
	return nil
}

// UpsertReviews writes reviews keyed by their content-derived IDs. Records
// without an ID get one computed here. Returns the number of rows written.
func (s *Store) UpsertReviews(ctx context.Context, recs []crawl.ReviewRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin review upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reviews (
			review_id, book_url, author, author_avatar, published_at,
			rating, text, likes, dislikes, comments_count, replies_count,
			replies_json, is_livelib, scraped_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(review_id) DO UPDATE SET
			book_url = excluded.book_url,
			author = excluded.author,
			author_avatar = excluded.author_avatar,
			published_at = excluded.published_at,
			rating = excluded.rating,
			text = excluded.text,
			likes = excluded.likes,
			dislikes = excluded.dislikes,
			comments_count = excluded.comments_count,
			replies_count = excluded.replies_count,
			replies_json = excluded.replies_json,
			is_livelib = excluded.is_livelib,
			scraped_at = excluded.scraped_at
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare review upsert: %w", err)
	}
	defer stmt.Close()

	var written int64
	for _, rec := range recs {
		id := rec.ID
		if id == "" {
			id = reviewid.New(rec.BookURL, rec.Author, rec.PublishedAt, rec.Text)
		}
		replies := rec.Replies
		if replies == nil {
			replies = []crawl.Reply{}
		}
		repliesJSON, err := json.Marshal(replies)
		if err != nil {
			return 0, fmt.Errorf("marshal replies for %s: %w", id, err)
		}
		isLivelib := 0
		if rec.IsLivelib {
			isLivelib = 1
		}
		if _, err := stmt.ExecContext(ctx,
			id, rec.BookURL, rec.Author, rec.AuthorAvatar, rec.PublishedAt,
			rec.Rating, rec.Text, rec.Likes, rec.Dislikes,
			rec.CommentsCount, rec.RepliesCount,
			string(repliesJSON), isLivelib, rec.ScrapedAt,
		); err != nil {
			return 0, fmt.Errorf("upsert review %s: %w", id, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit review upsert: %w", err)
	}
	return written, nil
}

// RecoverInterrupted requeues URLs left in_progress by a previous run.
func (s *Store) RecoverInterrupted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue SET status = 'pending' WHERE status = 'in_progress'`)
	if err != nil {
		return 0, fmt.Errorf("recover interrupted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("recover rows affected: %w", err)
	}
	return n, nil
}

// ResetAll wipes extracted data and requeues every known URL from scratch.
func (s *Store) ResetAll(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM books`); err != nil {
		return 0, fmt.Errorf("reset books: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM reviews`); err != nil {
		return 0, fmt.Errorf("reset reviews: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE queue SET status = 'pending', attempts = 0, last_error = NULL`)
	if err != nil {
		return 0, fmt.Errorf("reset queue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reset: %w", err)
	}
	return n, nil
}

// StatusSummary reports queue and book counts plus the newest successful
// scrape timestamp.
func (s *Store) StatusSummary(ctx context.Context) (crawl.Summary, error) {
	sum := crawl.Summary{
		Queue: make(map[crawl.QueueStatus]int64),
		Books: make(map[crawl.BookStatus]int64),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM queue GROUP BY status`)
	if err != nil {
		return sum, fmt.Errorf("summarize queue: %w", err)
	}
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return sum, fmt.Errorf("scan queue summary: %w", err)
		}
		sum.Queue[crawl.QueueStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return sum, err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM books GROUP BY status`)
	if err != nil {
		return sum, fmt.Errorf("summarize books: %w", err)
	}
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return sum, fmt.Errorf("scan book summary: %w", err)
		}
		sum.Books[crawl.BookStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return sum, err
	}
	rows.Close()

	var last sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT MAX(scraped_at) FROM books WHERE status = 'ok'`).Scan(&last)
	if err != nil {
		return sum, fmt.Errorf("read last scrape time: %w", err)
	}
	if last.Valid {
		sum.LastOKScrapedAt = last.String
	}
	return sum, nil
}

// ListBooks returns successfully extracted books ordered by scrape time.
func (s *Store) ListBooks(ctx context.Context) ([]crawl.BookRecord, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM books WHERE status = 'ok' ORDER BY scraped_at, url`,
		strings.Join(bookColumns, ", "))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var books []crawl.BookRecord
	for rows.Next() {
		var rec crawl.BookRecord
		var status string
		if err := rows.Scan(
			&rec.URL, &rec.Title, &rec.Authors, &rec.Price, &rec.Rating,
			&rec.RatingCount, &rec.Genres, &rec.Formats, &rec.Description,
			&rec.CoverURL, &rec.Pages, &rec.AgeRestriction, &rec.InSeries,
			&rec.SeriesTitle, &rec.FormatText, &rec.FormatAudio,
			&rec.FormatPaper, &rec.ReviewsCount, &rec.QuotationsCount,
			&rec.LivelibRating, &rec.LivelibRatingCount, &rec.Chapters,
			&rec.ScrapedAt, &status, &rec.Error,
		); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		rec.Status = crawl.BookStatus(status)
		books = append(books, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	return books, nil
}

// ListReviews returns every stored review with replies decoded.
func (s *Store) ListReviews(ctx context.Context) ([]crawl.ReviewRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT review_id, book_url, author, author_avatar, published_at,
			rating, text, likes, dislikes, comments_count, replies_count,
			replies_json, is_livelib, scraped_at
		FROM reviews
		ORDER BY book_url, review_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []crawl.ReviewRecord
	for rows.Next() {
		var (
			rec         crawl.ReviewRecord
			repliesJSON string
			isLivelib   int
		)
		if err := rows.Scan(
			&rec.ID, &rec.BookURL, &rec.Author, &rec.AuthorAvatar,
			&rec.PublishedAt, &rec.Rating, &rec.Text, &rec.Likes,
			&rec.Dislikes, &rec.CommentsCount, &rec.RepliesCount,
			&repliesJSON, &isLivelib, &rec.ScrapedAt,
		); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		if err := json.Unmarshal([]byte(repliesJSON), &rec.Replies); err != nil {
			return nil, fmt.Errorf("decode replies for %s: %w", rec.ID, err)
		}
		rec.IsLivelib = isLivelib != 0
		reviews = append(reviews, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	return reviews, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
