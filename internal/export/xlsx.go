// Package export renders crawl results as an XLSX workbook with
// human-facing Russian column titles.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/snikitin/bookcrawler/internal/crawl"
)

var bookHeaders = []string{
	"URL",
	"Название",
	"Автор(ы)",
	"Цена",
	"Рейтинг LitRes",
	"Количество оценок LitRes",
	"Рейтинг LiveLib",
	"Количество оценок LiveLib",
	"Количество отзывов",
	"Количество цитат",
	"Обложка (URL)",
	"Количество страниц",
	"Возрастное ограничение",
	"Принадлежность к серии (1/0)",
	"Название серии",
	"Жанры и теги",
	"Форматы (текст)",
	"Формат: текст (1/0)",
	"Формат: аудио (1/0)",
	"Формат: бумажная (1/0)",
	"Название глав(ы)",
	"Аннотация",
	"Дата парсинга (UTC)",
}

var reviewHeaders = []string{
	"ID отзыва",
	"URL книги",
	"Автор отзыва",
	"Аватарка (URL)",
	"Дата публикации",
	"Рейтинг отзыва",
	"Текст отзыва",
	"Лайки",
	"Дизлайки",
	"Количество комментариев",
	"Количество реплаев",
	"Ветка реплаев (JSON)",
	"Отзыв с LiveLib (1/0)",
	"Дата парсинга (UTC)",
}

// WriteXLSX writes a workbook with a Books sheet and a Reviews sheet to
// path, creating parent directories as needed.
func WriteXLSX(path string, books []crawl.BookRecord, reviews []crawl.ReviewRecord) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "Books"); err != nil {
		return fmt.Errorf("rename books sheet: %w", err)
	}
	if err := setRow(f, "Books", 1, toAny(bookHeaders)); err != nil {
		return err
	}
	for i, b := range books {
		row := []any{
			b.URL, b.Title, b.Authors, b.Price, b.Rating, b.RatingCount,
			b.LivelibRating, b.LivelibRatingCount,
			b.ReviewsCount, b.QuotationsCount,
			b.CoverURL, b.Pages, b.AgeRestriction,
			b.InSeries, b.SeriesTitle, b.Genres,
			b.Formats, b.FormatText, b.FormatAudio, b.FormatPaper,
			b.Chapters, b.Description, b.ScrapedAt,
		}
		if err := setRow(f, "Books", i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet("Reviews"); err != nil {
		return fmt.Errorf("create reviews sheet: %w", err)
	}
	if err := setRow(f, "Reviews", 1, toAny(reviewHeaders)); err != nil {
		return err
	}
	for i, r := range reviews {
		replies := r.Replies
		if replies == nil {
			replies = []crawl.Reply{}
		}
		repliesJSON, err := json.Marshal(replies)
		if err != nil {
			return fmt.Errorf("marshal replies for %s: %w", r.ID, err)
		}
		isLivelib := "0"
		if r.IsLivelib {
			isLivelib = "1"
		}
		row := []any{
			r.ID, r.BookURL, r.Author, r.AuthorAvatar, r.PublishedAt,
			r.Rating, r.Text, r.Likes, r.Dislikes,
			r.CommentsCount, r.RepliesCount,
			string(repliesJSON), isLivelib, r.ScrapedAt,
		}
		if err := setRow(f, "Reviews", i+2, row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("compute cell for row %d: %w", row, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
