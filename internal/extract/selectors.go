// Package extract turns fetched HTML into classified, field-level book data.
//
// Extraction is layered: JSON-LD first, then meta tags, then semantic
// markup, then heuristic text scanning. Every layer is optional and a
// missing field is always representable as the empty string.
package extract

// Selector tables are fallback chains, most specific first. The site
// reshuffles class names between frontend releases, so each chain keeps the
// older names alive alongside the current ones.
var (
	titleSelectors = []string{
		".book__name--wrapper h1",
		"h1",
	}
	authorSelectors = []string{
		".art__author--details a",
		".book__author a",
	}
	priceSelectors = []string{
		".book__saleBlock--discountPrice",
		"[data-testid='book-sale-block'] [class*='price']",
	}
	ratingSelectors = []string{
		".book-factoids__total-rating",
	}
	ratingCountSelectors = []string{
		".book-factoids__marks",
	}
	genreSelectors = []string{
		".book-genres-and-tags__wrapper a",
		"a[href^='/genre/']",
	}
	formatSelectors = []string{
		".book-tabs-format__element",
		"[data-testid*='format']",
	}
	descriptionSelectors = []string{
		".book__infoAboutBook--wrapper",
	}
	pagesSelectors = []string{
		".book-factoids__pages",
		"[class*='volume']",
	}
	ageSelectors = []string{
		".book__age",
		"[class*='age-restriction']",
	}
	seriesSelectors = []string{
		".biblio_book_sequences",
		"[class*='series'] a",
	}
	chapterSelectors = []string{
		".book__chapters li",
		"[class*='table-of-content'] li",
	}
	livelibRatingSelectors = []string{
		".book-factoids__livelib-rating",
		"[class*='livelib'] [class*='rating']",
	}
	livelibRatingCountSelectors = []string{
		".book-factoids__livelib-marks",
		"[class*='livelib'] [class*='marks']",
	}
	reviewsCountSelectors = []string{
		"[data-testid='reviews-count']",
		"a[href*='otzivi']",
	}
	quotationsCountSelectors = []string{
		"[data-testid='quotes-count']",
		"a[href*='citaty']",
	}
)

// Review block selectors for the embedded and deep review passes.
var (
	reviewBlockSelectors = []string{
		"[data-testid='review-card']",
		"article[class*='review']",
		".review__wrapper",
	}
	reviewAuthorSelectors    = []string{"[class*='author-name']", "[class*='author']"}
	reviewAvatarSelectors    = []string{"img[class*='avatar']"}
	reviewDateSelectors      = []string{"time"}
	reviewTextSelectors      = []string{"[class*='review-text']", "p"}
	reviewLikesSelectors     = []string{"[data-testid='like-count']", "[class*='like']"}
	reviewDislikesSelectors  = []string{"[data-testid='dislike-count']", "[class*='dislike']"}
	reviewCommentsSelectors  = []string{"[class*='comments-count']"}
	reviewReplyBlockSelector = "[class*='reply']"
)

// blockedMarkers identify bot-challenge interstitials. Checked before any
// extraction so a challenge page is never mistaken for markup drift.
var blockedMarkers = []string{
	"captcha",
	"checking your browser",
	"just a moment",
	"access denied",
	"доступ ограничен",
	"подтвердите, что вы не робот",
}

// notBookPathMarkers flag URLs that resolve to a page type the crawler
// must never persist as book data.
var notBookPathMarkers = []string{
	"/author/",
	"/genre/",
	"/serii-knig/",
	"/cart",
	"/my-books",
	"/pages/",
}
