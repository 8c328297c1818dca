package extract

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// parseJSONLD decodes every <script type="application/ld+json"> block into
// loose maps. Broken blocks are skipped, a top-level array contributes each
// of its objects.
func parseJSONLD(doc *goquery.Document) []map[string]any {
	var out []map[string]any
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		raw := strings.TrimSpace(sel.Text())
		if raw == "" {
			return
		}
		var payload any
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return
		}
		for _, obj := range asList(payload) {
			if m, ok := obj.(map[string]any); ok {
				out = append(out, m)
			}
		}
	})
	return out
}

// findBookish returns the first object typed Book or Product, looking
// inside @graph wrappers as a second pass.
func findBookish(objs []map[string]any) map[string]any {
	for _, obj := range objs {
		if isBookishType(obj["@type"]) {
			return obj
		}
	}
	for _, obj := range objs {
		graph, ok := obj["@graph"].([]any)
		if !ok {
			continue
		}
		for _, g := range graph {
			m, ok := g.(map[string]any)
			if ok && isBookishType(m["@type"]) {
				return m
			}
		}
	}
	return nil
}

func isBookishType(t any) bool {
	switch v := t.(type) {
	case string:
		l := strings.ToLower(v)
		return l == "book" || l == "product"
	case []any:
		for _, x := range v {
			if s, ok := x.(string); ok && strings.ToLower(s) == "book" {
				return true
			}
		}
	}
	return false
}

func asList(x any) []any {
	if x == nil {
		return nil
	}
	if l, ok := x.([]any); ok {
		return l
	}
	return []any{x}
}

// asString renders a JSON scalar as text. Numbers keep their shortest
// representation so a rating of 4.5 stays "4.5", not "4.500000".
func asString(x any) string {
	switch v := x.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// jsonldAuthors collects author names whether given as strings or objects.
func jsonldAuthors(j map[string]any) []string {
	var authors []string
	for _, a := range asList(j["author"]) {
		switch v := a.(type) {
		case string:
			authors = append(authors, v)
		case map[string]any:
			if name := asString(v["name"]); name != "" {
				authors = append(authors, name)
			}
		}
	}
	return authors
}

// jsonldRating returns ratingValue and ratingCount (falling back to
// reviewCount) from an aggregateRating object.
func jsonldRating(j map[string]any) (rating, count string) {
	ar, ok := j["aggregateRating"].(map[string]any)
	if !ok {
		return "", ""
	}
	rating = asString(ar["ratingValue"])
	count = asString(ar["ratingCount"])
	if count == "" {
		count = asString(ar["reviewCount"])
	}
	return rating, count
}

// jsonldPrice renders "price currency" from the first offer found.
func jsonldPrice(j map[string]any) string {
	var offer map[string]any
	switch v := j["offers"].(type) {
	case map[string]any:
		offer = v
	case []any:
		if len(v) > 0 {
			offer, _ = v[0].(map[string]any)
		}
	}
	if offer == nil {
		return ""
	}
	price := asString(offer["price"])
	if price == "" {
		return ""
	}
	if cur := asString(offer["priceCurrency"]); cur != "" {
		return price + " " + cur
	}
	return price
}

func jsonldGenres(j map[string]any) []string {
	var genres []string
	for _, g := range asList(j["genre"]) {
		if s := asString(g); s != "" {
			genres = append(genres, s)
		}
	}
	return genres
}

func jsonldImage(j map[string]any) string {
	for _, img := range asList(j["image"]) {
		switch v := img.(type) {
		case string:
			return strings.TrimSpace(v)
		case map[string]any:
			if u := asString(v["url"]); u != "" {
				return u
			}
		}
	}
	return ""
}

// jsonldReviews extracts reviews embedded in the structured data itself.
func jsonldReviews(j map[string]any) []embeddedReview {
	var out []embeddedReview
	for _, r := range asList(j["review"]) {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		rev := embeddedReview{
			PublishedAt: asString(m["datePublished"]),
			Text:        asString(m["reviewBody"]),
		}
		switch a := m["author"].(type) {
		case string:
			rev.Author = a
		case map[string]any:
			rev.Author = asString(a["name"])
		}
		if rr, ok := m["reviewRating"].(map[string]any); ok {
			rev.Rating = asString(rr["ratingValue"])
		}
		if rev.Author != "" || rev.Text != "" {
			out = append(out, rev)
		}
	}
	return out
}

type embeddedReview struct {
	Author      string
	PublishedAt string
	Rating      string
	Text        string
}
