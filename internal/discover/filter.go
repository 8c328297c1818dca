// Package discover finds candidate book page URLs, either by walking the
// site's sitemaps or by paging through the genre catalog.
package discover

import "strings"

// IsBookURL reports whether a URL looks like a book or audiobook page on a
// supported domain. Everything else the sitemaps mention (authors, series,
// podcasts) is dropped before it can reach the queue.
func IsBookURL(rawURL string) bool {
	u := strings.ToLower(rawURL)
	if !strings.Contains(u, "litres.ru") && !strings.Contains(u, "litres.com") {
		return false
	}
	return strings.Contains(u, "/book/") || strings.Contains(u, "/audiobook/")
}
