package crawl

import "fmt"

// BlockedError reports a bot-defense challenge page.
type BlockedError struct {
	URL    string
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked at %s: %s", e.URL, e.Reason)
}

// NotBookError reports a page that resolved but is not a book page.
type NotBookError struct {
	URL    string
	Reason string
}

func (e *NotBookError) Error() string {
	return fmt.Sprintf("not a book page %s: %s", e.URL, e.Reason)
}
