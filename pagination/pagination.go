package pagination

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"ads-scraper/config"
)

// Placeholder is replaced by the page number in a URL template
const Placeholder = "{page}"

// ErrZeroPages is returned for a page count of zero
var ErrZeroPages = config.ErrZeroPages

// PageURL represents a listing page URL with its page number
type PageURL struct {
	Number int // 1-based
	URL    string
}

// BuildPageURLs generates one URL per page from a template.
// If the template contains {page} it is substituted, otherwise the page
// number is appended (path-style pagination such as /search/iPage,2).
func BuildPageURLs(template string, pages int) ([]PageURL, error) {
	if pages == 0 {
		return nil, ErrZeroPages
	}
	if pages < 0 {
		return nil, fmt.Errorf("pages must be positive, got %d", pages)
	}

	// Validate with page 1 substituted so the placeholder does not confuse the parser
	parsedURL, err := url.Parse(PageURLFor(template, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") || parsedURL.Host == "" {
		return nil, fmt.Errorf("URL template must be an absolute http(s) URL: %q", template)
	}

	urls := make([]PageURL, 0, pages)
	for page := 1; page <= pages; page++ {
		urls = append(urls, PageURL{
			Number: page,
			URL:    PageURLFor(template, page),
		})
	}
	return urls, nil
}

// PageURLFor returns the URL of a single page
func PageURLFor(template string, page int) string {
	n := strconv.Itoa(page)
	if strings.Contains(template, Placeholder) {
		return strings.ReplaceAll(template, Placeholder, n)
	}
	return template + n
}

// PageLabel returns a label like "page 2/5" for logs and status messages
func PageLabel(page, total int) string {
	return fmt.Sprintf("page %d/%d", page, total)
}
