// Package catalog refreshes the list of known vehicle makes by scraping the
// auction site's search form.
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// Make is one entry of the site's make selector: the display name and the
// URL slug used in listing queries.
type Make struct {
	Name string
	Slug string
}

// MakeReplacer persists a freshly scraped catalog.
type MakeReplacer interface {
	ReplaceMakes(names, slugs []string) error
}

// Scraper fetches and parses the make selector from the auctions page.
type Scraper struct {
	client *http.Client
	url    string
}

// NewScraper creates a Scraper against the given page URL. A nil client
// falls back to http.DefaultClient.
func NewScraper(client *http.Client, url string) *Scraper {
	if client == nil {
		client = http.DefaultClient
	}
	return &Scraper{client: client, url: url}
}

// FetchMakes downloads the page and extracts the make options.
func (s *Scraper) FetchMakes(ctx context.Context) ([]Make, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building catalog request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog page returned status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing catalog page: %w", err)
	}

	makes := parseMakeOptions(doc)
	if len(makes) == 0 {
		return nil, fmt.Errorf("no make options found on catalog page")
	}
	return makes, nil
}

// Refresh scrapes the catalog and replaces the stored make list, returning
// the number of makes found.
func (s *Scraper) Refresh(ctx context.Context, sink MakeReplacer) (int, error) {
	makes, err := s.FetchMakes(ctx)
	if err != nil {
		return 0, err
	}

	names := make([]string, len(makes))
	slugs := make([]string, len(makes))
	for i, m := range makes {
		names[i] = m.Name
		slugs[i] = m.Slug
	}
	if err := sink.ReplaceMakes(names, slugs); err != nil {
		return 0, fmt.Errorf("storing makes: %w", err)
	}
	return len(makes), nil
}

// parseMakeOptions walks the document for the make <select> and collects its
// options. Options with empty values (placeholders like "Any make") are
// skipped.
func parseMakeOptions(doc *html.Node) []Make {
	sel := findMakeSelect(doc)
	if sel == nil {
		return nil
	}

	var makes []Make
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "option" {
			slug := attr(n, "value")
			name := strings.TrimSpace(text(n))
			if slug != "" && name != "" {
				makes = append(makes, Make{Name: name, Slug: slug})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(sel)
	return makes
}

// findMakeSelect returns the first <select> whose name or id mentions
// "make", or the first <select> at all when none does.
func findMakeSelect(doc *html.Node) *html.Node {
	var first, named *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if named != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "select" {
			if first == nil {
				first = n
			}
			if strings.Contains(attr(n, "name"), "make") || strings.Contains(attr(n, "id"), "make") {
				named = n
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if named != nil {
		return named
	}
	return first
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
