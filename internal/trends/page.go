package trends

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

const maxPageBytes = 4 << 20

// Page is what the article page adds to a feed item.
type Page struct {
	Text     string
	ImageURL string
}

// PageFetcher downloads an article once and extracts its readable text and
// preview image.
type PageFetcher struct {
	client *http.Client
}

// NewPageFetcher creates a fetcher with the given client.
func NewPageFetcher(client *http.Client) *PageFetcher {
	return &PageFetcher{client: client}
}

// Fetch returns the page's readable text and og:image. Either may be empty.
func (f *PageFetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("page returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}

	page := &Page{}
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
		page.ImageURL = previewImage(doc, parsedURL)
	}
	if article, err := readability.FromReader(bytes.NewReader(body), parsedURL); err == nil {
		text := strings.TrimSpace(article.TextContent)
		if len(text) > 100 {
			page.Text = text
		}
	}
	return page, nil
}

func previewImage(doc *goquery.Document, base *url.URL) string {
	for _, sel := range []string{
		`meta[property="og:image"]`,
		`meta[property="og:image:url"]`,
		`meta[name="twitter:image"]`,
	} {
		content := strings.TrimSpace(doc.Find(sel).First().AttrOr("content", ""))
		if content == "" {
			continue
		}
		ref, err := url.Parse(content)
		if err != nil {
			continue
		}
		return base.ResolveReference(ref).String()
	}
	return ""
}
