package trends

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

const maxPerFeed = 20

// FeedConfig represents a single feed configuration.
type FeedConfig struct {
	URL  string
	Name string
}

// FeedParser parses RSS/Atom feeds.
type FeedParser struct {
	parser *gofeed.Parser
}

// NewFeedParser creates a new FeedParser using client for fetches.
func NewFeedParser(client *http.Client) *FeedParser {
	p := gofeed.NewParser()
	p.UserAgent = userAgent
	if client != nil {
		p.Client = client
	}
	return &FeedParser{parser: p}
}

// Parse fetches every feed and returns items published after cutoff.
// A failing feed is logged and skipped.
func (fp *FeedParser) Parse(ctx context.Context, feeds []FeedConfig, cutoff time.Time) []Item {
	var all []Item
	for _, fc := range feeds {
		name := fc.Name
		if name == "" {
			name = extractSourceName(fc.URL)
		}

		items, err := fp.parseFeed(ctx, fc.URL, name, cutoff)
		if err != nil {
			log.WithError(err).WithField("feed", fc.URL).Warn("Failed to parse feed")
			continue
		}
		all = append(all, items...)
		log.WithField("source", name).Debugf("Parsed %d recent entries", len(items))
	}
	return all
}

func (fp *FeedParser) parseFeed(ctx context.Context, feedURL, sourceName string, cutoff time.Time) ([]Item, error) {
	feed, err := fp.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	var items []Item
	for _, entry := range feed.Items {
		if len(items) >= maxPerFeed {
			break
		}
		item := parseItem(entry, sourceName)
		if item == nil {
			continue
		}
		// Undated entries get the benefit of the doubt.
		if item.PublishedAt.IsZero() || !item.PublishedAt.Before(cutoff) {
			items = append(items, *item)
		}
	}
	return items, nil
}

func parseItem(entry *gofeed.Item, source string) *Item {
	itemURL := entry.Link
	if itemURL == "" {
		itemURL = entry.GUID
	}
	if itemURL == "" {
		return nil
	}

	title := strings.TrimSpace(entry.Title)
	if title == "" {
		return nil
	}

	var published time.Time
	if entry.PublishedParsed != nil {
		published = entry.PublishedParsed.UTC()
	} else if entry.UpdatedParsed != nil {
		published = entry.UpdatedParsed.UTC()
	}

	var summary string
	if entry.Description != "" {
		summary = stripHTML(entry.Description)
	} else if entry.Content != "" {
		summary = stripHTML(entry.Content)
	}

	return &Item{
		Title:       title,
		URL:         itemURL,
		Summary:     summary,
		Source:      source,
		ImageURL:    itemImage(entry),
		PublishedAt: published,
	}
}

func itemImage(entry *gofeed.Item) string {
	if entry.Image != nil && entry.Image.URL != "" {
		return entry.Image.URL
	}
	for _, enc := range entry.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	return ""
}

// stripHTML returns the visible text of an HTML fragment.
func stripHTML(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
