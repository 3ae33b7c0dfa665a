// Package trends finds a recent, relevant item for an account's niche.
package trends

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/AutoPoster/internal/config"
)

const userAgent = "AutoPoster/1.0 (+trend research)"

var log = logrus.WithField("component", "trends")

// Item is a candidate topic from any source.
type Item struct {
	Title       string
	URL         string
	Summary     string
	Source      string
	ImageURL    string
	PublishedAt time.Time
}

// Researcher picks one trending item per niche.
type Researcher struct {
	feeds    map[string][]FeedConfig
	parser   *FeedParser
	news     *NewsAPIClient
	pages    *PageFetcher
	daysBack int
	now      func() time.Time
}

// NewResearcher builds a researcher from config. It returns nil when
// trends are disabled.
func NewResearcher(cfg config.Trends) *Researcher {
	if !cfg.Enabled {
		return nil
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	r := &Researcher{
		feeds:    make(map[string][]FeedConfig),
		parser:   NewFeedParser(client),
		daysBack: cfg.DaysBack,
		now:      time.Now,
	}
	for niche, feeds := range cfg.Feeds {
		key := strings.ToLower(strings.TrimSpace(niche))
		for _, f := range feeds {
			r.feeds[key] = append(r.feeds[key], FeedConfig{URL: f.URL, Name: f.Name})
		}
	}
	if cfg.NewsAPI.Enabled {
		r.news = NewNewsAPIClient(cfg.NewsAPI.APIKeyEnv)
	}
	if cfg.FetchPages {
		r.pages = NewPageFetcher(client)
	}
	return r
}

// Topic returns the best recent item for niche, or nil when nothing fits.
// Source failures are logged; only a cancelled context is an error.
func (r *Researcher) Topic(ctx context.Context, niche string) (*Item, error) {
	if r == nil {
		return nil, nil
	}
	daysBack := r.daysBack
	if daysBack <= 0 {
		daysBack = 3
	}
	now := r.now()
	cutoff := now.AddDate(0, 0, -daysBack)

	candidates := r.parser.Parse(ctx, r.feedsFor(niche), cutoff)
	if r.news != nil && r.news.IsConfigured() {
		items, err := r.news.Search(ctx, niche, cutoff, 20)
		if err != nil {
			log.WithError(err).WithField("niche", niche).Warn("NewsAPI search failed")
		}
		candidates = append(candidates, items...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	best := pick(candidates, niche, now)
	if best == nil {
		return nil, nil
	}

	if r.pages != nil && (len(best.Summary) < 200 || best.ImageURL == "") {
		page, err := r.pages.Fetch(ctx, best.URL)
		if err != nil {
			log.WithError(err).WithField("url", best.URL).Debug("Page fetch failed")
		} else {
			if len(page.Text) > len(best.Summary) {
				best.Summary = page.Text
			}
			if best.ImageURL == "" {
				best.ImageURL = page.ImageURL
			}
		}
	}

	log.WithFields(logrus.Fields{"niche": niche, "source": best.Source}).Infof("Trending topic: %s", best.Title)
	return best, nil
}

// feedsFor matches the whole niche first, then any configured niche named
// by one of its words, then the default feeds.
func (r *Researcher) feedsFor(niche string) []FeedConfig {
	key := strings.ToLower(strings.TrimSpace(niche))
	if feeds, ok := r.feeds[key]; ok {
		return feeds
	}
	var matched []FeedConfig
	for _, word := range strings.Fields(key) {
		if word == "default" {
			continue
		}
		matched = append(matched, r.feeds[word]...)
	}
	if len(matched) > 0 {
		return matched
	}
	return r.feeds["default"]
}

// pick ranks candidates by how many niche words their title and summary
// mention, then by recency.
func pick(items []Item, niche string, now time.Time) *Item {
	if len(items) == 0 {
		return nil
	}
	words := strings.Fields(strings.ToLower(niche))

	type scored struct {
		item  Item
		score float64
	}
	ranked := make([]scored, 0, len(items))
	seen := make(map[string]bool)
	for _, it := range items {
		if seen[it.URL] {
			continue
		}
		seen[it.URL] = true

		text := strings.ToLower(it.Title + " " + it.Summary)
		s := 0.0
		for _, w := range words {
			if len(w) > 2 && strings.Contains(text, w) {
				s += 10
			}
		}
		if !it.PublishedAt.IsZero() {
			age := now.Sub(it.PublishedAt).Hours()
			if age < 0 {
				age = 0
			}
			s += 10 / (1 + age/12)
		}
		if it.ImageURL != "" {
			s++
		}
		ranked = append(ranked, scored{item: it, score: s})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	best := ranked[0].item
	return &best
}
