// Package generate turns an account's profile and an optional trending
// topic into post text and hashtags via an LLM provider.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/AutoPoster/internal/llm"
)

// ErrEmptyContent is returned when the provider produced no usable text.
var ErrEmptyContent = errors.New("generated content is empty")

// ErrNoProvider is returned when no LLM provider is configured.
var ErrNoProvider = errors.New("no LLM provider available")

var log = logrus.WithField("component", "generate")

const postPrompt = `You write social media posts for a %s account.

Niche: %s
Tone: %s
Content pattern: %s
%s
Write ONE post for %s. Keep it under %d characters including hashtags.
Do not use markdown headings. Do not wrap the post in quotes.

Respond with ONLY this JSON:
{
    "content": "the post text without hashtags",
    "hashtags": ["#tag1", "#tag2", "#tag3"]
}

Use between 1 and %d hashtags.`

const topicBlock = `
Build the post around this trending topic:
Title: %s
Summary: %s
Source: %s
`

// Request is everything the generator knows about one slot.
type Request struct {
	Platform string
	Niche    string
	Tone     string
	Pattern  string
	Topic    *Topic
}

// Topic is a trending item the post can refer to.
type Topic struct {
	Title    string
	Summary  string
	URL      string
	ImageURL string
}

// Content is the generated post.
type Content struct {
	Text      string
	Hashtags  []string
	MediaURLs []string
}

// Generator produces posts with an LLM provider.
type Generator struct {
	provider  llm.Provider
	maxTokens int
}

// New creates a generator. maxTokens caps the provider reply.
func New(provider llm.Provider, maxTokens int) *Generator {
	if maxTokens <= 0 {
		maxTokens = 600
	}
	return &Generator{provider: provider, maxTokens: maxTokens}
}

// Generate asks the provider for a post and parses its JSON reply.
func (g *Generator) Generate(ctx context.Context, req Request) (*Content, error) {
	if g.provider == nil {
		return nil, ErrNoProvider
	}
	if strings.TrimSpace(req.Niche) == "" {
		return nil, fmt.Errorf("account has no niche configured")
	}

	text, err := g.provider.Generate(ctx, buildPrompt(req), g.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("generating post: %w", err)
	}

	parsed := llm.ParseJSONResponse(text)
	if parsed == nil {
		return nil, fmt.Errorf("provider reply was not JSON: %w", ErrEmptyContent)
	}

	body, _ := parsed["content"].(string)
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyContent
	}

	c := &Content{
		Text:     body,
		Hashtags: normalizeHashtags(llm.StringList(parsed["hashtags"]), hashtagLimit(req.Platform)),
	}
	if req.Topic != nil && req.Topic.ImageURL != "" {
		c.MediaURLs = []string{req.Topic.ImageURL}
	}
	log.WithFields(logrus.Fields{
		"platform": req.Platform,
		"length":   len(c.Text),
		"hashtags": len(c.Hashtags),
	}).Debug("Generated post")
	return c, nil
}

func buildPrompt(req Request) string {
	tone := orDefault(req.Tone, "professional")
	pattern := orDefault(req.Pattern, "insight followed by a question to the reader")

	topic := ""
	if req.Topic != nil && req.Topic.Title != "" {
		summary := req.Topic.Summary
		if len(summary) > 1500 {
			summary = summary[:1500] + "..."
		}
		topic = fmt.Sprintf(topicBlock, req.Topic.Title, orDefault(summary, "(none)"), orDefault(req.Topic.URL, "(unknown)"))
	}

	return fmt.Sprintf(postPrompt,
		req.Platform, req.Niche, tone, pattern, topic,
		req.Platform, characterLimit(req.Platform), hashtagLimit(req.Platform))
}

// characterLimit is the prompt budget per platform. The publisher enforces
// the hard limit.
func characterLimit(platform string) int {
	switch platform {
	case "twitter":
		return 270
	case "pinterest":
		return 480
	case "instagram":
		return 2000
	default:
		return 1300
	}
}

func hashtagLimit(platform string) int {
	switch platform {
	case "twitter":
		return 2
	case "instagram":
		return 10
	default:
		return 5
	}
}

func normalizeHashtags(tags []string, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		tag = strings.ReplaceAll(tag, " ", "")
		tag = strings.TrimLeft(tag, "#")
		if tag == "" {
			continue
		}
		tag = "#" + tag
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
		if len(out) == limit {
			break
		}
	}
	return out
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
