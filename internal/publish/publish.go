// Package publish hands finished posts to the platform they belong to.
package publish

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// ErrNoPublisher is returned when no publisher is registered for a platform.
var ErrNoPublisher = errors.New("no publisher for platform")

var log = logrus.WithField("component", "publish")

// Request is a post ready to go out.
type Request struct {
	AccountID   int64
	Platform    string
	ExternalRef string
	Content     string
	Hashtags    []string
	MediaURLs   []string
}

// Result identifies the published post on the platform.
type Result struct {
	ExternalPostID string
	PostURL        string
}

// Publisher sends one post to a platform.
type Publisher interface {
	Publish(ctx context.Context, req Request) (*Result, error)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, req Request) (*Result, error)

func (f PublisherFunc) Publish(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

// Registry routes requests to the publisher registered for their platform.
type Registry struct {
	publishers map[string]Publisher
	observe    func(platform string, err error)
}

// NewRegistry creates an empty registry. observe, if set, sees every attempt.
func NewRegistry(observe func(platform string, err error)) *Registry {
	return &Registry{publishers: make(map[string]Publisher), observe: observe}
}

// Register sets the publisher for platform, replacing any previous one.
func (r *Registry) Register(platform string, p Publisher) {
	r.publishers[platform] = p
}

// Platforms lists registered platforms in sorted order.
func (r *Registry) Platforms() []string {
	out := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Publish normalizes the text for the target platform and sends it.
func (r *Registry) Publish(ctx context.Context, req Request) (*Result, error) {
	res, err := r.publish(ctx, req)
	if r.observe != nil {
		r.observe(req.Platform, err)
	}
	return res, err
}

func (r *Registry) publish(ctx context.Context, req Request) (*Result, error) {
	p, ok := r.publishers[req.Platform]
	if !ok {
		return nil, fmt.Errorf("%s: %w", req.Platform, ErrNoPublisher)
	}

	text, err := Compose(req.Platform, req.Content, req.Hashtags)
	if err != nil {
		return nil, err
	}
	req.Content = text
	req.Hashtags = nil

	res, err := p.Publish(ctx, req)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &Result{}
	}
	return res, nil
}
