package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/sirupsen/logrus"
)

// BreakerConfig configures the circuit breaker around one endpoint.
type BreakerConfig struct {
	FailureThreshold uint
	FailureWindow    uint
	SuccessThreshold uint
	Delay            time.Duration
	// OnStateChange receives 0=closed, 1=half-open, 2=open.
	OnStateChange func(platform string, state int)
}

// RejectedError is a 4xx answer from the relay. It is final for this post
// and does not count against the breaker.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("publish rejected with %d: %s", e.StatusCode, e.Body)
}

// HTTPPublisher posts to a relay endpoint that fronts one platform's API.
type HTTPPublisher struct {
	platform string
	endpoint string
	token    string
	client   *http.Client
	breaker  circuitbreaker.CircuitBreaker[any]
}

// NewHTTPPublisher creates a publisher for platform that posts to endpoint.
func NewHTTPPublisher(platform, endpoint, token string, timeout time.Duration, bc BreakerConfig) *HTTPPublisher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if bc.FailureThreshold == 0 {
		bc.FailureThreshold = 3
	}
	if bc.FailureWindow < bc.FailureThreshold {
		bc.FailureWindow = bc.FailureThreshold
	}
	if bc.SuccessThreshold == 0 {
		bc.SuccessThreshold = 1
	}
	if bc.Delay <= 0 {
		bc.Delay = time.Minute
	}

	builder := circuitbreaker.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			var rejected *RejectedError
			return err != nil && !errors.As(err, &rejected)
		}).
		WithFailureThresholdRatio(bc.FailureThreshold, bc.FailureWindow).
		WithDelay(bc.Delay).
		WithSuccessThreshold(bc.SuccessThreshold).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			log.WithFields(logrus.Fields{
				"platform":   platform,
				"from_state": stateName(event.OldState),
				"to_state":   stateName(event.NewState),
			}).Warn("Publish circuit breaker state change")
			if bc.OnStateChange != nil {
				bc.OnStateChange(platform, stateValue(event.NewState))
			}
		})

	return &HTTPPublisher{
		platform: platform,
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
		breaker:  builder.Build(),
	}
}

type relayRequest struct {
	AccountRef string   `json:"account_ref,omitempty"`
	Platform   string   `json:"platform"`
	Text       string   `json:"text"`
	MediaURLs  []string `json:"media_urls,omitempty"`
}

type relayResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Publish sends the post through the breaker. An open breaker fails fast
// with circuitbreaker.ErrOpen.
func (h *HTTPPublisher) Publish(ctx context.Context, req Request) (*Result, error) {
	out, err := failsafe.With[any](h.breaker).WithContext(ctx).Get(func() (any, error) {
		return h.send(ctx, req)
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return nil, fmt.Errorf("%s publishing paused after repeated failures: %w", h.platform, err)
		}
		return nil, err
	}
	return out.(*Result), nil
}

func (h *HTTPPublisher) send(ctx context.Context, req Request) (*Result, error) {
	data, err := json.Marshal(relayRequest{
		AccountRef: req.ExternalRef,
		Platform:   h.platform,
		Text:       req.Content,
		MediaURLs:  req.MediaURLs,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s relay error: %w", h.platform, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := strings.TrimSpace(string(body))
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, &RejectedError{StatusCode: resp.StatusCode, Body: msg}
		}
		return nil, fmt.Errorf("%s relay returned %d: %s", h.platform, resp.StatusCode, msg)
	}

	var rr relayResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("decoding relay response: %w", err)
	}
	if rr.ID == "" {
		return nil, fmt.Errorf("%s relay response has no post id", h.platform)
	}
	return &Result{ExternalPostID: rr.ID, PostURL: rr.URL}, nil
}

func stateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.HalfOpenState:
		return "half-open"
	case circuitbreaker.OpenState:
		return "open"
	default:
		return "closed"
	}
}

func stateValue(s circuitbreaker.State) int {
	switch s {
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return 0
	}
}
