package publish

import (
	"fmt"
	"os"

	"github.com/TobiSchelling/AutoPoster/internal/config"
	"github.com/TobiSchelling/AutoPoster/internal/metrics"
)

// NewFromConfig builds a registry for every supported platform. In http
// mode platforms without an endpoint get no publisher, so their posts fail
// with ErrNoPublisher instead of silently going nowhere.
func NewFromConfig(cfg config.Publish, platforms []string) (*Registry, error) {
	reg := NewRegistry(metrics.ObservePublish)

	switch cfg.Mode {
	case "", "log":
		for _, p := range platforms {
			reg.Register(p, LogPublisher{Platform: p})
		}
	case "http":
		token := os.Getenv(cfg.TokenEnv)
		bc := BreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			FailureWindow:    cfg.Breaker.FailureWindow,
			SuccessThreshold: cfg.Breaker.SuccessThreshold,
			Delay:            cfg.Breaker.Delay,
			OnStateChange:    metrics.SetBreakerState,
		}
		for _, p := range platforms {
			endpoint, ok := cfg.Endpoints[p]
			if !ok || endpoint == "" {
				log.WithField("platform", p).Warn("No publish endpoint configured")
				continue
			}
			reg.Register(p, NewHTTPPublisher(p, endpoint, token, cfg.Timeout, bc))
		}
	default:
		return nil, fmt.Errorf("unknown publish mode %q", cfg.Mode)
	}
	return reg, nil
}
