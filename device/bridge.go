package device

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
)

// BridgeConfig configures the HTTP connection to a local device bridge.
// Vendor wire protocols live behind the bridge; adapters here only speak its
// REST surface.
type BridgeConfig struct {
	URL         string        `yaml:"url" validate:"required,url_format"`
	Timeout     time.Duration `yaml:"timeout" default:"10s" validate:"gte=1s"`
	MaxRetries  int           `yaml:"max_retries" default:"2" validate:"gte=0,lte=10"`
	RetryWaitMS int           `yaml:"retry_wait_ms" default:"100" validate:"gte=0,lte=10000"`
}

// bridge wraps a resty client with a circuit breaker so a dead bridge
// degrades to fast failures instead of stacking up blocked actuations.
type bridge struct {
	http *resty.Client
	cb   *gobreaker.CircuitBreaker[*resty.Response]
}

func newBridge(name string, cfg BridgeConfig) *bridge {
	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(time.Duration(cfg.RetryWaitMS) * time.Millisecond)

	cb := gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &bridge{http: client, cb: cb}
}

// post sends a command to the bridge, optionally decoding the JSON response
// into out.
func (b *bridge) post(ctx context.Context, path string, body any, out any) error {
	_, err := b.cb.Execute(func() (*resty.Response, error) {
		req := b.http.R().SetContext(ctx)
		if body != nil {
			req.SetBody(body)
		}
		if out != nil {
			req.SetResult(out)
		}
		resp, err := req.Post(path)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("bridge returned %s", resp.Status())
		}
		return resp, nil
	})
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	return nil
}

func (b *bridge) get(ctx context.Context, path string, out any) error {
	_, err := b.cb.Execute(func() (*resty.Response, error) {
		resp, err := b.http.R().SetContext(ctx).SetResult(out).Get(path)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("bridge returned %s", resp.Status())
		}
		return resp, nil
	})
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	return nil
}
