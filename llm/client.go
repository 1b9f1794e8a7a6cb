// Package llm is the text-enhancement collaborator: authored node text goes
// in, enhanced text comes out. The engine treats it as fallible and slow and
// always has the authored text to fall back on.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"
)

// Config points at an OpenAI-compatible chat completion endpoint.
type Config struct {
	Endpoint  string        `yaml:"endpoint" validate:"required,url_format"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model" default:"gpt-4o-mini"`
	Timeout   time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
	MaxTokens int           `yaml:"max_tokens" default:"256" validate:"gte=1"`
}

type Client struct {
	cfg  Config
	http *resty.Client
}

func New(cfg Config) *Client {
	client := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(cfg.Timeout)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &Client{cfg: cfg, http: client}
}

// Enhance rewrites node text in the voice of the given actor. nodeKind tells
// the model whether it is polishing narration or spoken dialogue.
func (c *Client) Enhance(ctx context.Context, text, nodeKind, actorID string, maxTokens int) (string, error) {
	if maxTokens <= 0 || maxTokens > c.cfg.MaxTokens {
		maxTokens = c.cfg.MaxTokens
	}

	system := "Rewrite the following roleplay " + nodeKind + " line, keeping its meaning and any variable placeholders intact."
	if actorID != "" {
		system += " Stay in the voice of " + actorID + "."
	}

	body := map[string]any{
		"model":      c.cfg.Model,
		"max_tokens": maxTokens,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": text},
		},
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post("/v1/chat/completions")
	if err != nil {
		return "", fmt.Errorf("enhance request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("enhance request: %s", resp.Status())
	}

	parsed, err := gabs.ParseJSON(resp.Body())
	if err != nil {
		return "", fmt.Errorf("parsing enhance response: %w", err)
	}
	content, ok := parsed.Path("choices.0.message.content").Data().(string)
	if !ok || content == "" {
		return "", fmt.Errorf("enhance response had no content")
	}
	return content, nil
}
