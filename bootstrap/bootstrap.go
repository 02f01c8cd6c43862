// Package bootstrap resolves the URL the live transport connects to.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
)

// DefaultLiveURL is the public bidirectional endpoint of the live API.
const DefaultLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// Provider returns a transport URL for one session.
type Provider interface {
	URL(ctx context.Context) (string, error)
}

// Direct builds the URL locally from a base endpoint and an API key.
type Direct struct {
	Base   string
	APIKey string
}

func (d Direct) URL(ctx context.Context) (string, error) {
	base := d.Base
	if base == "" {
		base = DefaultLiveURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid live url: %w", err)
	}
	if d.APIKey != "" {
		q := u.Query()
		q.Set("key", d.APIKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Endpoint asks an HTTP service for the transport URL. The service answers
// with {"url": "..."} so that API keys stay server side.
type Endpoint struct {
	Address string
	Client  *http.Client
}

type endpointResponse struct {
	URL string `json:"url"`
}

func (e Endpoint) URL(ctx context.Context) (string, error) {
	client := e.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.Address, nil)
	if err != nil {
		return "", fmt.Errorf("build bootstrap request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("bootstrap request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("read bootstrap response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bootstrap endpoint returned %s", resp.Status)
	}

	var out endpointResponse
	if err := sonic.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode bootstrap response: %w", err)
	}
	if out.URL == "" {
		return "", errors.New("bootstrap response has no url")
	}
	return out.URL, nil
}
