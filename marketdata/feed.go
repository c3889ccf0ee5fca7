package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/YenAle-FT-Gmail/yensense/pipeline/contract"
)

const maxFeedResponseBytes = 2 << 20

type Config struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// Feed fetches structured market data per domain over HTTP. It implements
// contract.Fetcher and is safe for concurrent use.
type Feed struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ contractx.Fetcher = (*Feed)(nil)

func NewFeed(cfg Config) (*Feed, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("market feed url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid market feed url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Feed{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func MustNewFeed(cfg Config) *Feed {
	feed, err := NewFeed(cfg)
	if err != nil {
		panic(err)
	}
	return feed
}

// Fetch retrieves one domain, e.g. "fx_rates" or "us_yields". The response
// must be a JSON object.
func (f *Feed) Fetch(ctx context.Context, domain string, params map[string]string) (map[string]any, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return nil, errors.New("fetch domain is empty")
	}

	endpoint := f.baseURL + "/" + url.PathEscape(domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}

	q := req.URL.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", domain, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read fetch response for %s: %w", domain, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("fetch %s: http status=%d body=%s", domain, resp.StatusCode, string(raw))
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode fetch response for %s: %w", domain, err)
	}
	return data, nil
}
