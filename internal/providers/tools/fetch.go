// Package tools holds the builtin tools declared on every dispatcher.
package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/inbucket/html2text"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/service/dispatch"
	"github.com/sandevgo/tuskmem/pkg/retry"
)

const (
	maxResponseSize     = 1 << 20 // 1MB limit
	defaultFetchTimeout = 15 * time.Second
)

type FetchInput struct {
	URL string `json:"url" jsonschema:"the http or https URL to fetch"`
}

type Fetch struct {
	client  *http.Client
	retrier *retry.Retrier
}

func NewFetchWithTimeout(timeout time.Duration, retryCfg *retry.Config) *Fetch {
	if retryCfg == nil {
		retryCfg = retry.NewDefaultConfig()
	}
	return &Fetch{
		client: &http.Client{
			Timeout: timeout,
		},
		retrier: retry.NewRetrier(retryCfg),
	}
}

func NewFetch() *Fetch {
	return NewFetchWithTimeout(defaultFetchTimeout, nil)
}

func (f *Fetch) Tool() dispatch.Tool {
	return dispatch.MustFunc("fetch_url", "Fetch content from a URL (HTTP GET). HTML is converted to plain text.", f.FetchURL)
}

// FetchURL retries network errors and 5xx responses; 4xx fails at once.
func (f *Fetch) FetchURL(ctx context.Context, in FetchInput) (string, error) {
	if !strings.HasPrefix(in.URL, "http://") && !strings.HasPrefix(in.URL, "https://") {
		return "", fmt.Errorf("unsupported url %q", in.URL)
	}

	var body string
	err := f.retrier.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.URL, nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("User-Agent", core.TuskUserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to fetch url: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
			if resp.StatusCode < 500 {
				return retry.Permanent(err)
			}
			return err
		}

		limited := io.LimitReader(resp.Body, maxResponseSize)
		if !isHTML(resp.Header.Get("Content-Type")) {
			raw, err := io.ReadAll(limited)
			if err != nil {
				return fmt.Errorf("failed to read body: %w", err)
			}
			body = string(raw)
			return nil
		}

		body, err = html2text.FromReader(limited, html2text.Options{
			PrettyTables: true,
		})
		if err != nil {
			return fmt.Errorf("failed to read body: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return body, nil
}

func isHTML(contentType string) bool {
	return contentType == "" || strings.Contains(contentType, "html")
}

