package llm

import (
	"maps"
	"net/http"
	"time"

	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sashabaranov/go-openai"
)

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	next    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.next.RoundTrip(req)
}

func newClient(provider, baseURL, apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL

	headers := map[string]string{}
	if provider == config.ProviderOpenRouter {
		headers["HTTP-Referer"] = core.TuskRepositoryURL
		headers["X-Title"] = core.TuskName
	}
	cfg.HTTPClient = newHTTPClient(headers)
	return openai.NewClientWithConfig(cfg)
}

// newHTTPClient has no overall timeout: streams stay open as long as the
// model talks.
func newHTTPClient(headers map[string]string) *http.Client {
	all := map[string]string{"User-Agent": core.TuskUserAgent}
	maps.Copy(all, headers)

	return &http.Client{
		Transport: &headerTransport{
			next: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 120 * time.Second,
			},
			headers: all,
		},
	}
}
