package drivermanager

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/oxtoacart/bpool"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"golang.org/x/net/http/httpproxy"
)

// maxDownloadSize bounds the size of a downloaded archive.
const maxDownloadSize = 256 << 20

// Fetcher downloads the resources drivers are resolved from.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// httpFetcher is a Fetcher over HTTP.
type httpFetcher struct {
	client      *http.Client
	githubToken string
	pool        *bpool.BufferPool
}

func newHTTPFetcher(client *http.Client, githubToken string) *httpFetcher {
	return &httpFetcher{
		client:      client,
		githubToken: githubToken,
		pool:        bpool.NewBufferPool(4),
	}
}

// newHTTPClient returns a client using proxy, or the proxy environment
// variables when proxy is empty.
func newHTTPClient(proxy string) *http.Client {
	cfg := httpproxy.FromEnvironment()
	if proxy != "" {
		cfg = &httpproxy.Config{HTTPProxy: proxy, HTTPSProxy: proxy, NoProxy: cfg.NoProxy}
	}
	proxyFunc := cfg.ProxyFunc()

	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert
	transport.Proxy = func(r *http.Request) (*url.URL, error) {
		return proxyFunc(r.URL)
	}

	return &http.Client{Transport: transport}
}

// Get returns the body of url, which must answer 200 OK.
func (f *httpFetcher) Get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "creating request for %s", u)
	}
	if f.githubToken != "" && strings.HasPrefix(req.URL.Host, "api.github.com") {
		req.Header.Set("Authorization", "Bearer "+f.githubToken)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", u)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status %s", u, resp.Status)
	}

	buf := f.pool.Get()
	defer f.pool.Put(buf)

	n, err := buf.ReadFrom(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", u)
	}
	if n > maxDownloadSize {
		return nil, fmt.Errorf("fetching %s: body larger than %d bytes", u, maxDownloadSize)
	}

	// The buffer goes back to the pool, the caller gets a copy.
	return append([]byte(nil), buf.Bytes()...), nil
}

// getJSON fetches url and checks it holds JSON.
func getJSON(ctx context.Context, f Fetcher, url string) (gjson.Result, error) {
	body, err := f.Get(ctx, url)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%s: invalid JSON", url)
	}

	return gjson.ParseBytes(body), nil
}
