package cdp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

const discoverPollInterval = 100 * time.Millisecond

// ErrNoPageTarget is returned when the browser doesn't list a page.
var ErrNoPageTarget = errors.New("no page target found")

// Discover returns the websocket debugger URL of the first page target
// listed by the DevTools HTTP endpoint at addr, as in 127.0.0.1:9222.
// It polls until a page shows up or ctx is done.
func Discover(ctx context.Context, client *http.Client, addr string) (string, error) {
	ticker := time.NewTicker(discoverPollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		wsURL, err := pageTarget(ctx, client, addr)
		if err == nil {
			return wsURL, nil
		}
		// A request cut short by ctx hides why the earlier polls failed.
		if ctx.Err() == nil || lastErr == nil {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("discovering page target at %s: %w", addr, errors.Join(lastErr, ctx.Err()))
		case <-ticker.C:
		}
	}
}

func pageTarget(ctx context.Context, client *http.Client, addr string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/json/list", nil)
	if err != nil {
		return "", fmt.Errorf("%w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w", err)
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("invalid target list: %q", body)
	}
	r := gjson.GetBytes(body, `#(type=="page").webSocketDebuggerUrl`)
	if !r.Exists() || r.String() == "" {
		return "", ErrNoPageTarget
	}

	return r.String(), nil
}
