package cdp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/grafana/webdriver-launcher/log"
)

// fakeTarget is a CDP page target answering commands with canned results.
type fakeTarget struct {
	t *testing.T

	mu      sync.Mutex
	methods []string
	params  map[string]string
}

func newFakeTarget(t *testing.T) (*fakeTarget, string) {
	t.Helper()

	ft := &fakeTarget{t: t, params: make(map[string]string)}
	srv := httptest.NewServer(http.HandlerFunc(ft.serve))
	t.Cleanup(srv.Close)

	return ft, "ws" + strings.TrimPrefix(srv.URL, "http") + "/devtools/page/1"
}

func (ft *fakeTarget) serve(w http.ResponseWriter, r *http.Request) {
	var upgrader websocket.Upgrader
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	for {
		_, buf, err := conn.ReadMessage()
		if err != nil {
			return
		}
		id := gjson.GetBytes(buf, "id").Int()
		method := gjson.GetBytes(buf, "method").String()

		ft.mu.Lock()
		ft.methods = append(ft.methods, method)
		ft.params[method] = gjson.GetBytes(buf, "params").Raw
		ft.mu.Unlock()

		var reply string
		switch method {
		case "Browser.getVersion":
			reply = `{"id":%d,"result":{"protocolVersion":"1.3","product":"Chrome/120.0","revision":"@1",` +
				`"userAgent":"Mozilla/5.0","jsVersion":"12.0"}}`
		case "Page.crash":
			reply = `{"id":%d,"error":{"code":-32601,"message":"'Page.crash' wasn't found"}}`
		case "Page.hang":
			continue
		default:
			reply = `{"id":%d,"result":{}}`
		}
		// An unrelated event first, it must not be taken for the reply.
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"method":"Network.dataReceived","params":{}}`))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(reply, id))); err != nil {
			return
		}
	}
}

func (ft *fakeTarget) calls() []string {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	return append([]string(nil), ft.methods...)
}

func (ft *fakeTarget) paramsOf(method string) string {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	return ft.params[method]
}

func connectClient(t *testing.T, wsURL string) *Client {
	t.Helper()

	c := NewClient(log.NewNullLogger())
	require.NoError(t, c.Connect(context.Background(), wsURL))
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestClientNetwork(t *testing.T) {
	t.Parallel()

	ft, wsURL := newFakeTarget(t)
	c := connectClient(t, wsURL)

	ctx := context.Background()
	require.NoError(t, c.Network.Enable(ctx))
	require.NoError(t, c.Network.EmulateNetworkConditions(ctx, false, 400, 6000, 1000))

	assert.Equal(t, []string{"Network.enable", "Network.emulateNetworkConditions"}, ft.calls())
	p := ft.paramsOf("Network.emulateNetworkConditions")
	assert.Equal(t, float64(400), gjson.Get(p, "latency").Float())
	assert.Equal(t, float64(6000), gjson.Get(p, "downloadThroughput").Float())
	assert.Equal(t, float64(1000), gjson.Get(p, "uploadThroughput").Float())
}

func TestClientBrowserVersion(t *testing.T) {
	t.Parallel()

	_, wsURL := newFakeTarget(t)
	c := connectClient(t, wsURL)

	v, err := c.Browser.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Chrome/120.0", v.Product)
	assert.Equal(t, "Mozilla/5.0", v.UserAgent)
}

func TestClientExecuteErrors(t *testing.T) {
	t.Parallel()

	_, wsURL := newFakeTarget(t)
	c := connectClient(t, wsURL)

	err := c.Execute(context.Background(), "Page.crash", nil, nil)
	assert.ErrorContains(t, err, "wasn't found")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = c.Execute(ctx, "Page.hang", nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientClose(t *testing.T) {
	t.Parallel()

	_, wsURL := newFakeTarget(t)
	c := NewClient(log.NewNullLogger())
	require.NoError(t, c.Connect(context.Background(), wsURL))

	assert.ErrorContains(t, c.Connect(context.Background(), wsURL), "already established")

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	select {
	case <-c.Done():
	default:
		t.Fatal("client should be done after Close")
	}
	assert.ErrorIs(t, c.Execute(context.Background(), "Network.enable", nil, nil), ErrClosed)
}

func TestClientNotConnected(t *testing.T) {
	t.Parallel()

	c := NewClient(log.NewNullLogger())
	assert.Error(t, c.Execute(context.Background(), "Network.enable", nil, nil))
	assert.NoError(t, c.Close())
}
