package cdp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"

	"github.com/grafana/webdriver-launcher/log"
)

const wsWriteTimeout = 10 * time.Second

// connection is a websocket connection speaking CDP messages.
type connection struct {
	wsURL  string
	conn   *websocket.Conn
	logger *log.Logger

	// gorilla/websocket supports one concurrent writer.
	writeMu sync.Mutex
}

func newConnection(ctx context.Context, wsURL string, logger *log.Logger) (*connection, error) {
	wd := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Proxy:            http.ProxyFromEnvironment,
		ReadBufferSize:   1 << 16,
		WriteBufferSize:  1 << 16,
	}
	conn, resp, err := wd.DialContext(ctx, wsURL, http.Header{})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to %q: %w", wsURL, err)
	}

	return &connection{
		wsURL:  wsURL,
		conn:   conn,
		logger: logger,
	}, nil
}

func (c *connection) readMessage() (*cdproto.Message, error) {
	_, buf, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	var msg cdproto.Message
	decoder := jlexer.Lexer{Data: buf}
	msg.UnmarshalEasyJSON(&decoder)
	if err := decoder.Error(); err != nil {
		return nil, fmt.Errorf("decoding CDP message: %w", err)
	}
	c.logger.Tracef("cdp:recv", "wsURL:%q id:%d method:%q", c.wsURL, msg.ID, msg.Method)

	return &msg, nil
}

func (c *connection) writeMessage(msg *cdproto.Message) error {
	var encoder jwriter.Writer
	msg.MarshalEasyJSON(&encoder)
	if err := encoder.Error; err != nil {
		return fmt.Errorf("encoding CDP message: %w", err)
	}
	buf, err := encoder.BuildBytes()
	if err != nil {
		return fmt.Errorf("encoding CDP message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.logger.Tracef("cdp:send", "wsURL:%q id:%d method:%q", c.wsURL, msg.ID, msg.Method)
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, buf); err != nil {
		return fmt.Errorf("writing CDP message: %w", err)
	}

	return nil
}

// close sends a close frame and closes the underlying connection.
func (c *connection) close() error {
	c.writeMu.Lock()
	err := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	if cerr := c.conn.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}

	return err //nolint:wrapcheck
}
