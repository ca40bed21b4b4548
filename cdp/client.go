package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"

	"github.com/grafana/webdriver-launcher/cdp/domains"
	"github.com/grafana/webdriver-launcher/log"
)

var _ cdp.Executor = &Client{}

// ErrClosed is returned by Execute once the connection is closed.
var ErrClosed = errors.New("CDP connection closed")

// Client manages CDP communication with a browser target.
type Client struct {
	logger *log.Logger

	Browser domains.Browser
	Network domains.Network

	conn  *connection
	msgID int64

	msgSubsMu sync.Mutex
	msgSubs   map[int64]chan *cdproto.Message

	// Closed when the receive loop ends.
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// NewClient returns a new Client that is unusable until a CDP connection is
// established with Connect().
func NewClient(logger *log.Logger) *Client {
	c := &Client{
		logger:  logger,
		msgSubs: make(map[int64]chan *cdproto.Message),
		done:    make(chan struct{}),
	}
	c.Browser = domains.NewBrowser(c)
	c.Network = domains.NewNetwork(c)

	return c
}

// Connect to the target that exposes a CDP API at wsURL.
func (c *Client) Connect(ctx context.Context, wsURL string) error {
	if c.conn != nil {
		return fmt.Errorf("CDP connection already established to %q", c.conn.wsURL)
	}

	conn, err := newConnection(ctx, wsURL, c.logger)
	if err != nil {
		return err
	}
	c.logger.Infof("cdp", "established CDP connection to %q", wsURL)
	c.conn = conn

	go c.recvLoop()

	return nil
}

// Execute implements cdp.Executor and performs a synchronous send and
// receive.
func (c *Client) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	if c.conn == nil {
		return errors.New("CDP connection not established")
	}
	id := atomic.AddInt64(&c.msgID, 1)
	c.logger.Debugf("Client:Execute", "wsURL:%q id:%d method:%q", c.conn.wsURL, id, method)

	var buf []byte
	if params != nil {
		var err error
		if buf, err = easyjson.Marshal(params); err != nil {
			return fmt.Errorf("marshaling %s params: %w", method, err)
		}
	}

	// Buffered so recvLoop never blocks on an abandoned call.
	recvCh := make(chan *cdproto.Message, 1)
	c.msgSubsMu.Lock()
	c.msgSubs[id] = recvCh
	c.msgSubsMu.Unlock()
	defer func() {
		c.msgSubsMu.Lock()
		delete(c.msgSubs, id)
		c.msgSubsMu.Unlock()
	}()

	select {
	case <-c.done:
		return c.closedErr()
	default:
	}

	msg := &cdproto.Message{
		ID:     id,
		Method: cdproto.MethodType(method),
		Params: buf,
	}
	if err := c.conn.writeMessage(msg); err != nil {
		return err
	}

	select {
	case msg := <-recvCh:
		switch {
		case msg.Error != nil:
			return msg.Error
		case res != nil:
			return easyjson.Unmarshal(msg.Result, res) //nolint:wrapcheck
		}
		return nil
	case <-c.done:
		return c.closedErr()
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck
	}
}

// Close closes the connection and waits for the receive loop to end.
// It's safe to call Close more than once.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	var err error
	c.closeOnce.Do(func() {
		c.logger.Debugf("Client:Close", "wsURL:%q", c.conn.wsURL)
		err = c.conn.close()
	})
	<-c.done

	return err
}

// Done returns a channel that is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) closedErr() error {
	if c.err != nil {
		return fmt.Errorf("%w: %w", ErrClosed, c.err)
	}
	return ErrClosed
}

func (c *Client) recvLoop() {
	defer close(c.done)

	for {
		msg, err := c.conn.readMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !isClosedConnError(err) {
				c.logger.Errorf("Client:recvLoop", "wsURL:%q ioErr:%v", c.conn.wsURL, err)
				c.err = err
			}
			return
		}

		switch {
		case msg.ID > 0:
			c.msgSubsMu.Lock()
			ch, ok := c.msgSubs[msg.ID]
			c.msgSubsMu.Unlock()
			if !ok {
				c.logger.Debugf("Client:recvLoop", "no caller waiting for message id:%d", msg.ID)
				continue
			}
			ch <- msg
		case msg.Method != "":
			c.logger.Tracef("Client:recvLoop", "event:%q", msg.Method)
		default:
			c.logger.Errorf("cdp", "ignoring malformed incoming CDP message (missing id or method): %#v", msg)
		}
	}
}
