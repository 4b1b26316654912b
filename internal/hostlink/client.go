// Package hostlink is the websocket client for the host sidecar that owns the
// game window: object detection, image search, mouse input, camera control
// and the bot lifecycle (log panel, progress bar, logout, stop).
package hostlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"furnacebot.ai/internal/geom"
	"furnacebot.ai/internal/protocol"
)

const DefaultCallTimeout = 5 * time.Second

var ErrClosed = errors.New("hostlink: connection closed")

// RemoteError is a failed RES from the host.
type RemoteError struct {
	Method  string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("hostlink %s: %s: %s", e.Method, e.Code, e.Message)
}

type Config struct {
	URL         string
	ClientName  string
	CallTimeout time.Duration
	Logger      *log.Logger
}

type Client struct {
	cfg    Config
	conn   *websocket.Conn
	layout geom.Layout

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan protocol.ResMsg
	err     error

	seq       atomic.Uint64
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects, sends HELLO and waits for the host's LAYOUT.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "furnacebot"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := d.DialContext(ctx, cfg.URL, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("dial host: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      cfg.ClientName,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}

	layout, err := readLayout(conn, cfg.CallTimeout)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	c := &Client{
		cfg:     cfg,
		conn:    conn,
		layout:  layout,
		pending: map[string]chan protocol.ResMsg{},
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func readLayout(conn *websocket.Conn, timeout time.Duration) (geom.Layout, error) {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	defer conn.SetReadDeadline(time.Time{})
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return geom.Layout{}, fmt.Errorf("await layout: %w", err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.Type != protocol.TypeLayout {
			continue
		}
		if !protocol.IsSupportedVersion(base.ProtocolVersion) {
			return geom.Layout{}, fmt.Errorf("unsupported host protocol version %q", base.ProtocolVersion)
		}
		var l protocol.LayoutMsg
		if err := json.Unmarshal(msg, &l); err != nil {
			return geom.Layout{}, fmt.Errorf("bad layout: %w", err)
		}
		return l.Layout, nil
	}
}

// Layout is the client window geometry the host reported at connect time.
func (c *Client) Layout() geom.Layout { return c.layout }

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		pending := c.pending
		c.pending = map[string]chan protocol.ResMsg{}
		c.mu.Unlock()
		for _, ch := range pending {
			close(ch)
		}
		_ = c.conn.Close()
		close(c.done)
	})
}

func (c *Client) readLoop() {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.Type != protocol.TypeRes {
			continue
		}
		var res protocol.ResMsg
		if err := json.Unmarshal(msg, &res); err != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[res.ID]
		delete(c.pending, res.ID)
		c.mu.Unlock()
		if ok {
			ch <- res
		}
	}
}

// Call sends one request and decodes the result into out (which may be nil).
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("hostlink %s: encode params: %w", method, err)
		}
		raw = b
	}
	id := "R" + strconv.FormatUint(c.seq.Add(1), 10)
	ch := make(chan protocol.ResMsg, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	req := protocol.ReqMsg{
		Type:            protocol.TypeReq,
		ProtocolVersion: protocol.Version,
		ID:              id,
		Method:          method,
		Params:          raw,
	}
	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	err := c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return fmt.Errorf("hostlink %s: %w", method, err)
	}

	timer := time.NewTimer(c.cfg.CallTimeout)
	defer timer.Stop()
	select {
	case res, ok := <-ch:
		if !ok {
			return c.closedErr()
		}
		if !res.OK {
			re := &RemoteError{Method: method, Code: protocol.ErrInternal}
			if res.Error != nil {
				re.Message = res.Error.Message
				switch {
				case res.Error.Code == "":
				case protocol.IsKnownCode(res.Error.Code):
					re.Code = res.Error.Code
				default:
					re.Message = res.Error.Code + ": " + re.Message
				}
			}
			return re
		}
		if out != nil && len(res.Result) > 0 {
			if err := json.Unmarshal(res.Result, out); err != nil {
				return fmt.Errorf("hostlink %s: decode result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-timer.C:
		c.forget(id)
		return fmt.Errorf("hostlink %s: timeout after %s", method, c.cfg.CallTimeout)
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrClosed
}
