package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// Client is the Runtime Loop's side of the `/ws` duplex channel: it
// dials the Local Executor's bridge listener, authenticates with the
// shared token, and turns tool-provider Route calls into request/
// response frame round-trips. Mirrors Connection's read/write-pump
// split from the other end of the same wire.
type Client struct {
	conn   *websocket.Conn
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]chan ResponseFrame
	send    chan []byte
	closed  chan struct{}
}

// ClientConfig configures a Dial.
type ClientConfig struct {
	URL             string // e.g. ws://127.0.0.1:8765/ws
	SharedToken     string
	HandshakeTimeout time.Duration
}

// Dial opens a connection to a bridge Server and starts its pumps.
func Dial(ctx context.Context, cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}
	header := make(map[string][]string)
	if cfg.SharedToken != "" {
		header["x-bridge-token"] = []string{cfg.SharedToken}
	}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeServiceUnavail, "bridge dial failed", err)
	}
	c := &Client{
		conn:    conn,
		logger:  logger.With(zap.String("component", "bridge-client")),
		pending: make(map[string]chan ResponseFrame),
		send:    make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
	go c.writePump()
	go c.readPump()
	return c, nil
}

// Invoke sends one request frame and blocks for its response or ctx
// cancellation. Implements the shape toolprovider.Invoke expects once
// adapted by a capability-specific wrapper (see application wiring).
func (c *Client) Invoke(ctx context.Context, tool string, sessionID, agentID string, args any) (map[string]any, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeArgs, "marshal invoke args", err)
	}
	id := uuid.NewString()
	req := RequestFrame{
		Type:      FrameRequest,
		ID:        id,
		Tool:      tool,
		Args:      body,
		SessionID: sessionID,
		AgentID:   agentID,
	}
	ch := make(chan ResponseFrame, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	raw, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeArgs, "marshal request frame", err)
	}
	select {
	case c.send <- raw:
	case <-ctx.Done():
		return nil, pkgerrors.Wrap(pkgerrors.CodeTimeout, "bridge send canceled", ctx.Err())
	case <-c.closed:
		return nil, pkgerrors.New(pkgerrors.CodeServiceUnavail, "bridge connection closed")
	}

	select {
	case resp := <-ch:
		if !resp.OK {
			code := pkgerrors.CodeTool
			msg := "invoke failed"
			if resp.Error != nil {
				code = pkgerrors.ErrorCode(resp.Error.Code)
				msg = resp.Error.Message
			}
			return nil, pkgerrors.New(code, msg)
		}
		out, _ := toMap(resp.Data)
		return out, nil
	case <-ctx.Done():
		return nil, pkgerrors.Wrap(pkgerrors.CodeTimeout, "bridge invoke canceled", ctx.Err())
	case <-c.closed:
		return nil, pkgerrors.New(pkgerrors.CodeServiceUnavail, "bridge connection closed")
	}
}

// Close tears down the connection.
func (c *Client) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return c.conn.Close()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Warn("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			_ = c.conn.WriteMessage(websocket.PingMessage, nil)
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case <-c.closed:
		default:
			close(c.closed)
		}
	}()
	c.conn.SetReadLimit(1 << 20)
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &envelope); err != nil {
			continue
		}
		if envelope.Type == string(FrameEvent) {
			continue // events are fire-and-forget here; a richer client could fan these out
		}
		var resp ResponseFrame
		if err := json.Unmarshal(message, &resp); err != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func toMap(v any) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("invoke result is not an object: %w", err)
	}
	return m, nil
}
