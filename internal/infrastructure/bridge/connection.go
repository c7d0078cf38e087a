package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// Dispatcher executes one canonical tool invocation. Implemented by
// executor.LocalExecutor.
type Dispatcher interface {
	Dispatch(ctx context.Context, tool string, args json.RawMessage) (any, error)
}

// Connection is one `/ws` duplex channel, pairing the teacher's
// read/write-pump split (internal/interfaces/websocket.Client) with
// spec.md §4.9's per-invocation gate and dedup cache. Unlike the
// teacher's Hub, which fans one message out to many clients, a
// Connection serves exactly one peer — the bridge has one local
// executor on the other end of the wire, not a pool of chat clients.
type Connection struct {
	conn       *websocket.Conn
	dispatcher Dispatcher
	gate       *ConcurrencyGate
	dedup      *DedupCache
	metrics    *Metrics
	logger     *zap.Logger

	send    chan []byte
	pending errgroup.Group
}

// NewConnection wraps an upgraded websocket connection. metrics may be
// nil, in which case invocation counters are skipped.
func NewConnection(conn *websocket.Conn, dispatcher Dispatcher, gate *ConcurrencyGate, dedup *DedupCache, metrics *Metrics, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connection{
		conn:       conn,
		dispatcher: dispatcher,
		gate:       gate,
		dedup:      dedup,
		metrics:    metrics,
		logger:     logger.With(zap.String("component", "bridge-connection")),
		send:       make(chan []byte, 64),
	}
}

// Serve runs the connection's read and write pumps until the peer
// disconnects or ctx is canceled, then waits for any in-flight
// invocations to finish.
func (c *Connection) Serve(ctx context.Context) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump(connCtx)
	}()

	c.readPump(connCtx)
	cancel()
	_ = c.pending.Wait()
	close(c.send)
	wg.Wait()
}

func (c *Connection) readPump(ctx context.Context) {
	defer c.conn.Close()
	c.conn.SetReadLimit(1 << 20)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("read error", zap.Error(err))
			}
			return
		}

		var req RequestFrame
		if err := json.Unmarshal(message, &req); err != nil {
			c.logger.Warn("malformed frame", zap.Error(err))
			continue
		}
		if req.Type != FrameRequest {
			continue
		}

		c.pending.Go(func() error {
			c.handleInvoke(ctx, req)
			return nil
		})
	}
}

func (c *Connection) writePump(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) handleInvoke(ctx context.Context, req RequestFrame) {
	if err := c.gate.TryAcquire(); err != nil {
		if c.metrics != nil {
			c.metrics.GateRejectedTotal.Inc()
		}
		c.sendFailure(req, err)
		return
	}
	defer c.gate.Release()
	if c.metrics != nil {
		c.metrics.ActiveInvocations.Set(float64(c.gate.Active()))
		defer c.metrics.ActiveInvocations.Set(float64(c.gate.Active() - 1))
	}

	c.sendEvent(req, EventInvokeStarted, nil)

	invocationID := req.InvocationID
	if invocationID == "" {
		invocationID = req.ID
	}

	data, deduped, err := c.dedup.Execute(req.SessionID, invocationID, req.Fingerprint, func() (any, int, error) {
		result, derr := c.dispatcher.Dispatch(ctx, req.Tool, req.Args)
		size := 0
		if body, merr := json.Marshal(result); merr == nil {
			size = len(body)
		}
		return result, size, derr
	})

	if deduped && c.metrics != nil {
		c.metrics.DedupHitsTotal.Inc()
	}
	if deduped {
		c.sendEvent(req, EventInvokeDeduped, nil)
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	if c.metrics != nil {
		c.metrics.InvocationsTotal.WithLabelValues(req.Tool, outcome).Inc()
	}

	if err != nil {
		c.sendFailure(req, err)
		return
	}
	c.sendEvent(req, EventInvokeFinished, nil)
	c.sendSuccess(req, data)
}

func (c *Connection) sendSuccess(req RequestFrame, data any) {
	c.writeJSON(ResponseFrame{ID: req.ID, OK: true, Data: data, SessionID: req.SessionID, AgentID: req.AgentID})
}

func (c *Connection) sendFailure(req RequestFrame, err error) {
	code := string(pkgerrors.Code(err))
	if code == "" {
		code = string(pkgerrors.CodeTool)
	}
	c.writeJSON(ResponseFrame{
		ID:        req.ID,
		OK:        false,
		Error:     &FrameError{Code: code, Message: err.Error()},
		SessionID: req.SessionID,
		AgentID:   req.AgentID,
	})
}

func (c *Connection) sendEvent(req RequestFrame, event string, data any) {
	c.writeJSON(EventFrame{
		Type:            FrameEvent,
		Event:           event,
		TS:              time.Now().UnixMilli(),
		ID:              req.ID,
		SessionID:       req.SessionID,
		ParentSessionID: req.ParentSessionID,
		AgentID:         req.AgentID,
		Data:            data,
	})
}

func (c *Connection) writeJSON(v any) {
	body, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("failed to marshal frame", zap.Error(err))
		return
	}
	select {
	case c.send <- body:
	default:
		c.logger.Warn("send buffer full, dropping frame", zap.String("frame", fmt.Sprintf("%T", v)))
	}
}
