// Package httpapi exposes the gateway's session/turn surface over gin,
// the same HTTP framework the teacher's own interface layer builds on,
// plus a gorilla/websocket endpoint streaming the Event/Trace Fabric
// live for front ends that want to watch a turn unfold rather than poll
// stream_trace.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
	"github.com/fenwicklabs/brainloop/internal/domain/llm"
	"github.com/fenwicklabs/brainloop/internal/domain/orchestrator"
	"github.com/fenwicklabs/brainloop/internal/domain/valueobject"
	"github.com/fenwicklabs/brainloop/internal/infrastructure/eventbus"
	"github.com/fenwicklabs/brainloop/internal/wiring"
)

// API wires the gateway's gin router over a wiring.Runtime.
type API struct {
	rt       *wiring.Runtime
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New builds an API over rt.
func New(rt *wiring.Runtime, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		rt:     rt,
		logger: logger.With(zap.String("component", "httpapi")),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Server builds an *http.Server bound to addr, ready for
// ListenAndServe/Shutdown.
func (a *API) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (a *API) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", a.handleHealth)
	r.POST("/sessions", a.handleCreateSession)
	r.POST("/sessions/:id/turns", a.handleTurn)
	r.GET("/sessions/:id/trace", a.handleTrace)
	r.POST("/sessions/:id/regenerate", a.handleRegenerate)
	r.GET("/ws", a.handleWS)
	r.GET("/sessions/:id/events", a.handleAgentEvents)
	return r
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createSessionRequest struct {
	Title string `json:"title"`
}

func (a *API) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	_ = c.ShouldBindJSON(&req)

	sess, err := a.rt.Sessions.CreateSession(c.Request.Context(), req.Title)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": sess.ID(), "title": sess.Title()})
}

type turnRequest struct {
	Message string `json:"message"`
	Role    string `json:"role"`
}

// handleTurn appends the user's message as a new entry on the
// session's current leaf, then drives the Runtime Loop until it
// reaches a terminal status.
func (a *API) handleTurn(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := a.rt.SessionStore.FindSession(ctx, sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	content := valueobject.NewMessageContent(req.Message, valueobject.ContentTypeText)
	if _, err := a.rt.Sessions.AppendEntry(ctx, sess, sess.LeafID(), entity.RoleUser, content); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	sm := orchestrator.NewStateMachine(a.rt.Config.Runtime.MaxSteps, a.logger)
	status, err := a.rt.Loop.Run(ctx, sm, sess, llm.RoleDefault)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "status": string(status)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(status), "leaf_id": sess.LeafID()})
}

func (a *API) handleTrace(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	var afterSeq uint64
	if v := c.Query("after"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			afterSeq = n
		}
	}
	page, err := a.rt.Fabric.StreamTrace(ctx, sessionID, afterSeq, 200, 1<<20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events":          page.Events,
		"truncated":       page.Truncated,
		"cut_by":          page.CutBy,
		"returned_events": page.ReturnedEvents,
	})
}

type regenerateRequest struct {
	FromEntryID       string `json:"from_entry_id"`
	IsLatestAssistant bool   `json:"is_latest_assistant"`
}

func (a *API) handleRegenerate(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	var req regenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := a.rt.SessionStore.FindSession(ctx, sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	target, err := a.rt.Loop.Regenerate(ctx, sess, req.FromEntryID, req.IsLatestAssistant)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": target.ID(), "leaf_id": target.LeafID()})
}

// handleWS upgrades to a websocket and relays every event the Fabric
// dispatches until the client disconnects, JSON-encoded one event per
// frame.
func (a *API) handleWS(c *gin.Context) {
	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	handler := func(ctx context.Context, ev eventbus.Event) {
		if err := conn.WriteJSON(ev); err != nil {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	}
	a.rt.Fabric.Subscribe("*", handler)
	defer a.rt.Bus.Unsubscribe("*", handler)

	// Drain inbound frames (ping/close) until the client hangs up.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		select {
		case <-done:
			return
		default:
		}
	}
}

// handleAgentEvents upgrades to a websocket and relays sessionID's
// per-step entity.AgentEvent stream (spec.md §6's brain.step.stream
// surface) — tool calls, tool results, step completion, and terminal
// done/error — distinct from handleWS's raw Fabric trace relay.
func (a *API) handleAgentEvents(c *gin.Context) {
	sessionID := c.Param("id")

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := a.rt.AgentEvents.Subscribe(sessionID)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-events:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

