package bridge

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config configures one Executor Bridge listener.
type Config struct {
	SharedToken    string
	AllowedOrigins []string // empty means "allow every origin"
	MaxConcurrency int
	AdmissionRate  float64
	DedupTTLSec    int
	DedupMaxEntry  int
	DedupMaxBytes  int
	Version        string
}

// Server exposes the bridge's `/ws` duplex channel plus the auxiliary
// endpoints spec.md §6 names (`/health`, `/dev/version`, `/dev/bump`)
// through gin — the HTTP framework the teacher already uses for every
// other surface (internal/interfaces/http) — with a `/metrics` endpoint
// new to this package.
type Server struct {
	cfg        Config
	dispatcher Dispatcher
	gate       *ConcurrencyGate
	dedup      *DedupCache
	metrics        *Metrics
	metricsHandler http.Handler
	upgrader       websocket.Upgrader
	logger         *zap.Logger

	bumpCount int
}

// NewServer builds the bridge's HTTP router.
func NewServer(cfg Config, dispatcher Dispatcher, registry *prometheus.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.DedupTTLSec
	if ttl <= 0 {
		ttl = 30
	}
	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		gate:       NewConcurrencyGate(maxInt(cfg.MaxConcurrency, 1), maxFloat(cfg.AdmissionRate, 50)),
		dedup:      NewDedupCache(time.Duration(ttl)*time.Second, cfg.DedupMaxEntry, cfg.DedupMaxBytes),
		logger:     logger.With(zap.String("component", "bridge-server")),
	}
	if registry != nil {
		s.metrics = NewMetrics(registry)
		s.metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Router builds the gin engine. Call Run/ServeHTTP on the result.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)
	r.GET("/dev/version", s.handleVersion)
	r.POST("/dev/bump", s.handleBump)
	if s.metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(s.metricsHandler))
	}
	r.GET("/ws", s.handleWS)
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "active_invocations": s.gate.Active()})
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": s.cfg.Version})
}

func (s *Server) handleBump(c *gin.Context) {
	s.bumpCount++
	c.JSON(http.StatusOK, gin.H{"bump": s.bumpCount})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) authenticate(r *http.Request) bool {
	if s.cfg.SharedToken == "" {
		return true
	}
	if token := r.URL.Query().Get("token"); token == s.cfg.SharedToken {
		return true
	}
	if token := r.Header.Get("x-bridge-token"); token == s.cfg.SharedToken {
		return true
	}
	return false
}

func (s *Server) handleWS(c *gin.Context) {
	if !s.authenticate(c.Request) {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	connection := NewConnection(conn, s.dispatcher, s.gate, s.dedup, s.metrics, s.logger)
	connection.Serve(context.Background())
}

func maxInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func maxFloat(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	return v
}
