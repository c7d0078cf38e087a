// Package wiring is the composition root: it turns a loaded Config into
// a fully-registered Runtime — every store, registry, provider, and the
// orchestrator Loop itself — so cmd/gateway, cmd/executor, and
// cmd/tracetui each only need to call New and mount their own
// transport on top.
//
// Grounded on the teacher's internal/application/app.go App struct
// (one constructor wiring every repository/service/router in
// dependency order, stored on a single struct other entrypoints share),
// adapted here to spec.md's wider module set.
package wiring

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fenwicklabs/brainloop/internal/domain/hook"
	"github.com/fenwicklabs/brainloop/internal/domain/llm"
	"github.com/fenwicklabs/brainloop/internal/domain/orchestrator"
	"github.com/fenwicklabs/brainloop/internal/domain/repository"
	"github.com/fenwicklabs/brainloop/internal/domain/session"
	"github.com/fenwicklabs/brainloop/internal/domain/toolcontract"
	"github.com/fenwicklabs/brainloop/internal/domain/toolprovider"
	"github.com/fenwicklabs/brainloop/internal/domain/valueobject"
	"github.com/fenwicklabs/brainloop/internal/infrastructure/bridge"
	"github.com/fenwicklabs/brainloop/internal/infrastructure/cdpengine"
	"github.com/fenwicklabs/brainloop/internal/infrastructure/config"
	"github.com/fenwicklabs/brainloop/internal/infrastructure/eventbus"
	"github.com/fenwicklabs/brainloop/internal/infrastructure/llmproviders"
	"github.com/fenwicklabs/brainloop/internal/infrastructure/store"
)

// Runtime bundles every wired component cmd/gateway's HTTP/websocket
// handlers and cmd/tracetui's viewer share.
type Runtime struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *gorm.DB

	Bus          eventbus.Bus
	Fabric       *eventbus.Fabric
	AgentEvents  *eventbus.AgentEventBroker
	SessionStore repository.SessionStore
	Sessions     *session.Manager
	Contracts *toolcontract.Registry
	Providers *toolprovider.Registry
	Hooks     *hook.Runner
	LLM       *llm.Runner
	Engine    *cdpengine.Engine
	Browser   *BrowserGateway
	Bridge    *bridge.Client
	Loop      *orchestrator.Loop
}

// New builds a Runtime from cfg: DB connection, legacy-state bootstrap,
// session store, event fabric, tool contracts/providers/policies, hook
// runner, LLM registry/resolver/runner, the browser Execution Engine
// gateway, an Executor Bridge client (best-effort — a dial failure logs
// a warning and runs with fs/command tools degraded to E_NO_PROVIDER
// rather than failing startup, since a session that never touches the
// filesystem should still be usable), and finally the orchestrator Loop.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := store.NewDBConnection(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	bus, err := newEventBus(cfg.Eventbus, logger)
	if err != nil {
		return nil, fmt.Errorf("build event bus: %w", err)
	}
	traces := store.NewGormTraceStore(db)
	fabric := eventbus.NewFabric(bus, traces, logger)

	if _, err := store.Bootstrap(ctx, db, fabric); err != nil {
		return nil, fmt.Errorf("bootstrap legacy state: %w", err)
	}

	sessionStore := store.NewGormSessionStore(db)
	sessionManager := session.NewManager(sessionStore, logger)

	contracts := toolcontract.NewRegistry()
	if err := registerContracts(contracts); err != nil {
		return nil, fmt.Errorf("register tool contracts: %w", err)
	}

	providers := toolprovider.NewRegistry()

	bridgeClient, err := dialBridge(ctx, cfg.Bridge, logger)
	if err != nil {
		logger.Warn("executor bridge unavailable, fs/command tools will degrade", zap.Error(err))
	}
	if err := registerExecutorCapabilities(providers, bridgeClient); err != nil {
		return nil, fmt.Errorf("register executor capabilities: %w", err)
	}

	engine := cdpengine.NewEngine()
	browserGateway := NewBrowserGateway(engine, cfg.CDP.DebugURL)
	if err := registerBrowserCapabilities(providers, browserGateway, engine, logger); err != nil {
		return nil, fmt.Errorf("register browser capabilities: %w", err)
	}

	hooks := hook.NewRunner()

	llmRegistry := llm.NewRegistry(logger)
	llmRegistry.Add(llmproviders.NewFixtureAdapter("fixture"))
	for _, hc := range cfg.LLM.HTTP {
		llmRegistry.Add(llmproviders.NewHTTPAdapter(llmproviders.HTTPAdapterConfig{
			Name:    hc.Name,
			BaseURL: hc.BaseURL,
			APIKey:  hc.APIKey,
			Models:  hc.Models,
		}, logger))
	}
	resolver := llm.NewProfileResolver(toProfiles(cfg.LLM.Profiles))
	llmRunner := llm.NewRunner(llmRegistry, resolver, hooks, logger)

	loop := orchestrator.NewLoop(sessionManager, contracts, providers, llmRunner, hooks, fabric, toolTarget, nil, logger)
	loop.MaxSteps = cfg.Runtime.MaxSteps
	loop.CompactionRetries = cfg.Runtime.CompactionRetries

	agentEvents := eventbus.NewAgentEventBroker()
	loop.SetStream(agentEvents)

	return &Runtime{
		Config: cfg, Logger: logger, DB: db,
		Bus: bus, Fabric: fabric, AgentEvents: agentEvents, SessionStore: sessionStore, Sessions: sessionManager,
		Contracts: contracts, Providers: providers, Hooks: hooks,
		LLM: llmRunner, Engine: engine, Browser: browserGateway,
		Bridge: bridgeClient, Loop: loop,
	}, nil
}

// dialBridge attempts a single dial against the configured Executor
// Bridge; callers treat a non-nil error as "run degraded", not fatal.
func dialBridge(ctx context.Context, cfg config.BridgeConfig, logger *zap.Logger) (*bridge.Client, error) {
	if cfg.DialURL == "" {
		return nil, fmt.Errorf("no bridge dial_url configured")
	}
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return bridge.Dial(dialCtx, bridge.ClientConfig{
		URL:              cfg.DialURL,
		SharedToken:      cfg.SharedToken,
		HandshakeTimeout: 5 * time.Second,
	}, logger)
}

// newEventBus builds the Fabric's underlying bus. When cfg.WALDir is
// set it constructs a WAL-backed PersistentBus, so every event Fabric
// dispatches is written and flushed to the WAL file first (not
// fsynced per event) — a process crash between emission and
// the Session Store's own async trace write still leaves the raw
// event recoverable from the WAL (PersistentBus.Replay / WALSize are
// the operator-facing recovery/inspection surface, exercised by
// eventbus's own tests). An empty WALDir falls back to a plain
// in-memory bus for tests and throwaway runs.
func newEventBus(cfg config.EventbusConfig, logger *zap.Logger) (eventbus.Bus, error) {
	bufSize := cfg.BufferSize
	if bufSize <= 0 {
		bufSize = 256
	}
	if cfg.WALDir == "" {
		return eventbus.NewInMemoryBus(logger, bufSize), nil
	}
	return eventbus.NewPersistentBus(eventbus.PersistentBusConfig{
		WALDir:     cfg.WALDir,
		BufferSize: bufSize,
		MaxWALSize: cfg.MaxWALBytes,
	}, logger)
}

// toProfiles converts the YAML-facing config.ProfileConfig map to
// llm.Profile, keyed by llm.Role.
func toProfiles(in map[string]config.ProfileConfig) map[llm.Role]llm.Profile {
	out := make(map[llm.Role]llm.Profile, len(in))
	for role, pc := range in {
		out[llm.Role(role)] = llm.Profile{
			Provider:       pc.Provider,
			Model:          pc.Model,
			Timeout:        pc.Timeout,
			RetryCap:       pc.RetryCap,
			RetryBaseDelay: pc.RetryBaseDelay,
			RetryMaxDelay:  pc.RetryMaxDelay,
			EscalateTo:     llm.Role(pc.EscalateTo),
			Sampling:       valueobject.NewModelConfig(pc.Provider, pc.Model, pc.MaxTokens, pc.Temperature, pc.TopP, pc.Stream),
		}
	}
	return out
}

// toolTarget extracts the capability-routing target from a tool call's
// arguments: a browser call routes by tab_id, an fs/command call by
// path or commandId, falling back to a generic "target" field.
func toolTarget(toolName string, args map[string]any) string {
	for _, key := range []string{"tab_id", "path", "commandId", "target"} {
		if v, ok := args[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
