// cmd/server is a thin illustrative transport demonstrating how
// internal/orchestrator gets wired up end to end. HTTP/WebSocket framing
// is out of this core's scope (§1 Non-goals) — this exists only to give
// the facade a runnable home, in the teacher's fiber+cors+godotenv style.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orchestrion/internal/apperr"
	"orchestrion/internal/config"
	"orchestrion/internal/ctxmgr"
	"orchestrion/internal/domain/models"
	"orchestrion/internal/limiter"
	"orchestrion/internal/llm"
	"orchestrion/internal/llm/providers/anthropic"
	"orchestrion/internal/llm/providers/mock"
	"orchestrion/internal/llm/providers/openrouter"
	"orchestrion/internal/modelconfig"
	"orchestrion/internal/monitor"
	"orchestrion/internal/orchestrator"
	"orchestrion/internal/repository/postgres"
	"orchestrion/internal/stream"
	"orchestrion/internal/tools"
	"orchestrion/internal/tools/a2a"
	"orchestrion/internal/tools/builtin"
	"orchestrion/internal/tools/mcp"
	"orchestrion/internal/tracing"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("server starting", "environment", cfg.Environment, "port", cfg.Port)

	shutdownTracing, err := tracing.Setup(tracing.Config{Enabled: cfg.TracingEnabled, Exporter: cfg.TracingExporter})
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to create connection pool: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)
	storage := postgres.NewStorage(pool, tables)

	registerer := prometheus.DefaultRegisterer
	sink := monitor.NewPromSink(registerer)

	cm := ctxmgr.New(logger)

	providers := []llm.Provider{mock.New("this is a mock response; configure ANTHROPIC_API_KEY or OPENROUTER_API_KEY for a real one")}
	if cfg.AnthropicAPIKey != "" {
		p, err := anthropic.New(cfg.AnthropicAPIKey)
		if err != nil {
			logger.Warn("failed to configure anthropic provider", "error", err)
		} else {
			providers = append(providers, p)
		}
	}
	if cfg.OpenRouterAPIKey != "" {
		p, err := openrouter.New(cfg.OpenRouterAPIKey, getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"), nil)
		if err != nil {
			logger.Warn("failed to configure openrouter provider", "error", err)
		} else {
			providers = append(providers, p)
		}
	}
	invoker := llm.New(storage, sink, cm, logger, providers...)

	modelRegistry, err := modelconfig.NewRegistry()
	if err != nil {
		log.Fatalf("failed to load model capability registry: %v", err)
	}

	builtins := builtin.NewRegistry()

	mcpClient := mcpClientFromEnv(ctx, logger)
	a2aClient := a2a.NewClient(getEnv("A2A_BASE_URL", ""), time.Duration(cfg.Tunables.A2ATimeoutS*float64(time.Second)))

	executor := tools.NewExecutor(builtins, mcpClient, a2aClient, modelRegistry, cfg.Tunables, sink)

	requestLimiter := limiter.New(storage, logger,
		cfg.Tunables.SessionLockMaxActivePerUser,
		cfg.Tunables.SessionLockTTLS,
		cfg.Tunables.SessionLockPollIntervalS,
		cfg.Tunables.SessionLockBusyRetryS,
		cfg.Tunables.SystemRequestsPerSecond,
		cfg.Tunables.SystemBurst,
	)

	streamCfg := stream.Config{
		QueueSize:            cfg.Tunables.StreamEventQueueSize,
		DeltaPersistChars:    cfg.Tunables.StreamEventPersistChars,
		DeltaPersistInterval: cfg.Tunables.StreamPersistInterval(),
		PollInterval:         cfg.Tunables.StreamPollInterval(),
		FetchLimit:           cfg.Tunables.StreamEventFetchLimit,
		EventTTL:             cfg.Tunables.StreamEventTTL(),
		CleanupInterval:      cfg.Tunables.StreamCleanupInterval(),
	}

	orch := orchestrator.New(orchestrator.Deps{
		Storage:       storage,
		Monitor:       sink,
		CtxMgr:        cm,
		Invoker:       invoker,
		Executor:      executor,
		Limiter:       requestLimiter,
		ModelRegistry: modelRegistry,
		Builtins:      builtins,
		MCPClient:     mcpClient,
		Tunables:      cfg.Tunables,
		StreamConfig:  streamCfg,
		DefaultConfig: orchestrator.DefaultLLMConfig{
			Provider:  cfg.DefaultProvider,
			Model:     cfg.DefaultModel,
			APIKey:    pickDefaultAPIKey(cfg),
			MaxTokens: 4096,
		},
		Logger: logger,
	})

	logger.Info("orchestrator wired", "default_provider", cfg.DefaultProvider, "default_model", cfg.DefaultModel)

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     strings.Join([]string{"GET", "POST", "OPTIONS"}, ","),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	api.Post("/run", func(c *fiber.Ctx) error {
		var req models.Request
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		resp, err := orch.Run(c.Context(), req)
		if err != nil {
			return err
		}
		return c.JSON(resp)
	})
	api.Post("/stream", func(c *fiber.Ctx) error {
		var req models.Request
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		events, err := orch.Stream(c.Context(), req)
		if err != nil {
			return err
		}
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			for ev := range events {
				payload, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				if _, err := w.Write(append([]byte("data: "), append(payload, '\n', '\n')...)); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		})
		return nil
	})
	api.Post("/system-prompt", func(c *fiber.Ctx) error {
		var req models.Request
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.JSON(fiber.Map{"prompt": orch.BuildSystemPrompt(req)})
	})

	logger.Info("listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

func pickDefaultAPIKey(cfg *config.Config) string {
	if cfg.DefaultProvider == "openrouter" {
		return cfg.OpenRouterAPIKey
	}
	return cfg.AnthropicAPIKey
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// mcpClientFromEnv builds an MCP client and, if MCP_SERVER_URL is set,
// connects it to a single streamable-HTTP server at startup — enough to
// exercise the bridge without requiring a full multi-server config format
// for this illustrative entrypoint.
func mcpClientFromEnv(ctx context.Context, logger *slog.Logger) *mcp.Client {
	client := mcp.NewClient(logger)
	url := getEnv("MCP_SERVER_URL", "")
	if url == "" {
		return client
	}
	if err := client.Connect(ctx, mcp.ServerConfig{Name: "default", Transport: "http", URL: url}); err != nil {
		logger.Warn("failed to connect configured MCP server", "url", url, "error", err)
	}
	return client
}

func errorHandler(c *fiber.Ctx, err error) error {
	if appErr, ok := apperr.As(err); ok {
		return c.Status(appErr.Code.Status()).JSON(appErr.Payload())
	}
	code := fiber.StatusInternalServerError
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
