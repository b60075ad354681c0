package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"researchagent/internal/agent/action"
	"researchagent/internal/agent/admission"
	"researchagent/internal/agent/authn"
	"researchagent/internal/agent/classifier"
	"researchagent/internal/agent/followup"
	"researchagent/internal/agent/llmclient"
	"researchagent/internal/agent/orchestrator"
	"researchagent/internal/agent/research"
	"researchagent/internal/agent/widget"
	"researchagent/internal/agent/writer"
	"researchagent/internal/config"
	"researchagent/internal/handler"
	"researchagent/internal/middleware"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	logWriter := io.Writer(os.Stdout)
	if logFile, err := config.SetupLogFile(cfg.LogDir, cfg.MaxLogFiles); err != nil {
		log.Printf("warning: failed to set up rotated log file, logging to stdout only: %v", err)
	} else {
		defer logFile.Close()
		logWriter = io.MultiWriter(os.Stdout, logFile)
	}

	logger := slog.New(slog.NewJSONHandler(logWriter, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
	)

	anthropicClient, err := llmclient.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	if err != nil {
		log.Fatalf("Failed to create LLM client: %v", err)
	}

	ctx := context.Background()
	verifier, err := authn.NewJWKSVerifier(ctx, cfg.AuthJWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create auth verifier: %v", err)
	}

	gate := admission.NewGate(admission.Params{
		MaxActivePerUser: cfg.MaxActiveRequestsPerUser,
		MaxActiveGlobal:  cfg.MaxActiveRequestsGlobal,
		MaxQueueDepth:    cfg.MaxQueueDepth,
	})
	limiter := admission.NewRateLimiter(float64(cfg.RateLimitBurst), cfg.RateLimitPerSecond)
	admitter := admission.NewAdmitter(limiter, gate, logger)

	breakers := admission.NewBreakerRegistry(admission.BreakerParams{
		FailureThreshold: uint32(cfg.BreakerFailureThreshold),
		Window:           cfg.BreakerWindow,
		Cooldown:         cfg.BreakerCooldown,
	})
	var llm llmclient.Client = llmclient.NewBreakerClient(anthropicClient, breakers, "llm")

	conversationMemory := admission.NewInMemoryConversationMemory()
	flusher := admission.NewStaleContextFlusher(conversationMemory, cfg.StaleContextIdle, cfg.StaleContextInterval, logger)
	go flusher.Run(ctx)

	actionRegistry := action.NewRegistry()
	tavily := action.NewTavilyClient(cfg.TavilyAPIKey)
	webSearch := action.NewBreakerSearchClient(tavily, breakers, "web_search")
	actionRegistry.Register(action.NewWebSearch(webSearch))
	actionRegistry.Register(action.NewAcademicSearch(webSearch))
	actionRegistry.Register(action.NewDiscussionSearch(webSearch))
	actionRegistry.Register(action.NewDone())
	// personal_search is not registered here: it needs a concrete
	// PersonalIndex of the caller's uploaded documents, and file
	// upload/indexing is out of scope (spec.md §1). The embedder and
	// action.NewPersonalSearch are still exercised by their own package
	// tests; a real deployment wires them in once a document index exists.

	widgetProvider := widget.NewHTTPProvider(cfg.WidgetBackendBaseURL, cfg.WidgetBackendAPIKey)
	widgetRegistry := widget.NewRegistry()
	widgetRegistry.Register(widget.NewStock(widgetProvider))
	widgetRegistry.Register(widget.NewWeather(widgetProvider))
	widgetRegistry.Register(widget.NewMovie(widgetProvider))
	widgetRegistry.Register(widget.NewPlace(widgetProvider))
	widgetRegistry.Register(widget.NewHotel(widgetProvider))
	widgetRegistry.Register(widget.NewProduct(widgetProvider))
	widgetRegistry.Register(widget.NewCalculation())

	cl := classifier.New(llm, logger)
	widgetExec := widget.NewExecutor(widgetRegistry, cfg.WidgetSoftTimeout, logger)
	if descriptors, err := widget.LoadDescriptors(); err != nil {
		logger.Warn("failed to load widget descriptors, all widgets enabled with default timeout", "error", err)
	} else {
		widgetExec.UseDescriptors(descriptors)
	}
	researchLoop := research.New(llm, actionRegistry, logger)
	answerWriter := writer.New(llm, logger)
	followupGen := followup.New(llm, logger)

	orch := orchestrator.New(admitter, cl, widgetExec, researchLoop, answerWriter, followupGen,
		orchestrator.DefaultIterationLimits(), logger)

	sessions := handler.NewSessionStore(cfg.StaleSessionTTL)
	researchHandler := handler.NewResearchHandler(orch, verifier, sessions, logger)

	logger.Info("pipeline initialized")

	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler,
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

	api := app.Group("/api")
	api.Post("/research", researchHandler.StartResearch)
	api.Get("/sessions/:id/events", researchHandler.ReconnectSession)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
