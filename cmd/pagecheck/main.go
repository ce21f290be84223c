package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/rdanvers/pagecheck/internal/api"
	"github.com/rdanvers/pagecheck/internal/browser"
	"github.com/rdanvers/pagecheck/internal/config"
	"github.com/rdanvers/pagecheck/internal/nats"
	"github.com/rdanvers/pagecheck/internal/queue"
	"github.com/rdanvers/pagecheck/internal/verify"
)

func main() {
	// Load .env if present, before flags read their env defaults
	_ = godotenv.Load()

	// Parse CLI flags
	cfg := config.ParseFlags()

	// Handle --version and --help
	config.HandleFlags(cfg)

	if !cfg.Serve {
		os.Exit(runOnce(cfg))
	}

	runServer(cfg)
}

// runOnce performs a single verification and reports the outcome via the
// exit code: 0 on a verified capture, 1 on any failure.
func runOnce(cfg *config.Config) int {
	req, err := cfg.VerifyRequest()
	if err != nil {
		log.Printf("Invalid configuration: %v", err)
		return 1
	}

	result := verify.Once(context.Background(), req)
	if !result.Succeeded {
		log.Printf("Verification failed (%s): %s", result.Kind, result.Error)
		return 1
	}

	log.Printf("Verification succeeded: %s", result.ScreenshotPath)
	if result.ThumbnailPath != "" {
		log.Printf("Thumbnail written: %s", result.ThumbnailPath)
	}
	return 0
}

func runServer(cfg *config.Config) {
	// Banner
	log.Printf("Starting %s v%s (page verification service)", config.AppName, config.Version)

	// Resolve the Chrome binary, downloading a managed revision if none is
	// installed on the host
	binPath, ok := launcher.LookPath()
	if !ok {
		var err error
		binPath, err = browser.Install(context.Background(), 0)
		if err != nil {
			log.Fatalf("Failed to install browser: %v", err)
		}
	}

	browserManager := browser.NewManager(binPath)
	if err := browserManager.Start(); err != nil {
		log.Fatalf("Failed to start browser: %v", err)
	}
	defer func() {
		if err := browserManager.Stop(); err != nil {
			log.Printf("Failed to stop browser: %v", err)
		}
	}()

	verifier := verify.NewVerifier(browserManager)

	// NATS + JetStream setup
	var natsServer *nats.Server
	var queueManager *queue.Manager

	if cfg.WithNats {
		log.Printf("Setting up NATS JetStream...")

		var err error
		natsServer, err = nats.NewServer(nats.ServerConfig{
			BinPath:  cfg.NatsBin,
			StoreDir: cfg.NatsStore,
			URL:      cfg.NatsURL,
			AutoDL:   cfg.NatsAutoDL,
		})
		if err != nil {
			log.Fatalf("Failed to create NATS server: %v", err)
		}

		ctx := context.Background()
		if err := natsServer.Start(ctx); err != nil {
			log.Fatalf("Failed to start NATS server: %v", err)
		}
		defer func() { _ = natsServer.Stop() }()

		// Create queue manager
		js := natsServer.GetJetStream()
		queueManager, err = queue.NewManager(js)
		if err != nil {
			log.Fatalf("Failed to create queue manager: %v", err)
		}

		processor := queue.NewVerifyProcessor(verifier)
		if err := queueManager.Start(processor); err != nil {
			log.Fatalf("Failed to start queue processor: %v", err)
		}
		defer queueManager.Stop()
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      config.AppName,
		ErrorHandler: api.ErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	// Setup routes
	api.SetupRoutes(app, browserManager, verifier)

	if queueManager != nil {
		// Setup job routes with security configuration
		routeConfig := api.RouteConfig{
			RateLimitRequests: cfg.RateLimitRequests,
			RateLimitWindow:   cfg.RateLimitWindow,
			IdempotencyTTL:    cfg.IdempotencyTTL,
			BaseURL:           cfg.BaseURL,
		}
		api.SetupJobRoutesWithConfig(app, queueManager, routeConfig)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := browserManager.Stop(); err != nil {
			log.Printf("Failed to stop browser: %v", err)
		}
		if err := app.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.Printf("Starting server on %s", addr)

	if cfg.WithNats {
		log.Printf("NATS JetStream enabled at %s", cfg.NatsURL)
	}

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
