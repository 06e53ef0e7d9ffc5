package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/yegors/voice-agent/internal/api"
	"github.com/yegors/voice-agent/internal/call"
	"github.com/yegors/voice-agent/internal/config"
	"github.com/yegors/voice-agent/internal/credential"
	"github.com/yegors/voice-agent/internal/metrics"
	"github.com/yegors/voice-agent/internal/storage/sqlite"
	"github.com/yegors/voice-agent/internal/transport/realtime"
	"github.com/yegors/voice-agent/internal/transport/scripted"
	"github.com/yegors/voice-agent/internal/websocket"
	"github.com/yegors/voice-agent/internal/widget"
	"github.com/yegors/voice-agent/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Agent settings may come from a .env file
	_ = godotenv.Load()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting voice agent server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open SQLite storage
	db, err := sqlite.Open(cfg.Storage.SQLitePath, log)
	if err != nil {
		log.Error("Failed to open SQLite storage", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	settingsStorage, err := sqlite.NewSettingsStorage(db, log)
	if err != nil {
		log.Error("Failed to create settings storage", logger.Error(err))
		os.Exit(1)
	}

	// Settings saved on the admin page win over the config file
	agentCfg, err := settingsStorage.LoadOrSeed(call.AgentConfig{
		AgentID:        cfg.Agent.AgentID,
		BackendBaseURL: cfg.Agent.BackendBaseURL,
	})
	if err != nil {
		log.Error("Failed to load agent settings", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Agent settings loaded",
		logger.String("agent_id", agentCfg.AgentID),
		logger.String("backend_base_url", agentCfg.BackendBaseURL),
		logger.Bool("configured", agentCfg.Configured()))

	fetcher := credential.NewFetcher(time.Duration(cfg.Credential.RequestTimeoutSecs)*time.Second, log)

	// Create the voice transport
	var transport call.Transport
	switch cfg.Transport.Type {
	case "scripted":
		log.Warn("Using scripted demo transport, no audio is exchanged")
		transport = scripted.New(log, scripted.WithAutoStarted(), scripted.WithScript(scripted.DemoScript))
	default:
		transport = realtime.NewTransport(
			cfg.Transport.URL,
			time.Duration(cfg.Transport.HandshakeTimeoutSecs)*time.Second,
			nil,
			log,
		)
	}

	recorder := metrics.NewRecorder("voice_agent", log)

	engine, err := widget.NewEngine(log)
	if err != nil {
		log.Error("Failed to create template engine", logger.Error(err))
		os.Exit(1)
	}

	// Create WebSocket server
	wsServer := websocket.NewServer(log)
	go wsServer.Run(ctx)

	host := widget.NewHost(
		widget.HostOptions{
			ContainerID: cfg.Agent.ContainerID,
			Locale:      cfg.Agent.Locale,
		},
		agentCfg,
		widget.Deps{
			Fetcher:      fetcher,
			Transport:    transport,
			Engine:       engine,
			Observer:     recorder,
			StartTimeout: time.Duration(cfg.Transport.StartTimeoutSecs) * time.Second,
		},
		settingsStorage,
		wsServer,
		log,
	)
	wsServer.SetMessageHandler(host)

	// Create API router
	router := api.NewRouter(host, engine, cfg, log, wsServer, recorder)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.String("addr", server.Addr), logger.Error(err))
			cancel()
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")

	// Hang up before the listeners go away
	log.Info("Stopping active call...")
	host.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.String("addr", server.Addr), logger.Error(err))
	} else {
		log.Info("HTTP server shutdown complete", logger.String("addr", server.Addr))
	}

	// Stop the hub
	cancel()

	log.Info("Server fully stopped")
}
