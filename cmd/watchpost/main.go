package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"watchpost/internal/api"
	"watchpost/internal/metrics"
	"watchpost/internal/publish"
	"watchpost/internal/report"
	"watchpost/internal/rules"
	"watchpost/internal/session"
	"watchpost/internal/source"
	"watchpost/internal/store"
)

func main() {
	// Initialize logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting watchpost")

	// Load environment variables with defaults
	httpAddr := getEnv("WP_HTTP_ADDR", ":8080")
	natsURL := getEnv("WP_NATS_URL", "nats://localhost:4222")
	rulesFile := getEnv("WP_RULES_FILE", "")
	durationSec := getEnvInt("WP_SESSION_DURATION_SEC", 60)
	intervalSec := getEnvInt("WP_SAMPLE_INTERVAL_SEC", 1)
	stateSubject := getEnv("WP_STATE_SUBJECT", "host.state")
	stateTimeoutSec := getEnvInt("WP_STATE_TIMEOUT_SEC", 5)
	flowSubject := getEnv("WP_FLOW_SUBJECT", "flows.raw")
	flowBuffer := getEnvInt("WP_FLOW_BUFFER", 1024)
	iface := getEnv("WP_IFACE", "any")
	maxFindings := getEnvInt("WP_MAX_FINDINGS", 10000)
	dedupeCap := getEnvInt("WP_DEDUPE_CAP", 100000)

	logger.Info("Configuration loaded",
		"http_addr", httpAddr,
		"nats_url", natsURL,
		"rules_file", rulesFile,
		"duration_sec", durationSec,
		"interval_sec", intervalSec,
		"state_subject", stateSubject,
		"flow_subject", flowSubject,
		"interface", iface,
		"max_findings", maxFindings,
		"dedupe_cap", dedupeCap)

	// Load rule configuration. An invalid rule set is fatal before any
	// session starts.
	ruleConfig := rules.DefaultConfig()
	if rulesFile != "" {
		loaded, err := rules.LoadConfig(rulesFile)
		if err != nil {
			logger.Error("Failed to load rule config", "file", rulesFile, "error", err)
			os.Exit(1)
		}
		ruleConfig = loaded
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to NATS
	nc, err := nats.Connect(natsURL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	logger.Info("Connected to NATS")

	prometheusMetrics := metrics.NewMetrics()

	engine, err := rules.NewEngine(ruleConfig, logger, prometheusMetrics)
	if err != nil {
		logger.Error("Failed to create rule engine", "error", err)
		os.Exit(1)
	}

	publisher, err := publish.NewPublisher(nc, logger)
	if err != nil {
		logger.Error("Failed to create publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	hostStore := store.NewMemoryStore(maxFindings, dedupeCap)
	flowStore := store.NewMemoryStore(maxFindings, dedupeCap)

	hostname, _ := os.Hostname()
	sysInfo := &report.SystemInfo{
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Hostname:  hostname,
		GoVersion: runtime.Version(),
	}

	duration := time.Duration(durationSec) * time.Second
	interval := time.Duration(intervalSec) * time.Second

	// Both sessions are bounded by the configured observation window.
	sessionCtx, sessionCancel := context.WithTimeout(ctx, duration)
	defer sessionCancel()

	flowSource := source.NewNATSFlowSource(nc, flowSubject, flowBuffer, logger)
	if err := flowSource.Start(sessionCtx); err != nil {
		logger.Error("Failed to start flow source", "error", err)
		os.Exit(1)
	}

	stateSource := source.NewNATSStateSource(nc, stateSubject,
		time.Duration(stateTimeoutSec)*time.Second, logger)

	hostSession, err := session.NewHostSession(session.HostConfig{
		Source:     stateSource,
		Engine:     engine,
		Duration:   duration,
		Interval:   interval,
		SystemInfo: sysInfo,
		Store:      hostStore,
		Sink:       publisher,
		Logger:     logger,
		Metrics:    prometheusMetrics,
	})
	if err != nil {
		logger.Error("Invalid host session configuration", "error", err)
		os.Exit(1)
	}

	flowSession, err := session.NewFlowSession(session.FlowConfig{
		Source:    flowSource,
		Engine:    engine,
		Interface: iface,
		Store:     flowStore,
		Sink:      publisher,
		Logger:    logger,
		Metrics:   prometheusMetrics,
	})
	if err != nil {
		logger.Error("Invalid flow session configuration", "error", err)
		os.Exit(1)
	}

	httpAPI := api.NewHTTPAPI(hostStore, flowStore)
	httpServer := &http.Server{
		Addr:    httpAddr,
		Handler: httpAPI.Router(),
	}

	go func() {
		logger.Info("Starting HTTP server", "addr", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	// Run both pipelines; they share no mutable state and may overlap
	// freely. Each terminates with a report or an explicit error.
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		rep, err := hostSession.Run(ctx)
		if err != nil {
			logger.Error("Host session failed", "error", err)
		}
		if rep == nil {
			return
		}
		httpAPI.SetHostReport(rep)
		if err := publisher.PublishReport("host", rep); err != nil {
			logger.Warn("Failed to publish host report", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		rep, err := flowSession.Run()
		if err != nil {
			logger.Error("Flow session failed", "error", err)
		}
		if rep == nil {
			return
		}
		httpAPI.SetFlowReport(rep)
		if err := publisher.PublishReport("flow", rep); err != nil {
			logger.Warn("Failed to publish flow report", "error", err)
		}
	}()

	// Wait for shutdown signal; sessions finish on their own when the
	// observation window elapses.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-sigChan:
		logger.Info("Shutdown requested, cancelling sessions")
		cancel()
		wg.Wait()
	case <-done:
		logger.Info("Sessions complete, waiting for shutdown signal")
		<-sigChan
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("watchpost stopped")
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
