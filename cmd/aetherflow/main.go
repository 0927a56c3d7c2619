package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aetherflow-dev/aetherflow"
	"github.com/aetherflow-dev/aetherflow/pkg/config"
	"github.com/aetherflow-dev/aetherflow/pkg/observability"
)

var (
	// Version information (set via ldflags)
	Version = "dev"

	// Command line flags
	configFile = flag.String("config", getEnv("CONFIG_FILE", "config/aetherflow.yaml"), "Node configuration file")
	httpPort   = flag.Int("http-port", getEnvInt("PORT", 8080), "Observability HTTP server port")
)

func main() {
	flag.Parse()

	log.Printf("Starting AetherFlow node v%s", Version)
	log.Printf("Config: %s, HTTP Port: %d", *configFile, *httpPort)

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Printf("Config not loaded (%v), using defaults", err)
		cfg = config.Default()
	}

	svc, err := aetherflow.New(cfg)
	if err != nil {
		log.Fatalf("Failed to build service: %v", err)
	}

	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		log.Fatalf("Failed to start service: %v", err)
	}

	// Initialize observability
	observability.InitMetrics()
	healthChecker := observability.InitHealthChecker()
	healthChecker.RegisterCheck(observability.PingCheck())
	healthChecker.RegisterCheck(observability.TopicLogCheck(func(ctx context.Context) error {
		_, err := svc.Directory.Info(ctx)
		return err
	}))

	// Start observability server
	obsServer := observability.NewServer(*httpPort)
	errChan := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on :%d", *httpPort)
		if err := obsServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Printf("Error: %v", err)
	case <-quit:
		log.Println("Shutting down node...")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Printf("Service shutdown error: %v", err)
	}

	log.Println("Node stopped")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
