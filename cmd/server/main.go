// Package main is the entry point for the model manager service.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/helixcode-ai/hx-model-manager/config"
	"github.com/helixcode-ai/hx-model-manager/internal/api"
	"github.com/helixcode-ai/hx-model-manager/internal/catalog"
	"github.com/helixcode-ai/hx-model-manager/internal/download"
	"github.com/helixcode-ai/hx-model-manager/internal/events"
	"github.com/helixcode-ai/hx-model-manager/internal/handlers"
	"github.com/helixcode-ai/hx-model-manager/internal/modelcache"
	"github.com/helixcode-ai/hx-model-manager/internal/ollama"
	"github.com/helixcode-ai/hx-model-manager/internal/perf"
	"github.com/helixcode-ai/hx-model-manager/internal/redisx"
)

const (
	version         = "0.3.1"
	shutdownTimeout = 5 * time.Second
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting hx-model-manager v%s", version)

	cfg := config.Load()
	log.Printf("Configuration loaded - Runtime: %s, TaskProfiles: %s", cfg.OllamaBaseURL, cfg.TaskProfilePath)

	redisClient, err := redisx.NewClient(redisx.Config{
		Addr:        cfg.RedisAddr,
		Username:    cfg.RedisUsername,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		TLSEnabled:  cfg.RedisTLSEnabled,
		TLSInsecure: cfg.RedisTLSInsecure,
	})
	if err != nil {
		log.Fatalf("Failed to initialize Redis client: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	bus := events.NewBus(events.Options{
		Client:  redisClient,
		Channel: cfg.EventsChannel,
	})
	defer bus.Close()

	runtime := ollama.NewClient(cfg.OllamaBaseURL, ollama.WithTimeout(cfg.RequestTimeout))

	cache := modelcache.New()

	cat, err := catalog.New()
	if err != nil {
		log.Fatalf("Failed to initialize task catalog: %v", err)
	}
	if err := cat.LoadDir(cfg.TaskProfilePath); err != nil {
		log.Fatalf("Failed to load task profiles: %v", err)
	}
	log.Printf("Loaded %d task profiles", len(cat.Tasks()))

	coordinator, err := download.New(download.Options{
		Runtime:      runtime,
		Cache:        cache,
		Reporter:     bus,
		Timeout:      cfg.DownloadTimeout,
		HistoryLimit: cfg.DownloadHistoryLimit,
	})
	if err != nil {
		log.Fatalf("Failed to initialize download coordinator: %v", err)
	}

	tracker := perf.New(perf.Options{
		HistoryLimit: cfg.PerfHistoryLimit,
		Window:       cfg.PerfWindow,
	})

	h := handlers.New(coordinator, runtime, cache, tracker, cat, bus, handlers.Options{
		Version:           version,
		ModelCacheTTL:     cfg.ModelCacheTTL,
		LanguageCacheTTL:  cfg.LanguageCacheTTL,
		TaskModelCacheTTL: cfg.TaskModelCacheTTL,
	})

	server := api.NewServer(h, api.Options{APIToken: cfg.APIToken})
	srv := server.Start(":" + cfg.ServerPort)
	log.Printf("Server listening on :%s", cfg.ServerPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
