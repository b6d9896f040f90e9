package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sozialka/social-content-service/internal/auth"
	"github.com/sozialka/social-content-service/internal/config"
	"github.com/sozialka/social-content-service/internal/feed"
	"github.com/sozialka/social-content-service/internal/server"
	"github.com/sozialka/social-content-service/internal/storage"
	"github.com/sozialka/social-content-service/internal/transcode"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize storage
	connectCtx, connectCancel := context.WithTimeout(context.Background(), 15*time.Second)
	store, err := storage.NewMongoStore(connectCtx, cfg.Mongo)
	connectCancel()
	if err != nil {
		log.Fatal("Failed to initialize storage:", err)
	}
	defer store.Close()

	// Object storage for transcode outputs
	uploader, err := transcode.NewS3Uploader(cfg.Storage)
	if err != nil {
		log.Fatal("Failed to initialize object storage:", err)
	}

	// Transcode queue with its single worker
	encoder := &transcode.FFmpegEncoder{Path: cfg.Transcode.FFmpegPath}
	queue := transcode.NewQueue(encoder, uploader, store, cfg.Transcode, cfg.Storage.KeyPrefix)

	// Feed aggregation service and its collaborators
	access := auth.NewCircleChecker(store, 1024, time.Minute)
	feedService := feed.NewService(store, access)
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)

	// Initialize HTTP server for API endpoints
	httpServer := server.NewServer(cfg.Server, feedService, queue, verifier, cfg.Transcode.UploadDir)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server
	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.Server.Port)
		if err := httpServer.Start(); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutdown signal received, gracefully shutting down...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown services; the queue gets to finish its in-flight job
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := queue.Shutdown(shutdownCtx); err != nil {
		log.Printf("Transcode queue shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
}
