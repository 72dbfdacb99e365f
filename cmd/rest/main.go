package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-docchat/internal/bootstrap"
	"ai-docchat/internal/config"
	"ai-docchat/internal/server"
	"ai-docchat/internal/tracer"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Tracer
	shutdownTracer := tracer.InitTracer(cfg.Tracing)
	defer shutdownTracer(context.Background())

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(cfg)
	defer container.Close()

	// 4. Initialize Server
	srv := server.New(cfg, container)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Printf("Server stopped: %v", err)
		}
	case sig := <-quit:
		log.Printf("Received %s, shutting down", sig)
		if err := srv.Shutdown(10 * time.Second); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}
}
