// Command pretender-server runs Pretender's background processes: the TTL
// Expirer and Stream Trimmer sweeps (spec §4.12). HTTP transport is out of
// scope (spec's Non-goals); operational access goes through pretenderctl or
// a caller embedding interfaces/facade directly.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/pretender-db/pretender/infrastructure/config"
	"github.com/pretender-db/pretender/infrastructure/di"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize container: %v", err)
	}
	defer container.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		container.TTLExpirer.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		container.StreamTrimmer.Run(ctx)
	}()

	container.Logger.Info("pretender-server started",
		zap.String("environment", cfg.Environment),
		zap.Int("ttlIntervalSeconds", cfg.TTLIntervalSeconds),
		zap.Int("streamTrimIntervalSeconds", cfg.StreamTrimIntervalSeconds),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	container.Logger.Info("shutting down pretender-server")
	cancel()
	wg.Wait()

	if err := container.Logger.Sync(); err != nil {
		log.Printf("failed to sync logger: %v", err)
	}
	log.Println("pretender-server stopped")
}
