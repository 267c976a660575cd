package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"

	"github.com/guidoasbun/chat-sec-1/api"
	"github.com/guidoasbun/chat-sec-1/auth"
	"github.com/guidoasbun/chat-sec-1/contract"
	"github.com/guidoasbun/chat-sec-1/gateway"
	"github.com/guidoasbun/chat-sec-1/presence"
	"github.com/guidoasbun/chat-sec-1/relay"
	"github.com/guidoasbun/chat-sec-1/repositories"
	"github.com/guidoasbun/chat-sec-1/runtime"
	"github.com/guidoasbun/chat-sec-1/services"
	"github.com/guidoasbun/chat-sec-1/sessions"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so every defer runs before the process
// exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories & Services
	identityRepository := repositories.NewIdentityRepository(db)
	envelopeRepository := repositories.NewEnvelopeRepository(db)
	tokens := auth.NewTokenIssuer(config.TokenSecret, config.TokenDuration)
	identityService := services.NewIdentityService(identityRepository, tokens, config.DerivationTimeout)

	// 4. Presence, Sessions, Relay, Gateway
	directory := presence.NewDirectory(log, identityRepository)
	pool := runtime.NewPool(config.WrapQueueSize)
	manager := sessions.NewManager(log, directory, identityService, pool)
	messageRelay := relay.NewRelay(log, envelopeRepository, directory, manager)
	dispatcher := gateway.NewDispatcher(log, directory, manager, messageRelay)

	// 5. Supervision of the wrap worker pool
	sup := runtime.NewSupervisor(log, config.RestartInterval)
	sup.Add(lo.Map(pool.Workers(config.NumberOfWrapWorkers, log),
		func(w *runtime.PoolWorker, _ int) contract.Worker { return w })...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go sup.Run(ctx)

	// 6. HTTP API
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	router := api.NewRouter(api.NewHandler(log, identityService))
	api.NewStreamHandler(log, dispatcher, config.ConnectionBufferSize).Mount(router)
	server := &http.Server{
		Addr:    address,
		Handler: router,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
