package main

import (
	"chat-core/auth"
	"chat-core/contract"
	"chat-core/infrastructure/http/server"
	"chat-core/infrastructure/search"
	"chat-core/internal"
	"chat-core/moderation"
	"chat-core/observability"
	"chat-core/runtime"
	"chat-core/runtime/workers"
	"chat-core/services"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and owns their lifecycle, so deferred cleanups
// run before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Store
	store, err := openStore(config, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("Closing store...", "driver", config.StoreDriver)
		_ = store.close()
	}()

	// 3. Connection router
	registry := runtime.NewRegistry()
	membership := services.NewMembership(log, store.chats)
	router := runtime.NewRouter(log, registry, membership, config.SendTimeout).WithDelivery(store.messages)
	locks := runtime.NewChatLocks(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := workers.NewSupervisor(log, config.RestartInterval)
	var broadcaster contract.Broadcaster = router
	if config.FanoutMode == internal.FanoutAsync {
		fanout := workers.NewFanout(log, router, config.FanoutShards, config.FanoutBufferSize)
		sup.Add(fanout.Workers()...)
		broadcaster = fanout
	}

	// 4. Services
	issuer := auth.NewTokenIssuer(config.JWTSecret, config.AuthTokenDuration)
	messageService := services.NewMessageService(log, store.users, store.chats, store.messages, broadcaster, locks)

	if config.SearchEnabled {
		index, err := search.NewBlugeIndex(config.BlugeFilepath, log)
		if err != nil {
			return fmt.Errorf("search index opening failed: %w", err)
		}
		defer func() { _ = index.Close() }()
		messageService = messageService.WithIndex(index)
	}

	if config.ModerationEnabled {
		filter, err := newFilter(config, log)
		if err != nil {
			return err
		}
		messageService = messageService.WithFilter(filter)
	}

	if config.RetentionPeriod > 0 {
		sup.Add(workers.NewRetentionWorker(log, store.chats, messageService,
			config.RetentionPeriod, config.RetentionInterval))
	}

	monitor, err := observability.NewHealthMonitor(registry)
	if err != nil {
		return fmt.Errorf("health monitor failed: %w", err)
	}
	monitor.WithWorkers(sup)

	// 5. Background workers
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		sup.Run(ctx)
	}()

	// 6. HTTP Server Setup
	httpServer := &http.Server{
		Addr: config.Address(),
		Handler: server.NewRouter(server.Deps{
			Log:                  log,
			Authenticator:        issuer,
			Auth:                 services.NewAuthService(log, store.users, issuer),
			Users:                services.NewUserService(log, store.users),
			Chats:                services.NewChatService(log, store.users, store.chats, store.messages),
			Messages:             messageService,
			Reads:                services.NewReadService(log, membership, store.chats, store.messages, broadcaster, locks),
			Membership:           membership,
			Hub:                  router,
			Health:               monitor,
			ConnectionBufferSize: config.ConnectionBufferSize,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", config.Address(), "store", config.StoreDriver,
			"fanout", config.FanoutMode, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		stop()
		<-supervisorDone
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	<-supervisorDone
	log.Info("Program stopped cleanly")

	return nil
}

func newFilter(config internal.Config, log *slog.Logger) (moderation.Filter, error) {
	words := config.Words()
	if config.ModerationWordsDir != "" {
		data, err := moderation.LoadWords(os.DirFS(config.ModerationWordsDir), ".")
		if err != nil {
			return moderation.Filter{}, fmt.Errorf("loading censored words: %w", err)
		}
		log.Info("Censored words loaded", "count", len(data.Words), "languages", data.Languages)
		words = append(words, data.Words...)
	}

	char, err := internal.CharacterRune(config.ModerationCharReplacement)
	if err != nil {
		return moderation.Filter{}, err
	}
	moderator, err := moderation.NewModerator(words, char, log)
	if err != nil {
		return moderation.Filter{}, fmt.Errorf("moderator init failed: %w", err)
	}
	return moderation.NewFilter(&moderator, log), nil
}
