package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ms-perfiles/internal/config"
	credentialsdb "ms-perfiles/internal/credentials/db"
	credentials "ms-perfiles/internal/credentials/service"
	"ms-perfiles/internal/logger"
	eventsdb "ms-perfiles/internal/registrations/db"
	"ms-perfiles/internal/registrations/registration_api"
	registrations "ms-perfiles/internal/registrations/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.NewLogger(cfg.LogDir)
	if err != nil {
		return err
	}
	defer log.Close()
	level, _ := logger.ParseLevel(cfg.LogLevel)
	log.SetLevel(level)

	log.Info("APP", "Starting perfiles service initialization")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Error("DATABASE", err.Error())
		return err
	}
	defer s.Close()

	if cfg.Database.AutoMigrate {
		if err := prepareSchema(ctx, cfg, s, log); err != nil {
			log.Error("MIGRATION", err.Error())
			return err
		}
	}

	locker, redisClient, err := newLocker(ctx, cfg.Redis, log)
	if err != nil {
		log.Error("LOCK", err.Error())
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	pub := newPublisher(ctx, cfg.Kafka, log)
	defer pub.Close()

	events := eventsdb.New(s.Events, locker)
	verifier := credentials.NewVerifier(&credentialsdb.DB{Bun: s.Credentials}, cfg.Registration.LookupCacheTTL, log)

	handler := registration_api.NewHandler(
		registrations.NewProtocol(registrations.NewLedger(events), verifier, pub, cfg.Registration.Location, log),
		registrations.NewReporting(events, log),
		registrations.NewAdmin(events, log),
		log,
	)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      registration_api.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP", fmt.Sprintf("Perfiles service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Error("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		return err
	case <-ctx.Done():
	}

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
		return err
	}
	log.Info("HTTP", "Perfiles service shutdown complete")
	return nil
}

// cliLogger is used by the short-lived commands, which do not need a log file.
func cliLogger() *logger.Logger {
	return logger.NewWithWriter(os.Stderr)
}
