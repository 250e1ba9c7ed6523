package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/uptrace/bun"

	"ms-perfiles/internal/config"
	credentialsdb "ms-perfiles/internal/credentials/db"
	"ms-perfiles/internal/database"
	"ms-perfiles/internal/database/migrations"
	"ms-perfiles/internal/kafka"
	"ms-perfiles/internal/logger"
	eventsdb "ms-perfiles/internal/registrations/db"
	"ms-perfiles/internal/registrations/lock"
	registrations "ms-perfiles/internal/registrations/service"
)

// stores holds the two databases. When both DSNs are equal they share one
// handle.
type stores struct {
	Events      *bun.DB
	Credentials *bun.DB
}

func (s *stores) Close() {
	if s.Events != nil {
		s.Events.Close()
	}
	if s.Credentials != nil && s.Credentials != s.Events {
		s.Credentials.Close()
	}
}

func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stores, error) {
	events, err := database.Open(ctx, cfg.Database, cfg.Database.EventsDSN, log)
	if err != nil {
		return nil, fmt.Errorf("events store: %w", err)
	}
	s := &stores{Events: events, Credentials: events}

	if cfg.Database.CredentialsDSN != cfg.Database.EventsDSN {
		creds, err := database.Open(ctx, cfg.Database, cfg.Database.CredentialsDSN, log)
		if err != nil {
			events.Close()
			return nil, fmt.Errorf("credentials store: %w", err)
		}
		s.Credentials = creds
	}
	return s, nil
}

// prepareSchema migrates Postgres stores with the embedded SQL files and
// creates SQLite tables straight from the models.
func prepareSchema(ctx context.Context, cfg *config.Config, s *stores, log *logger.Logger) error {
	if cfg.Database.Driver == config.DriverSQLite {
		if err := eventsdb.CreateSchema(ctx, s.Events); err != nil {
			return err
		}
		return credentialsdb.CreateSchema(ctx, s.Credentials)
	}

	if err := migrations.NewRunner(s.Events, migrations.EventsSet, log).MigrateUp(); err != nil {
		return fmt.Errorf("events migrations: %w", err)
	}
	if err := migrations.NewRunner(s.Credentials, migrations.CredentialsSet, log).MigrateUp(); err != nil {
		return fmt.Errorf("credentials migrations: %w", err)
	}
	return nil
}

// newLocker returns a Redis lock shared across replicas when REDIS_ADDR is
// set and an in-process lock otherwise. The returned client may be nil.
func newLocker(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (lock.Locker, *redis.Client, error) {
	if cfg.Addr == "" {
		log.Info("LOCK", "REDIS_ADDR not set, using in-process combination locks")
		return lock.NewKeyedMutex(), nil, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis connection error: %w", err)
	}
	log.Info("LOCK", fmt.Sprintf("Redis combination locks on %s (DB: %d)", cfg.Addr, client.Options().DB))
	return lock.NewRedisLocker(client, cfg.LockTTL, log), client, nil
}

type publisher interface {
	registrations.EventPublisher
	Close() error
}

func newPublisher(ctx context.Context, cfg config.KafkaConfig, log *logger.Logger) publisher {
	if !cfg.Enabled {
		log.Info("KAFKA", "Kafka disabled, registration events are not published")
		return kafka.NoopPublisher{}
	}

	if err := kafka.EnsureTopicsExist(ctx, cfg.Brokers, []string{cfg.RegistrationsTopic}, log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}
	log.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for %s", cfg.RegistrationsTopic))
	return kafka.NewProducer(cfg.Brokers, cfg.RegistrationsTopic, log)
}
