package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ms-perfiles/internal/config"
	"ms-perfiles/internal/kafka"
)

var eventsGroup string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow registration.created events on Kafka",
	RunE:  runEvents,
}

func init() {
	eventsCmd.Flags().StringVar(&eventsGroup, "group", "perfiles-events-cli", "Kafka consumer group")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is empty")
	}
	log := cliLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.RegistrationsTopic, eventsGroup, log)
	defer consumer.Close()

	out := json.NewEncoder(cmd.OutOrStdout())
	return consumer.Start(ctx, func(event kafka.RegistrationCreated) {
		out.Encode(event)
	})
}
