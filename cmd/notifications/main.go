package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"staybook/internal/reservations/notifier"
	"staybook/pkg/config"
	"staybook/pkg/kafka"
	kafka_config "staybook/pkg/kafka/config"
	kafka_middleware "staybook/pkg/kafka/middleware"
	"syscall"
)

const ServiceName = "notifications"

func main() {
	cfg := config.Load(ServiceName)
	defer cfg.GracefulShutdown()

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	dispatcher := notifier.NewDispatcher(notifier.NewLogSender(cfg.Log), cfg.Log)
	consumer, err := kafka.NewConsumer(
		kafkaCfg,
		kafkaCfg.BookingEventsTopic,
		kafkaCfg.ConsumerGroupID,
		kafkaCfg.BookingEventsDLQ,
		dispatcher.Handle,
		cfg.Log,
	)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}

	metrics := kafka_middleware.NewMetrics()
	if kafkaCfg.EnableMiddleware {
		consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
		consumer.Use(kafka_middleware.MetricsConsumerMiddleware(metrics))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Log.Info("Consuming booking events",
		"topic", kafkaCfg.BookingEventsTopic,
		"group_id", kafkaCfg.ConsumerGroupID,
	)
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		cfg.Log.Error("Consumer stopped", "error", err)
	}

	if err := consumer.Close(); err != nil {
		cfg.Log.Error("Failed to close consumer", "error", err)
	}
	metrics.Log(cfg.Log)
	cfg.Log.Info("Notifications service stopped")
}
