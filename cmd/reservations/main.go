package main

import (
	"context"
	"flag"
	"staybook/internal/reservations/handler"
	"staybook/internal/reservations/notifier"
	"staybook/internal/reservations/payment"
	"staybook/internal/reservations/repository"
	"staybook/internal/reservations/service"
	"staybook/internal/reservations/storage"
	"staybook/internal/reservations/validator"
	"staybook/internal/reservations/worker"
	"staybook/pkg/app"
	"staybook/pkg/config"
	"staybook/pkg/kafka"
	kafka_config "staybook/pkg/kafka/config"
	kafka_middleware "staybook/pkg/kafka/middleware"
)

const ServiceName = "reservations"

func main() {
	seedPath := flag.String("seed", "", "JSON file of accommodations and services to load at startup")
	flag.Parse()

	cfg := config.Load(ServiceName)
	cfg.Log.Info("Starting Reservations service")

	store, err := storage.Open(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to open store", "error", err)
	}
	if cfg.RedisURL != "" {
		cfg.SetRedis()
	}

	bookingValidator := validator.NewBookingValidator(cfg.Log)
	if *seedPath != "" {
		seedStore(cfg, store, bookingValidator, *seedPath)
	}

	serverApp := app.NewApplication(cfg)

	events := initNotifier(cfg, serverApp)
	reservationService := service.NewReservationService(
		store,
		bookingValidator,
		events,
		initPaymentGateway(cfg),
		cfg,
	)

	sweeper := worker.NewSweeper(reservationService, cfg.SweepInterval, cfg.WriteTimeout*4, cfg.Log)
	sweeper.Start()
	serverApp.OnShutdown("sweeper", func(ctx context.Context) error {
		sweeper.Stop()
		return nil
	})

	health := handler.NewHealthHandler(store, cfg.Log)
	if cfg.Client.Redis != nil {
		health.AddCheck("redis", handler.PingFunc(func(ctx context.Context) error {
			return cfg.Client.Redis.Ping(ctx).Err()
		}))
	}
	serverApp.SetApp(
		handler.NewBookingHandler(reservationService, cfg.Log),
		health,
	)
	cfg.Log.Info("Reservation service initialized", "storage", cfg.StorageDriver)
	serverApp.Run()
}

func seedStore(cfg *config.Config, store repository.Store, v *validator.BookingValidator, path string) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.WriteTimeout*10)
	defer cancel()

	data, err := storage.SeedFromFile(ctx, store, path, v)
	if err != nil {
		cfg.Log.Fatal("Failed to seed store", "path", path, "error", err)
	}
	cfg.Log.Info("Store seeded",
		"accommodations", len(data.Accommodations),
		"services", len(data.Services),
	)
}

// initNotifier builds the async event pipeline and registers its shutdown
// hooks. Hooks run in reverse order, so the notifier drains before the
// producer closes.
func initNotifier(cfg *config.Config, serverApp *app.Application) *notifier.AsyncNotifier {
	var publisher notifier.Publisher = notifier.NewLogPublisher(cfg.Log)

	if cfg.NotificationDriver == config.NotificationKafka {
		kafkaCfg, err := kafka_config.Load()
		if err != nil {
			cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
		}
		kafkaCfg.LogConfiguration(cfg.Log)

		producer, err := kafka.NewProducer(kafkaCfg, kafkaCfg.BookingEventsTopic, kafkaCfg.BookingEventsDLQ, cfg.Log)
		if err != nil {
			cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
		}
		if kafkaCfg.EnableMiddleware {
			metrics := kafka_middleware.NewMetrics()
			producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
			producer.Use(kafka_middleware.MetricsProducerMiddleware(metrics))
			serverApp.OnShutdown("kafka_metrics", func(ctx context.Context) error {
				metrics.Log(cfg.Log)
				return nil
			})
		}
		serverApp.OnShutdown("kafka_producer", func(ctx context.Context) error {
			return producer.Close()
		})
		publisher = notifier.NewKafkaPublisher(producer, ServiceName)
	}

	events := notifier.NewAsyncNotifier(publisher, notifier.Config{
		BufferSize:     cfg.NotifierBufferSize,
		Workers:        cfg.NotifierWorkers,
		PublishTimeout: cfg.NotifierPublishTimeout,
	}, cfg.Log)
	events.Start()
	serverApp.OnShutdown("notifier", events.Stop)
	return events
}

func initPaymentGateway(cfg *config.Config) payment.Gateway {
	if cfg.PaymentGatewayURL == "" {
		cfg.Log.Warn("PAYMENT_GATEWAY_URL not set, using static gateway that approves every charge")
		return payment.NewStaticGateway()
	}
	return payment.NewHTTPGateway(cfg.PaymentGatewayURL, cfg.PaymentTimeout, cfg.Log)
}
