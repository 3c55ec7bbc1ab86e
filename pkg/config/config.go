package config

import (
	"fmt"
	"os"
	"regexp"
	"staybook/pkg/client"
	"staybook/pkg/logger"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	StorageDriver string

	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	PostgresDSN      string
	PostgresMaxConns int

	RedisURL string

	Port string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	CancellationCutoff time.Duration
	RetryBackoff       time.Duration
	SweepInterval      time.Duration
	AdminIDs           []string

	NotificationDriver     string
	NotifierBufferSize     int
	NotifierWorkers        int
	NotifierPublishTimeout time.Duration

	PaymentGatewayURL string
	PaymentTimeout    time.Duration

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	envFileErr := loadEnvFile()

	cfg := &Config{
		StorageDriver: getEnvStr(EnvStorageDriver, DefaultStorageDriver),

		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		PostgresDSN:      getEnvStr(EnvPostgresDSN, DefaultPostgresDSN),
		PostgresMaxConns: getEnvNum(EnvPostgresMaxConns, DefaultPostgresMaxConns),

		RedisURL: getEnvStr(EnvRedisURL, ""),

		Port: getEnvStr(EnvPort, DefaultPort),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		CancellationCutoff: getEnvDuration(EnvCancellationCutoff, DefaultCancellationCutoff),
		RetryBackoff:       getEnvDuration(EnvRetryBackoff, DefaultRetryBackoff),
		SweepInterval:      getEnvDuration(EnvSweepInterval, DefaultSweepInterval),
		AdminIDs:           getEnvList(EnvAdminIDs),

		NotificationDriver:     getEnvStr(EnvNotificationDriver, DefaultNotificationDriver),
		NotifierBufferSize:     getEnvNum(EnvNotifierBufferSize, DefaultNotifierBufferSize),
		NotifierWorkers:        getEnvNum(EnvNotifierWorkers, DefaultNotifierWorkers),
		NotifierPublishTimeout: getEnvDuration(EnvNotifierPublishTimeout, DefaultNotifierPublishTimeout),

		PaymentGatewayURL: getEnvStr(EnvPaymentGatewayURL, ""),
		PaymentTimeout:    getEnvDuration(EnvPaymentTimeout, DefaultPaymentTimeout),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, logger.INFO),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if envFileErr != nil {
		cfg.Log.Warn("Could not load env file, using process environment", "error", envFileErr)
	}

	err := cfg.Validate()
	if err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// loadEnvFile reads ENV_FILE (or ./.env when present) without overriding
// variables already set in the process environment.
func loadEnvFile() error {
	path := os.Getenv(EnvEnvFile)
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	return godotenv.Load(path)
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetPostgres() {
	cfg.Client.SetPostgres(cfg.Log, cfg.PostgresDSN, int32(cfg.PostgresMaxConns), cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisURL, cfg.MongoConnTimeout)
}

// IsAdmin reports whether actorID is configured as a platform administrator.
func (cfg *Config) IsAdmin(actorID string) bool {
	if actorID == "" {
		return false
	}
	for _, id := range cfg.AdminIDs {
		if id == actorID {
			return true
		}
	}
	return false
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	switch cfg.StorageDriver {
	case StorageMongo:
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
	case StoragePostgres:
		if !regexp.MustCompile(`^postgres(ql)?://`).MatchString(cfg.PostgresDSN) {
			errors = append(errors, fmt.Sprintf("PostgresDSN must start with 'postgres://' or 'postgresql://', got: %s", redactURI(cfg.PostgresDSN)))
		}
		if cfg.PostgresMaxConns <= 0 {
			errors = append(errors, fmt.Sprintf("PostgresMaxConns must be positive, got: %d", cfg.PostgresMaxConns))
		}
	case StorageMemory:
	default:
		errors = append(errors, fmt.Sprintf("StorageDriver must be one of mongo, postgres, memory, got: %s", cfg.StorageDriver))
	}

	if cfg.RedisURL != "" && !regexp.MustCompile(`^rediss?://`).MatchString(cfg.RedisURL) {
		errors = append(errors, fmt.Sprintf("RedisURL must start with 'redis://' or 'rediss://', got: %s", redactURI(cfg.RedisURL)))
	}

	if cfg.NotificationDriver != NotificationKafka && cfg.NotificationDriver != NotificationLog {
		errors = append(errors, fmt.Sprintf("NotificationDriver must be kafka or log, got: %s", cfg.NotificationDriver))
	}

	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}
	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}
	if cfg.CancellationCutoff < 0 {
		errors = append(errors, fmt.Sprintf("CancellationCutoff cannot be negative, got: %s", cfg.CancellationCutoff))
	}
	if cfg.RetryBackoff < 0 {
		errors = append(errors, fmt.Sprintf("RetryBackoff cannot be negative, got: %s", cfg.RetryBackoff))
	}
	if cfg.SweepInterval <= 0 {
		errors = append(errors, fmt.Sprintf("SweepInterval must be positive, got: %s", cfg.SweepInterval))
	}
	if cfg.NotifierPublishTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("NotifierPublishTimeout must be positive, got: %s", cfg.NotifierPublishTimeout))
	}
	if cfg.PaymentTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("PaymentTimeout must be positive, got: %s", cfg.PaymentTimeout))
	}

	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.NotifierBufferSize <= 0 {
		errors = append(errors, fmt.Sprintf("NotifierBufferSize must be positive, got: %d", cfg.NotifierBufferSize))
	}
	if cfg.NotifierWorkers <= 0 {
		errors = append(errors, fmt.Sprintf("NotifierWorkers must be positive, got: %d", cfg.NotifierWorkers))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"storage_driver", cfg.StorageDriver,
		"mongo_uri", redactURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"postgres_dsn", redactURI(cfg.PostgresDSN),
		"postgres_max_conns", cfg.PostgresMaxConns,
		"redis_url", redactURI(cfg.RedisURL),
		"port", cfg.Port,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"cancellation_cutoff", cfg.CancellationCutoff,
		"retry_backoff", cfg.RetryBackoff,
		"sweep_interval", cfg.SweepInterval,
		"admin_count", len(cfg.AdminIDs),
		"notification_driver", cfg.NotificationDriver,
		"notifier_buffer_size", cfg.NotifierBufferSize,
		"notifier_workers", cfg.NotifierWorkers,
		"payment_gateway_set", cfg.PaymentGatewayURL != "",
		"payment_timeout", cfg.PaymentTimeout,
	)
}

var credentialRegex = regexp.MustCompile(`([a-z+]+://)[^:/@]+:[^@]+@`)

func redactURI(uri string) string {
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log, cfg.ShutdownTimeout)
}
