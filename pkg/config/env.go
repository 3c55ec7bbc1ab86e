package config

const (
	EnvStorageDriver = "STORAGE_DRIVER"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPostgresDSN      = "POSTGRES_DSN"
	EnvPostgresMaxConns = "POSTGRES_MAX_CONNS"

	EnvRedisURL = "REDIS_URL"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"
	EnvEnvFile  = "ENV_FILE"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvCancellationCutoff = "CANCELLATION_CUTOFF"
	EnvRetryBackoff       = "RETRY_BACKOFF"
	EnvSweepInterval      = "SWEEP_INTERVAL"
	EnvAdminIDs           = "ADMIN_IDS"

	EnvNotificationDriver     = "NOTIFICATION_DRIVER"
	EnvNotifierBufferSize     = "NOTIFIER_BUFFER_SIZE"
	EnvNotifierWorkers        = "NOTIFIER_WORKERS"
	EnvNotifierPublishTimeout = "NOTIFIER_PUBLISH_TIMEOUT"

	EnvPaymentGatewayURL = "PAYMENT_GATEWAY_URL"
	EnvPaymentTimeout    = "PAYMENT_TIMEOUT"
)
