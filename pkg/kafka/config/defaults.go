package kafka_config

import "time"

const (
	DefaultKafkaBrokers = "localhost:9092"

	DefaultBookingEventsTopic = "booking-events"
	DefaultBookingEventsDLQ   = "booking-events-dlq"
	DefaultConsumerGroupID    = "booking-notifications"

	DefaultProducerMaxAttempts  = 3
	DefaultProducerBatchTimeout = 10 * time.Millisecond
	DefaultProducerRequireAcks  = -1 // all in-sync replicas
	DefaultProducerCompression  = "snappy"
	DefaultProducerAsync        = false

	DefaultConsumerStartOffset       = -1 // newest
	DefaultConsumerMinBytes          = 1
	DefaultConsumerMaxBytes          = 10 * 1024 * 1024
	DefaultConsumerMaxWait           = 500 * time.Millisecond
	DefaultConsumerCommitInterval    = 1 * time.Second
	DefaultConsumerHeartbeatInterval = 3 * time.Second
	DefaultConsumerSessionTimeout    = 10 * time.Second
	DefaultConsumerRebalanceTimeout  = 60 * time.Second
	DefaultConsumerMaxRetries        = 3
	DefaultConsumerRetryBackoff      = 200 * time.Millisecond

	DefaultEnableMiddleware = true
)
