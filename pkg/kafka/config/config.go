package kafka_config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"staybook/pkg/logger"
	"strconv"
	"strings"
	"time"
)

// Config holds the broker, topic and client tuning shared by the booking
// event producer and the notification consumer.
type Config struct {
	Brokers []string

	BookingEventsTopic string
	BookingEventsDLQ   string
	ConsumerGroupID    string

	ProducerMaxAttempts  int
	ProducerBatchTimeout time.Duration
	ProducerRequireAcks  int    // -1 all, 0 none, 1 leader only
	ProducerCompression  string // none, gzip, snappy, lz4, zstd
	ProducerAsync        bool

	ConsumerStartOffset       int64 // -1 newest, -2 oldest
	ConsumerMinBytes          int
	ConsumerMaxBytes          int
	ConsumerMaxWait           time.Duration
	ConsumerCommitInterval    time.Duration
	ConsumerHeartbeatInterval time.Duration
	ConsumerSessionTimeout    time.Duration
	ConsumerRebalanceTimeout  time.Duration
	ConsumerMaxRetries        int
	ConsumerRetryBackoff      time.Duration

	EnableMiddleware bool
}

var compressionCodecs = []string{"none", "gzip", "snappy", "lz4", "zstd"}

// Load reads the Kafka settings from the environment. Malformed values are
// reported instead of silently replaced by defaults.
func Load() (*Config, error) {
	env := &envReader{}

	cfg := &Config{
		Brokers: splitBrokers(env.str(EnvKafkaBrokers, DefaultKafkaBrokers)),

		BookingEventsTopic: env.str(EnvKafkaBookingEventsTopic, DefaultBookingEventsTopic),
		BookingEventsDLQ:   env.str(EnvKafkaBookingEventsDLQ, DefaultBookingEventsDLQ),
		ConsumerGroupID:    env.str(EnvKafkaConsumerGroupID, DefaultConsumerGroupID),

		ProducerMaxAttempts:  env.integer(EnvKafkaProducerMaxAttempts, DefaultProducerMaxAttempts),
		ProducerBatchTimeout: env.duration(EnvKafkaProducerBatchTimeout, DefaultProducerBatchTimeout),
		ProducerRequireAcks:  env.integer(EnvKafkaProducerRequireAcks, DefaultProducerRequireAcks),
		ProducerCompression:  strings.ToLower(env.str(EnvKafkaProducerCompression, DefaultProducerCompression)),
		ProducerAsync:        env.boolean(EnvKafkaProducerAsync, DefaultProducerAsync),

		ConsumerStartOffset:       int64(env.integer(EnvKafkaConsumerStartOffset, DefaultConsumerStartOffset)),
		ConsumerMinBytes:          env.integer(EnvKafkaConsumerMinBytes, DefaultConsumerMinBytes),
		ConsumerMaxBytes:          env.integer(EnvKafkaConsumerMaxBytes, DefaultConsumerMaxBytes),
		ConsumerMaxWait:           env.duration(EnvKafkaConsumerMaxWait, DefaultConsumerMaxWait),
		ConsumerCommitInterval:    env.duration(EnvKafkaConsumerCommitInterval, DefaultConsumerCommitInterval),
		ConsumerHeartbeatInterval: env.duration(EnvKafkaConsumerHeartbeatInterval, DefaultConsumerHeartbeatInterval),
		ConsumerSessionTimeout:    env.duration(EnvKafkaConsumerSessionTimeout, DefaultConsumerSessionTimeout),
		ConsumerRebalanceTimeout:  env.duration(EnvKafkaConsumerRebalanceTimeout, DefaultConsumerRebalanceTimeout),
		ConsumerMaxRetries:        env.integer(EnvKafkaConsumerMaxRetries, DefaultConsumerMaxRetries),
		ConsumerRetryBackoff:      env.duration(EnvKafkaConsumerRetryBackoff, DefaultConsumerRetryBackoff),

		EnableMiddleware: env.boolean(EnvKafkaEnableMiddleware, DefaultEnableMiddleware),
	}

	if err := errors.Join(env.err(), cfg.Validate()); err != nil {
		return nil, fmt.Errorf("kafka configuration: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (cfg *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(cfg.Brokers) == 0 {
		fail("at least one broker is required")
	}
	if slices.Contains(cfg.Brokers, "") {
		fail("broker list contains an empty entry")
	}
	if cfg.BookingEventsTopic == "" {
		fail("booking events topic is required")
	}
	if cfg.BookingEventsDLQ != "" && cfg.BookingEventsDLQ == cfg.BookingEventsTopic {
		fail("dead letter topic must differ from %q", cfg.BookingEventsTopic)
	}

	if cfg.ProducerMaxAttempts <= 0 {
		fail("producer max attempts must be positive, got %d", cfg.ProducerMaxAttempts)
	}
	if cfg.ProducerBatchTimeout <= 0 {
		fail("producer batch timeout must be positive, got %s", cfg.ProducerBatchTimeout)
	}
	if !slices.Contains(compressionCodecs, cfg.ProducerCompression) {
		fail("producer compression must be one of %v, got %q", compressionCodecs, cfg.ProducerCompression)
	}
	if cfg.ProducerRequireAcks < -1 || cfg.ProducerRequireAcks > 1 {
		fail("producer required acks must be -1, 0 or 1, got %d", cfg.ProducerRequireAcks)
	}

	if cfg.ConsumerStartOffset != -1 && cfg.ConsumerStartOffset != -2 {
		fail("consumer start offset must be -1 (newest) or -2 (oldest), got %d", cfg.ConsumerStartOffset)
	}
	if cfg.ConsumerMinBytes <= 0 || cfg.ConsumerMaxBytes < cfg.ConsumerMinBytes {
		fail("consumer fetch bytes must satisfy 0 < min <= max, got min=%d max=%d", cfg.ConsumerMinBytes, cfg.ConsumerMaxBytes)
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"consumer max wait", cfg.ConsumerMaxWait},
		{"consumer commit interval", cfg.ConsumerCommitInterval},
		{"consumer heartbeat interval", cfg.ConsumerHeartbeatInterval},
		{"consumer session timeout", cfg.ConsumerSessionTimeout},
		{"consumer rebalance timeout", cfg.ConsumerRebalanceTimeout},
	} {
		if d.value <= 0 {
			fail("%s must be positive, got %s", d.name, d.value)
		}
	}
	if cfg.ConsumerMaxRetries < 0 {
		fail("consumer max retries cannot be negative, got %d", cfg.ConsumerMaxRetries)
	}
	if cfg.ConsumerRetryBackoff < 0 {
		fail("consumer retry backoff cannot be negative, got %s", cfg.ConsumerRetryBackoff)
	}

	return errors.Join(errs...)
}

func (cfg *Config) LogConfiguration(log *logger.Logger) {
	log.Info("Kafka configuration loaded",
		"brokers", cfg.Brokers,
		"topic", cfg.BookingEventsTopic,
		"dlq", cfg.BookingEventsDLQ,
		"group_id", cfg.ConsumerGroupID,
		"required_acks", cfg.ProducerRequireAcks,
		"compression", cfg.ProducerCompression,
		"async", cfg.ProducerAsync,
		"start_offset", cfg.ConsumerStartOffset,
		"max_retries", cfg.ConsumerMaxRetries,
		"middleware", cfg.EnableMiddleware,
	)
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, broker := range strings.Split(raw, ",") {
		brokers = append(brokers, strings.TrimSpace(broker))
	}
	return brokers
}

// envReader looks up variables and remembers every value it could not parse.
type envReader struct {
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func (e *envReader) str(key, fallback string) string {
	if value, ok := e.lookup(key); ok {
		return value
	}
	return fallback
}

func (e *envReader) integer(key string, fallback int) int {
	value, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", key, value))
		return fallback
	}
	return n
}

func (e *envReader) boolean(key string, fallback bool) bool {
	value, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a boolean", key, value))
		return fallback
	}
	return b
}

func (e *envReader) duration(key string, fallback time.Duration) time.Duration {
	value, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a duration", key, value))
		return fallback
	}
	return d
}

func (e *envReader) err() error {
	return errors.Join(e.errs...)
}
