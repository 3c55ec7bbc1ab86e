package kafka_config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Brokers) != 1 || cfg.Brokers[0] != DefaultKafkaBrokers {
		t.Errorf("unexpected brokers %v", cfg.Brokers)
	}
	if cfg.BookingEventsTopic != DefaultBookingEventsTopic {
		t.Errorf("unexpected topic %q", cfg.BookingEventsTopic)
	}
	if cfg.ConsumerRetryBackoff != DefaultConsumerRetryBackoff {
		t.Errorf("unexpected retry backoff %s", cfg.ConsumerRetryBackoff)
	}
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv(EnvKafkaBrokers, "kafka-1:9092, kafka-2:9092")
	t.Setenv(EnvKafkaProducerCompression, "ZSTD")
	t.Setenv(EnvKafkaConsumerStartOffset, "-2")
	t.Setenv(EnvKafkaConsumerMaxWait, "2s")
	t.Setenv(EnvKafkaEnableMiddleware, "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Brokers) != 2 || cfg.Brokers[1] != "kafka-2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Brokers)
	}
	if cfg.ProducerCompression != "zstd" {
		t.Errorf("expected lower-cased compression, got %q", cfg.ProducerCompression)
	}
	if cfg.ConsumerStartOffset != -2 {
		t.Errorf("expected oldest offset, got %d", cfg.ConsumerStartOffset)
	}
	if cfg.ConsumerMaxWait != 2*time.Second {
		t.Errorf("unexpected max wait %s", cfg.ConsumerMaxWait)
	}
	if cfg.EnableMiddleware {
		t.Error("expected middleware disabled")
	}
}

func TestLoad_ReportsMalformedValues(t *testing.T) {
	t.Setenv(EnvKafkaProducerMaxAttempts, "three")
	t.Setenv(EnvKafkaConsumerMaxWait, "soon")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for malformed values")
	}
	for _, key := range []string{EnvKafkaProducerMaxAttempts, EnvKafkaConsumerMaxWait} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("expected %s in error, got %v", key, err)
		}
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.BookingEventsDLQ = cfg.BookingEventsTopic
	cfg.ProducerCompression = "brotli"
	cfg.ProducerRequireAcks = 2

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, fragment := range []string{"dead letter topic", "compression", "required acks"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("expected %q in error, got %v", fragment, err)
		}
	}
}
