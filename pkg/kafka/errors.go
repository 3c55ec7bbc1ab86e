package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/segmentio/kafka-go"
)

var (
	ErrProducerClosed = errors.New("kafka producer is closed")
	ErrConsumerClosed = errors.New("kafka consumer is closed")
	ErrEmptyKey       = errors.New("message key cannot be empty")
	ErrEmptyValue     = errors.New("message value cannot be empty")
)

// ErrorType tells the consumer whether a failed handler may be retried
// before the message is sent to the dead letter topic.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeTransient
	ErrorTypePermanent
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// KafkaError lets handlers state the retry class of a failure explicitly.
type KafkaError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *KafkaError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *KafkaError) Unwrap() error { return e.Err }

func NewTransientError(message string, err error) *KafkaError {
	return &KafkaError{Type: ErrorTypeTransient, Message: message, Err: err}
}

func NewPermanentError(message string, err error) *KafkaError {
	return &KafkaError{Type: ErrorTypePermanent, Message: message, Err: err}
}

// Fallback for errors that only carry their cause in the text, such as
// wrapped SMTP or HTTP client failures.
var transientFragments = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"temporary failure",
	"timeout",
	"deadline exceeded",
}

// ClassifyError returns the retry class of err. Explicit KafkaError types
// win, then broker error codes, then network errors, then message text.
// Anything unrecognised is permanent.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var explicit *KafkaError
	if errors.As(err, &explicit) {
		return explicit.Type
	}

	var broker kafka.Error
	if errors.As(err, &broker) {
		if broker.Temporary() || broker.Timeout() {
			return ErrorTypeTransient
		}
		return ErrorTypePermanent
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrorTypeTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTransient
	}

	text := strings.ToLower(err.Error())
	for _, fragment := range transientFragments {
		if strings.Contains(text, fragment) {
			return ErrorTypeTransient
		}
	}
	return ErrorTypePermanent
}

func ShouldRetry(err error, attempt, maxRetries int) bool {
	if err == nil || attempt >= maxRetries {
		return false
	}
	return ClassifyError(err) == ErrorTypeTransient
}
