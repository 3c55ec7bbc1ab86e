// Package payment charges guests through an external payment gateway. The
// gateway is opaque: a charge either succeeds with a reference or fails.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"staybook/pkg/client"
	"staybook/pkg/logger"
	"sync"
	"time"
)

const (
	chargesPath          = "/v1/charges"
	refundsPath          = "/v1/refunds"
	idempotencyKeyHeader = "Idempotency-Key"
)

var (
	ErrDeclined           = errors.New("payment declined")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

type ChargeRequest struct {
	BookingID string `json:"booking_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	GuestID   string `json:"guest_id"`
}

type Receipt struct {
	Reference string    `json:"reference"`
	ChargedAt time.Time `json:"charged_at"`
}

// RefundRequest reverses a charge that could not be recorded against its
// booking.
type RefundRequest struct {
	BookingID string `json:"booking_id"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Reason    string `json:"reason"`
}

type Gateway interface {
	// Charge is idempotent per booking and amount: charging the same booking
	// for the same amount twice returns the first receipt.
	Charge(ctx context.Context, req ChargeRequest) (*Receipt, error)
	// Refund is idempotent per charge reference.
	Refund(ctx context.Context, req RefundRequest) error
}

func chargeKey(bookingID string, amount int64) string {
	return fmt.Sprintf("%s:%d", bookingID, amount)
}

type HTTPGateway struct {
	client *client.JSONClient
	log    *logger.Logger
}

func NewHTTPGateway(baseURL string, timeout time.Duration, log *logger.Logger) *HTTPGateway {
	return &HTTPGateway{
		client: client.NewJSONClient(baseURL, timeout),
		log:    log.Component("payment_gateway"),
	}
}

func (g *HTTPGateway) Charge(ctx context.Context, req ChargeRequest) (*Receipt, error) {
	resp, err := g.client.Post(ctx, chargesPath, req, map[string]string{
		idempotencyKeyHeader: chargeKey(req.BookingID, req.Amount),
	})
	if err != nil {
		g.log.Error("Payment gateway request failed", "booking_id", req.BookingID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	switch {
	case resp.OK():
		var receipt Receipt
		if err := resp.Decode(&receipt); err != nil {
			return nil, fmt.Errorf("%w: invalid receipt: %v", ErrGatewayUnavailable, err)
		}
		if receipt.Reference == "" {
			return nil, fmt.Errorf("%w: receipt without reference", ErrGatewayUnavailable)
		}
		if receipt.ChargedAt.IsZero() {
			receipt.ChargedAt = time.Now().UTC()
		}
		return &receipt, nil
	case resp.StatusCode == http.StatusPaymentRequired, resp.StatusCode == http.StatusUnprocessableEntity:
		g.log.Warn("Payment declined",
			"booking_id", req.BookingID,
			"status", resp.StatusCode,
			"message", resp.ErrorMessage(),
		)
		return nil, ErrDeclined
	default:
		return nil, fmt.Errorf("%w: %s", ErrGatewayUnavailable, resp.ErrorMessage())
	}
}

func (g *HTTPGateway) Refund(ctx context.Context, req RefundRequest) error {
	resp, err := g.client.Post(ctx, refundsPath, req, map[string]string{
		idempotencyKeyHeader: "refund-" + req.Reference,
	})
	if err != nil {
		g.log.Error("Refund request failed", "booking_id", req.BookingID, "reference", req.Reference, "error", err)
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if !resp.OK() {
		return fmt.Errorf("%w: refund rejected: %s", ErrGatewayUnavailable, resp.ErrorMessage())
	}
	return nil
}

// StaticGateway approves every charge except those of declined bookings.
// It backs local development and tests.
type StaticGateway struct {
	mu       sync.Mutex
	declined map[string]bool
	receipts map[string]*Receipt
	refunds  map[string]RefundRequest
	charges  int
	now      func() time.Time
}

func NewStaticGateway(declinedBookingIDs ...string) *StaticGateway {
	declined := make(map[string]bool, len(declinedBookingIDs))
	for _, id := range declinedBookingIDs {
		declined[id] = true
	}
	return &StaticGateway{
		declined: declined,
		receipts: make(map[string]*Receipt),
		refunds:  make(map[string]RefundRequest),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (g *StaticGateway) Decline(bookingID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.declined[bookingID] = true
}

func (g *StaticGateway) Charge(ctx context.Context, req ChargeRequest) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.declined[req.BookingID] {
		return nil, ErrDeclined
	}
	key := chargeKey(req.BookingID, req.Amount)
	if r, ok := g.receipts[key]; ok {
		c := *r
		return &c, nil
	}
	g.charges++
	r := &Receipt{Reference: fmt.Sprintf("static-%s-%d", req.BookingID, g.charges), ChargedAt: g.now()}
	g.receipts[key] = r
	c := *r
	return &c, nil
}

func (g *StaticGateway) Refund(ctx context.Context, req RefundRequest) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.refunds[req.Reference] = req
	for key, r := range g.receipts {
		if r.Reference == req.Reference {
			delete(g.receipts, key)
		}
	}
	return nil
}

// Charges returns how many distinct charges were made.
func (g *StaticGateway) Charges() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.charges
}

// Refunds returns how many distinct charges were refunded.
func (g *StaticGateway) Refunds() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}
