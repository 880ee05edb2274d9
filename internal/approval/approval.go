// Package approval implements the Approval Queue: a
// durable queue of PendingTrade rows with three entry points
// (enqueue/approve/reject) plus a periodic TTL-expiry sweep, guaranteeing
// exactly one terminal transition — and at most one placed order — per
// PendingTrade id.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bozweather/trader/internal/model"
)

// ErrConflict is returned by Approve/Reject when the PendingTrade is no
// longer PENDING (already approved, rejected, or expired) — a
// double-approve is a conflict, never a second order placement.
var ErrConflict = errors.New("approval: pending trade is not in PENDING status")

// ErrNotFound is returned when the id does not exist.
var ErrNotFound = errors.New("approval: pending trade not found")

// Store is the narrow persistence surface the queue needs. CASStatus
// must be an atomic compare-and-swap at the storage layer (a
// `WHERE status = $expected` conditional update, or equivalent) so that
// two concurrent Approve calls for the same id cannot both succeed.
type Store interface {
	SavePendingTrade(ctx context.Context, p model.PendingTrade) error
	GetPendingTrade(ctx context.Context, id string) (model.PendingTrade, error)
	CASStatus(ctx context.Context, id string, expected, next model.PendingStatus, actedAt time.Time) (bool, error)
	ListExpiring(ctx context.Context, before time.Time) ([]model.PendingTrade, error)
	SaveTradeRecord(ctx context.Context, t model.TradeRecord) error
}

// OrderPlacer is the narrow exchange surface Approve needs.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResult, error)
}

// PlaceOrderRequest carries what the queue needs to ask the exchange
// adapter to place an order, decoupled from the kalshi package's own
// request/response types so approval never imports kalshi directly.
type PlaceOrderRequest struct {
	Ticker     string
	Side       model.Side
	Quantity   int64
	PriceCents model.Cents
	ClientID   string
}

// PlaceOrderResult is the exchange's outcome for a placed order.
type PlaceOrderResult struct {
	Accepted  bool
	OrderID   string
	Rejection string // populated when Accepted is false
}

// Queue drives the PendingTrade lifecycle.
type Queue struct {
	Store          Store
	Exchange       OrderPlacer
	ApprovalWindow time.Duration // default 30 minutes
}

// NewQueue builds a Queue with the standard 30-minute approval
// window.
func NewQueue(store Store, exchange OrderPlacer) *Queue {
	return &Queue{Store: store, Exchange: exchange, ApprovalWindow: 30 * time.Minute}
}

// Enqueue persists a new PendingTrade in PENDING status and returns its
// id. weatherSnapshot/prediction are frozen in at enqueue time — the same
// audit data the auto-execute path freezes at order time — since approval
// may happen long after the signal was generated and the live forecast/
// prediction rows may have moved on by then.
func (q *Queue) Enqueue(ctx context.Context, userID string, signal model.TradeSignal, weatherSnapshot []model.Forecast, prediction model.EnsemblePrediction) (string, error) {
	window := q.ApprovalWindow
	if window <= 0 {
		window = 30 * time.Minute
	}
	now := time.Now().UTC()

	p := model.PendingTrade{
		ID:                 uuid.New().String(),
		UserID:             userID,
		Signal:             signal,
		WeatherSnapshot:    weatherSnapshot,
		PredictionSnapshot: prediction,
		CreatedAt:          now,
		ExpiresAt:          now.Add(window),
		Status:             model.PendingStatusPending,
	}
	if err := q.Store.SavePendingTrade(ctx, p); err != nil {
		return "", err
	}
	return p.ID, nil
}

// Approve atomically transitions PENDING -> APPROVED, places the order
// through the exchange adapter, and on success transitions to EXECUTED
// and persists the frozen-in TradeRecord. On exchange rejection, the
// trade is marked REJECTED and the exchange's reason is logged; the
// reason is not stored on the PendingTrade. A concurrent or
// repeat call against a non-PENDING trade returns ErrConflict without
// touching the exchange.
func (q *Queue) Approve(ctx context.Context, id string) error {
	now := time.Now().UTC()

	ok, err := q.Store.CASStatus(ctx, id, model.PendingStatusPending, model.PendingStatusApproved, now)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}

	pending, err := q.Store.GetPendingTrade(ctx, id)
	if err != nil {
		return err
	}

	result, err := q.Exchange.PlaceOrder(ctx, PlaceOrderRequest{
		Ticker:     pending.Signal.BracketTicker,
		Side:       pending.Signal.Side,
		Quantity:   pending.Signal.SizedQuantity,
		PriceCents: pending.Signal.LimitPriceCents,
		ClientID:   pending.ID, // the PendingTrade id is the idempotency key
	})
	if err != nil {
		slog.Error("approval: order placement failed after approve", "pending_id", id, "error", err)
		if _, casErr := q.Store.CASStatus(ctx, id, model.PendingStatusApproved, model.PendingStatusRejected, time.Now().UTC()); casErr != nil {
			return fmt.Errorf("order placement failed (%w) and reject transition failed: %v", err, casErr)
		}
		return err
	}

	if !result.Accepted {
		if _, casErr := q.Store.CASStatus(ctx, id, model.PendingStatusApproved, model.PendingStatusRejected, time.Now().UTC()); casErr != nil {
			return casErr
		}
		slog.Info("approval: order rejected by exchange", "pending_id", id, "reason", result.Rejection)
		return nil
	}

	if _, casErr := q.Store.CASStatus(ctx, id, model.PendingStatusApproved, model.PendingStatusExecuted, time.Now().UTC()); casErr != nil {
		return casErr
	}

	record := model.TradeRecord{
		ID:                 uuid.New().String(),
		UserID:             pending.UserID,
		ExchangeOrderID:    result.OrderID,
		City:               pending.Signal.City,
		TargetDate:         pending.Signal.TargetDate,
		BracketTicker:      pending.Signal.BracketTicker,
		BracketLabel:       pending.Signal.BracketLabel,
		Side:               pending.Signal.Side,
		EntryPriceCents:    pending.Signal.LimitPriceCents,
		Quantity:           pending.Signal.SizedQuantity,
		ModelProbability:   pending.Signal.ModelProbability,
		MarketProbability:  pending.Signal.MarketProbability,
		EVAtEntry:          pending.Signal.EV,
		Confidence:         pending.Signal.Confidence,
		WeatherSnapshot:    pending.WeatherSnapshot,
		PredictionSnapshot: pending.PredictionSnapshot,
		Status:             model.TradeStatusOpen,
		CreatedAt:          time.Now().UTC(),
	}
	return q.Store.SaveTradeRecord(ctx, record)
}

// Reject atomically transitions PENDING -> REJECTED.
func (q *Queue) Reject(ctx context.Context, id string) error {
	ok, err := q.Store.CASStatus(ctx, id, model.PendingStatusPending, model.PendingStatusRejected, time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

// SweepExpired transitions every PENDING trade whose expires_at has
// passed to EXPIRED. Intended to run every 60s.
func (q *Queue) SweepExpired(ctx context.Context) int {
	now := time.Now().UTC()
	candidates, err := q.Store.ListExpiring(ctx, now)
	if err != nil {
		slog.Error("approval: sweep failed to list expiring trades", "error", err)
		return 0
	}

	expired := 0
	for _, p := range candidates {
		ok, err := q.Store.CASStatus(ctx, p.ID, model.PendingStatusPending, model.PendingStatusExpired, now)
		if err != nil {
			slog.Error("approval: sweep CAS failed", "pending_id", p.ID, "error", err)
			continue
		}
		if ok {
			expired++
		}
	}
	if expired > 0 {
		slog.Info("approval: sweep expired pending trades", "count", expired)
	}
	return expired
}
