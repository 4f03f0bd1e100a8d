package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kgstyle/shop-service/internal/order"
	"kgstyle/shop-service/pkg/contracts"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// settleTx is the slice of a pgx transaction the settler touches. pgx.Tx
// satisfies it.
type settleTx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Settler applies exactly one confirm-or-reject transition per order. The
// inbox row, the settlement record, the order update and the notification
// outbox row are committed in a single transaction, so a crash can never
// leave an event admitted but not applied, or applied without its fan-out
// intent recorded.
type Settler struct {
	begin  func(ctx context.Context) (settleTx, error)
	locks  *orderLocks
	logger *slog.Logger
}

func NewSettler(pool *pgxpool.Pool, logger *slog.Logger) *Settler {
	return &Settler{
		begin: func(ctx context.Context) (settleTx, error) {
			tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
			if err != nil {
				return nil, err
			}
			return tx, nil
		},
		locks:  newOrderLocks(),
		logger: logger,
	}
}

func (s *Settler) Settle(ctx context.Context, evt CallbackEvent) (Result, error) {
	unlock := s.locks.Lock(evt.OrderID)
	defer unlock()

	tx, err := s.begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback(ctx)

	// Admission gate: a delivery id we have seen is a straight replay.
	tag, err := tx.Exec(ctx, `
		INSERT INTO payment_inbox (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING`,
		evt.EventID, "telegram.callback",
	)
	if err != nil {
		return Result{}, fmt.Errorf("insert inbox: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Info("duplicate callback delivery", "order_id", evt.OrderID, "event_id", evt.EventID)
		return Result{Outcome: OutcomeDuplicate, OrderID: evt.OrderID}, nil
	}

	var (
		current order.Status
		amount  int64
	)
	err = tx.QueryRow(ctx, `
		SELECT status, amount
		FROM orders
		WHERE id = $1
		FOR UPDATE`,
		evt.OrderID,
	).Scan(&current, &amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Result{}, order.ErrOrderNotFound
		}
		return Result{}, fmt.Errorf("select order: %w", err)
	}

	// A settlement record means this workflow already settled the order
	// under a different event id (e.g. the losing side of a concurrent
	// confirm/reject pair). That is a duplicate, not an anomaly.
	var settled bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM payment_settlements WHERE order_id = $1)`,
		evt.OrderID,
	).Scan(&settled)
	if err != nil {
		return Result{}, fmt.Errorf("check settlement: %w", err)
	}
	if settled {
		if err := tx.Commit(ctx); err != nil {
			return Result{}, err
		}
		s.logger.Info("order already settled", "order_id", evt.OrderID, "event_id", evt.EventID)
		return Result{Outcome: OutcomeDuplicate, OrderID: evt.OrderID}, nil
	}

	next, paid, err := applyIntent(current, evt.Intent)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Keep the inbox row so a redelivery of this stale event
			// short-circuits at the gate next time.
			if commitErr := tx.Commit(ctx); commitErr != nil {
				return Result{}, commitErr
			}
			s.logger.Warn("settlement event for non-pending order",
				"order_id", evt.OrderID, "status", current, "intent", evt.Intent)
		}
		return Result{}, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET status = $2, paid = $3, updated_at = NOW()
		WHERE id = $1`,
		evt.OrderID, next, paid,
	)
	if err != nil {
		return Result{}, fmt.Errorf("update order: %w", err)
	}

	outcome := OutcomeConfirmed
	settledAs := contracts.SettlementConfirmed
	if evt.Intent == IntentReject {
		outcome = OutcomeRejected
		settledAs = contracts.SettlementRejected
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payment_settlements (order_id, event_id, outcome)
		VALUES ($1, $2, $3)`,
		evt.OrderID, evt.EventID, outcome,
	)
	if err != nil {
		return Result{}, fmt.Errorf("insert settlement: %w", err)
	}

	event := contracts.OrderSettledEvent{
		EventID:   uuid.New().String(),
		OrderID:   evt.OrderID,
		Outcome:   settledAs,
		Amount:    amount,
		SettledAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return Result{}, fmt.Errorf("marshal settled event: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO event_outbox (event_id, event_type, payload)
		VALUES ($1, $2, $3)`,
		event.EventID, contracts.EventOrderSettled, payload,
	)
	if err != nil {
		return Result{}, fmt.Errorf("insert outbox: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, err
	}

	s.logger.Info("order settled", "order_id", evt.OrderID, "outcome", outcome, "event_id", evt.EventID)
	return Result{Outcome: outcome, OrderID: evt.OrderID}, nil
}
