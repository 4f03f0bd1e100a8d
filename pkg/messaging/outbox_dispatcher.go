package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const outboxClaimTTL = 30 * time.Second

// claimQuery picks rows that are due: fresh pending rows, released rows whose
// backoff has elapsed, and claims whose holder died past the TTL.
const claimQuery = `
	SELECT id, event_type, payload, attempts
	FROM event_outbox
	WHERE (status = 'pending' AND (next_retry IS NULL OR next_retry <= NOW()))
	   OR (status = 'claimed' AND next_retry <= NOW())
	ORDER BY id
	LIMIT $1
	FOR UPDATE SKIP LOCKED`

// OutboxDispatcher relays committed rows from the event_outbox table to the
// broker. Rows are claimed with FOR UPDATE SKIP LOCKED so several instances
// can run side by side; a claim expires after outboxClaimTTL in case the
// holder dies mid-publish.
type OutboxDispatcher struct {
	pool      *pgxpool.Pool
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

type outboxRow struct {
	ID        int64
	EventType string
	Payload   []byte
	Attempts  int
}

func NewOutboxDispatcher(pool *pgxpool.Pool, publisher Publisher, interval time.Duration, batch int, logger *slog.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		pool:      pool,
		publisher: publisher,
		interval:  interval,
		batchSize: batch,
		logger:    logger,
	}
}

func (d *OutboxDispatcher) Start(ctx context.Context) {
	go d.loop(ctx)
}

func (d *OutboxDispatcher) loop(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.relay(ctx); err != nil {
			d.logger.Error("outbox relay failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *OutboxDispatcher) relay(ctx context.Context) error {
	rows, err := d.claim(ctx)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if err := d.publishOne(ctx, row); err != nil {
			d.logger.Warn("publish outbox event failed",
				"row_id", row.ID, "event_type", row.EventType, "attempts", row.Attempts, "err", err)
		}
	}
	return nil
}

func (d *OutboxDispatcher) claim(ctx context.Context) ([]outboxRow, error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, claimQuery, d.batchSize)
	if err != nil {
		return nil, err
	}

	var items []outboxRow
	for rows.Next() {
		var row outboxRow
		if err := rows.Scan(&row.ID, &row.EventType, &row.Payload, &row.Attempts); err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	releaseAt := time.Now().Add(outboxClaimTTL)
	for _, row := range items {
		if _, err := tx.Exec(ctx, `
			UPDATE event_outbox
			SET status = 'claimed', next_retry = $2, updated_at = NOW()
			WHERE id = $1`, row.ID, releaseAt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

func (d *OutboxDispatcher) publishOne(ctx context.Context, row outboxRow) error {
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := d.publisher.Publish(pubCtx, row.EventType, row.Payload); err != nil {
		return d.release(ctx, row, err)
	}

	_, err := d.pool.Exec(ctx, `
		UPDATE event_outbox
		SET status = 'sent', updated_at = NOW()
		WHERE id = $1`, row.ID)
	return err
}

// release puts a failed row back in the pending pool with an increased
// attempt count and a backoff before the next pickup.
func (d *OutboxDispatcher) release(ctx context.Context, row outboxRow, publishErr error) error {
	nextRetry := time.Now().Add(retryDelay(row.Attempts + 1))
	if _, err := d.pool.Exec(ctx, `
		UPDATE event_outbox
		SET status = 'pending',
		    attempts = attempts + 1,
		    next_retry = $2,
		    updated_at = NOW()
		WHERE id = $1`, row.ID, nextRetry); err != nil {
		d.logger.Error("release outbox row failed", "row_id", row.ID, "err", err)
	}
	return publishErr
}

func retryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 6 {
		attempts = 6
	}
	delay := time.Duration(1<<(attempts-1)) * time.Second
	if delay > time.Minute {
		delay = time.Minute
	}
	return delay
}
