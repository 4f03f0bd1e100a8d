package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kgstyle/shop-service/pkg/contracts"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrOrderNotFound = errors.New("order not found")

const uniqueViolation = "23505"

type Service struct {
	pool     *pgxpool.Pool
	refCodes *RefCodeGenerator
	logger   *slog.Logger
}

func NewService(pool *pgxpool.Pool, refCodes *RefCodeGenerator, logger *slog.Logger) *Service {
	return &Service{pool: pool, refCodes: refCodes, logger: logger}
}

type CreateInput struct {
	Amount    int64  `json:"amount"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	City      string `json:"city"`
	Address   string `json:"address"`
}

// Create inserts the order with a fresh reference code and an orders.created
// outbox row in one transaction. The reference column is declared unique, so
// a losing race on the code shows up as a unique violation and the whole
// attempt is retried with a new draw.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Order, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}

	for {
		o, err := s.create(ctx, in)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				s.logger.Warn("reference code collision on insert, regenerating")
				continue
			}
			return nil, err
		}
		return o, nil
	}
}

func (s *Service) create(ctx context.Context, in CreateInput) (*Order, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	code, err := s.refCodes.Generate(ctx, func(ctx context.Context, candidate string) (bool, error) {
		var exists bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM orders WHERE reference_code = $1)`,
			candidate,
		).Scan(&exists)
		return exists, err
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	o := &Order{
		ReferenceCode: code,
		Status:        StatusPending,
		Amount:        in.Amount,
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Email:         in.Email,
		Phone:         in.Phone,
		City:          in.City,
		Address:       in.Address,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO orders (reference_code, status, paid, amount, first_name, last_name, email, phone, city, address, created_at, updated_at)
		VALUES ($1, $2, FALSE, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING id`,
		code, StatusPending, in.Amount, in.FirstName, in.LastName, in.Email, in.Phone, in.City, in.Address, now,
	).Scan(&o.ID)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	event := contracts.OrderCreatedEvent{
		EventID:       uuid.New().String(),
		OrderID:       o.ID,
		ReferenceCode: code,
		Amount:        in.Amount,
		CustomerName:  o.CustomerName(),
		CustomerEmail: in.Email,
		CustomerPhone: in.Phone,
		City:          in.City,
		Address:       in.Address,
		CreatedAt:     now,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO event_outbox (event_id, event_type, payload)
		VALUES ($1, $2, $3)`,
		event.EventID, contracts.EventOrderCreated, payload,
	)
	if err != nil {
		return nil, fmt.Errorf("insert outbox: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return o, nil
}

const orderColumns = `id, COALESCE(reference_code, ''), status, paid, amount, first_name, last_name, email, phone, city, address, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.ReferenceCode, &o.Status, &o.Paid, &o.Amount,
		&o.FirstName, &o.LastName, &o.Email, &o.Phone, &o.City, &o.Address,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return &o, nil
}

func (s *Service) Get(ctx context.Context, orderID int64) (*Order, error) {
	return scanOrder(s.pool.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1`, orderID))
}

func (s *Service) FindByReference(ctx context.Context, code string) (*Order, error) {
	return scanOrder(s.pool.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE reference_code = $1`, code))
}

func (s *Service) List(ctx context.Context) ([]Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var result []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *o)
	}

	return result, rows.Err()
}

// EnsureReference returns the order's reference code, generating and
// persisting one only if the order has none yet. Re-invoking after a
// successful assignment always returns the stored code.
func (s *Service) EnsureReference(ctx context.Context, orderID int64) (string, error) {
	for {
		o, err := s.Get(ctx, orderID)
		if err != nil {
			return "", err
		}
		if o.ReferenceCode != "" {
			return o.ReferenceCode, nil
		}

		code, err := s.refCodes.Generate(ctx, func(ctx context.Context, candidate string) (bool, error) {
			var exists bool
			err := s.pool.QueryRow(ctx, `
				SELECT EXISTS (SELECT 1 FROM orders WHERE reference_code = $1)`,
				candidate,
			).Scan(&exists)
			return exists, err
		})
		if err != nil {
			return "", err
		}

		tag, err := s.pool.Exec(ctx, `
			UPDATE orders
			SET reference_code = $2, updated_at = NOW()
			WHERE id = $1 AND reference_code IS NULL`,
			orderID, code,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				s.logger.Warn("reference code collision on assign, regenerating", "order_id", orderID)
				continue
			}
			return "", fmt.Errorf("assign reference code: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Someone else assigned concurrently; loop re-reads the winner.
			continue
		}
		return code, nil
	}
}
