// Package postgres is the durable queue of orders and their file links.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/MrSnakeDoc/orderfiles/internal/domain"
	"github.com/MrSnakeDoc/orderfiles/internal/logger"
	"github.com/MrSnakeDoc/orderfiles/internal/resilience"
	"github.com/MrSnakeDoc/orderfiles/internal/utils"
)

//go:embed schema.sql
var schema string

const (
	busyRetries = 5
	busyStep    = 100 * time.Millisecond
)

// ErrOrderNotFound is returned by Order for an unknown id.
var ErrOrderNotFound = domain.ErrOrderNotFound

// Repository stores orders and tracks which file links are still pending.
// It is safe for concurrent use by the intake and the worker.
type Repository struct {
	db     *sql.DB
	busy   *resilience.Retry
	logger logger.Logger
}

// NewRepository opens a connection pool for dsn and checks it answers.
func NewRepository(ctx context.Context, dsn string, log logger.Logger) (*Repository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		utils.CloseLogged(db, log, "postgres")
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return newRepository(db, log), nil
}

func newRepository(db *sql.DB, log logger.Logger) *Repository {
	r := &Repository{db: db, logger: log}
	r.busy = &resilience.Retry{
		Retries:     busyRetries,
		Backoff:     resilience.LinearBackoff(busyStep),
		ShouldRetry: isBusy,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			r.logger.Warn("database busy, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("next_retry_in", delay),
				logger.Error(err))
		},
	}
	return r
}

// InitializeSchema creates the tables and indexes when missing.
func (r *Repository) InitializeSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Add stores order and one pending file link per URL in a single
// transaction and returns the new order id.
func (r *Repository) Add(ctx context.Context, order domain.Order) (int64, error) {
	var id int64
	err := r.busy.Execute(ctx, func(ctx context.Context) error {
		var err error
		id, err = r.add(ctx, order)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *Repository) add(ctx context.Context, order domain.Order) (id int64, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// commit only returns once the WAL record is on disk
	if _, err = tx.ExecContext(ctx, "SET LOCAL synchronous_commit TO ON"); err != nil {
		return 0, fmt.Errorf("failed to set durability: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders (brand, variant, net_content, order_need)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		order.Brand, order.Variant, order.NetContent, order.OrderNeed,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert order: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO file_links (order_id, url) VALUES ($1, $2)")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare file link insert: %w", err)
	}
	defer utils.CloseLogged(stmt, r.logger, "file link statement")

	for _, url := range order.FileLinks {
		if _, err = stmt.ExecContext(ctx, id, url); err != nil {
			return 0, fmt.Errorf("failed to insert file link: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit order: %w", err)
	}
	return id, nil
}

// UnprocessedFileLinks returns every pending link with its order's brand and
// variant, oldest first.
func (r *Repository) UnprocessedFileLinks(ctx context.Context) ([]domain.FileLink, error) {
	var links []domain.FileLink
	err := r.busy.Execute(ctx, func(ctx context.Context) error {
		var err error
		links, err = r.queryLinks(ctx,
			`SELECT fl.id, fl.order_id, fl.url, o.brand, o.variant, fl.processed
			 FROM file_links fl
			 JOIN orders o ON o.id = fl.order_id
			 WHERE NOT fl.processed
			 ORDER BY fl.id`)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load unprocessed file links: %w", err)
	}
	return links, nil
}

// ProcessFileLink marks a link as processed. Marking it twice is a no-op.
func (r *Repository) ProcessFileLink(ctx context.Context, id int64) error {
	err := r.busy.Execute(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, "UPDATE file_links SET processed = TRUE WHERE id = $1", id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to mark file link %d processed: %w", id, err)
	}
	return nil
}

// Order returns an order with its links and their processed flags.
func (r *Repository) Order(ctx context.Context, id int64) (domain.Order, []domain.FileLink, error) {
	var order domain.Order
	err := r.db.QueryRowContext(ctx,
		`SELECT id, brand, variant, net_content, order_need, created_at
		 FROM orders WHERE id = $1`, id,
	).Scan(&order.ID, &order.Brand, &order.Variant, &order.NetContent, &order.OrderNeed, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, nil, ErrOrderNotFound
		}
		return domain.Order{}, nil, fmt.Errorf("failed to load order %d: %w", id, err)
	}

	links, err := r.queryLinks(ctx,
		`SELECT fl.id, fl.order_id, fl.url, o.brand, o.variant, fl.processed
		 FROM file_links fl
		 JOIN orders o ON o.id = fl.order_id
		 WHERE fl.order_id = $1
		 ORDER BY fl.id`, id)
	if err != nil {
		return domain.Order{}, nil, fmt.Errorf("failed to load file links of order %d: %w", id, err)
	}

	order.FileLinks = make([]string, 0, len(links))
	for _, l := range links {
		order.FileLinks = append(order.FileLinks, l.URL)
	}
	return order, links, nil
}

func (r *Repository) queryLinks(ctx context.Context, query string, args ...any) ([]domain.FileLink, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var links []domain.FileLink
	for rows.Next() {
		var l domain.FileLink
		if err := rows.Scan(&l.ID, &l.OrderID, &l.URL, &l.Brand, &l.Variant, &l.Processed); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// Ping checks the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Lock contention codes worth another attempt.
var busyCodes = map[pq.ErrorCode]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

func isBusy(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	_, ok := busyCodes[pqErr.Code]
	return ok
}
