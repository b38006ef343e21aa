package quotes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists quotes in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	Insert(ctx context.Context, quote Quote) (int64, error)
	InsertItems(ctx context.Context, quoteID int64, items []LineItem) error
	DeleteItems(ctx context.Context, quoteID int64) error
	UpdateHeader(ctx context.Context, quote Quote) error
	DeleteQuote(ctx context.Context, quoteID int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("quotes repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, quoteID int64) (Quote, error) {
	var q Quote
	err := r.pool.QueryRow(ctx, `SELECT id, client_id, vehicle_id, total_value, status, work_order_id, valid_until, observations, created_at, updated_at
FROM quotes WHERE id=$1`, quoteID).
		Scan(&q.ID, &q.ClientID, &q.VehicleID, &q.TotalValue, &q.Status, &q.WorkOrderID, &q.ValidUntil, &q.Observations, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, ErrQuoteNotFound
		}
		return Quote{}, err
	}
	items, err := r.getItems(ctx, quoteID)
	if err != nil {
		return Quote{}, err
	}
	q.Items = items
	return q, nil
}

func (r *Repository) getItems(ctx context.Context, quoteID int64) ([]LineItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, kind, part_id, description, quantity, unit_price, line_total
FROM quote_items WHERE quote_id=$1 ORDER BY id ASC`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LineItem
	for rows.Next() {
		var item LineItem
		if err := rows.Scan(&item.ID, &item.Kind, &item.PartID, &item.Description, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListFilter narrows quote listings.
type ListFilter struct {
	ClientID *int64
	Status   *QuoteStatus
	Limit    int
	Offset   int
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Quote, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	where := " WHERE 1=1"
	args := []any{}
	pos := 1
	if filter.ClientID != nil {
		where += fmt.Sprintf(" AND client_id=$%d", pos)
		args = append(args, *filter.ClientID)
		pos++
	}
	if filter.Status != nil {
		where += fmt.Sprintf(" AND status=$%d", pos)
		args = append(args, *filter.Status)
		pos++
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM quotes`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT id, client_id, vehicle_id, total_value, status, work_order_id, valid_until, observations, created_at, updated_at
FROM quotes%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, where, pos, pos+1)
	args = append(args, limit, filter.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var result []Quote
	for rows.Next() {
		var q Quote
		if err := rows.Scan(&q.ID, &q.ClientID, &q.VehicleID, &q.TotalValue, &q.Status, &q.WorkOrderID, &q.ValidUntil, &q.Observations, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, q)
	}
	return result, total, rows.Err()
}

// UpdateStatus flips the quote status outside the conversion path.
func (r *Repository) UpdateStatus(ctx context.Context, quoteID int64, status QuoteStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE quotes SET status=$1, updated_at=NOW() WHERE id=$2`, status, quoteID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrQuoteNotFound
	}
	return nil
}

// ExpirePending rejects pending quotes whose validity lapsed before cutoff.
func (r *Repository) ExpirePending(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE quotes SET status=$1, updated_at=NOW() WHERE status=$2 AND valid_until < $3`,
		StatusRejected, StatusPending, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *txRepository) Insert(ctx context.Context, quote Quote) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO quotes (client_id, vehicle_id, total_value, status, valid_until, observations, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id`,
		quote.ClientID, quote.VehicleID, quote.TotalValue, quote.Status, quote.ValidUntil, quote.Observations).Scan(&id)
	return id, err
}

func (r *txRepository) InsertItems(ctx context.Context, quoteID int64, items []LineItem) error {
	for _, item := range items {
		if _, err := r.tx.Exec(ctx, `INSERT INTO quote_items (quote_id, kind, part_id, description, quantity, unit_price, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, quoteID, item.Kind, item.PartID, item.Description, item.Quantity, item.UnitPrice, item.LineTotal); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) DeleteItems(ctx context.Context, quoteID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM quote_items WHERE quote_id=$1`, quoteID)
	return err
}

func (r *txRepository) UpdateHeader(ctx context.Context, quote Quote) error {
	tag, err := r.tx.Exec(ctx, `UPDATE quotes SET total_value=$1, valid_until=$2, observations=$3, updated_at=NOW() WHERE id=$4`,
		quote.TotalValue, quote.ValidUntil, quote.Observations, quote.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrQuoteNotFound
	}
	return nil
}

func (r *txRepository) DeleteQuote(ctx context.Context, quoteID int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM quote_items WHERE quote_id=$1`, quoteID); err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM quotes WHERE id=$1`, quoteID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrQuoteNotFound
	}
	return nil
}
