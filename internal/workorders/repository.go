package workorders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gearbox-erp/gearbox/internal/platform/db"
)

// Store persists work orders and coordinates the multi-table conversion
// transaction across quotes, parts and work_orders.
type Store struct {
	pool     *pgxpool.Pool
	attempts int
}

// NewStore constructs Store. attempts bounds how often a conflicting
// transaction is retried before surfacing db.ErrTxConflict.
func NewStore(pool *pgxpool.Pool, attempts int) *Store {
	if attempts < 1 {
		attempts = 1
	}
	return &Store{pool: pool, attempts: attempts}
}

// RunTx executes fn inside a repeatable-read transaction, retrying the whole
// callback on serialization conflicts.
func (s *Store) RunTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if s == nil {
		return errors.New("workorders store not initialised")
	}
	return db.WithTxRetry(ctx, s.pool, s.attempts, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{tx: tx})
	})
}

const workOrderColumns = `id, client_id, vehicle_id, quote_id, total_value, status, payment_status,
entry_date, due_date, completed_at, observations, created_at, updated_at`

// Get loads a work order with its service and part lines.
func (s *Store) Get(ctx context.Context, workOrderID int64) (WorkOrder, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+workOrderColumns+` FROM work_orders WHERE id=$1`, workOrderID)
	wo, err := scanWorkOrder(row)
	if err != nil {
		return WorkOrder{}, err
	}
	if err := s.loadLines(ctx, &wo); err != nil {
		return WorkOrder{}, err
	}
	return wo, nil
}

func (s *Store) loadLines(ctx context.Context, wo *WorkOrder) error {
	rows, err := s.pool.Query(ctx, `SELECT id, description, price FROM work_order_services WHERE work_order_id=$1 ORDER BY id ASC`, wo.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var line ServiceLine
		if err := rows.Scan(&line.ID, &line.Description, &line.Price); err != nil {
			return err
		}
		wo.Services = append(wo.Services, line)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	prows, err := s.pool.Query(ctx, `SELECT id, part_id, description, quantity, unit_price, line_total
FROM work_order_parts WHERE work_order_id=$1 ORDER BY id ASC`, wo.ID)
	if err != nil {
		return err
	}
	defer prows.Close()
	for prows.Next() {
		var line PartLine
		if err := prows.Scan(&line.ID, &line.PartID, &line.Description, &line.Quantity, &line.UnitPrice, &line.LineTotal); err != nil {
			return err
		}
		wo.Parts = append(wo.Parts, line)
	}
	return prows.Err()
}

// ListFilter narrows work order listings.
type ListFilter struct {
	ClientID *int64
	Status   *Status
	Payment  *PaymentStatus
	Limit    int
	Offset   int
}

// List pages through work order headers without their lines.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]WorkOrder, int, error) {
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
	if filter.Payment != nil {
		where += fmt.Sprintf(" AND payment_status=$%d", pos)
		args = append(args, *filter.Payment)
		pos++
	}
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM work_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT %s FROM work_orders%s ORDER BY entry_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		workOrderColumns, where, pos, pos+1)
	args = append(args, limit, filter.Offset)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var result []WorkOrder
	for rows.Next() {
		wo, err := scanWorkOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, wo)
	}
	return result, total, rows.Err()
}

// MarkOverdue flips payment to overdue on completed, unpaid work orders whose
// due date passed before cutoff. Returns the number of rows touched.
func (s *Store) MarkOverdue(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE work_orders SET payment_status=$1, updated_at=NOW()
WHERE payment_status=$2 AND status=$3 AND due_date < $4`,
		PaymentOverdue, PaymentPending, StatusCompleted, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkOrder(row rowScanner) (WorkOrder, error) {
	var wo WorkOrder
	err := row.Scan(&wo.ID, &wo.ClientID, &wo.VehicleID, &wo.QuoteID, &wo.TotalValue, &wo.Status, &wo.PaymentStatus,
		&wo.EntryDate, &wo.DueDate, &wo.CompletedAt, &wo.Observations, &wo.CreatedAt, &wo.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WorkOrder{}, ErrWorkOrderNotFound
		}
		return WorkOrder{}, err
	}
	return wo, nil
}
