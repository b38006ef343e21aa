package workorders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gearbox-erp/gearbox/internal/parts"
	"github.com/gearbox-erp/gearbox/internal/quotes"
)

// TxStore exposes the row-locked operations the conversion and lifecycle
// transactions are built from. Every method runs on the same transaction, so
// either all of its effects land or none do.
type TxStore interface {
	QuoteForUpdate(ctx context.Context, quoteID int64) (quotes.Quote, error)
	BindQuote(ctx context.Context, quoteID, workOrderID int64) error
	PartForUpdate(ctx context.Context, partID int64) (parts.Part, error)
	SetPartCounters(ctx context.Context, partID, onHand, reserved int64) error
	InsertWorkOrder(ctx context.Context, wo WorkOrder) (int64, error)
	WorkOrderForUpdate(ctx context.Context, workOrderID int64) (WorkOrder, error)
	PartLines(ctx context.Context, workOrderID int64) ([]PartLine, error)
	UpdateStatus(ctx context.Context, workOrderID int64, status Status, completedAt *time.Time) error
	UpdatePayment(ctx context.Context, workOrderID int64, payment PaymentStatus) error
}

type txStore struct {
	tx pgx.Tx
}

// QuoteForUpdate locks the quote header and loads its lines.
func (t *txStore) QuoteForUpdate(ctx context.Context, quoteID int64) (quotes.Quote, error) {
	var q quotes.Quote
	err := t.tx.QueryRow(ctx, `SELECT id, client_id, vehicle_id, total_value, status, work_order_id, valid_until, observations, created_at, updated_at
FROM quotes WHERE id=$1 FOR UPDATE`, quoteID).
		Scan(&q.ID, &q.ClientID, &q.VehicleID, &q.TotalValue, &q.Status, &q.WorkOrderID, &q.ValidUntil, &q.Observations, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return quotes.Quote{}, quotes.ErrQuoteNotFound
		}
		return quotes.Quote{}, err
	}
	rows, err := t.tx.Query(ctx, `SELECT id, kind, part_id, description, quantity, unit_price, line_total
FROM quote_items WHERE quote_id=$1 ORDER BY id ASC`, quoteID)
	if err != nil {
		return quotes.Quote{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item quotes.LineItem
		if err := rows.Scan(&item.ID, &item.Kind, &item.PartID, &item.Description, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return quotes.Quote{}, err
		}
		q.Items = append(q.Items, item)
	}
	return q, rows.Err()
}

// BindQuote stamps the quote with the work order it produced.
func (t *txStore) BindQuote(ctx context.Context, quoteID, workOrderID int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE quotes SET work_order_id=$1, updated_at=NOW() WHERE id=$2 AND work_order_id IS NULL`,
		workOrderID, quoteID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyConverted
	}
	return nil
}

// PartForUpdate locks a ledger row for counter mutation.
func (t *txStore) PartForUpdate(ctx context.Context, partID int64) (parts.Part, error) {
	var p parts.Part
	err := t.tx.QueryRow(ctx, `SELECT id, code, description, quantity_on_hand, quantity_reserved, minimum_quantity, purchase_price, sale_price, supplier, created_at, updated_at
FROM parts WHERE id=$1 FOR UPDATE`, partID).
		Scan(&p.ID, &p.Code, &p.Description, &p.QuantityOnHand, &p.QuantityReserved, &p.MinimumQuantity, &p.PurchasePrice, &p.SalePrice, &p.Supplier, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return parts.Part{}, parts.ErrPartNotFound
		}
		return parts.Part{}, err
	}
	return p, nil
}

func (t *txStore) SetPartCounters(ctx context.Context, partID, onHand, reserved int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE parts SET quantity_on_hand=$1, quantity_reserved=$2, updated_at=NOW() WHERE id=$3`,
		onHand, reserved, partID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return parts.ErrPartNotFound
	}
	return nil
}

func (t *txStore) InsertWorkOrder(ctx context.Context, wo WorkOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO work_orders (client_id, vehicle_id, quote_id, total_value, status, payment_status, entry_date, due_date, observations, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW()) RETURNING id`,
		wo.ClientID, wo.VehicleID, wo.QuoteID, wo.TotalValue, wo.Status, wo.PaymentStatus, wo.EntryDate, wo.DueDate, wo.Observations).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, line := range wo.Services {
		if _, err := t.tx.Exec(ctx, `INSERT INTO work_order_services (work_order_id, description, price) VALUES ($1,$2,$3)`,
			id, line.Description, line.Price); err != nil {
			return 0, err
		}
	}
	for _, line := range wo.Parts {
		if _, err := t.tx.Exec(ctx, `INSERT INTO work_order_parts (work_order_id, part_id, description, quantity, unit_price, line_total)
VALUES ($1,$2,$3,$4,$5,$6)`, id, line.PartID, line.Description, line.Quantity, line.UnitPrice, line.LineTotal); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// WorkOrderForUpdate locks a work order header.
func (t *txStore) WorkOrderForUpdate(ctx context.Context, workOrderID int64) (WorkOrder, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+workOrderColumns+` FROM work_orders WHERE id=$1 FOR UPDATE`, workOrderID)
	return scanWorkOrder(row)
}

func (t *txStore) PartLines(ctx context.Context, workOrderID int64) ([]PartLine, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, part_id, description, quantity, unit_price, line_total
FROM work_order_parts WHERE work_order_id=$1 ORDER BY part_id ASC`, workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []PartLine
	for rows.Next() {
		var line PartLine
		if err := rows.Scan(&line.ID, &line.PartID, &line.Description, &line.Quantity, &line.UnitPrice, &line.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (t *txStore) UpdateStatus(ctx context.Context, workOrderID int64, status Status, completedAt *time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE work_orders SET status=$1, completed_at=$2, updated_at=NOW() WHERE id=$3`,
		status, completedAt, workOrderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWorkOrderNotFound
	}
	return nil
}

func (t *txStore) UpdatePayment(ctx context.Context, workOrderID int64, payment PaymentStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE work_orders SET payment_status=$1, updated_at=NOW() WHERE id=$2`,
		payment, workOrderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWorkOrderNotFound
	}
	return nil
}
