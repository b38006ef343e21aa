package parts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the part ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional ledger operations used by the service.
type TxRepository interface {
	GetForUpdate(ctx context.Context, partID int64) (Part, error)
	UpdateCounters(ctx context.Context, partID, onHand, reserved int64) error
}

type txRepository struct {
	tx pgx.Tx
}

const partColumns = `id, code, description, quantity_on_hand, quantity_reserved, minimum_quantity, purchase_price, sale_price, supplier, created_at, updated_at`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("parts repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, partID int64) (Part, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+partColumns+` FROM parts WHERE id=$1`, partID)
	return scanPart(row)
}

func (r *Repository) GetByCode(ctx context.Context, code string) (Part, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+partColumns+` FROM parts WHERE code=$1`, code)
	return scanPart(row)
}

func (r *Repository) List(ctx context.Context, limit, offset int) ([]Part, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM parts`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+partColumns+` FROM parts ORDER BY code ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var result []Part
	for rows.Next() {
		part, err := scanPart(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, part)
	}
	return result, total, rows.Err()
}

func (r *Repository) Create(ctx context.Context, part Part) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO parts (code, description, quantity_on_hand, quantity_reserved, minimum_quantity, purchase_price, sale_price, supplier, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW()) RETURNING id`,
		part.Code, part.Description, part.QuantityOnHand, part.QuantityReserved, part.MinimumQuantity, part.PurchasePrice, part.SalePrice, part.Supplier).Scan(&id)
	return id, err
}

func (r *Repository) Update(ctx context.Context, part Part) error {
	tag, err := r.pool.Exec(ctx, `UPDATE parts SET code=$1, description=$2, minimum_quantity=$3, purchase_price=$4, sale_price=$5, supplier=$6, updated_at=NOW() WHERE id=$7`,
		part.Code, part.Description, part.MinimumQuantity, part.PurchasePrice, part.SalePrice, part.Supplier, part.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPartNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, partID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM parts WHERE id=$1`, partID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPartNotFound
	}
	return nil
}

// CountOpenReferences counts quote lines on unconverted quotes and work order
// lines on uncompleted orders still pointing at the part.
func (r *Repository) CountOpenReferences(ctx context.Context, partID int64) (int64, error) {
	var quoteRefs, orderRefs int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM quote_items qi
JOIN quotes q ON q.id = qi.quote_id
WHERE qi.part_id=$1 AND (q.status='pending' OR (q.status='approved' AND q.work_order_id IS NULL))`, partID).Scan(&quoteRefs)
	if err != nil {
		return 0, err
	}
	err = r.pool.QueryRow(ctx, `SELECT count(*) FROM work_order_parts wp
JOIN work_orders wo ON wo.id = wp.work_order_id
WHERE wp.part_id=$1 AND wo.status IN ('pending','in_progress')`, partID).Scan(&orderRefs)
	if err != nil {
		return 0, err
	}
	return quoteRefs + orderRefs, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, partID int64) (Part, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+partColumns+` FROM parts WHERE id=$1 FOR UPDATE`, partID)
	return scanPart(row)
}

func (r *txRepository) UpdateCounters(ctx context.Context, partID, onHand, reserved int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE parts SET quantity_on_hand=$1, quantity_reserved=$2, updated_at=NOW() WHERE id=$3`, onHand, reserved, partID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPartNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPart(row rowScanner) (Part, error) {
	var part Part
	err := row.Scan(&part.ID, &part.Code, &part.Description, &part.QuantityOnHand, &part.QuantityReserved,
		&part.MinimumQuantity, &part.PurchasePrice, &part.SalePrice, &part.Supplier, &part.CreatedAt, &part.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Part{}, ErrPartNotFound
		}
		return Part{}, err
	}
	return part, nil
}

// IsUniqueViolation reports whether err is a unique-constraint violation,
// used to surface duplicate part codes.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
