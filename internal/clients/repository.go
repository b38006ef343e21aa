package clients

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists clients and their vehicles in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the deletion batch used by the service. The dependency
// counts live here so the guard and the delete see the same snapshot.
type TxRepository interface {
	GetForUpdate(ctx context.Context, clientID int64) (Client, error)
	CountQuotes(ctx context.Context, clientID int64) (int64, error)
	CountWorkOrders(ctx context.Context, clientID int64) (int64, error)
	DeleteVehiclesByClient(ctx context.Context, clientID int64) (int64, error)
	DeleteClient(ctx context.Context, clientID int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("clients repository not initialised")
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

func (r *Repository) Get(ctx context.Context, clientID int64) (Client, error) {
	var c Client
	err := r.pool.QueryRow(ctx, `SELECT id, name, document, phone, email, created_at, updated_at FROM clients WHERE id=$1`, clientID).
		Scan(&c.ID, &c.Name, &c.Document, &c.Phone, &c.Email, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, ErrClientNotFound
		}
		return Client{}, err
	}
	return c, nil
}

func (r *Repository) List(ctx context.Context, limit, offset int) ([]Client, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM clients`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, document, phone, email, created_at, updated_at FROM clients ORDER BY name ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var result []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Document, &c.Phone, &c.Email, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, c)
	}
	return result, total, rows.Err()
}

func (r *Repository) Create(ctx context.Context, c Client) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO clients (name, document, phone, email, created_at, updated_at)
VALUES ($1,$2,$3,$4,NOW(),NOW()) RETURNING id`, c.Name, c.Document, c.Phone, c.Email).Scan(&id)
	return id, err
}

func (r *Repository) Update(ctx context.Context, c Client) error {
	tag, err := r.pool.Exec(ctx, `UPDATE clients SET name=$1, document=$2, phone=$3, email=$4, updated_at=NOW() WHERE id=$5`,
		c.Name, c.Document, c.Phone, c.Email, c.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}

func (r *Repository) GetVehicle(ctx context.Context, vehicleID int64) (Vehicle, error) {
	var v Vehicle
	err := r.pool.QueryRow(ctx, `SELECT id, client_id, plate, make, model, year, created_at, updated_at FROM vehicles WHERE id=$1`, vehicleID).
		Scan(&v.ID, &v.ClientID, &v.Plate, &v.Make, &v.Model, &v.Year, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vehicle{}, ErrVehicleNotFound
		}
		return Vehicle{}, err
	}
	return v, nil
}

func (r *Repository) ListVehicles(ctx context.Context, clientID int64) ([]Vehicle, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, client_id, plate, make, model, year, created_at, updated_at FROM vehicles WHERE client_id=$1 ORDER BY plate ASC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Vehicle
	for rows.Next() {
		var v Vehicle
		if err := rows.Scan(&v.ID, &v.ClientID, &v.Plate, &v.Make, &v.Model, &v.Year, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func (r *Repository) CreateVehicle(ctx context.Context, v Vehicle) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO vehicles (client_id, plate, make, model, year, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW()) RETURNING id`, v.ClientID, v.Plate, v.Make, v.Model, v.Year).Scan(&id)
	return id, err
}

func (r *txRepository) GetForUpdate(ctx context.Context, clientID int64) (Client, error) {
	var c Client
	err := r.tx.QueryRow(ctx, `SELECT id, name, document, phone, email, created_at, updated_at FROM clients WHERE id=$1 FOR UPDATE`, clientID).
		Scan(&c.ID, &c.Name, &c.Document, &c.Phone, &c.Email, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, ErrClientNotFound
		}
		return Client{}, err
	}
	return c, nil
}

func (r *txRepository) CountQuotes(ctx context.Context, clientID int64) (int64, error) {
	var n int64
	err := r.tx.QueryRow(ctx, `SELECT count(*) FROM quotes WHERE client_id=$1`, clientID).Scan(&n)
	return n, err
}

func (r *txRepository) CountWorkOrders(ctx context.Context, clientID int64) (int64, error) {
	var n int64
	err := r.tx.QueryRow(ctx, `SELECT count(*) FROM work_orders WHERE client_id=$1`, clientID).Scan(&n)
	return n, err
}

func (r *txRepository) DeleteVehiclesByClient(ctx context.Context, clientID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM vehicles WHERE client_id=$1`, clientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *txRepository) DeleteClient(ctx context.Context, clientID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM clients WHERE id=$1`, clientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}
