package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/webstore/backend/internal/domain/models"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ProductStorage описывает методы для работы с таблицей товаров.
// ReserveStock и ReleaseStock выполняются строго через транзакцию вызывающего.
type ProductStorage interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProductByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Product, error)
	// ReserveStock атомарно списывает qty со свободного остатка.
	ReserveStock(ctx context.Context, tx *sql.Tx, id int64, qty int) error
	// ReleaseStock возвращает qty обратно в свободный остаток.
	ReleaseStock(ctx context.Context, tx *sql.Tx, id int64, qty int) error
}

type productRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) ProductStorage {
	return &productRepository{db: db}
}

const productColumns = "id, name, description, price, stock, created_at, updated_at"

func scanProduct(row *sql.Row) (*models.Product, error) {
	p := &models.Product{}
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *productRepository) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	return scanProduct(row)
}

func (r *productRepository) GetProductByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Product, error) {
	row := tx.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	return scanProduct(row)
}

// ReserveStock списывает остаток условным UPDATE, а не чтением с последующей записью:
// два конкурентных резерва не могут оба пройти сверх доступного остатка.
func (r *productRepository) ReserveStock(ctx context.Context, tx *sql.Tx, id int64, qty int) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE products SET stock = stock - $2, updated_at = NOW() WHERE id = $1 AND stock >= $2",
		id, qty,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// различаем отсутствующий товар и нехватку остатка
		var exists bool
		if err := tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)", id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrProductNotFound
		}
		return ErrInsufficientStock
	}
	return nil
}

func (r *productRepository) ReleaseStock(ctx context.Context, tx *sql.Tx, id int64, qty int) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id = $1",
		id, qty,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProductNotFound
	}
	return nil
}
