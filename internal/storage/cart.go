package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/webstore/backend/internal/domain/models"
)

var ErrCartItemNotFound = errors.New("cart item not found")

// CartStorage описывает методы для работы со строками корзины.
// Мутации всегда идут через транзакцию сервиса, чтения списка — и так, и так.
type CartStorage interface {
	GetCartItems(ctx context.Context, userID int64) ([]*models.CartItem, error)
	GetCartItemsTx(ctx context.Context, tx *sql.Tx, userID int64) ([]*models.CartItem, error)
	// LockCartItemTx берёт строку (user, product) под FOR UPDATE.
	LockCartItemTx(ctx context.Context, tx *sql.Tx, userID, productID int64) (*models.CartItem, error)
	CreateCartItem(ctx context.Context, tx *sql.Tx, userID, productID int64, quantity int) error
	UpdateCartItemQuantity(ctx context.Context, tx *sql.Tx, id int64, quantity int) error
	DeleteCartItem(ctx context.Context, tx *sql.Tx, id int64) error
	// DeleteCartItemsByUser удаляет все строки пользователя, возвращает их число.
	DeleteCartItemsByUser(ctx context.Context, tx *sql.Tx, userID int64) (int64, error)
}

type cartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) CartStorage {
	return &cartRepository{db: db}
}

const cartColumns = "id, user_id, product_id, quantity, created_at, updated_at"

type rowQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryCartItems(ctx context.Context, q rowQuerier, userID int64) ([]*models.CartItem, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+cartColumns+" FROM cart_items WHERE user_id = $1 ORDER BY id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.CartItem
	for rows.Next() {
		item := &models.CartItem{}
		if err := rows.Scan(&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *cartRepository) GetCartItems(ctx context.Context, userID int64) ([]*models.CartItem, error) {
	return queryCartItems(ctx, r.db, userID)
}

func (r *cartRepository) GetCartItemsTx(ctx context.Context, tx *sql.Tx, userID int64) ([]*models.CartItem, error) {
	return queryCartItems(ctx, tx, userID)
}

func (r *cartRepository) LockCartItemTx(ctx context.Context, tx *sql.Tx, userID, productID int64) (*models.CartItem, error) {
	item := &models.CartItem{}
	row := tx.QueryRowContext(ctx,
		"SELECT "+cartColumns+" FROM cart_items WHERE user_id = $1 AND product_id = $2 FOR UPDATE NOWAIT",
		userID, productID)
	if err := row.Scan(&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.CreatedAt, &item.UpdatedAt); err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "55P03" { // lock
				return nil, fmt.Errorf("resource is locked, please try again: %w", err)
			}
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartItemNotFound
		}
		return nil, err
	}
	return item, nil
}

func (r *cartRepository) CreateCartItem(ctx context.Context, tx *sql.Tx, userID, productID int64, quantity int) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO cart_items (user_id, product_id, quantity, created_at, updated_at)
	     VALUES ($1, $2, $3, NOW(), NOW())`,
		userID, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to create cart item: %w", err)
	}
	return nil
}

func (r *cartRepository) UpdateCartItemQuantity(ctx context.Context, tx *sql.Tx, id int64, quantity int) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1, updated_at = NOW() WHERE id = $2", quantity, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

func (r *cartRepository) DeleteCartItem(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE id = $1", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

func (r *cartRepository) DeleteCartItemsByUser(ctx context.Context, tx *sql.Tx, userID int64) (int64, error) {
	res, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = $1", userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
