package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/webstore/backend/internal/domain/models"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderStorage описывает методы для работы с заказами и их строками.
type OrderStorage interface {
	// CreateOrder вставляет шапку заказа и все строки в транзакции вызывающего.
	CreateOrder(ctx context.Context, tx *sql.Tx, order *models.Order) (int64, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	// LockOrderByIDTx берёт шапку заказа под FOR UPDATE.
	LockOrderByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error)
	GetOrderItemsTx(ctx context.Context, tx *sql.Tx, orderID int64) ([]*models.OrderItem, error)
	ListOrdersByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, error)
	UpdateOrder(ctx context.Context, tx *sql.Tx, id int64, status, shippingAddress string) error
}

type orderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) OrderStorage {
	return &orderRepository{db: db}
}

const orderColumns = "id, order_number, user_id, payment_method, status, shipping_address, subtotal, tax, total, created_at, updated_at"

func scanOrder(row interface{ Scan(...any) error }) (*models.Order, error) {
	o := &models.Order{}
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.PaymentMethod, &o.Status, &o.ShippingAddress,
		&o.Subtotal, &o.Tax, &o.Total, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// CreateOrder вставляет шапку и строки заказа; количество и цена в строках —
// снимок на момент оформления.
func (r *orderRepository) CreateOrder(ctx context.Context, tx *sql.Tx, order *models.Order) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO orders (order_number, user_id, payment_method, status, shipping_address, subtotal, tax, total, created_at, updated_at)
	     VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()) RETURNING id`,
		order.OrderNumber, order.UserID, order.PaymentMethod, order.Status, order.ShippingAddress,
		order.Subtotal, order.Tax, order.Total,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create order: %w", err)
	}

	for _, item := range order.Items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, price, subtotal, tax)
		     VALUES ($1, $2, $3, $4, $5, $6)`,
			id, item.ProductID, item.Quantity, item.Price, item.Subtotal, item.Tax)
		if err != nil {
			return 0, fmt.Errorf("failed to create order item: %w", err)
		}
		item.OrderID = id
	}
	return id, nil
}

func (r *orderRepository) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, order_id, product_id, quantity, price, subtotal, tax FROM order_items WHERE order_id = $1 ORDER BY id", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		item := &models.OrderItem{}
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price, &item.Subtotal, &item.Tax); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) LockOrderByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	row := tx.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE NOWAIT", id)
	order, err := scanOrder(row)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "55P03" { // lock
				return nil, fmt.Errorf("resource is locked, please try again: %w", err)
			}
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) GetOrderItemsTx(ctx context.Context, tx *sql.Tx, orderID int64) ([]*models.OrderItem, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT id, order_id, product_id, quantity, price, subtotal, tax FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.OrderItem
	for rows.Next() {
		item := &models.OrderItem{}
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price, &item.Subtotal, &item.Tax); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *orderRepository) ListOrdersByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrder изменяет статус и адрес доставки. Денежные поля заказа
// неизменяемы после создания и здесь намеренно не фигурируют.
func (r *orderRepository) UpdateOrder(ctx context.Context, tx *sql.Tx, id int64, status, shippingAddress string) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, shipping_address = $2, updated_at = NOW() WHERE id = $3",
		status, shippingAddress, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}
