package storage_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/webstore/backend/internal/domain/models"
	"github.com/webstore/backend/internal/storage"
)

func TestGetProductByID_Success(t *testing.T) {
	// Создаем sqlmock для эмуляции базы данных.
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)
	ctx := context.Background()
	productID := int64(1)
	now := time.Now()

	// Подготавливаем ожидаемые строки результата.
	rows := sqlmock.NewRows([]string{"id", "name", "description", "price", "stock", "created_at", "updated_at"}).
		AddRow(productID, "wireless mouse", "2.4 GHz", "19.99", 50, now, now)

	query := regexp.QuoteMeta("SELECT id, name, description, price, stock, created_at, updated_at FROM products WHERE id = $1")
	mock.ExpectQuery(query).WithArgs(productID).WillReturnRows(rows)

	product, err := repo.GetProductByID(ctx, productID)
	assert.NoError(t, err, "Expected no error when product is found")
	assert.Equal(t, productID, product.ID)
	assert.Equal(t, "wireless mouse", product.Name)
	assert.True(t, product.Price.Equal(decimal.RequireFromString("19.99")))
	assert.Equal(t, 50, product.Stock)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)
	ctx := context.Background()
	productID := int64(99)

	// Эмулируем ситуацию, когда запрос возвращает 0 строк.
	rows := sqlmock.NewRows([]string{"id", "name", "description", "price", "stock", "created_at", "updated_at"})
	query := regexp.QuoteMeta("SELECT id, name, description, price, stock, created_at, updated_at FROM products WHERE id = $1")
	mock.ExpectQuery(query).WithArgs(productID).WillReturnRows(rows)

	product, err := repo.GetProductByID(ctx, productID)
	assert.Error(t, err, "Expected error when product is not found")
	assert.True(t, errors.Is(err, storage.ErrProductNotFound))
	assert.Nil(t, product, "Product should be nil when not found")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveStock_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	tx, err := db.Begin()
	assert.NoError(t, err)

	// Условный UPDATE списывает остаток только при достаточном stock.
	query := regexp.QuoteMeta("UPDATE products SET stock = stock - $2, updated_at = NOW() WHERE id = $1 AND stock >= $2")
	mock.ExpectExec(query).WithArgs(int64(1), 5).WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.ReserveStock(ctx, tx, 1, 5)
	assert.NoError(t, err)

	mock.ExpectCommit()
	assert.NoError(t, tx.Commit())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveStock_Insufficient(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	tx, err := db.Begin()
	assert.NoError(t, err)

	// UPDATE затронул 0 строк, товар существует — значит, не хватает остатка.
	query := regexp.QuoteMeta("UPDATE products SET stock = stock - $2, updated_at = NOW() WHERE id = $1 AND stock >= $2")
	mock.ExpectExec(query).WithArgs(int64(1), 100).WillReturnResult(sqlmock.NewResult(0, 0))

	existsQuery := regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)")
	mock.ExpectQuery(existsQuery).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err = repo.ReserveStock(ctx, tx, 1, 100)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrInsufficientStock))

	mock.ExpectRollback()
	assert.NoError(t, tx.Rollback())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveStock_ProductNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	tx, err := db.Begin()
	assert.NoError(t, err)

	// UPDATE затронул 0 строк, товара нет вовсе.
	query := regexp.QuoteMeta("UPDATE products SET stock = stock - $2, updated_at = NOW() WHERE id = $1 AND stock >= $2")
	mock.ExpectExec(query).WithArgs(int64(42), 1).WillReturnResult(sqlmock.NewResult(0, 0))

	existsQuery := regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)")
	mock.ExpectQuery(existsQuery).WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err = repo.ReserveStock(ctx, tx, 42, 1)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrProductNotFound))

	mock.ExpectRollback()
	assert.NoError(t, tx.Rollback())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseStock_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	tx, err := db.Begin()
	assert.NoError(t, err)

	query := regexp.QuoteMeta("UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id = $1")
	mock.ExpectExec(query).WithArgs(int64(1), 3).WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.ReleaseStock(ctx, tx, 1, 3)
	assert.NoError(t, err)

	mock.ExpectCommit()
	assert.NoError(t, tx.Commit())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCartItems_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewCartRepository(db)
	ctx := context.Background()
	userID := int64(7)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "user_id", "product_id", "quantity", "created_at", "updated_at"}).
		AddRow(1, userID, 10, 3, now, now).
		AddRow(2, userID, 11, 1, now, now)
	query := regexp.QuoteMeta("SELECT id, user_id, product_id, quantity, created_at, updated_at FROM cart_items WHERE user_id = $1 ORDER BY id")
	mock.ExpectQuery(query).WithArgs(userID).WillReturnRows(rows)

	items, err := repo.GetCartItems(ctx, userID)
	assert.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, int64(10), items[0].ProductID)
	assert.Equal(t, 3, items[0].Quantity)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockCartItemTx_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewCartRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	tx, err := db.Begin()
	assert.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "user_id", "product_id", "quantity", "created_at", "updated_at"})
	query := regexp.QuoteMeta("SELECT id, user_id, product_id, quantity, created_at, updated_at FROM cart_items WHERE user_id = $1 AND product_id = $2 FOR UPDATE NOWAIT")
	mock.ExpectQuery(query).WithArgs(int64(7), int64(10)).WillReturnRows(rows)

	item, err := repo.LockCartItemTx(ctx, tx, 7, 10)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrCartItemNotFound))
	assert.Nil(t, item)

	mock.ExpectRollback()
	assert.NoError(t, tx.Rollback())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockCartItemTx_Locked(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewCartRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	tx, err := db.Begin()
	assert.NoError(t, err)

	// Эмулируем ошибку блокировки строки (55P03).
	lockErr := &pq.Error{Code: "55P03"}
	query := regexp.QuoteMeta("SELECT id, user_id, product_id, quantity, created_at, updated_at FROM cart_items WHERE user_id = $1 AND product_id = $2 FOR UPDATE NOWAIT")
	mock.ExpectQuery(query).WithArgs(int64(7), int64(10)).WillReturnError(lockErr)

	item, err := repo.LockCartItemTx(ctx, tx, 7, 10)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
	assert.Nil(t, item)

	mock.ExpectRollback()
	assert.NoError(t, tx.Rollback())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCartItem_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewCartRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	tx, err := db.Begin()
	assert.NoError(t, err)

	query := regexp.QuoteMeta(`INSERT INTO cart_items (user_id, product_id, quantity, created_at, updated_at)
	     VALUES ($1, $2, $3, NOW(), NOW())`)
	mock.ExpectExec(query).WithArgs(int64(7), int64(10), 2).WillReturnResult(sqlmock.NewResult(1, 1))

	err = repo.CreateCartItem(ctx, tx, 7, 10, 2)
	assert.NoError(t, err)

	mock.ExpectCommit()
	assert.NoError(t, tx.Commit())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCartItemsByUser_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewCartRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	tx, err := db.Begin()
	assert.NoError(t, err)

	query := regexp.QuoteMeta("DELETE FROM cart_items WHERE user_id = $1")
	mock.ExpectExec(query).WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 2))

	deleted, err := repo.DeleteCartItemsByUser(ctx, tx, 7)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	mock.ExpectCommit()
	assert.NoError(t, tx.Commit())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrder_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	tx, err := db.Begin()
	assert.NoError(t, err)

	order := &models.Order{
		OrderNumber:   "a3f0c1d2",
		UserID:        7,
		PaymentMethod: "card",
		Status:        models.OrderStatusPending,
		Subtotal:      decimal.RequireFromString("60.07"),
		Tax:           decimal.RequireFromString("4.81"),
		Total:         decimal.RequireFromString("64.88"),
		Items: []*models.OrderItem{
			{
				ProductID: 10,
				Quantity:  3,
				Price:     decimal.RequireFromString("19.99"),
				Subtotal:  decimal.RequireFromString("59.97"),
				Tax:       decimal.RequireFromString("4.80"),
			},
		},
	}

	headerQuery := regexp.QuoteMeta(`INSERT INTO orders (order_number, user_id, payment_method, status, shipping_address, subtotal, tax, total, created_at, updated_at)
	     VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()) RETURNING id`)
	mock.ExpectQuery(headerQuery).
		WithArgs(order.OrderNumber, order.UserID, order.PaymentMethod, order.Status, order.ShippingAddress,
			order.Subtotal, order.Tax, order.Total).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

	itemQuery := regexp.QuoteMeta(`INSERT INTO order_items (order_id, product_id, quantity, price, subtotal, tax)
		     VALUES ($1, $2, $3, $4, $5, $6)`)
	mock.ExpectExec(itemQuery).
		WithArgs(int64(5), int64(10), 3, order.Items[0].Price, order.Items[0].Subtotal, order.Items[0].Tax).
		WillReturnResult(sqlmock.NewResult(1, 1))

	orderID, err := repo.CreateOrder(ctx, tx, order)
	assert.NoError(t, err)
	assert.Equal(t, int64(5), orderID)
	assert.Equal(t, int64(5), order.Items[0].OrderID)

	mock.ExpectCommit()
	assert.NoError(t, tx.Commit())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderByID_WithItems(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	ctx := context.Background()
	orderID := int64(5)
	now := time.Now()

	orderRows := sqlmock.NewRows([]string{"id", "order_number", "user_id", "payment_method", "status", "shipping_address", "subtotal", "tax", "total", "created_at", "updated_at"}).
		AddRow(orderID, "a3f0c1d2", 7, "card", "pending", "", "60.07", "4.81", "64.88", now, now)
	orderQuery := regexp.QuoteMeta("SELECT id, order_number, user_id, payment_method, status, shipping_address, subtotal, tax, total, created_at, updated_at FROM orders WHERE id = $1")
	mock.ExpectQuery(orderQuery).WithArgs(orderID).WillReturnRows(orderRows)

	itemRows := sqlmock.NewRows([]string{"id", "order_id", "product_id", "quantity", "price", "subtotal", "tax"}).
		AddRow(1, orderID, 10, 3, "19.99", "59.97", "4.80")
	itemQuery := regexp.QuoteMeta("SELECT id, order_id, product_id, quantity, price, subtotal, tax FROM order_items WHERE order_id = $1 ORDER BY id")
	mock.ExpectQuery(itemQuery).WithArgs(orderID).WillReturnRows(itemRows)

	order, err := repo.GetOrderByID(ctx, orderID)
	assert.NoError(t, err)
	assert.Equal(t, "a3f0c1d2", order.OrderNumber)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("64.88")))
	assert.Len(t, order.Items, 1)
	assert.Equal(t, 3, order.Items[0].Quantity)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "order_number", "user_id", "payment_method", "status", "shipping_address", "subtotal", "tax", "total", "created_at", "updated_at"})
	query := regexp.QuoteMeta("SELECT id, order_number, user_id, payment_method, status, shipping_address, subtotal, tax, total, created_at, updated_at FROM orders WHERE id = $1")
	mock.ExpectQuery(query).WithArgs(int64(99)).WillReturnRows(rows)

	order, err := repo.GetOrderByID(ctx, 99)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrOrderNotFound))
	assert.Nil(t, order)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrder_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	tx, err := db.Begin()
	assert.NoError(t, err)

	query := regexp.QuoteMeta("UPDATE orders SET status = $1, shipping_address = $2, updated_at = NOW() WHERE id = $3")
	mock.ExpectExec(query).WithArgs("paid", "", int64(99)).WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.UpdateOrder(ctx, tx, 99, "paid", "")
	assert.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrOrderNotFound))

	mock.ExpectRollback()
	assert.NoError(t, tx.Rollback())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReward_Duplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewRewardRepository(db)
	ctx := context.Background()

	// Повторная регистрация упирается в уникальный индекс по user_id.
	dupErr := &pq.Error{Code: "23505"}
	query := regexp.QuoteMeta("INSERT INTO rewards (user_id, tier, points) VALUES ($1, $2, $3) RETURNING id")
	mock.ExpectQuery(query).WithArgs(int64(7), "Bronze", 0).WillReturnError(dupErr)

	reward, err := repo.CreateReward(ctx, &models.Reward{UserID: 7, Tier: "Bronze", Points: 0})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrRewardExists))
	assert.Nil(t, reward)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRewardByUserID_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewRewardRepository(db)
	ctx := context.Background()
	userID := int64(7)

	rows := sqlmock.NewRows([]string{"id", "user_id", "tier", "points"}).
		AddRow(1, userID, "Bronze", 64)
	query := regexp.QuoteMeta("SELECT id, user_id, tier, points FROM rewards WHERE user_id = $1")
	mock.ExpectQuery(query).WithArgs(userID).WillReturnRows(rows)

	reward, err := repo.GetRewardByUserID(ctx, userID)
	assert.NoError(t, err)
	assert.Equal(t, 64, reward.Points)
	assert.Equal(t, "Bronze", reward.Tier)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRewardPoints_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewRewardRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	tx, err := db.Begin()
	assert.NoError(t, err)

	query := regexp.QuoteMeta("UPDATE rewards SET points = $1 WHERE user_id = $2")
	mock.ExpectExec(query).WithArgs(100, int64(99)).WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.UpdateRewardPoints(ctx, tx, 99, 100)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrRewardNotFound))

	mock.ExpectRollback()
	assert.NoError(t, tx.Rollback())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByEmail_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewUserRepository(db)
	ctx := context.Background()
	email := "test@example.com"

	rows := sqlmock.NewRows([]string{"id", "email", "pass_hash", "is_admin"}).
		AddRow(1, email, []byte("hashed-password"), false)
	query := regexp.QuoteMeta("SELECT id, email, pass_hash, is_admin FROM users WHERE email = $1")
	mock.ExpectQuery(query).WithArgs(email).WillReturnRows(rows)

	user, err := repo.GetUserByEmail(ctx, email)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, email, user.Email)
	assert.False(t, user.IsAdmin)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByEmail_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewUserRepository(db)
	ctx := context.Background()
	email := "nonexistent@example.com"

	rows := sqlmock.NewRows([]string{"id", "email", "pass_hash", "is_admin"})
	query := regexp.QuoteMeta("SELECT id, email, pass_hash, is_admin FROM users WHERE email = $1")
	mock.ExpectQuery(query).WithArgs(email).WillReturnRows(rows)

	user, err := repo.GetUserByEmail(ctx, email)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrUserNotFound))
	assert.Nil(t, user)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := storage.NewUserRepository(db)
	ctx := context.Background()
	email := "create@example.com"
	passHash := []byte("hashed")

	query := regexp.QuoteMeta("INSERT INTO users (email, pass_hash, is_admin) VALUES ($1, $2, $3) RETURNING id")
	mock.ExpectQuery(query).WithArgs(email, passHash, false).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	user := &models.User{Email: email, PassHash: passHash}
	createdUser, err := repo.CreateUser(ctx, user)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), createdUser.ID)
	assert.Equal(t, email, createdUser.Email)

	assert.NoError(t, mock.ExpectationsWereMet())
}
