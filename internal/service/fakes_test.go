package service_test

import (
	"context"
	"database/sql"
	"errors"

	"github.com/webstore/backend/internal/domain/models"
	"github.com/webstore/backend/internal/storage"
)

// Фиктивные репозитории хранят состояние в памяти и игнорируют tx:
// транзакционные границы проверяются ожиданиями sqlmock на Begin/Commit/Rollback.

type fakeUserRepo struct {
	users map[string]*models.User // ключ — email
}

var _ storage.UserStorage = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User)}
}

func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := f.users[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = int64(len(f.users) + 1)
	f.users[user.Email] = user
	return user, nil
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

type fakeProductRepo struct {
	products map[int64]*models.Product // ключ — id товара
}

var _ storage.ProductStorage = (*fakeProductRepo)(nil)

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{products: make(map[int64]*models.Product)}
}

func (f *fakeProductRepo) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	product, ok := f.products[id]
	if !ok {
		return nil, storage.ErrProductNotFound
	}
	return product, nil
}

func (f *fakeProductRepo) GetProductByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Product, error) {
	return f.GetProductByID(ctx, id)
}

func (f *fakeProductRepo) ReserveStock(ctx context.Context, tx *sql.Tx, id int64, qty int) error {
	product, ok := f.products[id]
	if !ok {
		return storage.ErrProductNotFound
	}
	if product.Stock < qty {
		return storage.ErrInsufficientStock
	}
	product.Stock -= qty
	return nil
}

func (f *fakeProductRepo) ReleaseStock(ctx context.Context, tx *sql.Tx, id int64, qty int) error {
	product, ok := f.products[id]
	if !ok {
		return storage.ErrProductNotFound
	}
	product.Stock += qty
	return nil
}

type fakeCartRepo struct {
	items  []*models.CartItem
	nextID int64
}

var _ storage.CartStorage = (*fakeCartRepo)(nil)

func newFakeCartRepo() *fakeCartRepo {
	return &fakeCartRepo{nextID: 1}
}

func (f *fakeCartRepo) GetCartItems(ctx context.Context, userID int64) ([]*models.CartItem, error) {
	var items []*models.CartItem
	for _, item := range f.items {
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	return items, nil
}

func (f *fakeCartRepo) GetCartItemsTx(ctx context.Context, tx *sql.Tx, userID int64) ([]*models.CartItem, error) {
	return f.GetCartItems(ctx, userID)
}

func (f *fakeCartRepo) LockCartItemTx(ctx context.Context, tx *sql.Tx, userID, productID int64) (*models.CartItem, error) {
	for _, item := range f.items {
		if item.UserID == userID && item.ProductID == productID {
			return item, nil
		}
	}
	return nil, storage.ErrCartItemNotFound
}

func (f *fakeCartRepo) CreateCartItem(ctx context.Context, tx *sql.Tx, userID, productID int64, quantity int) error {
	f.items = append(f.items, &models.CartItem{
		ID:        f.nextID,
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
	})
	f.nextID++
	return nil
}

func (f *fakeCartRepo) UpdateCartItemQuantity(ctx context.Context, tx *sql.Tx, id int64, quantity int) error {
	for _, item := range f.items {
		if item.ID == id {
			item.Quantity = quantity
			return nil
		}
	}
	return storage.ErrCartItemNotFound
}

func (f *fakeCartRepo) DeleteCartItem(ctx context.Context, tx *sql.Tx, id int64) error {
	for i, item := range f.items {
		if item.ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return storage.ErrCartItemNotFound
}

func (f *fakeCartRepo) DeleteCartItemsByUser(ctx context.Context, tx *sql.Tx, userID int64) (int64, error) {
	var kept []*models.CartItem
	var deleted int64
	for _, item := range f.items {
		if item.UserID == userID {
			deleted++
			continue
		}
		kept = append(kept, item)
	}
	f.items = kept
	return deleted, nil
}

type fakeOrderRepo struct {
	orders map[int64]*models.Order // ключ — id заказа
	nextID int64
}

var _ storage.OrderStorage = (*fakeOrderRepo)(nil)

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[int64]*models.Order), nextID: 1}
}

func (f *fakeOrderRepo) CreateOrder(ctx context.Context, tx *sql.Tx, order *models.Order) (int64, error) {
	id := f.nextID
	f.nextID++
	order.ID = id
	for _, item := range order.Items {
		item.OrderID = id
	}
	f.orders[id] = order
	return id, nil
}

func (f *fakeOrderRepo) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	return order, nil
}

func (f *fakeOrderRepo) LockOrderByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	return f.GetOrderByID(ctx, id)
}

func (f *fakeOrderRepo) GetOrderItemsTx(ctx context.Context, tx *sql.Tx, orderID int64) ([]*models.OrderItem, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	return order.Items, nil
}

func (f *fakeOrderRepo) ListOrdersByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, error) {
	var orders []*models.Order
	for _, order := range f.orders {
		if order.UserID == userID {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

func (f *fakeOrderRepo) UpdateOrder(ctx context.Context, tx *sql.Tx, id int64, status, shippingAddress string) error {
	order, ok := f.orders[id]
	if !ok {
		return storage.ErrOrderNotFound
	}
	order.Status = status
	order.ShippingAddress = shippingAddress
	return nil
}

type fakeRewardRepo struct {
	rewards map[int64]*models.Reward // ключ — userID
	nextID  int64
}

var _ storage.RewardStorage = (*fakeRewardRepo)(nil)

func newFakeRewardRepo() *fakeRewardRepo {
	return &fakeRewardRepo{rewards: make(map[int64]*models.Reward), nextID: 1}
}

func (f *fakeRewardRepo) GetRewardByUserID(ctx context.Context, userID int64) (*models.Reward, error) {
	reward, ok := f.rewards[userID]
	if !ok {
		return nil, storage.ErrRewardNotFound
	}
	return reward, nil
}

func (f *fakeRewardRepo) LockRewardByUserIDTx(ctx context.Context, tx *sql.Tx, userID int64) (*models.Reward, error) {
	return f.GetRewardByUserID(ctx, userID)
}

func (f *fakeRewardRepo) CreateReward(ctx context.Context, reward *models.Reward) (*models.Reward, error) {
	if _, ok := f.rewards[reward.UserID]; ok {
		return nil, storage.ErrRewardExists
	}
	reward.ID = f.nextID
	f.nextID++
	f.rewards[reward.UserID] = reward
	return reward, nil
}

func (f *fakeRewardRepo) CreateRewardTx(ctx context.Context, tx *sql.Tx, reward *models.Reward) (*models.Reward, error) {
	return f.CreateReward(ctx, reward)
}

func (f *fakeRewardRepo) UpdateRewardPoints(ctx context.Context, tx *sql.Tx, userID int64, points int) error {
	reward, ok := f.rewards[userID]
	if !ok {
		return storage.ErrRewardNotFound
	}
	reward.Points = points
	return nil
}

func (f *fakeRewardRepo) DeleteReward(ctx context.Context, userID int64) error {
	if _, ok := f.rewards[userID]; !ok {
		return storage.ErrRewardNotFound
	}
	delete(f.rewards, userID)
	return nil
}

type fakeEmail struct {
	sent []string // адресаты отправленных писем
	fail bool
}

func (f *fakeEmail) Send(to, subject, body string) error {
	if f.fail {
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, to)
	return nil
}
