package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/webstore/backend/internal/domain/models"
	"github.com/webstore/backend/internal/storage"
)

// OrderService управляет жизненным циклом уже оформленных заказов.
type OrderService interface {
	GetOrder(ctx context.Context, userID, orderID int64, isAdmin bool) (*models.Order, error)
	ListOrders(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, error)
	UpdateOrder(ctx context.Context, userID, orderID int64, patch OrderPatch, isAdmin bool) (*models.Order, error)
	CancelOrder(ctx context.Context, userID, orderID int64, isAdmin bool) error
}

// OrderPatch — единственные изменяемые поля заказа. Денежные поля
// неизменяемы после создания и в патче не представимы.
type OrderPatch struct {
	Status          *string
	ShippingAddress *string
}

type orderService struct {
	log         *slog.Logger
	db          *sql.DB
	orderRepo   storage.OrderStorage
	productRepo storage.ProductStorage
}

func NewOrderService(log *slog.Logger, db *sql.DB, orderRepo storage.OrderStorage, productRepo storage.ProductStorage) OrderService {
	return &orderService{
		log:         log,
		db:          db,
		orderRepo:   orderRepo,
		productRepo: productRepo,
	}
}

func (s *orderService) GetOrder(ctx context.Context, userID, orderID int64, isAdmin bool) (*models.Order, error) {
	const op = "service.OrderService.GetOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID), slog.Int64("orderID", orderID))

	order, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		logger.Warn("failed to get order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get order: %w", op, err)
	}
	if order.UserID != userID && !isAdmin {
		logger.Warn("order belongs to another user")
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, error) {
	const op = "service.OrderService.ListOrders"

	orders, err := s.orderRepo.ListOrdersByUser(ctx, userID, limit, offset)
	if err != nil {
		s.log.Error("failed to list orders", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to list orders: %w", op, err)
	}
	return orders, nil
}

// UpdateOrder меняет статус и/или адрес доставки. Переход статуса
// проверяется по машине состояний; переход в cancelled возвращает остатки
// тем же путём, что и CancelOrder, чтобы сохранение товара не зависело от
// того, каким эндпоинтом отменили заказ.
func (s *orderService) UpdateOrder(ctx context.Context, userID, orderID int64, patch OrderPatch, isAdmin bool) (*models.Order, error) {
	const op = "service.OrderService.UpdateOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID), slog.Int64("orderID", orderID))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	order, err := s.orderRepo.LockOrderByIDTx(ctx, tx, orderID)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Warn("failed to lock order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get order: %w", op, err)
	}
	if order.UserID != userID && !isAdmin {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Warn("order belongs to another user")
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}

	newStatus := order.Status
	if patch.Status != nil && *patch.Status != order.Status {
		if !models.IsValidStatus(*patch.Status) || !models.CanTransition(order.Status, *patch.Status) {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("transaction rollback failed", slog.Any("error", rbErr))
			}
			logger.Warn("invalid status transition", slog.String("from", order.Status), slog.String("to", *patch.Status))
			return nil, fmt.Errorf("%s: %s -> %s: %w", op, order.Status, *patch.Status, ErrInvalidTransition)
		}
		newStatus = *patch.Status
		if newStatus == models.OrderStatusCancelled {
			if err := s.restoreOrderStock(ctx, tx, orderID); err != nil {
				if rbErr := tx.Rollback(); rbErr != nil {
					logger.Error("transaction rollback failed", slog.Any("error", rbErr))
				}
				logger.Error("failed to restore stock", slog.Any("error", err))
				return nil, fmt.Errorf("%s: failed to restore stock: %w", op, err)
			}
		}
	}

	newAddress := order.ShippingAddress
	if patch.ShippingAddress != nil {
		newAddress = *patch.ShippingAddress
	}

	if err := s.orderRepo.UpdateOrder(ctx, tx, orderID, newStatus, newAddress); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to update order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to update order: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	order.Status = newStatus
	order.ShippingAddress = newAddress
	logger.Info("order updated", slog.String("status", newStatus))
	return order, nil
}

// CancelOrder отменяет заказ из нетерминального статуса и возвращает
// количество каждой строки обратно в остаток товара: продажа не состоялась.
func (s *orderService) CancelOrder(ctx context.Context, userID, orderID int64, isAdmin bool) error {
	const op = "service.OrderService.CancelOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID), slog.Int64("orderID", orderID))
	logger.Info("starting cancellation transaction")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	order, err := s.orderRepo.LockOrderByIDTx(ctx, tx, orderID)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Warn("failed to lock order", slog.Any("error", err))
		return fmt.Errorf("%s: failed to get order: %w", op, err)
	}
	if order.UserID != userID && !isAdmin {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Warn("order belongs to another user")
		return fmt.Errorf("%s: %w", op, ErrForbidden)
	}
	if models.IsTerminalStatus(order.Status) {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Warn("order already in terminal status", slog.String("status", order.Status))
		return fmt.Errorf("%s: %s -> %s: %w", op, order.Status, models.OrderStatusCancelled, ErrInvalidTransition)
	}

	if err := s.restoreOrderStock(ctx, tx, orderID); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to restore stock", slog.Any("error", err))
		return fmt.Errorf("%s: failed to restore stock: %w", op, err)
	}

	if err := s.orderRepo.UpdateOrder(ctx, tx, orderID, models.OrderStatusCancelled, order.ShippingAddress); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to update order", slog.Any("error", err))
		return fmt.Errorf("%s: failed to update order: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("order cancelled")
	return nil
}

func (s *orderService) restoreOrderStock(ctx context.Context, tx *sql.Tx, orderID int64) error {
	items, err := s.orderRepo.GetOrderItemsTx(ctx, tx, orderID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := s.productRepo.ReleaseStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}
