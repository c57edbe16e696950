package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/webstore/backend/internal/storage"
)

// CartService определяет интерфейс для работы с корзиной.
// Остаток товара списывается в момент добавления (пессимистичный резерв),
// поэтому две конкурентные корзины не могут вместе превысить доступный остаток.
type CartService interface {
	Add(ctx context.Context, userID, productID int64, quantity int) error
	Update(ctx context.Context, userID, productID int64, quantity int) error
	Remove(ctx context.Context, userID, productID int64) error
	Clear(ctx context.Context, userID int64) error
	Total(ctx context.Context, userID int64, taxRate decimal.Decimal) (*CartSummary, error)
}

// CartLineTotal — строка корзины с посчитанными суммами.
type CartLineTotal struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
}

// CartSummary — разбивка корзины по строкам плюс агрегаты.
type CartSummary struct {
	Items    []CartLineTotal `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

type cartService struct {
	log         *slog.Logger
	db          *sql.DB
	productRepo storage.ProductStorage
	cartRepo    storage.CartStorage
}

func NewCartService(log *slog.Logger, db *sql.DB, productRepo storage.ProductStorage, cartRepo storage.CartStorage) CartService {
	return &cartService{
		log:         log,
		db:          db,
		productRepo: productRepo,
		cartRepo:    cartRepo,
	}
}

// Add резервирует остаток и добавляет количество к строке корзины
// (или создаёт новую строку).
func (s *cartService) Add(ctx context.Context, userID, productID int64, quantity int) error {
	const op = "service.CartService.Add"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID), slog.Int64("productID", productID), slog.Int("quantity", quantity))

	if quantity <= 0 {
		return fmt.Errorf("%s: %w", op, ErrInvalidQuantity)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	// резервируем остаток атомарным условным UPDATE, до изменения корзины
	if err := s.productRepo.ReserveStock(ctx, tx, productID, quantity); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Warn("failed to reserve stock", slog.Any("error", err))
		return fmt.Errorf("%s: failed to reserve stock: %w", op, err)
	}

	item, err := s.cartRepo.LockCartItemTx(ctx, tx, userID, productID)
	switch {
	case err == nil:
		if err := s.cartRepo.UpdateCartItemQuantity(ctx, tx, item.ID, item.Quantity+quantity); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("transaction rollback failed", slog.Any("error", rbErr))
			}
			logger.Error("failed to update cart item", slog.Any("error", err))
			return fmt.Errorf("%s: failed to update cart item: %w", op, err)
		}
	case errors.Is(err, storage.ErrCartItemNotFound):
		if err := s.cartRepo.CreateCartItem(ctx, tx, userID, productID, quantity); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("transaction rollback failed", slog.Any("error", rbErr))
			}
			logger.Error("failed to create cart item", slog.Any("error", err))
			return fmt.Errorf("%s: failed to create cart item: %w", op, err)
		}
	default:
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to get cart item", slog.Any("error", err))
		return fmt.Errorf("%s: failed to get cart item: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("item added to cart")
	return nil
}

// Update выставляет количество строки. Рост резервирует разницу,
// уменьшение возвращает её в остаток.
func (s *cartService) Update(ctx context.Context, userID, productID int64, quantity int) error {
	const op = "service.CartService.Update"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID), slog.Int64("productID", productID), slog.Int("quantity", quantity))

	if quantity <= 0 {
		return fmt.Errorf("%s: %w", op, ErrInvalidQuantity)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	item, err := s.cartRepo.LockCartItemTx(ctx, tx, userID, productID)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Warn("failed to get cart item", slog.Any("error", err))
		return fmt.Errorf("%s: failed to get cart item: %w", op, err)
	}

	delta := quantity - item.Quantity
	switch {
	case delta > 0:
		if err := s.productRepo.ReserveStock(ctx, tx, productID, delta); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("transaction rollback failed", slog.Any("error", rbErr))
			}
			logger.Warn("failed to reserve stock", slog.Any("error", err))
			return fmt.Errorf("%s: failed to reserve stock: %w", op, err)
		}
	case delta < 0:
		if err := s.productRepo.ReleaseStock(ctx, tx, productID, -delta); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("transaction rollback failed", slog.Any("error", rbErr))
			}
			logger.Error("failed to release stock", slog.Any("error", err))
			return fmt.Errorf("%s: failed to release stock: %w", op, err)
		}
	}

	if err := s.cartRepo.UpdateCartItemQuantity(ctx, tx, item.ID, quantity); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to update cart item", slog.Any("error", err))
		return fmt.Errorf("%s: failed to update cart item: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("cart item updated")
	return nil
}

// Remove удаляет строку и возвращает её резерв в остаток.
func (s *cartService) Remove(ctx context.Context, userID, productID int64) error {
	const op = "service.CartService.Remove"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID), slog.Int64("productID", productID))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	item, err := s.cartRepo.LockCartItemTx(ctx, tx, userID, productID)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Warn("failed to get cart item", slog.Any("error", err))
		return fmt.Errorf("%s: failed to get cart item: %w", op, err)
	}

	if err := s.productRepo.ReleaseStock(ctx, tx, productID, item.Quantity); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to release stock", slog.Any("error", err))
		return fmt.Errorf("%s: failed to release stock: %w", op, err)
	}

	if err := s.cartRepo.DeleteCartItem(ctx, tx, item.ID); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to delete cart item", slog.Any("error", err))
		return fmt.Errorf("%s: failed to delete cart item: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("cart item removed")
	return nil
}

// Clear опустошает корзину, возвращая все резервы. Пустая корзина —
// успешный no-op, в отличие от Remove.
func (s *cartService) Clear(ctx context.Context, userID int64) error {
	const op = "service.CartService.Clear"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	items, err := s.cartRepo.GetCartItemsTx(ctx, tx, userID)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to get cart items", slog.Any("error", err))
		return fmt.Errorf("%s: failed to get cart items: %w", op, err)
	}

	for _, item := range items {
		if err := s.productRepo.ReleaseStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("transaction rollback failed", slog.Any("error", rbErr))
			}
			logger.Error("failed to release stock", slog.Any("error", err))
			return fmt.Errorf("%s: failed to release stock: %w", op, err)
		}
	}

	if _, err := s.cartRepo.DeleteCartItemsByUser(ctx, tx, userID); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to delete cart items", slog.Any("error", err))
		return fmt.Errorf("%s: failed to delete cart items: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("cart cleared", slog.Int("items", len(items)))
	return nil
}

// Total пересчитывает корзину без мутаций. Суммы и налог округляются
// до двух знаков построчно, агрегаты складываются из округлённых строк.
func (s *cartService) Total(ctx context.Context, userID int64, taxRate decimal.Decimal) (*CartSummary, error) {
	const op = "service.CartService.Total"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID))

	items, err := s.cartRepo.GetCartItems(ctx, userID)
	if err != nil {
		logger.Error("failed to get cart items", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get cart items: %w", op, err)
	}

	summary := &CartSummary{
		Items:    []CartLineTotal{},
		Subtotal: decimal.Zero,
		Tax:      decimal.Zero,
	}
	for _, item := range items {
		product, err := s.productRepo.GetProductByID(ctx, item.ProductID)
		if err != nil {
			logger.Error("failed to get product", slog.Int64("productID", item.ProductID), slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to get product: %w", op, err)
		}
		lineSubtotal := product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		lineTax := lineSubtotal.Mul(taxRate).Round(2)
		summary.Items = append(summary.Items, CartLineTotal{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  item.Quantity,
			Price:     product.Price,
			Subtotal:  lineSubtotal,
			Tax:       lineTax,
		})
		summary.Subtotal = summary.Subtotal.Add(lineSubtotal)
		summary.Tax = summary.Tax.Add(lineTax)
	}
	summary.Total = summary.Subtotal.Add(summary.Tax).Round(2)
	return summary, nil
}
