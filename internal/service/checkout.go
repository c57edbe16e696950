package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/webstore/backend/internal/domain/models"
	"github.com/webstore/backend/internal/storage"
)

// PointsPolicy вычисляет начисляемые баллы по итоговой сумме заказа.
// Функция должна быть детерминированной и монотонной.
type PointsPolicy func(total decimal.Decimal) int

// PointsPerCurrencyUnit — политика по умолчанию: rate баллов за каждую
// целую единицу валюты в сумме заказа.
func PointsPerCurrencyUnit(rate int) PointsPolicy {
	return func(total decimal.Decimal) int {
		return int(total.IntPart()) * rate
	}
}

// CheckoutService превращает корзину пользователя в заказ.
type CheckoutService interface {
	Settle(ctx context.Context, userID int64, paymentMethod string, taxRate decimal.Decimal) (*SettlementResult, error)
}

// SettlementResult — созданный заказ и баланс баллов после начисления.
type SettlementResult struct {
	Order        *models.Order `json:"order"`
	RewardPoints int           `json:"reward_points"`
}

type checkoutService struct {
	log         *slog.Logger
	db          *sql.DB
	productRepo storage.ProductStorage
	cartRepo    storage.CartStorage
	orderRepo   storage.OrderStorage
	rewardRepo  storage.RewardStorage
	userRepo    storage.UserStorage
	email       EmailService
	points      PointsPolicy
	defaultTier string
}

func NewCheckoutService(
	log *slog.Logger,
	db *sql.DB,
	productRepo storage.ProductStorage,
	cartRepo storage.CartStorage,
	orderRepo storage.OrderStorage,
	rewardRepo storage.RewardStorage,
	userRepo storage.UserStorage,
	email EmailService,
	points PointsPolicy,
	defaultTier string,
) CheckoutService {
	return &checkoutService{
		log:         log,
		db:          db,
		productRepo: productRepo,
		cartRepo:    cartRepo,
		orderRepo:   orderRepo,
		rewardRepo:  rewardRepo,
		userRepo:    userRepo,
		email:       email,
		points:      points,
		defaultTier: defaultTier,
	}
}

// Settle оформляет заказ одной транзакцией: перечитывает товары корзины,
// считает суммы, создаёт заказ со строками, начисляет баллы и опустошает
// корзину. Остаток товаров не трогается — он списан ещё при добавлении в
// корзину, повторное списание задвоило бы резерв. Любой сбой до коммита
// откатывает всё; сбой письма после коммита возвращается как PostCommitError,
// заказ при этом остаётся.
func (s *checkoutService) Settle(ctx context.Context, userID int64, paymentMethod string, taxRate decimal.Decimal) (*SettlementResult, error) {
	const op = "service.CheckoutService.Settle"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID))
	logger.Info("starting settlement transaction")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	cartItems, err := s.cartRepo.GetCartItemsTx(ctx, tx, userID)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to get cart items", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get cart items: %w", op, err)
	}
	if len(cartItems) == 0 {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Warn("cart is empty")
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyCart)
	}

	order := &models.Order{
		OrderNumber:   uuid.NewString(),
		UserID:        userID,
		PaymentMethod: paymentMethod,
		Status:        models.OrderStatusPending,
		Subtotal:      decimal.Zero,
		Tax:           decimal.Zero,
	}

	for _, item := range cartItems {
		// остаток уже зарезервирован при добавлении; здесь только существование и снимок цены
		product, err := s.productRepo.GetProductByIDTx(ctx, tx, item.ProductID)
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("transaction rollback failed", slog.Any("error", rbErr))
			}
			logger.Error("failed to get product", slog.Int64("productID", item.ProductID), slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to get product: %w", op, err)
		}

		lineSubtotal := product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		lineTax := lineSubtotal.Mul(taxRate).Round(2)

		order.Items = append(order.Items, &models.OrderItem{
			ProductID: product.ID,
			Quantity:  item.Quantity,
			Price:     product.Price,
			Subtotal:  lineSubtotal,
			Tax:       lineTax,
		})
		order.Subtotal = order.Subtotal.Add(lineSubtotal)
		order.Tax = order.Tax.Add(lineTax)
	}
	order.Total = order.Subtotal.Add(order.Tax).Round(2)

	orderID, err := s.orderRepo.CreateOrder(ctx, tx, order)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to create order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create order: %w", op, err)
	}
	order.ID = orderID

	balance, err := s.accruePoints(ctx, tx, userID, order.Total)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to accrue reward points", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to accrue reward points: %w", op, err)
	}

	// корзина опустошается без возврата остатков: резерв потреблён продажей
	if _, err := s.cartRepo.DeleteCartItemsByUser(ctx, tx, userID); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to clear cart", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to clear cart: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	result := &SettlementResult{Order: order, RewardPoints: balance}
	logger.Info("settlement completed",
		slog.Int64("orderID", order.ID),
		slog.String("total", order.Total.StringFixed(2)),
		slog.Int("rewardPoints", balance),
	)

	// подтверждение почтой — после коммита; заказ уже состоялся и не откатывается
	if err := s.sendConfirmation(ctx, userID, order); err != nil {
		logger.Warn("order confirmation email failed", slog.Any("error", err))
		return result, fmt.Errorf("%s: %w", op, &PostCommitError{Err: err})
	}
	return result, nil
}

// accruePoints начисляет баллы внутри транзакции оформления; при отсутствии
// бонусного счёта создаёт его с нулевым балансом.
func (s *checkoutService) accruePoints(ctx context.Context, tx *sql.Tx, userID int64, total decimal.Decimal) (int, error) {
	points := s.points(total)
	if points < 0 {
		points = 0
	}

	reward, err := s.rewardRepo.LockRewardByUserIDTx(ctx, tx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrRewardNotFound) {
			return 0, err
		}
		reward, err = s.rewardRepo.CreateRewardTx(ctx, tx, &models.Reward{
			UserID: userID,
			Tier:   s.defaultTier,
			Points: 0,
		})
		if err != nil {
			return 0, err
		}
	}
	if points == 0 {
		return reward.Points, nil
	}

	newBalance := reward.Points + points
	if err := s.rewardRepo.UpdateRewardPoints(ctx, tx, userID, newBalance); err != nil {
		return 0, err
	}
	return newBalance, nil
}

func (s *checkoutService) sendConfirmation(ctx context.Context, userID int64, order *models.Order) error {
	if s.email == nil {
		return nil
	}
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Thanks! Your order %s for %s has been received.",
		order.OrderNumber, order.Total.StringFixed(2))
	return s.email.Send(user.Email, "Order confirmation", body)
}
