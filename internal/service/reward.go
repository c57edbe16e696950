package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/webstore/backend/internal/domain/models"
	"github.com/webstore/backend/internal/storage"
)

// RewardService управляет бонусными счетами пользователей.
type RewardService interface {
	Enroll(ctx context.Context, userID int64, tier string) (*models.Reward, error)
	GetReward(ctx context.Context, userID int64) (*models.Reward, error)
	Accrue(ctx context.Context, userID int64, points int) (*models.Reward, error)
	Redeem(ctx context.Context, userID int64, points int) (*models.Reward, error)
	CancelMembership(ctx context.Context, userID int64) error
}

type rewardService struct {
	log         *slog.Logger
	db          *sql.DB
	rewardRepo  storage.RewardStorage
	defaultTier string
}

func NewRewardService(log *slog.Logger, db *sql.DB, rewardRepo storage.RewardStorage, defaultTier string) RewardService {
	return &rewardService{
		log:         log,
		db:          db,
		rewardRepo:  rewardRepo,
		defaultTier: defaultTier,
	}
}

// Enroll регистрирует пользователя в бонусной программе с нулевым балансом.
func (s *rewardService) Enroll(ctx context.Context, userID int64, tier string) (*models.Reward, error) {
	const op = "service.RewardService.Enroll"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID))

	if tier == "" {
		tier = s.defaultTier
	}
	reward, err := s.rewardRepo.CreateReward(ctx, &models.Reward{
		UserID: userID,
		Tier:   tier,
		Points: 0,
	})
	if err != nil {
		if errors.Is(err, storage.ErrRewardExists) {
			logger.Warn("user already enrolled")
			return nil, fmt.Errorf("%s: %w", op, ErrAlreadyEnrolled)
		}
		logger.Error("failed to create reward", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create reward: %w", op, err)
	}

	logger.Info("user enrolled", slog.String("tier", tier))
	return reward, nil
}

func (s *rewardService) GetReward(ctx context.Context, userID int64) (*models.Reward, error) {
	const op = "service.RewardService.GetReward"

	reward, err := s.rewardRepo.GetRewardByUserID(ctx, userID)
	if err != nil {
		s.log.Warn("failed to get reward", slog.String("op", op), slog.Int64("userID", userID), slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get reward: %w", op, err)
	}
	return reward, nil
}

// Accrue добавляет баллы к балансу.
func (s *rewardService) Accrue(ctx context.Context, userID int64, points int) (*models.Reward, error) {
	const op = "service.RewardService.Accrue"

	if points < 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPoints)
	}
	return s.adjustPoints(ctx, op, userID, points)
}

// Redeem списывает баллы; списание сверх баланса отклоняется,
// баланс при этом не меняется.
func (s *rewardService) Redeem(ctx context.Context, userID int64, points int) (*models.Reward, error) {
	const op = "service.RewardService.Redeem"

	if points <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPoints)
	}
	return s.adjustPoints(ctx, op, userID, -points)
}

func (s *rewardService) adjustPoints(ctx context.Context, op string, userID int64, delta int) (*models.Reward, error) {
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID), slog.Int("delta", delta))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	reward, err := s.rewardRepo.LockRewardByUserIDTx(ctx, tx, userID)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Warn("failed to get reward", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get reward: %w", op, err)
	}

	newBalance := reward.Points + delta
	if newBalance < 0 {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Warn("insufficient points", slog.Int("balance", reward.Points))
		return nil, fmt.Errorf("%s: %w", op, ErrInsufficientPoints)
	}

	if err := s.rewardRepo.UpdateRewardPoints(ctx, tx, userID, newBalance); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to update reward points", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to update reward points: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	reward.Points = newBalance
	logger.Info("reward points adjusted", slog.Int("balance", newBalance))
	return reward, nil
}

// CancelMembership удаляет бонусный счёт пользователя.
func (s *rewardService) CancelMembership(ctx context.Context, userID int64) error {
	const op = "service.RewardService.CancelMembership"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID))

	if err := s.rewardRepo.DeleteReward(ctx, userID); err != nil {
		logger.Warn("failed to delete reward", slog.Any("error", err))
		return fmt.Errorf("%s: failed to delete reward: %w", op, err)
	}

	logger.Info("rewards membership cancelled")
	return nil
}
