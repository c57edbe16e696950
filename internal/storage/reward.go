package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/webstore/backend/internal/domain/models"
)

var (
	ErrRewardNotFound = errors.New("reward not found")
	ErrRewardExists   = errors.New("reward already exists")
)

// RewardStorage описывает методы для работы с бонусными счетами.
type RewardStorage interface {
	GetRewardByUserID(ctx context.Context, userID int64) (*models.Reward, error)
	// LockRewardByUserIDTx берёт бонусный счёт под FOR UPDATE.
	LockRewardByUserIDTx(ctx context.Context, tx *sql.Tx, userID int64) (*models.Reward, error)
	CreateReward(ctx context.Context, reward *models.Reward) (*models.Reward, error)
	CreateRewardTx(ctx context.Context, tx *sql.Tx, reward *models.Reward) (*models.Reward, error)
	UpdateRewardPoints(ctx context.Context, tx *sql.Tx, userID int64, points int) error
	DeleteReward(ctx context.Context, userID int64) error
}

type rewardRepository struct {
	db *sql.DB
}

func NewRewardRepository(db *sql.DB) RewardStorage {
	return &rewardRepository{db: db}
}

func (r *rewardRepository) GetRewardByUserID(ctx context.Context, userID int64) (*models.Reward, error) {
	reward := &models.Reward{}
	row := r.db.QueryRowContext(ctx, "SELECT id, user_id, tier, points FROM rewards WHERE user_id = $1", userID)
	if err := row.Scan(&reward.ID, &reward.UserID, &reward.Tier, &reward.Points); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRewardNotFound
		}
		return nil, err
	}
	return reward, nil
}

func (r *rewardRepository) LockRewardByUserIDTx(ctx context.Context, tx *sql.Tx, userID int64) (*models.Reward, error) {
	reward := &models.Reward{}
	row := tx.QueryRowContext(ctx,
		"SELECT id, user_id, tier, points FROM rewards WHERE user_id = $1 FOR UPDATE NOWAIT", userID)
	if err := row.Scan(&reward.ID, &reward.UserID, &reward.Tier, &reward.Points); err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "55P03" { // lock
				return nil, fmt.Errorf("resource is locked, please try again: %w", err)
			}
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRewardNotFound
		}
		return nil, err
	}
	return reward, nil
}

func insertReward(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, reward *models.Reward) (*models.Reward, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		"INSERT INTO rewards (user_id, tier, points) VALUES ($1, $2, $3) RETURNING id",
		reward.UserID, reward.Tier, reward.Points,
	).Scan(&id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return nil, ErrRewardExists
			}
		}
		return nil, err
	}
	reward.ID = id
	return reward, nil
}

func (r *rewardRepository) CreateReward(ctx context.Context, reward *models.Reward) (*models.Reward, error) {
	return insertReward(ctx, r.db, reward)
}

func (r *rewardRepository) CreateRewardTx(ctx context.Context, tx *sql.Tx, reward *models.Reward) (*models.Reward, error) {
	return insertReward(ctx, tx, reward)
}

func (r *rewardRepository) UpdateRewardPoints(ctx context.Context, tx *sql.Tx, userID int64, points int) error {
	res, err := tx.ExecContext(ctx, "UPDATE rewards SET points = $1 WHERE user_id = $2", points, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRewardNotFound
	}
	return nil
}

func (r *rewardRepository) DeleteReward(ctx context.Context, userID int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM rewards WHERE user_id = $1", userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRewardNotFound
	}
	return nil
}
