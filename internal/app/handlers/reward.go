package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/webstore/backend/internal/security/jwtmiddleware"
	"github.com/webstore/backend/internal/service"
)

// EnrollRewardRequest — входной JSON регистрации в бонусной программе.
// Tier опционален, по умолчанию берётся из конфигурации.
type EnrollRewardRequest struct {
	Tier string `json:"tier"`
}

// RedeemRewardRequest — входной JSON списания баллов.
type RedeemRewardRequest struct {
	Points int `json:"points" validate:"required"`
}

// EnrollRewardHandler обрабатывает запрос POST /api/rewards.
func EnrollRewardHandler(log *slog.Logger, rewardService service.RewardService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.EnrollRewardHandler"
		logger := log.With(slog.String("op", op))

		var req EnrollRewardRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				logger.Error("invalid request: decoding error", slog.Any("error", err))
				http.Error(w, "invalid request", http.StatusBadRequest)
				return
			}
		}

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		reward, err := rewardService.Enroll(r.Context(), userID, req.Tier)
		if err != nil {
			logger.Error("failed to enroll", slog.Any("error", err))
			http.Error(w, errorMessage(err), statusForError(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(reward); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}

// GetRewardHandler обрабатывает запрос GET /api/rewards.
func GetRewardHandler(log *slog.Logger, rewardService service.RewardService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetRewardHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		reward, err := rewardService.GetReward(r.Context(), userID)
		if err != nil {
			logger.Error("failed to get reward", slog.Any("error", err))
			http.Error(w, errorMessage(err), statusForError(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(reward); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}
}

// RedeemRewardHandler обрабатывает запрос POST /api/rewards/redeem.
func RedeemRewardHandler(log *slog.Logger, rewardService service.RewardService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.RedeemRewardHandler"
		logger := log.With(slog.String("op", op))

		var req RedeemRewardRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			http.Error(w, "validation error", http.StatusBadRequest)
			return
		}

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		reward, err := rewardService.Redeem(r.Context(), userID, req.Points)
		if err != nil {
			logger.Error("failed to redeem points", slog.Any("error", err))
			http.Error(w, errorMessage(err), statusForError(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(reward); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}
}

// CancelRewardHandler обрабатывает запрос DELETE /api/rewards:
// выход из программы, накопленные баллы сгорают.
func CancelRewardHandler(log *slog.Logger, rewardService service.RewardService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CancelRewardHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		if err := rewardService.CancelMembership(r.Context(), userID); err != nil {
			logger.Error("failed to cancel membership", slog.Any("error", err))
			http.Error(w, errorMessage(err), statusForError(err))
			return
		}

		resp := CartMessageResponse{Message: "Reward membership cancelled"}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}
}
