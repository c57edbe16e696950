package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/webstore/backend/internal/domain/models"
)

// ProductGetter — то немногое из каталога, что нужно витрине.
type ProductGetter interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
}

// GetProductHandler обрабатывает запрос GET /api/products/{productID}
func GetProductHandler(log *slog.Logger, products ProductGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetProductHandler"
		logger := log.With(slog.String("op", op))

		productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
		if err != nil {
			logger.Error("invalid product id", slog.Any("error", err))
			http.Error(w, "invalid product id", http.StatusBadRequest)
			return
		}

		product, err := products.GetProductByID(r.Context(), productID)
		if err != nil {
			logger.Warn("failed to get product", slog.Any("error", err))
			http.Error(w, errorMessage(err), statusForError(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(product); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}
}
