package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/webstore/backend/internal/security/jwtmiddleware"
	"github.com/webstore/backend/internal/service"
)

// CheckoutRequest представляет входной JSON для оформления заказа.
type CheckoutRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required"`
}

// UpdateOrderRequest — допустимые поля PATCH-запроса по заказу.
// Денежные поля менять нельзя, неизвестные поля отклоняются декодером.
type UpdateOrderRequest struct {
	Status          *string `json:"status"`
	ShippingAddress *string `json:"shipping_address"`
}

// CheckoutResponse — ответ на успешное оформление заказа. Warning
// заполняется, если заказ создан, но письмо отправить не удалось.
type CheckoutResponse struct {
	*service.SettlementResult
	Warning string `json:"warning,omitempty"`
}

// CheckoutHandler обрабатывает запрос POST /api/orders: корзина превращается в заказ.
func CheckoutHandler(log *slog.Logger, checkoutService service.CheckoutService, taxRate decimal.Decimal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CheckoutHandler"
		logger := log.With(slog.String("op", op))

		var req CheckoutRequest
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

		result, err := checkoutService.Settle(r.Context(), userID, req.PaymentMethod, taxRate)
		if err != nil {
			var postCommit *service.PostCommitError
			if !errors.As(err, &postCommit) {
				logger.Error("failed to settle order", slog.Any("error", err))
				http.Error(w, errorMessage(err), statusForError(err))
				return
			}
			// Заказ уже зафиксирован, сбой только в отправке письма.
			logger.Warn("order settled, confirmation email failed", slog.Any("error", postCommit.Err))
			writeCheckoutResponse(w, logger, result, "order created, confirmation email could not be sent")
			return
		}

		writeCheckoutResponse(w, logger, result, "")
	}
}

func writeCheckoutResponse(w http.ResponseWriter, logger *slog.Logger, result *service.SettlementResult, warning string) {
	resp := CheckoutResponse{SettlementResult: result, Warning: warning}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("failed to encode response", slog.Any("error", err))
	}
}

// GetOrderHandler обрабатывает запрос GET /api/orders/{orderID}.
func GetOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetOrderHandler"
		logger := log.With(slog.String("op", op))

		orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
		if err != nil {
			logger.Error("invalid order id", slog.Any("error", err))
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		isAdmin := jwtmiddleware.IsAdminFromContext(r.Context())

		order, err := orderService.GetOrder(r.Context(), userID, orderID, isAdmin)
		if err != nil {
			logger.Error("failed to get order", slog.Any("error", err))
			http.Error(w, errorMessage(err), statusForError(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(order); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}
}

// ListOrdersHandler обрабатывает запрос GET /api/orders?limit=&offset=.
func ListOrdersHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListOrdersHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		limit := parseQueryInt(r, "limit")
		offset := parseQueryInt(r, "offset")

		orders, err := orderService.ListOrders(r.Context(), userID, limit, offset)
		if err != nil {
			logger.Error("failed to list orders", slog.Any("error", err))
			http.Error(w, errorMessage(err), statusForError(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(orders); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}
}

// UpdateOrderHandler обрабатывает запрос PATCH /api/orders/{orderID}.
func UpdateOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateOrderHandler"
		logger := log.With(slog.String("op", op))

		orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
		if err != nil {
			logger.Error("invalid order id", slog.Any("error", err))
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		var req UpdateOrderRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if req.Status == nil && req.ShippingAddress == nil {
			logger.Error("invalid request: empty patch")
			http.Error(w, "nothing to update", http.StatusBadRequest)
			return
		}

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		isAdmin := jwtmiddleware.IsAdminFromContext(r.Context())

		patch := service.OrderPatch{Status: req.Status, ShippingAddress: req.ShippingAddress}
		order, err := orderService.UpdateOrder(r.Context(), userID, orderID, patch, isAdmin)
		if err != nil {
			logger.Error("failed to update order", slog.Any("error", err))
			http.Error(w, errorMessage(err), statusForError(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(order); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}
}

// CancelOrderHandler обрабатывает запрос POST /api/orders/{orderID}/cancel.
func CancelOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CancelOrderHandler"
		logger := log.With(slog.String("op", op))

		orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
		if err != nil {
			logger.Error("invalid order id", slog.Any("error", err))
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		isAdmin := jwtmiddleware.IsAdminFromContext(r.Context())

		if err := orderService.CancelOrder(r.Context(), userID, orderID, isAdmin); err != nil {
			logger.Error("failed to cancel order", slog.Any("error", err))
			http.Error(w, errorMessage(err), statusForError(err))
			return
		}

		resp := CartMessageResponse{Message: "Order cancelled"}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}
}

func parseQueryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 0 {
		return 0
	}
	return v
}
