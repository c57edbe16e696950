package handlers

import (
	"errors"
	"net/http"

	"github.com/webstore/backend/internal/service"
	"github.com/webstore/backend/internal/storage"
)

// statusForError переводит ошибку бизнес-логики в HTTP-статус.
// Бизнес-конфликты отдаются как 400, как и в исходном API.
func statusForError(err error) int {
	switch {
	case errors.Is(err, storage.ErrProductNotFound),
		errors.Is(err, storage.ErrCartItemNotFound),
		errors.Is(err, storage.ErrOrderNotFound),
		errors.Is(err, storage.ErrRewardNotFound),
		errors.Is(err, storage.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidPoints),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInsufficientPoints),
		errors.Is(err, service.ErrAlreadyEnrolled),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, storage.ErrInsufficientStock):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		return "internal server error"
	}
	// наружу уходит последняя причина без префиксов операций
	cause := err
	for errors.Unwrap(cause) != nil {
		cause = errors.Unwrap(cause)
	}
	return cause.Error()
}
