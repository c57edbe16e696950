package service

import "errors"

// Ошибки бизнес-логики. Ошибки хранилища (not found, insufficient stock)
// поднимаются наверх как есть, обёрнутые через %w.
var (
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInvalidPoints      = errors.New("points must be positive")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInsufficientPoints = errors.New("insufficient reward points")
	ErrAlreadyEnrolled    = errors.New("user is already enrolled in the rewards program")
	ErrInvalidTransition  = errors.New("invalid order status transition")
	ErrForbidden          = errors.New("operation not permitted")
)

// PostCommitError сигнализирует о сбое побочного шага уже после коммита
// заказа. Заказ при этом состоялся и не откатывается; вызывающий должен
// отличать эту ситуацию от неуспешного оформления.
type PostCommitError struct {
	Err error
}

func (e *PostCommitError) Error() string {
	return "order committed, post-commit step failed: " + e.Err.Error()
}

func (e *PostCommitError) Unwrap() error {
	return e.Err
}
