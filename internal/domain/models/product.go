package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product представляет товар каталога.
// Stock — свободный остаток с учётом всех резервов в корзинах, никогда не уходит в минус.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
