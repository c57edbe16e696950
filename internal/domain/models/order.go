package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Статусы заказа
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
	OrderStatusRefunded  = "refunded"
)

// statusTransitions описывает разрешённые переходы статусов.
// Из любого нетерминального статуса дополнительно разрешён переход в cancelled.
var statusTransitions = map[string][]string{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:    {OrderStatusShipped, OrderStatusRefunded, OrderStatusCancelled},
	OrderStatusShipped: {OrderStatusDelivered, OrderStatusCancelled},
}

// IsTerminalStatus сообщает, является ли статус конечным.
func IsTerminalStatus(status string) bool {
	switch status {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// IsValidStatus проверяет, что строка — известный статус заказа.
func IsValidStatus(status string) bool {
	switch status {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// CanTransition проверяет допустимость перехода статуса from -> to.
func CanTransition(from, to string) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Order представляет заказ. Денежные поля фиксируются при оформлении
// и после создания не изменяются; мутируют только статус и адрес доставки.
type Order struct {
	ID              int64           `json:"id"`
	OrderNumber     string          `json:"order_number"`
	UserID          int64           `json:"user_id"`
	PaymentMethod   string          `json:"payment_method"`
	Status          string          `json:"status"`
	ShippingAddress string          `json:"shipping_address,omitempty"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	Total           decimal.Decimal `json:"total"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Items           []*OrderItem    `json:"items,omitempty"`
}

// OrderItem — строка заказа со снимком цены на момент оформления.
// Цена намеренно не связана с текущей ценой товара в каталоге.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
}
