package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeSaleCompleted   = "SALE_COMPLETED"
	EventTypeSaleCompensated = "SALE_COMPENSATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleCompletedEvent published when a checkout commits
type SaleCompletedEvent struct {
	BaseEvent
	SaleID        string          `json:"sale_id"`
	InvoiceNumber string          `json:"invoice_number"`
	UserID        string          `json:"user_id"`
	CustomerID    string          `json:"customer_id,omitempty"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	LoyaltyPoints int64           `json:"loyalty_points"`
	Items         []SaleItemData  `json:"items"`
}

// SaleCompensatedEvent published when a failed checkout was rolled back
type SaleCompensatedEvent struct {
	BaseEvent
	SaleID      string `json:"sale_id,omitempty"`
	UserID      string `json:"user_id"`
	FailedStep  string `json:"failed_step"`
	Reason      string `json:"reason"`
	Compensated bool   `json:"compensated"`
}

// SaleItemData represents item data in events
type SaleItemData struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
