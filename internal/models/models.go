package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog
type Product struct {
	ID            string          `db:"id" json:"id"`
	SKU           string          `db:"sku" json:"sku"`
	Barcode       string          `db:"barcode" json:"barcode"`
	Name          string          `db:"name" json:"name"`
	SellingPrice  decimal.Decimal `db:"selling_price" json:"selling_price"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Customer represents a registered customer
type Customer struct {
	ID            string    `db:"id" json:"id"`
	FirstName     string    `db:"first_name" json:"first_name"`
	LastName      string    `db:"last_name" json:"last_name"`
	Email         string    `db:"email" json:"email,omitempty"`
	Phone         string    `db:"phone" json:"phone,omitempty"`
	Address       string    `db:"address" json:"address,omitempty"`
	LoyaltyPoints int64     `db:"loyalty_points" json:"loyalty_points"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// DisplayName joins first and last name
func (c *Customer) DisplayName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// NewCustomer holds the fields accepted when registering a customer
type NewCustomer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
}

// PaymentMethod is how a sale is settled
type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "cash"
	PaymentCard        PaymentMethod = "card"
	PaymentMobileMoney PaymentMethod = "mobile_money"
	PaymentDebt        PaymentMethod = "debt"
)

// Valid reports whether m is a known payment method
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentMobileMoney, PaymentDebt:
		return true
	}
	return false
}

// Sale is the persisted sale header
type Sale struct {
	ID             string          `db:"id" json:"id"`
	CustomerID     *string         `db:"customer_id" json:"customer_id,omitempty"`
	UserID         string          `db:"user_id" json:"user_id"`
	InvoiceNumber  string          `db:"invoice_number" json:"invoice_number"`
	SaleDate       time.Time       `db:"sale_date" json:"sale_date"`
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	TaxAmount      decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	AmountPaid     decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	ChangeAmount   decimal.Decimal `db:"change_amount" json:"change_amount"`
	PaymentMethod  PaymentMethod   `db:"payment_method" json:"payment_method"`
	PaymentStatus  string          `db:"payment_status" json:"payment_status"`
	SaleStatus     string          `db:"sale_status" json:"sale_status"`
	Notes          string          `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// SaleItem is one persisted line of a sale
type SaleItem struct {
	ID             string          `db:"id" json:"id"`
	SaleID         string          `db:"sale_id" json:"sale_id"`
	ProductID      string          `db:"product_id" json:"product_id"`
	Quantity       int             `db:"quantity" json:"quantity"`
	UnitPrice      decimal.Decimal `db:"unit_price" json:"unit_price"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	TaxAmount      decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	TotalPrice     decimal.Decimal `db:"total_price" json:"total_price"`
}

// Debt is an amount owed by a customer for a sale
type Debt struct {
	ID          string          `db:"id" json:"id"`
	CustomerID  string          `db:"customer_id" json:"customer_id"`
	SaleID      string          `db:"sale_id" json:"sale_id"`
	DebtType    string          `db:"debt_type" json:"debt_type"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Description string          `db:"description" json:"description"`
	Status      string          `db:"status" json:"status"`
	DueDate     time.Time       `db:"due_date" json:"due_date"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// StockAdjustment decrements a product's stock by Quantity, never below zero
type StockAdjustment struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// SaleBundle groups every write a checkout makes so it can be applied at once
type SaleBundle struct {
	Sale  *Sale
	Items []*SaleItem
	Debt  *Debt
	Stock []StockAdjustment
}

// StaffMember is an authenticated user of the terminal
type StaffMember struct {
	ID       string    `db:"id" json:"id"`
	Email    string    `db:"email" json:"email"`
	FullName string    `db:"full_name" json:"full_name"`
	Role     string    `db:"role" json:"role"`
	IsActive bool      `db:"is_active" json:"is_active"`
	Created  time.Time `db:"created_at" json:"created_at"`
}

// Payment statuses
const (
	PaymentStatusPaid   = "paid"
	PaymentStatusUnpaid = "unpaid"
)

// Sale statuses
const (
	SaleStatusCompleted = "completed"
)

// Debt fields
const (
	DebtTypeCustomer      = "customer"
	DebtStatusOutstanding = "outstanding"
)

// InvoiceNumber formats the invoice number for a sale made at t
func InvoiceNumber(t time.Time) string {
	return fmt.Sprintf("INV-%d", t.UnixMilli())
}

// DebtDescription is the description stored with a sale's debt
func DebtDescription(saleID string) string {
	if saleID == "" {
		saleID = "unknown"
	}
	return fmt.Sprintf("Debt for sale %s", saleID)
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
