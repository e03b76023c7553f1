package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentUPI    PaymentMethod = "upi"
	PaymentCredit PaymentMethod = "credit"
	PaymentSplit  PaymentMethod = "split"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentUPI, PaymentCredit, PaymentSplit:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPending PaymentStatus = "pending"
)

type SaleStatus string

const (
	SaleCompleted SaleStatus = "completed"
	SaleReturned  SaleStatus = "returned"
)

const DefaultWalkInName = "Walk-in Customer"

// Buyer is either a RegisteredBuyer or a WalkInBuyer.
type Buyer interface {
	isBuyer()
}

type RegisteredBuyer struct {
	CustomerID string `json:"customer_id"`
}

type WalkInBuyer struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

func (RegisteredBuyer) isBuyer() {}
func (WalkInBuyer) isBuyer()     {}

type CartLine struct {
	ProductID string
	Quantity  int
	Discount  decimal.Decimal
}

// Cart is a validated sale submission.
type Cart struct {
	Lines          []CartLine
	Buyer          Buyer
	PaymentMethod  PaymentMethod
	AmountTendered decimal.Decimal
	DiscountTotal  decimal.Decimal
	IdempotencyKey string
}

type SaleItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	CostPrice decimal.Decimal `json:"cost_price"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	Discount  decimal.Decimal `json:"discount"`
	SubTotal  decimal.Decimal `json:"sub_total"`
}

// Sale is immutable once persisted.
type Sale struct {
	ID             string
	InvoiceNumber  string
	CashierID      string
	Buyer          Buyer
	Items          []SaleItem
	TotalQuantity  int
	SubTotal       decimal.Decimal
	TaxTotal       decimal.Decimal
	CGST           decimal.Decimal
	SGST           decimal.Decimal
	IGST           decimal.Decimal
	DiscountTotal  decimal.Decimal
	GrandTotal     decimal.Decimal
	PaymentMethod  PaymentMethod
	PaymentStatus  PaymentStatus
	Status         SaleStatus
	AmountPaid     decimal.Decimal
	ChangeAmount   decimal.Decimal
	IdempotencyKey string
	CreatedAt      time.Time
}

// Outstanding is the unpaid part of the grand total.
func (s Sale) Outstanding() decimal.Decimal {
	return s.GrandTotal.Sub(s.AmountPaid)
}

// CustomerID returns the registered customer id, or "" for walk-ins.
func (s Sale) CustomerID() string {
	if b, ok := s.Buyer.(RegisteredBuyer); ok {
		return b.CustomerID
	}
	return ""
}

type SaleItemRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	Discount  decimal.Decimal `json:"discount"`
}

type SaleRequest struct {
	Items          []SaleItemRequest `json:"items" validate:"required,min=1,dive"`
	CustomerID     string            `json:"customer_id,omitempty"`
	CustomerName   string            `json:"customer_name,omitempty" validate:"max=200"`
	CustomerPhone  string            `json:"customer_phone,omitempty" validate:"max=32"`
	PaymentMethod  string            `json:"payment_method" validate:"required,oneof=cash card upi credit split"`
	AmountPaid     decimal.Decimal   `json:"amount_paid"`
	DiscountTotal  decimal.Decimal   `json:"discount_total"`
	IdempotencyKey string            `json:"idempotency_key,omitempty" validate:"max=128"`
}

type SaleResponse struct {
	ID              string          `json:"id"`
	InvoiceNumber   string          `json:"invoice_number"`
	CashierID       string          `json:"cashier_id"`
	CustomerID      string          `json:"customer_id,omitempty"`
	CustomerDetails *WalkInBuyer    `json:"customer_details,omitempty"`
	Items           []SaleItem      `json:"items"`
	TotalQuantity   int             `json:"total_quantity"`
	SubTotal        decimal.Decimal `json:"sub_total"`
	TaxTotal        decimal.Decimal `json:"tax_total"`
	CGST            decimal.Decimal `json:"cgst"`
	SGST            decimal.Decimal `json:"sgst"`
	IGST            decimal.Decimal `json:"igst"`
	DiscountTotal   decimal.Decimal `json:"discount_total"`
	GrandTotal      decimal.Decimal `json:"grand_total"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	Status          SaleStatus      `json:"status"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	ChangeAmount    decimal.Decimal `json:"change_amount"`
	Outstanding     decimal.Decimal `json:"outstanding"`
	Duplicate       bool            `json:"duplicate"`
	CreatedAt       string          `json:"created_at"`
}

type SaleFilter struct {
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}
