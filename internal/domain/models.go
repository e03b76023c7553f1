package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleCashier = "cashier"
)

type Product struct {
	ID                 string           `json:"id"`
	SKU                string           `json:"sku"`
	Barcode            string           `json:"barcode,omitempty"`
	CategoryID         string           `json:"category_id,omitempty"`
	Name               string           `json:"name"`
	Brand              string           `json:"brand,omitempty"`
	Unit               string           `json:"unit"`
	Price              decimal.Decimal  `json:"price"`
	CostPrice          decimal.Decimal  `json:"cost_price"`
	TaxRate            decimal.Decimal  `json:"tax_rate"`
	StockQuantity      int              `json:"stock_quantity"`
	LowStockThreshold  int              `json:"low_stock_threshold"`
	WholesalePrice     *decimal.Decimal `json:"wholesale_price,omitempty"`
	WholesaleThreshold *int             `json:"wholesale_threshold,omitempty"`
	Active             bool             `json:"active"`
	ExpiryDate         *time.Time       `json:"expiry_date,omitempty"`
	LastSoldAt         *time.Time       `json:"last_sold_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// HasWholesaleTier reports whether both the tier price and the tier
// threshold are configured.
func (p Product) HasWholesaleTier() bool {
	return p.WholesalePrice != nil && p.WholesaleThreshold != nil && *p.WholesaleThreshold > 0
}

type ProductCreateRequest struct {
	SKU                string           `json:"sku" validate:"required,max=64"`
	Barcode            string           `json:"barcode,omitempty" validate:"max=64"`
	CategoryID         string           `json:"category_id,omitempty"`
	Name               string           `json:"name" validate:"required,max=200"`
	Brand              string           `json:"brand,omitempty"`
	Unit               string           `json:"unit,omitempty"`
	Price              decimal.Decimal  `json:"price"`
	CostPrice          decimal.Decimal  `json:"cost_price"`
	TaxRate            decimal.Decimal  `json:"tax_rate"`
	StockQuantity      int              `json:"stock_quantity" validate:"gte=0"`
	LowStockThreshold  *int             `json:"low_stock_threshold,omitempty" validate:"omitempty,gte=0"`
	WholesalePrice     *decimal.Decimal `json:"wholesale_price,omitempty"`
	WholesaleThreshold *int             `json:"wholesale_threshold,omitempty" validate:"omitempty,gt=0"`
	ExpiryDate         *time.Time       `json:"expiry_date,omitempty"`
}

// ProductUpdateRequest never carries stock; stock only moves through sales.
type ProductUpdateRequest struct {
	Name               *string          `json:"name,omitempty"`
	Barcode            *string          `json:"barcode,omitempty"`
	CategoryID         *string          `json:"category_id,omitempty"`
	Brand              *string          `json:"brand,omitempty"`
	Unit               *string          `json:"unit,omitempty"`
	Price              *decimal.Decimal `json:"price,omitempty"`
	CostPrice          *decimal.Decimal `json:"cost_price,omitempty"`
	TaxRate            *decimal.Decimal `json:"tax_rate,omitempty"`
	LowStockThreshold  *int             `json:"low_stock_threshold,omitempty" validate:"omitempty,gte=0"`
	WholesalePrice     *decimal.Decimal `json:"wholesale_price,omitempty"`
	WholesaleThreshold *int             `json:"wholesale_threshold,omitempty" validate:"omitempty,gt=0"`
	// ClearWholesale removes the wholesale tier. It cannot be combined with
	// WholesalePrice or WholesaleThreshold.
	ClearWholesale     bool             `json:"clear_wholesale,omitempty"`
	Active             *bool            `json:"active,omitempty"`
	ExpiryDate         *time.Time       `json:"expiry_date,omitempty"`
}

type ProductFilter struct {
	Search     string
	CategoryID string
	Limit      int
	Offset     int
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CategoryCreateRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description,omitempty" validate:"max=500"`
}

type CategoryUpdateRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
}

type Customer struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Phone              string          `json:"phone"`
	Email              string          `json:"email,omitempty"`
	Address            string          `json:"address,omitempty"`
	GSTIN              string          `json:"gstin,omitempty"`
	LoyaltyPoints      int64           `json:"loyalty_points"`
	CreditLimit        decimal.Decimal `json:"credit_limit"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	LastVisitAt        *time.Time      `json:"last_visit_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type CustomerCreateRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Phone       string          `json:"phone" validate:"required,max=32"`
	Email       string          `json:"email,omitempty" validate:"omitempty,email"`
	Address     string          `json:"address,omitempty"`
	GSTIN       string          `json:"gstin,omitempty" validate:"omitempty,len=15"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
}

// CustomerUpdateRequest leaves the ledger fields to the sale engine.
type CustomerUpdateRequest struct {
	Name        *string          `json:"name,omitempty"`
	Phone       *string          `json:"phone,omitempty"`
	Email       *string          `json:"email,omitempty" validate:"omitempty,email"`
	Address     *string          `json:"address,omitempty"`
	GSTIN       *string          `json:"gstin,omitempty" validate:"omitempty,len=15"`
	CreditLimit *decimal.Decimal `json:"credit_limit,omitempty"`
}

type CustomerFilter struct {
	Search string
	Limit  int
	Offset int
}

type InventoryLogType string

const (
	InventorySale       InventoryLogType = "SALE"
	InventoryPurchase   InventoryLogType = "PURCHASE"
	InventoryReturn     InventoryLogType = "RETURN"
	InventoryAdjustment InventoryLogType = "ADJUSTMENT"
)

type InventoryLog struct {
	ID            string           `json:"id"`
	ProductID     string           `json:"product_id"`
	Type          InventoryLogType `json:"type"`
	Quantity      int              `json:"quantity"`
	PreviousStock int              `json:"previous_stock"`
	NewStock      int              `json:"new_stock"`
	ReferenceID   string           `json:"reference_id,omitempty"`
	UserID        string           `json:"user_id"`
	Note          string           `json:"note,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

type DailyReport struct {
	Date             time.Time                         `json:"date"`
	TotalSales       decimal.Decimal                   `json:"total_sales"`
	TotalProfit      decimal.Decimal                   `json:"total_profit"`
	TotalTax         decimal.Decimal                   `json:"total_tax"`
	TotalDiscount    decimal.Decimal                   `json:"total_discount"`
	OrderCount       int                               `json:"order_count"`
	PaymentBreakdown map[PaymentMethod]decimal.Decimal `json:"payment_breakdown"`
}

// Add folds delta into r. Both reports must describe the same date.
func (r *DailyReport) Add(delta DailyReport) {
	r.TotalSales = r.TotalSales.Add(delta.TotalSales)
	r.TotalProfit = r.TotalProfit.Add(delta.TotalProfit)
	r.TotalTax = r.TotalTax.Add(delta.TotalTax)
	r.TotalDiscount = r.TotalDiscount.Add(delta.TotalDiscount)
	r.OrderCount += delta.OrderCount
	if r.PaymentBreakdown == nil {
		r.PaymentBreakdown = make(map[PaymentMethod]decimal.Decimal, len(delta.PaymentBreakdown))
	}
	for method, amount := range delta.PaymentBreakdown {
		r.PaymentBreakdown[method] = r.PaymentBreakdown[method].Add(amount)
	}
}

type DashboardStats struct {
	Today         DailyReport `json:"today"`
	LowStockCount int         `json:"low_stock_count"`
}

type SalesChartPoint struct {
	Date       string          `json:"date"`
	TotalSales decimal.Decimal `json:"total_sales"`
	OrderCount int             `json:"order_count"`
}

type LowStockAlert struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
	Threshold int    `json:"threshold"`
	SaleID    string `json:"sale_id"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated operator behind a request.
type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type StaffCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=64"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"required,oneof=admin manager cashier"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
