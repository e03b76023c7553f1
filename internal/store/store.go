package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrPersistence       = errors.New("persistence failure")
	ErrConflict          = errors.New("conflict")
)

// InsufficientStockError names the product that could not cover a line.
// It matches ErrInsufficientStock under errors.Is.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", name, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// StockChange is the before/after snapshot of a conditional decrement.
type StockChange struct {
	Previous int
	New      int
}

// Tx is the set of operations a sale performs inside one unit of work.
// Every write made through a Tx is discarded if the enclosing WithinTx
// callback returns an error.
type Tx interface {
	FindSaleByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error)
	FindProductByID(ctx context.Context, id string) (*domain.Product, error)
	FindCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	// DecrementStock subtracts qty only if the current stock covers it.
	// Otherwise it returns *InsufficientStockError and changes nothing.
	DecrementStock(ctx context.Context, productID string, qty int, soldAt time.Time) (StockChange, error)
	AppendInventoryLog(ctx context.Context, entry domain.InventoryLog) error
	NextInvoiceSequence(ctx context.Context) (int64, error)
	InsertSale(ctx context.Context, sale domain.Sale) error
	ApplyCustomerSale(ctx context.Context, customerID string, balanceDelta decimal.Decimal, points int64, at time.Time) error
	UpsertDailyIncrement(ctx context.Context, delta domain.DailyReport) error
}

type Repository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error)
	CountLowStock(ctx context.Context) (int, error)
	ListInventoryLogs(ctx context.Context, productID string, limit int) ([]domain.InventoryLog, error)

	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	ListCategories(ctx context.Context, limit int, offset int) ([]domain.Category, int, error)
	// DeleteCategory returns ErrConflict while any product references it.
	DeleteCategory(ctx context.Context, id string) error

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, filter domain.CustomerFilter) ([]domain.Customer, int, error)
	// DeleteCustomer returns ErrConflict when the customer owes money or
	// appears on a sale.
	DeleteCustomer(ctx context.Context, id string) error

	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, int, error)

	GetDailyReport(ctx context.Context, date time.Time) (*domain.DailyReport, error)
	ListDailyReports(ctx context.Context, from time.Time, to time.Time) ([]domain.DailyReport, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// Persistence wraps a datastore failure so callers can match ErrPersistence
// while keeping the driver error reachable.
func Persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
