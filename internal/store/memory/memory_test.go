package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"retailpos/internal/domain"
	"retailpos/internal/store"
)

var _ store.Repository = (*Store)(nil)

func seededStore(t *testing.T) *Store {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-pass-1")
	t.Setenv("SEED_CASHIER_PASSWORD", "cashier-pass-1")
	return NewSeeded(zap.NewNop())
}

func TestWithinTxRollsBackEveryWriteOnError(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.DecrementStock(ctx, "prod-coke500", 5, at)
		require.NoError(t, err)
		require.NoError(t, tx.AppendInventoryLog(ctx, domain.InventoryLog{ID: "log-1", ProductID: "prod-coke500"}))
		seq, err := tx.NextInvoiceSequence(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, seq)
		require.NoError(t, tx.InsertSale(ctx, domain.Sale{ID: "sale-1", IdempotencyKey: "k-1", CreatedAt: at}))
		require.NoError(t, tx.ApplyCustomerSale(ctx, "cust-demo", decimal.NewFromInt(10), 2, at))
		require.NoError(t, tx.UpsertDailyIncrement(ctx, domain.DailyReport{Date: at, OrderCount: 1}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	product, err := s.GetProduct(ctx, "prod-coke500")
	require.NoError(t, err)
	assert.Equal(t, 100, product.StockQuantity)
	assert.Nil(t, product.LastSoldAt)

	logs, err := s.ListInventoryLogs(ctx, "prod-coke500", 10)
	require.NoError(t, err)
	assert.Empty(t, logs)

	_, err = s.GetSale(ctx, "sale-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	customer, err := s.GetCustomer(ctx, "cust-demo")
	require.NoError(t, err)
	assert.True(t, customer.OutstandingBalance.IsZero())
	assert.Zero(t, customer.LoyaltyPoints)

	_, err = s.GetDailyReport(ctx, at)
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		seq, err := tx.NextInvoiceSequence(ctx)
		assert.EqualValues(t, 1, seq)
		_, lookupErr := tx.FindSaleByIdempotencyKey(ctx, "k-1")
		assert.ErrorIs(t, lookupErr, store.ErrNotFound)
		return err
	})
	require.NoError(t, err)
}

func TestDecrementStockRefusesToGoNegative(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.DecrementStock(ctx, "prod-tea250", 9, time.Now())
		return err
	})

	var stockErr *store.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, "prod-tea250", stockErr.ProductID)
	assert.Equal(t, 9, stockErr.Requested)
	assert.Equal(t, 8, stockErr.Available)

	product, err := s.GetProduct(ctx, "prod-tea250")
	require.NoError(t, err)
	assert.Equal(t, 8, product.StockQuantity)
}

func TestConcurrentDecrementsNeverOversell(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		sequences = make(map[int64]struct{})
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
				if _, err := tx.DecrementStock(ctx, "prod-tea250", 1, time.Now()); err != nil {
					return err
				}
				seq, err := tx.NextInvoiceSequence(ctx)
				if err != nil {
					return err
				}
				mu.Lock()
				sequences[seq] = struct{}{}
				mu.Unlock()
				return nil
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, succeeded)
	assert.Len(t, sequences, 8)
	product, err := s.GetProduct(ctx, "prod-tea250")
	require.NoError(t, err)
	assert.Zero(t, product.StockQuantity)
}

func TestWithinTxHonorsCancelledContext(t *testing.T) {
	s := seededStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.DecrementStock(ctx, "prod-soap100", 1, time.Now()); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	product, err := s.GetProduct(context.Background(), "prod-soap100")
	require.NoError(t, err)
	assert.Equal(t, 80, product.StockQuantity)
}

func TestDailyIncrementsAccumulate(t *testing.T) {
	s := New()
	ctx := context.Background()
	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.UpsertDailyIncrement(ctx, domain.DailyReport{
				Date:             day,
				TotalSales:       decimal.NewFromInt(100),
				OrderCount:       1,
				PaymentBreakdown: map[domain.PaymentMethod]decimal.Decimal{domain.PaymentUPI: decimal.NewFromInt(100)},
			})
		})
		require.NoError(t, err)
	}

	report, err := s.GetDailyReport(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 2, report.OrderCount)
	assert.True(t, report.TotalSales.Equal(decimal.NewFromInt(200)))
	assert.True(t, report.PaymentBreakdown[domain.PaymentUPI].Equal(decimal.NewFromInt(200)))

	reports, err := s.ListDailyReports(ctx, day.AddDate(0, 0, -6), day)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestProductCatalogUniqueness(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	_, err := s.CreateProduct(ctx, domain.Product{SKU: "coke500", Name: "Dup"})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.CreateProduct(ctx, domain.Product{SKU: "NEW1", Name: "New", Barcode: "8901764012273"})
	assert.ErrorIs(t, err, store.ErrConflict)

	created, err := s.CreateProduct(ctx, domain.Product{SKU: "new1", Name: "New", Active: true, StockQuantity: 3, LowStockThreshold: 5})
	require.NoError(t, err)
	assert.Equal(t, "NEW1", created.SKU)

	lowStock, err := s.CountLowStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, lowStock)

	found, err := s.GetProductByBarcode(ctx, "8901725181116")
	require.NoError(t, err)
	assert.Equal(t, "prod-tea250", found.ID)
}

func TestUpdateProductKeepsStock(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	product, err := s.GetProduct(ctx, "prod-milk1l")
	require.NoError(t, err)
	product.StockQuantity = 9999
	product.Name = "Full Cream Milk 1L"

	updated, err := s.UpdateProduct(ctx, *product)
	require.NoError(t, err)
	assert.Equal(t, 40, updated.StockQuantity)
	assert.Equal(t, "Full Cream Milk 1L", updated.Name)
}

func TestListProductsPaginates(t *testing.T) {
	s := seededStore(t)

	page, total, err := s.ListProducts(context.Background(), domain.ProductFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "Basmati Rice 5kg", page[0].Name)

	page, total, err = s.ListProducts(context.Background(), domain.ProductFilter{Search: "tea"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "TEA250", page[0].SKU)
}

func TestCustomerPhoneIsUnique(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	_, err := s.CreateCustomer(ctx, domain.Customer{Name: "Other", Phone: "9800000001"})
	assert.ErrorIs(t, err, store.ErrConflict)

	created, err := s.CreateCustomer(ctx, domain.Customer{Name: "Ravi", Phone: "9800000002"})
	require.NoError(t, err)

	customers, total, err := s.ListCustomers(ctx, domain.CustomerFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "Asha Traders", customers[0].Name)
	assert.Equal(t, created.ID, customers[1].ID)
}
