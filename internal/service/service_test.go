package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"retailpos/internal/cache"
	"retailpos/internal/domain"
	"retailpos/internal/store"
	"retailpos/internal/store/memory"
)

var (
	ist      = time.FixedZone("IST", 5*60*60+30*60)
	fixedNow = time.Date(2026, 3, 4, 10, 30, 0, 0, ist)
	cashier  = domain.Actor{Username: "cashier", Role: domain.RoleCashier}
	admin    = domain.Actor{Username: "admin", Role: domain.RoleAdmin}
)

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []domain.LowStockAlert
}

func (a *recordingAlerter) NotifyLowStock(_ context.Context, alerts []domain.LowStockAlert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alerts...)
	return nil
}

func newTestService(t *testing.T, opts Options) (*Service, *memory.Store) {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-pass-1")
	t.Setenv("SEED_CASHIER_PASSWORD", "cashier-pass-1")
	repo := memory.NewSeeded(zap.NewNop())
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	if opts.Location == nil {
		opts.Location = ist
	}
	return New(repo, opts), repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), admin)
}

func cashSale(method string, paid string, items ...domain.SaleItemRequest) domain.SaleRequest {
	return domain.SaleRequest{
		Items:         items,
		PaymentMethod: method,
		AmountPaid:    decimal.RequireFromString(paid),
	}
}

func line(productID string, qty int) domain.SaleItemRequest {
	return domain.SaleItemRequest{ProductID: productID, Quantity: qty}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "%s: want %s, got %s", field, want, got)
}

func TestProcessSaleCokeWholesaleScenario(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	ctx := context.Background()

	resp, err := svc.ProcessSale(ctx, cashier, cashSale("cash", "600", line("prod-coke500", 15)))
	require.NoError(t, err)

	require.Len(t, resp.Items, 1)
	assertDecimal(t, "35", resp.Items[0].UnitPrice, "unit price")
	assertDecimal(t, "525", resp.SubTotal, "sub total")
	assertDecimal(t, "94.5", resp.TaxTotal, "tax")
	assertDecimal(t, "619.5", resp.GrandTotal, "grand total")
	assertDecimal(t, "600", resp.AmountPaid, "amount paid")
	assertDecimal(t, "0", resp.ChangeAmount, "change")
	assertDecimal(t, "19.5", resp.Outstanding, "outstanding")
	assert.Equal(t, domain.PaymentPending, resp.PaymentStatus)
	assert.Equal(t, domain.SaleCompleted, resp.Status)
	assert.Equal(t, "INV-202600001", resp.InvoiceNumber)
	assert.Equal(t, 15, resp.TotalQuantity)
	require.NotNil(t, resp.CustomerDetails)
	assert.Equal(t, domain.DefaultWalkInName, resp.CustomerDetails.Name)
	assert.Empty(t, resp.CustomerID)

	product, err := repo.GetProduct(ctx, "prod-coke500")
	require.NoError(t, err)
	assert.Equal(t, 85, product.StockQuantity)
	require.NotNil(t, product.LastSoldAt)

	report, err := repo.GetDailyReport(ctx, svc.localMidnight(fixedNow))
	require.NoError(t, err)
	assertDecimal(t, "619.5", report.TotalSales, "report sales")
	assertDecimal(t, "94.5", report.TotalTax, "report tax")
	assertDecimal(t, "75", report.TotalProfit, "report profit")
	assertDecimal(t, "600", report.PaymentBreakdown[domain.PaymentCash], "cash breakdown")
	assertDecimal(t, "19.5", report.PaymentBreakdown[domain.PaymentCredit], "credit breakdown")
}

func TestProcessSaleDecrementsStockAndLogsEachLine(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	ctx := context.Background()

	resp, err := svc.ProcessSale(ctx, cashier, cashSale("upi", "1000",
		line("prod-rice5kg", 3),
		line("prod-soap100", 4),
	))
	require.NoError(t, err)

	for _, tc := range []struct {
		id     string
		before int
		qty    int
	}{
		{"prod-rice5kg", 60, 3},
		{"prod-soap100", 80, 4},
	} {
		product, err := repo.GetProduct(ctx, tc.id)
		require.NoError(t, err)
		assert.Equal(t, tc.before-tc.qty, product.StockQuantity, tc.id)

		logs, err := repo.ListInventoryLogs(ctx, tc.id, 10)
		require.NoError(t, err)
		require.Len(t, logs, 1, tc.id)
		assert.Equal(t, domain.InventorySale, logs[0].Type)
		assert.Equal(t, -tc.qty, logs[0].Quantity)
		assert.Equal(t, tc.before, logs[0].PreviousStock)
		assert.Equal(t, tc.before-tc.qty, logs[0].NewStock)
		assert.Equal(t, resp.ID, logs[0].ReferenceID)
		assert.Equal(t, "cashier", logs[0].UserID)
	}
}

func TestProcessSaleInsufficientStockLeavesEveryLineUntouched(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	ctx := context.Background()

	_, err := svc.ProcessSale(ctx, cashier, cashSale("cash", "5000",
		line("prod-coke500", 5),
		line("prod-tea250", 9),
	))
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	var stockErr *store.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "prod-tea250", stockErr.ProductID)
	assert.Equal(t, "Assam Tea 250g", stockErr.ProductName)
	assert.Equal(t, 9, stockErr.Requested)
	assert.Equal(t, 8, stockErr.Available)

	coke, err := repo.GetProduct(ctx, "prod-coke500")
	require.NoError(t, err)
	assert.Equal(t, 100, coke.StockQuantity)
	logs, err := repo.ListInventoryLogs(ctx, "prod-coke500", 10)
	require.NoError(t, err)
	assert.Empty(t, logs)

	_, total, err := repo.ListSales(ctx, domain.SaleFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestProcessSaleWholesaleThresholdBoundary(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	wholesale := decimal.NewFromInt(90)
	threshold := 10
	_, err := repo.CreateProduct(context.Background(), domain.Product{
		ID: "prod-bulk", SKU: "BULK", Name: "Bulk Flour", Active: true,
		Price: decimal.NewFromInt(100), CostPrice: decimal.NewFromInt(70), TaxRate: decimal.Zero,
		StockQuantity: 50, LowStockThreshold: 5,
		WholesalePrice: &wholesale, WholesaleThreshold: &threshold,
	})
	require.NoError(t, err)

	below, err := svc.ProcessSale(context.Background(), cashier, cashSale("cash", "900", line("prod-bulk", 9)))
	require.NoError(t, err)
	assertDecimal(t, "100", below.Items[0].UnitPrice, "qty 9")

	at, err := svc.ProcessSale(context.Background(), cashier, cashSale("cash", "900", line("prod-bulk", 10)))
	require.NoError(t, err)
	assertDecimal(t, "90", at.Items[0].UnitPrice, "qty 10")
	assert.Equal(t, domain.PaymentPaid, at.PaymentStatus)
}

func TestProcessSaleSplitsTaxEvenly(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	resp, err := svc.ProcessSale(context.Background(), cashier, cashSale("card", "2000",
		line("prod-coke500", 3),
		line("prod-rice5kg", 11),
		line("prod-milk1l", 2),
	))
	require.NoError(t, err)

	assert.True(t, resp.CGST.Equal(resp.SGST))
	assert.True(t, resp.CGST.Add(resp.SGST).Equal(resp.TaxTotal))
	assert.True(t, resp.IGST.IsZero())
	// 3*40*18% + 11*58*5% + 0
	assertDecimal(t, "53.5", resp.TaxTotal, "tax")
}

func TestProcessSaleConcurrentInvoicesAreUnique(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	const n = 25

	var wg sync.WaitGroup
	invoices := make([]string, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := svc.ProcessSale(context.Background(), cashier, cashSale("cash", "100", line("prod-coke500", 1)))
			invoices[i], errs[i] = resp.InvoiceNumber, err
		}()
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i := range n {
		require.NoError(t, errs[i])
		assert.False(t, seen[invoices[i]], "duplicate invoice %s", invoices[i])
		seen[invoices[i]] = true
	}
	for seq := 1; seq <= n; seq++ {
		assert.True(t, seen[fmt.Sprintf("INV-2026%05d", seq)], "missing sequence %d", seq)
	}

	coke, err := repo.GetProduct(context.Background(), "prod-coke500")
	require.NoError(t, err)
	assert.Equal(t, 100-n, coke.StockQuantity)
}

func TestProcessSaleConcurrentOversellNeverGoesNegative(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	const n = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, short int
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ProcessSale(context.Background(), cashier, cashSale("cash", "500", line("prod-tea250", 1)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, store.ErrInsufficientStock):
				short++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, ok)
	assert.Equal(t, n-8, short)
	tea, err := repo.GetProduct(context.Background(), "prod-tea250")
	require.NoError(t, err)
	assert.Equal(t, 0, tea.StockQuantity)
}

func TestProcessSaleDailyReportIsAdditive(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	ctx := context.Background()

	s1, err := svc.ProcessSale(ctx, cashier, cashSale("cash", "200", line("prod-soap100", 2)))
	require.NoError(t, err)
	s2, err := svc.ProcessSale(ctx, cashier, cashSale("card", "200", line("prod-milk1l", 3)))
	require.NoError(t, err)

	report, err := repo.GetDailyReport(ctx, svc.localMidnight(fixedNow))
	require.NoError(t, err)
	assert.True(t, report.TotalSales.Equal(s1.GrandTotal.Add(s2.GrandTotal)))
	assert.Equal(t, 2, report.OrderCount)
	assert.True(t, report.PaymentBreakdown[domain.PaymentCash].Equal(s1.AmountPaid))
	assert.True(t, report.PaymentBreakdown[domain.PaymentCard].Equal(s2.AmountPaid))
}

func TestProcessSaleCreditUpdatesCustomerLedger(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	ctx := context.Background()
	_, err := repo.CreateProduct(ctx, domain.Product{
		ID: "prod-cooker", SKU: "COOKER", Name: "Pressure Cooker", Active: true,
		Price: decimal.NewFromInt(500), CostPrice: decimal.NewFromInt(400), TaxRate: decimal.Zero,
		StockQuantity: 5, LowStockThreshold: 1,
	})
	require.NoError(t, err)

	req := cashSale("credit", "200", line("prod-cooker", 1))
	req.CustomerID = "cust-demo"
	resp, err := svc.ProcessSale(ctx, cashier, req)
	require.NoError(t, err)
	assertDecimal(t, "500", resp.GrandTotal, "grand")
	assertDecimal(t, "300", resp.Outstanding, "outstanding")
	assert.Equal(t, "cust-demo", resp.CustomerID)
	assert.Nil(t, resp.CustomerDetails)

	customer, err := repo.GetCustomer(ctx, "cust-demo")
	require.NoError(t, err)
	assertDecimal(t, "300", customer.OutstandingBalance, "balance")
	assert.EqualValues(t, 5, customer.LoyaltyPoints)
	require.NotNil(t, customer.LastVisitAt)

	report, err := repo.GetDailyReport(ctx, svc.localMidnight(fixedNow))
	require.NoError(t, err)
	assertDecimal(t, "500", report.PaymentBreakdown[domain.PaymentCredit], "credit breakdown")
}

type failingInsertRepo struct {
	store.Repository
}

func (r failingInsertRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return r.Repository.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, failingInsertTx{Tx: tx})
	})
}

type failingInsertTx struct {
	store.Tx
}

func (failingInsertTx) InsertSale(context.Context, domain.Sale) error {
	return errors.New("disk full")
}

func TestProcessSaleRollsBackWhenSaleInsertFails(t *testing.T) {
	_, repo := newTestService(t, Options{})
	svc := New(failingInsertRepo{Repository: repo}, Options{Now: func() time.Time { return fixedNow }, Location: ist})
	ctx := context.Background()

	req := cashSale("cash", "100", line("prod-coke500", 2))
	req.CustomerID = "cust-demo"
	_, err := svc.ProcessSale(ctx, cashier, req)
	require.ErrorIs(t, err, store.ErrPersistence)
	assert.Contains(t, err.Error(), "disk full")

	coke, err := repo.GetProduct(ctx, "prod-coke500")
	require.NoError(t, err)
	assert.Equal(t, 100, coke.StockQuantity)
	assert.Nil(t, coke.LastSoldAt)

	logs, err := repo.ListInventoryLogs(ctx, "prod-coke500", 10)
	require.NoError(t, err)
	assert.Empty(t, logs)

	_, err = repo.GetDailyReport(ctx, svc.localMidnight(fixedNow))
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, total, err := repo.ListSales(ctx, domain.SaleFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)

	customer, err := repo.GetCustomer(ctx, "cust-demo")
	require.NoError(t, err)
	assert.True(t, customer.OutstandingBalance.IsZero())
	assert.Zero(t, customer.LoyaltyPoints)

	// A rolled back sale does not burn an invoice number.
	healthy := New(repo, Options{Now: func() time.Time { return fixedNow }, Location: ist})
	resp, err := healthy.ProcessSale(ctx, cashier, cashSale("cash", "100", line("prod-coke500", 1)))
	require.NoError(t, err)
	assert.Equal(t, "INV-202600001", resp.InvoiceNumber)
}

func TestProcessSaleRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	cases := map[string]domain.SaleRequest{
		"empty cart":       cashSale("cash", "10"),
		"zero quantity":    cashSale("cash", "10", line("prod-coke500", 0)),
		"unknown method":   cashSale("barter", "10", line("prod-coke500", 1)),
		"negative payment": cashSale("cash", "-1", line("prod-coke500", 1)),
		"customer and walk-in": func() domain.SaleRequest {
			r := cashSale("cash", "100", line("prod-coke500", 1))
			r.CustomerID, r.CustomerName = "cust-demo", "Someone"
			return r
		}(),
		"discount above line": func() domain.SaleRequest {
			r := cashSale("cash", "100", line("prod-coke500", 1))
			r.Items[0].Discount = decimal.NewFromInt(41)
			return r
		}(),
		"discount above sale": func() domain.SaleRequest {
			r := cashSale("cash", "100", line("prod-coke500", 1))
			r.DiscountTotal = decimal.NewFromInt(100)
			return r
		}(),
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ProcessSale(context.Background(), cashier, req)
			assert.ErrorIs(t, err, store.ErrInvalidInput)
		})
	}
}

func TestProcessSaleRejectsSubCentAmounts(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	ctx := context.Background()

	cases := map[string]domain.SaleRequest{
		"amount paid": cashSale("credit", "100.005", line("prod-soap100", 1)),
		"line discount": func() domain.SaleRequest {
			r := cashSale("credit", "100", line("prod-soap100", 1))
			r.Items[0].Discount = decimal.RequireFromString("0.333")
			return r
		}(),
		"discount total": func() domain.SaleRequest {
			r := cashSale("credit", "100", line("prod-soap100", 1))
			r.DiscountTotal = decimal.RequireFromString("0.001")
			return r
		}(),
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ProcessSale(ctx, cashier, req)
			require.ErrorIs(t, err, store.ErrInvalidInput)
			assert.Contains(t, err.Error(), "decimal places")
		})
	}

	soap, err := repo.GetProduct(ctx, "prod-soap100")
	require.NoError(t, err)
	assert.Equal(t, 80, soap.StockQuantity)

	// Trailing zeros are still two-place amounts.
	resp, err := svc.ProcessSale(ctx, cashier, cashSale("cash", "60.500", line("prod-soap100", 1)))
	require.NoError(t, err)
	assertDecimal(t, "53.1", resp.GrandTotal, "grand total")
}

func TestProcessSaleUnknownProductOrCustomer(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	_, err := svc.ProcessSale(context.Background(), cashier, cashSale("cash", "10", line("prod-missing", 1)))
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.Contains(t, err.Error(), "prod-missing")

	req := cashSale("cash", "100", line("prod-coke500", 1))
	req.CustomerID = "cust-missing"
	_, err = svc.ProcessSale(context.Background(), cashier, req)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcessSaleIdempotencyKeyReturnsStoredSale(t *testing.T) {
	svc, repo := newTestService(t, Options{})
	ctx := context.Background()

	req := cashSale("cash", "100", line("prod-coke500", 2))
	req.IdempotencyKey = "till-1-0001"

	first, err := svc.ProcessSale(ctx, cashier, req)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := svc.ProcessSale(ctx, cashier, req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.InvoiceNumber, second.InvoiceNumber)

	coke, err := repo.GetProduct(ctx, "prod-coke500")
	require.NoError(t, err)
	assert.Equal(t, 98, coke.StockQuantity)
}

func TestProcessSaleEnqueuesLowStockAlerts(t *testing.T) {
	alerter := &recordingAlerter{}
	svc, _ := newTestService(t, Options{Alerter: alerter})

	resp, err := svc.ProcessSale(context.Background(), cashier, cashSale("cash", "500",
		line("prod-tea250", 2),
		line("prod-coke500", 1),
	))
	require.NoError(t, err)

	require.Len(t, alerter.alerts, 1)
	assert.Equal(t, domain.LowStockAlert{
		ProductID: "prod-tea250", SKU: "TEA250", Name: "Assam Tea 250g",
		Stock: 6, Threshold: 10, SaleID: resp.ID,
	}, alerter.alerts[0])
}

func TestProcessSaleWarnsWhenCreditLimitExceeded(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	svc, _ := newTestService(t, Options{Logger: zap.New(core)})
	ctx := context.Background()

	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{
		Name: "Small Shop", Phone: "9800000099", CreditLimit: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	req := cashSale("credit", "0", line("prod-coke500", 15))
	req.CustomerID = customer.ID
	_, err = svc.ProcessSale(ctx, cashier, req)
	require.NoError(t, err)

	entries := logs.FilterMessage("customer over credit limit").All()
	require.Len(t, entries, 1)
	assert.Equal(t, customer.ID, entries[0].ContextMap()["customer_id"])
}

func TestDailyReportCacheIsInvalidatedBySale(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc, _ := newTestService(t, Options{
		ReportCache:    cache.NewRedisReportCache(client),
		ReportCacheTTL: time.Minute,
	})
	ctx := adminCtx()

	empty, err := svc.DailyReport(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, empty.OrderCount)
	key := cache.ReportKey(svc.localMidnight(fixedNow))
	assert.True(t, mr.Exists(key))

	_, err = svc.ProcessSale(context.Background(), cashier, cashSale("cash", "100", line("prod-soap100", 1)))
	require.NoError(t, err)
	assert.False(t, mr.Exists(key))

	report, err := svc.DailyReport(ctx, "2026-03-04")
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrderCount)
	assertDecimal(t, "53.1", report.TotalSales, "sales")
}

func TestReportsRequireManagerRole(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	cashierCtx := WithActor(context.Background(), cashier)

	_, err := svc.DailyReport(cashierCtx, "")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.DashboardStats(context.Background())
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.DailyReport(adminCtx(), "04-03-2026")
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestDashboardAndChart(t *testing.T) {
	day := fixedNow.AddDate(0, 0, -2)
	clock := day
	svc, _ := newTestService(t, Options{Now: func() time.Time { return clock }})

	_, err := svc.ProcessSale(context.Background(), cashier, cashSale("cash", "100", line("prod-milk1l", 1)))
	require.NoError(t, err)
	clock = fixedNow
	_, err = svc.ProcessSale(context.Background(), cashier, cashSale("cash", "300", line("prod-tea250", 2)))
	require.NoError(t, err)

	stats, err := svc.DashboardStats(adminCtx())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Today.OrderCount)
	assertDecimal(t, "294", stats.Today.TotalSales, "today")
	assert.Equal(t, 1, stats.LowStockCount)

	points, err := svc.SalesChart(adminCtx())
	require.NoError(t, err)
	require.Len(t, points, 7)
	assert.Equal(t, "2026-02-26", points[0].Date)
	assert.Equal(t, "2026-03-04", points[6].Date)
	assertDecimal(t, "54", points[4].TotalSales, "two days ago")
	assert.Equal(t, 1, points[4].OrderCount)
	assert.Zero(t, points[5].OrderCount)
	assertDecimal(t, "294", points[6].TotalSales, "today")
}

func TestListSalesPeriods(t *testing.T) {
	clock := fixedNow.AddDate(0, 0, -10)
	svc, _ := newTestService(t, Options{Now: func() time.Time { return clock }})

	_, err := svc.ProcessSale(context.Background(), cashier, cashSale("cash", "100", line("prod-milk1l", 1)))
	require.NoError(t, err)
	clock = fixedNow
	latest, err := svc.ProcessSale(context.Background(), cashier, cashSale("cash", "100", line("prod-soap100", 1)))
	require.NoError(t, err)

	all, err := svc.ListSales(context.Background(), "", nil, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, all.Total)
	assert.Equal(t, latest.ID, all.Items[0].ID)

	for period, want := range map[string]int{PeriodToday: 1, PeriodWeek: 1, PeriodMonth: 2, PeriodYear: 2} {
		page, err := svc.ListSales(context.Background(), period, nil, nil, 10, 0)
		require.NoError(t, err, period)
		assert.Equal(t, want, page.Total, period)
	}

	from := fixedNow.AddDate(0, 0, -10)
	custom, err := svc.ListSales(context.Background(), PeriodCustom, &from, &from, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, custom.Total)

	_, err = svc.ListSales(context.Background(), PeriodCustom, nil, nil, 10, 0)
	assert.ErrorIs(t, err, store.ErrInvalidInput)
	_, err = svc.ListSales(context.Background(), "decade", nil, nil, 10, 0)
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestCreateProductRequiresManagerOrAdmin(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	req := domain.ProductCreateRequest{
		SKU: "chips50", Name: "Potato Chips 50g", Price: decimal.NewFromInt(20),
		CostPrice: decimal.NewFromInt(14), TaxRate: decimal.NewFromInt(12), StockQuantity: 30,
	}

	_, err := svc.CreateProduct(WithActor(context.Background(), cashier), req)
	assert.ErrorIs(t, err, ErrForbidden)

	created, err := svc.CreateProduct(adminCtx(), req)
	require.NoError(t, err)
	assert.Equal(t, "CHIPS50", created.SKU)
	assert.Equal(t, 10, created.LowStockThreshold)
	assert.True(t, created.Active)

	_, err = svc.CreateProduct(adminCtx(), req)
	assert.ErrorIs(t, err, store.ErrConflict)

	bad := req
	bad.SKU = "CHIPS51"
	bad.Price = decimal.Zero
	_, err = svc.CreateProduct(adminCtx(), bad)
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestUpdateProductKeepsStockAndDeactivates(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	price := decimal.NewFromInt(42)
	inactive := false

	updated, err := svc.UpdateProduct(adminCtx(), "prod-coke500", domain.ProductUpdateRequest{Price: &price})
	require.NoError(t, err)
	assertDecimal(t, "42", updated.Price, "price")
	assert.Equal(t, 100, updated.StockQuantity)

	_, err = svc.UpdateProduct(adminCtx(), "prod-coke500", domain.ProductUpdateRequest{Active: &inactive})
	require.NoError(t, err)

	_, err = svc.ProcessSale(context.Background(), cashier, cashSale("cash", "100", line("prod-coke500", 1)))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCustomerCRUD(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()

	created, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{
		Name: "Ravi Stores", Phone: "9800000042", GSTIN: "29abcde1234f1z5",
	})
	require.NoError(t, err)
	assert.Equal(t, "29ABCDE1234F1Z5", created.GSTIN)

	name := "Ravi General Stores"
	updated, err := svc.UpdateCustomer(ctx, created.ID, domain.CustomerUpdateRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)

	page, err := svc.ListCustomers(ctx, domain.CustomerFilter{Search: "ravi"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.True(t, strings.HasPrefix(page.Items[0].Name, "Ravi"))

	_, err = svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Dup", Phone: "9800000042"})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "No Phone"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}
