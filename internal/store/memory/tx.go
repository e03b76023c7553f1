package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/internal/domain"
	"retailpos/internal/store"
)

// WithinTx runs fn while holding the store's write lock. Every mutation
// made through the Tx records an undo step; a failing fn (or a context
// cancelled before commit) replays them in reverse.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

type memTx struct {
	s    *Store
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) FindSaleByIdempotencyKey(_ context.Context, key string) (*domain.Sale, error) {
	id, exists := t.s.saleByIdem[key]
	if !exists || key == "" {
		return nil, store.ErrNotFound
	}
	sale := cloneSale(t.s.salesByID[id])
	return &sale, nil
}

func (t *memTx) FindProductByID(_ context.Context, id string) (*domain.Product, error) {
	product, exists := t.s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (t *memTx) FindCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	customer, exists := t.s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (t *memTx) DecrementStock(_ context.Context, productID string, qty int, soldAt time.Time) (store.StockChange, error) {
	product, exists := t.s.products[productID]
	if !exists {
		return store.StockChange{}, store.ErrNotFound
	}
	if qty <= 0 {
		return store.StockChange{}, store.ErrInvalidInput
	}
	if product.StockQuantity < qty {
		return store.StockChange{}, &store.InsufficientStockError{
			ProductID:   productID,
			ProductName: product.Name,
			Requested:   qty,
			Available:   product.StockQuantity,
		}
	}

	prev := product
	product.StockQuantity -= qty
	sold := soldAt
	product.LastSoldAt = &sold
	product.UpdatedAt = soldAt
	t.s.products[productID] = product
	t.undo = append(t.undo, func() { t.s.products[productID] = prev })

	return store.StockChange{Previous: prev.StockQuantity, New: product.StockQuantity}, nil
}

func (t *memTx) AppendInventoryLog(_ context.Context, entry domain.InventoryLog) error {
	n := len(t.s.inventoryLogs)
	t.s.inventoryLogs = append(t.s.inventoryLogs, entry)
	t.undo = append(t.undo, func() { t.s.inventoryLogs = t.s.inventoryLogs[:n] })
	return nil
}

func (t *memTx) NextInvoiceSequence(_ context.Context) (int64, error) {
	t.s.invoiceSeq++
	t.undo = append(t.undo, func() { t.s.invoiceSeq-- })
	return t.s.invoiceSeq, nil
}

func (t *memTx) InsertSale(_ context.Context, sale domain.Sale) error {
	if _, exists := t.s.salesByID[sale.ID]; exists {
		return fmt.Errorf("sale %s: %w", sale.ID, store.ErrConflict)
	}
	if sale.IdempotencyKey != "" {
		if _, exists := t.s.saleByIdem[sale.IdempotencyKey]; exists {
			return fmt.Errorf("idempotency key %s: %w", sale.IdempotencyKey, store.ErrConflict)
		}
		t.s.saleByIdem[sale.IdempotencyKey] = sale.ID
	}
	t.s.salesByID[sale.ID] = cloneSale(sale)
	t.s.saleOrder = append(t.s.saleOrder, sale.ID)

	t.undo = append(t.undo, func() {
		delete(t.s.salesByID, sale.ID)
		t.s.saleOrder = t.s.saleOrder[:len(t.s.saleOrder)-1]
		if sale.IdempotencyKey != "" {
			delete(t.s.saleByIdem, sale.IdempotencyKey)
		}
	})
	return nil
}

func (t *memTx) ApplyCustomerSale(_ context.Context, customerID string, balanceDelta decimal.Decimal, points int64, at time.Time) error {
	customer, exists := t.s.customers[customerID]
	if !exists {
		return store.ErrNotFound
	}
	prev := customer
	customer.OutstandingBalance = customer.OutstandingBalance.Add(balanceDelta)
	customer.LoyaltyPoints += points
	visit := at
	customer.LastVisitAt = &visit
	customer.UpdatedAt = at
	t.s.customers[customerID] = customer
	t.undo = append(t.undo, func() { t.s.customers[customerID] = prev })
	return nil
}

func (t *memTx) UpsertDailyIncrement(_ context.Context, delta domain.DailyReport) error {
	key := dayKey(delta.Date)
	prev, existed := t.s.reports[key]

	var next domain.DailyReport
	if existed {
		next = cloneReport(prev)
	} else {
		next = domain.DailyReport{Date: delta.Date}
	}
	next.Add(delta)
	t.s.reports[key] = next

	t.undo = append(t.undo, func() {
		if existed {
			t.s.reports[key] = prev
			return
		}
		delete(t.s.reports, key)
	})
	return nil
}
