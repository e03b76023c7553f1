package postgres

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/internal/domain"
	"retailpos/internal/store"
)

const invoiceCounter = "sales"

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) FindSaleByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error) {
	if key == "" {
		return nil, store.ErrNotFound
	}
	return findSale(ctx, t.tx, `idempotency_key = $1`, key)
}

// FindProductByID locks the row so pricing and stock are read from the
// same version the decrement will see.
func (t *pgTx) FindProductByID(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, t.tx, `id = $1 FOR UPDATE`, id)
}

func (t *pgTx) FindCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	return getCustomer(ctx, t.tx, id, true)
}

func (t *pgTx) DecrementStock(ctx context.Context, productID string, qty int, soldAt time.Time) (store.StockChange, error) {
	if qty <= 0 {
		return store.StockChange{}, store.ErrInvalidInput
	}

	var change store.StockChange
	err := t.tx.QueryRowContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $2, last_sold_at = $3, updated_at = $3
		WHERE id = $1 AND stock_quantity >= $2
		RETURNING stock_quantity + $2, stock_quantity
	`, productID, qty, soldAt).Scan(&change.Previous, &change.New)
	if err == nil {
		return change, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.StockChange{}, classify("decrement stock", err)
	}

	var (
		name      string
		available int
	)
	err = t.tx.QueryRowContext(ctx, `SELECT name, stock_quantity FROM products WHERE id = $1`, productID).Scan(&name, &available)
	if err != nil {
		return store.StockChange{}, classify("decrement stock", err)
	}
	return store.StockChange{}, &store.InsufficientStockError{
		ProductID:   productID,
		ProductName: name,
		Requested:   qty,
		Available:   available,
	}
}

func (t *pgTx) AppendInventoryLog(ctx context.Context, entry domain.InventoryLog) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO inventory_logs (id, product_id, type, quantity, previous_stock, new_stock, reference_id, user_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, entry.ID, entry.ProductID, string(entry.Type), entry.Quantity, entry.PreviousStock, entry.NewStock,
		entry.ReferenceID, entry.UserID, entry.Note, entry.Timestamp)
	return classify("append inventory log", err)
}

func (t *pgTx) NextInvoiceSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO invoice_counters (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = invoice_counters.value + 1
		RETURNING value
	`, invoiceCounter).Scan(&seq)
	if err != nil {
		return 0, classify("next invoice sequence", err)
	}
	return seq, nil
}

func (t *pgTx) InsertSale(ctx context.Context, sale domain.Sale) error {
	var customerID, walkInName any
	walkInPhone := ""
	switch b := sale.Buyer.(type) {
	case domain.RegisteredBuyer:
		customerID = b.CustomerID
	case domain.WalkInBuyer:
		walkInName = b.Name
		walkInPhone = b.Phone
	default:
		return store.ErrInvalidInput
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, invoice_number, cashier_id, customer_id, walk_in_name, walk_in_phone, total_quantity,
			sub_total, tax_total, cgst, sgst, igst, discount_total, grand_total,
			payment_method, payment_status, status, amount_paid, change_amount, idempotency_key, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`,
		sale.ID, sale.InvoiceNumber, sale.CashierID, customerID, walkInName, walkInPhone, sale.TotalQuantity,
		sale.SubTotal, sale.TaxTotal, sale.CGST, sale.SGST, sale.IGST, sale.DiscountTotal, sale.GrandTotal,
		string(sale.PaymentMethod), string(sale.PaymentStatus), string(sale.Status), sale.AmountPaid, sale.ChangeAmount,
		nullIfEmpty(sale.IdempotencyKey), sale.CreatedAt,
	)
	if err != nil {
		return classify("insert sale", err)
	}

	for i, item := range sale.Items {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, line_no, product_id, name, quantity, unit_price, cost_price, tax_rate, tax_amount, discount, sub_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, sale.ID, i+1, item.ProductID, item.Name, item.Quantity, item.UnitPrice, item.CostPrice,
			item.TaxRate, item.TaxAmount, item.Discount, item.SubTotal)
		if err != nil {
			return classify("insert sale item", err)
		}
	}
	return nil
}

func (t *pgTx) ApplyCustomerSale(ctx context.Context, customerID string, balanceDelta decimal.Decimal, points int64, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE customers
		SET outstanding_balance = outstanding_balance + $2,
		    loyalty_points = loyalty_points + $3,
		    last_visit_at = $4,
		    updated_at = $4
		WHERE id = $1
	`, customerID, balanceDelta, points, at)
	if err != nil {
		return classify("apply customer sale", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) UpsertDailyIncrement(ctx context.Context, delta domain.DailyReport) error {
	day := dayKey(delta.Date)
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO daily_reports (report_date, total_sales, total_profit, total_tax, total_discount, order_count, updated_at)
		VALUES ($1::date, $2, $3, $4, $5, $6, now())
		ON CONFLICT (report_date) DO UPDATE SET
			total_sales = daily_reports.total_sales + EXCLUDED.total_sales,
			total_profit = daily_reports.total_profit + EXCLUDED.total_profit,
			total_tax = daily_reports.total_tax + EXCLUDED.total_tax,
			total_discount = daily_reports.total_discount + EXCLUDED.total_discount,
			order_count = daily_reports.order_count + EXCLUDED.order_count,
			updated_at = now()
	`, day, delta.TotalSales, delta.TotalProfit, delta.TotalTax, delta.TotalDiscount, delta.OrderCount)
	if err != nil {
		return classify("upsert daily report", err)
	}

	methods := make([]domain.PaymentMethod, 0, len(delta.PaymentBreakdown))
	for method := range delta.PaymentBreakdown {
		methods = append(methods, method)
	}
	slices.Sort(methods)
	for _, method := range methods {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO daily_report_payments (report_date, method, amount)
			VALUES ($1::date, $2, $3)
			ON CONFLICT (report_date, method) DO UPDATE SET
				amount = daily_report_payments.amount + EXCLUDED.amount
		`, day, string(method), delta.PaymentBreakdown[method])
		if err != nil {
			return classify("upsert report payment", err)
		}
	}
	return nil
}
