package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/internal/domain"
	"retailpos/internal/store"
)

const saleColumns = `
	id, invoice_number, cashier_id, customer_id, walk_in_name, walk_in_phone, total_quantity,
	sub_total, tax_total, cgst, sgst, igst, discount_total, grand_total,
	payment_method, payment_status, status, amount_paid, change_amount, idempotency_key, created_at`

func scanSale(row rowScanner) (*domain.Sale, error) {
	var (
		sale        domain.Sale
		customerID  sql.NullString
		walkInName  sql.NullString
		walkInPhone string
		idemKey     sql.NullString
	)
	if err := row.Scan(
		&sale.ID, &sale.InvoiceNumber, &sale.CashierID, &customerID, &walkInName, &walkInPhone, &sale.TotalQuantity,
		&sale.SubTotal, &sale.TaxTotal, &sale.CGST, &sale.SGST, &sale.IGST, &sale.DiscountTotal, &sale.GrandTotal,
		&sale.PaymentMethod, &sale.PaymentStatus, &sale.Status, &sale.AmountPaid, &sale.ChangeAmount, &idemKey, &sale.CreatedAt,
	); err != nil {
		return nil, err
	}
	if customerID.Valid {
		sale.Buyer = domain.RegisteredBuyer{CustomerID: customerID.String}
	} else {
		sale.Buyer = domain.WalkInBuyer{Name: walkInName.String, Phone: walkInPhone}
	}
	sale.IdempotencyKey = idemKey.String
	return &sale, nil
}

func loadSaleItems(ctx context.Context, q queryer, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, 0, len(sales))
	index := make(map[string]int, len(sales))
	for i, sale := range sales {
		ids = append(ids, sale.ID)
		index[sale.ID] = i
	}

	rows, err := q.QueryContext(ctx, `
		SELECT sale_id, product_id, name, quantity, unit_price, cost_price, tax_rate, tax_amount, discount, sub_total
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_no
	`, ids)
	if err != nil {
		return classify("list sale items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			saleID string
			item   domain.SaleItem
		)
		if err := rows.Scan(
			&saleID, &item.ProductID, &item.Name, &item.Quantity, &item.UnitPrice, &item.CostPrice,
			&item.TaxRate, &item.TaxAmount, &item.Discount, &item.SubTotal,
		); err != nil {
			return classify("scan sale item", err)
		}
		i := index[saleID]
		sales[i].Items = append(sales[i].Items, item)
	}
	return classify("list sale items", rows.Err())
}

func findSale(ctx context.Context, q queryer, where string, arg any) (*domain.Sale, error) {
	sale, err := scanSale(q.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE `+where, arg))
	if err != nil {
		return nil, classify("get sale", err)
	}
	sales := []domain.Sale{*sale}
	if err := loadSaleItems(ctx, q, sales); err != nil {
		return nil, err
	}
	return &sales[0], nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return findSale(ctx, s.db, `id = $1`, id)
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, int, error) {
	const where = ` WHERE ($1::timestamptz IS NULL OR created_at >= $1) AND ($2::timestamptz IS NULL OR created_at < $2)`
	from, to := nullTime(filter.From), nullTime(filter.To)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM sales`+where, from, to).Scan(&total); err != nil {
		return nil, 0, classify("count sales", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+saleColumns+` FROM sales`+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, from, to, nullLimit(filter.Limit), max(filter.Offset, 0))
	if err != nil {
		return nil, 0, classify("list sales", err)
	}
	sales := make([]domain.Sale, 0, 32)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			_ = rows.Close()
			return nil, 0, classify("scan sale", err)
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, 0, classify("list sales", err)
	}
	_ = rows.Close()

	if err := loadSaleItems(ctx, s.db, sales); err != nil {
		return nil, 0, err
	}
	return sales, total, nil
}

func (s *Store) GetDailyReport(ctx context.Context, date time.Time) (*domain.DailyReport, error) {
	reports, err := s.loadReports(ctx, date, date)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, store.ErrNotFound
	}
	return &reports[0], nil
}

func (s *Store) ListDailyReports(ctx context.Context, from time.Time, to time.Time) ([]domain.DailyReport, error) {
	return s.loadReports(ctx, from, to)
}

func (s *Store) loadReports(ctx context.Context, from time.Time, to time.Time) ([]domain.DailyReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT report_date, total_sales, total_profit, total_tax, total_discount, order_count
		FROM daily_reports
		WHERE report_date BETWEEN $1::date AND $2::date
		ORDER BY report_date ASC
	`, dayKey(from), dayKey(to))
	if err != nil {
		return nil, classify("list daily reports", err)
	}
	reports := make([]domain.DailyReport, 0, 8)
	index := make(map[string]int, 8)
	for rows.Next() {
		var r domain.DailyReport
		if err := rows.Scan(&r.Date, &r.TotalSales, &r.TotalProfit, &r.TotalTax, &r.TotalDiscount, &r.OrderCount); err != nil {
			_ = rows.Close()
			return nil, classify("scan daily report", err)
		}
		r.Date = inLocation(r.Date, from.Location())
		r.PaymentBreakdown = make(map[domain.PaymentMethod]decimal.Decimal, 4)
		index[dayKey(r.Date)] = len(reports)
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, classify("list daily reports", err)
	}
	_ = rows.Close()
	if len(reports) == 0 {
		return reports, nil
	}

	payRows, err := s.db.QueryContext(ctx, `
		SELECT report_date, method, amount
		FROM daily_report_payments
		WHERE report_date BETWEEN $1::date AND $2::date
	`, dayKey(from), dayKey(to))
	if err != nil {
		return nil, classify("list report payments", err)
	}
	defer payRows.Close()
	for payRows.Next() {
		var (
			day    time.Time
			method domain.PaymentMethod
			amount decimal.Decimal
		)
		if err := payRows.Scan(&day, &method, &amount); err != nil {
			return nil, classify("scan report payment", err)
		}
		if i, ok := index[dayKey(inLocation(day, from.Location()))]; ok {
			reports[i].PaymentBreakdown[method] = amount
		}
	}
	if err := payRows.Err(); err != nil {
		return nil, classify("list report payments", err)
	}
	return reports, nil
}
