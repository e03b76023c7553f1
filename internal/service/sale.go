package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"retailpos/internal/cache"
	"retailpos/internal/domain"
	"retailpos/internal/store"
	"retailpos/internal/xid"
)

// committedSale carries what the post-commit effects need.
type committedSale struct {
	sale      domain.Sale
	duplicate bool
	lowStock  []domain.LowStockAlert
}

// ProcessSale prices the cart against the current catalog, decrements
// stock, records the sale and folds it into the customer ledger and the
// daily report. Either all of it persists or none of it does.
func (s *Service) ProcessSale(ctx context.Context, operator domain.Actor, req domain.SaleRequest) (domain.SaleResponse, error) {
	started := s.now()

	cart, err := s.buildCart(req)
	if err != nil {
		s.metrics.SaleRejected("invalid")
		return domain.SaleResponse{}, err
	}

	var result committedSale
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		result = committedSale{}
		if cart.IdempotencyKey != "" {
			existing, err := tx.FindSaleByIdempotencyKey(ctx, cart.IdempotencyKey)
			switch {
			case err == nil:
				result = committedSale{sale: *existing, duplicate: true}
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		committed, err := s.applySale(ctx, tx, operator, cart)
		if err != nil {
			return err
		}
		result = committed
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) && cart.IdempotencyKey != "" {
			if dup, ok := s.lookupDuplicate(ctx, cart.IdempotencyKey); ok {
				return toSaleResponse(dup, true), nil
			}
		}
		err = classifySaleError(err)
		s.metrics.SaleRejected(saleOutcome(err))
		s.logger.Info("sale rejected",
			zap.String("cashier", operator.Username),
			zap.Error(err),
		)
		return domain.SaleResponse{}, err
	}

	if !result.duplicate {
		s.afterCommit(ctx, result, started)
	}
	return toSaleResponse(result.sale, result.duplicate), nil
}

func (s *Service) buildCart(req domain.SaleRequest) (domain.Cart, error) {
	if err := s.Validate(req); err != nil {
		return domain.Cart{}, err
	}
	if req.AmountPaid.IsNegative() {
		return domain.Cart{}, invalidf("amount_paid must not be negative")
	}
	if req.DiscountTotal.IsNegative() {
		return domain.Cart{}, invalidf("discount_total must not be negative")
	}
	if err := checkScale("amount_paid", req.AmountPaid); err != nil {
		return domain.Cart{}, err
	}
	if err := checkScale("discount_total", req.DiscountTotal); err != nil {
		return domain.Cart{}, err
	}

	cart := domain.Cart{
		Lines:          make([]domain.CartLine, 0, len(req.Items)),
		PaymentMethod:  domain.PaymentMethod(req.PaymentMethod),
		AmountTendered: req.AmountPaid,
		DiscountTotal:  req.DiscountTotal,
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
	}
	for i, item := range req.Items {
		if item.Discount.IsNegative() {
			return domain.Cart{}, invalidf("items[%d].discount must not be negative", i)
		}
		if err := checkScale(fmt.Sprintf("items[%d].discount", i), item.Discount); err != nil {
			return domain.Cart{}, err
		}
		cart.Lines = append(cart.Lines, domain.CartLine{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
			Discount:  item.Discount,
		})
	}

	customerID := strings.TrimSpace(req.CustomerID)
	name := strings.TrimSpace(req.CustomerName)
	phone := strings.TrimSpace(req.CustomerPhone)
	switch {
	case customerID != "" && (name != "" || phone != ""):
		return domain.Cart{}, invalidf("customer_id cannot be combined with walk-in details")
	case customerID != "":
		cart.Buyer = domain.RegisteredBuyer{CustomerID: customerID}
	default:
		if name == "" {
			name = domain.DefaultWalkInName
		}
		cart.Buyer = domain.WalkInBuyer{Name: name, Phone: phone}
	}
	return cart, nil
}

func (s *Service) applySale(ctx context.Context, tx store.Tx, operator domain.Actor, cart domain.Cart) (committedSale, error) {
	now := s.now()
	saleID := xid.New("sale")

	var customer *domain.Customer
	if buyer, ok := cart.Buyer.(domain.RegisteredBuyer); ok {
		found, err := tx.FindCustomerByID(ctx, buyer.CustomerID)
		if err != nil {
			return committedSale{}, wrapLookup("customer", buyer.CustomerID, err)
		}
		customer = found
	}

	items := make([]domain.SaleItem, 0, len(cart.Lines))
	profit := decimal.Zero
	var lowStock []domain.LowStockAlert
	for _, line := range cart.Lines {
		product, err := tx.FindProductByID(ctx, line.ProductID)
		if err != nil {
			return committedSale{}, wrapLookup("product", line.ProductID, err)
		}
		if !product.Active {
			return committedSale{}, fmt.Errorf("product %s is inactive: %w", product.ID, store.ErrNotFound)
		}
		if product.StockQuantity < line.Quantity {
			return committedSale{}, &store.InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   line.Quantity,
				Available:   product.StockQuantity,
			}
		}

		item := priceLine(*product, line)
		if item.SubTotal.IsNegative() {
			return committedSale{}, invalidf("discount on %s exceeds the line amount", product.ID)
		}

		change, err := tx.DecrementStock(ctx, product.ID, line.Quantity, now)
		if err != nil {
			return committedSale{}, err
		}
		if err := tx.AppendInventoryLog(ctx, domain.InventoryLog{
			ID:            xid.New("invlog"),
			ProductID:     product.ID,
			Type:          domain.InventorySale,
			Quantity:      -line.Quantity,
			PreviousStock: change.Previous,
			NewStock:      change.New,
			ReferenceID:   saleID,
			UserID:        operator.Username,
			Note:          "sale",
			Timestamp:     now,
		}); err != nil {
			return committedSale{}, err
		}

		if change.New <= product.LowStockThreshold {
			lowStock = append(lowStock, domain.LowStockAlert{
				ProductID: product.ID,
				SKU:       product.SKU,
				Name:      product.Name,
				Stock:     change.New,
				Threshold: product.LowStockThreshold,
				SaleID:    saleID,
			})
		}
		profit = profit.Add(lineProfit(item))
		items = append(items, item)
	}

	totals := computeTotals(items, cart.DiscountTotal, cart.AmountTendered)
	if totals.GrandTotal.IsNegative() {
		return committedSale{}, invalidf("discount_total exceeds the sale amount")
	}

	seq, err := tx.NextInvoiceSequence(ctx)
	if err != nil {
		return committedSale{}, err
	}

	sale := domain.Sale{
		ID:             saleID,
		InvoiceNumber:  invoiceNumber(now.In(s.loc).Year(), seq),
		CashierID:      operator.Username,
		Buyer:          cart.Buyer,
		Items:          items,
		TotalQuantity:  totals.TotalQuantity,
		SubTotal:       totals.SubTotal,
		TaxTotal:       totals.TaxTotal,
		CGST:           totals.CGST,
		SGST:           totals.SGST,
		IGST:           totals.IGST,
		DiscountTotal:  totals.DiscountTotal,
		GrandTotal:     totals.GrandTotal,
		PaymentMethod:  cart.PaymentMethod,
		PaymentStatus:  totals.PaymentStatus,
		Status:         domain.SaleCompleted,
		AmountPaid:     totals.AmountPaid,
		ChangeAmount:   totals.ChangeAmount,
		IdempotencyKey: cart.IdempotencyKey,
		CreatedAt:      now,
	}
	if err := tx.InsertSale(ctx, sale); err != nil {
		return committedSale{}, err
	}

	if customer != nil {
		if err := tx.ApplyCustomerSale(ctx, customer.ID, totals.Outstanding, loyaltyPoints(totals.GrandTotal), now); err != nil {
			return committedSale{}, err
		}
		balance := customer.OutstandingBalance.Add(totals.Outstanding)
		if customer.CreditLimit.IsPositive() && balance.GreaterThan(customer.CreditLimit) {
			s.logger.Warn("customer over credit limit",
				zap.String("customer_id", customer.ID),
				zap.String("balance", balance.String()),
				zap.String("credit_limit", customer.CreditLimit.String()),
			)
		}
	}

	breakdown := map[domain.PaymentMethod]decimal.Decimal{
		cart.PaymentMethod: totals.AmountPaid,
	}
	if totals.Outstanding.IsPositive() {
		breakdown[domain.PaymentCredit] = breakdown[domain.PaymentCredit].Add(totals.Outstanding)
	}
	if err := tx.UpsertDailyIncrement(ctx, domain.DailyReport{
		Date:             s.localMidnight(now),
		TotalSales:       totals.GrandTotal,
		TotalProfit:      profit,
		TotalTax:         totals.TaxTotal,
		TotalDiscount:    totals.DiscountTotal,
		OrderCount:       1,
		PaymentBreakdown: breakdown,
	}); err != nil {
		return committedSale{}, err
	}

	return committedSale{sale: sale, lowStock: lowStock}, nil
}

// afterCommit runs effects that must never change the sale outcome.
func (s *Service) afterCommit(ctx context.Context, result committedSale, started time.Time) {
	ctx = context.WithoutCancel(ctx)
	sale := result.sale

	if err := s.cache.Delete(ctx, cache.ReportKey(s.localMidnight(sale.CreatedAt))); err != nil {
		s.logger.Warn("invalidate daily report cache", zap.Error(err))
	}

	grand, _ := sale.GrandTotal.Float64()
	s.metrics.SaleCommitted(string(sale.PaymentMethod), grand, s.now().Sub(started))

	if len(result.lowStock) > 0 {
		s.metrics.LowStockAlerts(len(result.lowStock))
		if err := s.alerter.NotifyLowStock(ctx, result.lowStock); err != nil {
			s.logger.Warn("enqueue low stock alerts", zap.String("sale_id", sale.ID), zap.Error(err))
		}
	}

	s.logger.Info("sale committed",
		zap.String("sale_id", sale.ID),
		zap.String("invoice", sale.InvoiceNumber),
		zap.String("cashier", sale.CashierID),
		zap.String("grand_total", sale.GrandTotal.String()),
		zap.String("payment_status", string(sale.PaymentStatus)),
		zap.Int("lines", len(sale.Items)),
	)
}

// lookupDuplicate resolves a lost race on the same idempotency key.
func (s *Service) lookupDuplicate(ctx context.Context, key string) (domain.Sale, bool) {
	var found domain.Sale
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sale, err := tx.FindSaleByIdempotencyKey(ctx, key)
		if err != nil {
			return err
		}
		found = *sale
		return nil
	})
	return found, err == nil
}

func wrapLookup(kind string, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return err
}

// classifySaleError keeps the domain errors and folds everything else
// into ErrPersistence.
func classifySaleError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrInvalidInput),
		errors.Is(err, store.ErrPersistence),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return store.Persistence("process sale", err)
}

func saleOutcome(err error) string {
	switch {
	case errors.Is(err, store.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "persistence"
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.SaleResponse, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.SaleResponse{}, err
	}
	return toSaleResponse(*sale, false), nil
}

// Sale list periods.
const (
	PeriodAll    = "all"
	PeriodToday  = "today"
	PeriodWeek   = "week"
	PeriodMonth  = "month"
	PeriodYear   = "year"
	PeriodCustom = "custom"
)

// ListSales returns sales newest first. Custom periods include the whole
// of the end day.
func (s *Service) ListSales(ctx context.Context, period string, from *time.Time, to *time.Time, limit int, offset int) (domain.Page[domain.SaleResponse], error) {
	if limit <= 0 || limit > 200 {
		limit = 10
	}
	filter := domain.SaleFilter{Limit: limit, Offset: max(offset, 0)}

	now := s.now()
	today := s.localMidnight(now)
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "", PeriodAll:
	case PeriodToday:
		end := today.AddDate(0, 0, 1)
		filter.From, filter.To = &today, &end
	case PeriodWeek:
		start := now.AddDate(0, 0, -7)
		filter.From = &start
	case PeriodMonth:
		start := now.AddDate(0, -1, 0)
		filter.From = &start
	case PeriodYear:
		start := now.AddDate(-1, 0, 0)
		filter.From = &start
	case PeriodCustom:
		if from == nil || to == nil {
			return domain.Page[domain.SaleResponse]{}, invalidf("custom period needs from and to")
		}
		start := s.localMidnight(*from)
		end := s.localMidnight(*to).AddDate(0, 0, 1)
		if !start.Before(end) {
			return domain.Page[domain.SaleResponse]{}, invalidf("from must not be after to")
		}
		filter.From, filter.To = &start, &end
	default:
		return domain.Page[domain.SaleResponse]{}, invalidf("unknown period %q", period)
	}

	sales, total, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return domain.Page[domain.SaleResponse]{}, err
	}
	items := make([]domain.SaleResponse, 0, len(sales))
	for _, sale := range sales {
		items = append(items, toSaleResponse(sale, false))
	}
	return domain.Page[domain.SaleResponse]{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func toSaleResponse(sale domain.Sale, duplicate bool) domain.SaleResponse {
	resp := domain.SaleResponse{
		ID:            sale.ID,
		InvoiceNumber: sale.InvoiceNumber,
		CashierID:     sale.CashierID,
		Items:         sale.Items,
		TotalQuantity: sale.TotalQuantity,
		SubTotal:      sale.SubTotal,
		TaxTotal:      sale.TaxTotal,
		CGST:          sale.CGST,
		SGST:          sale.SGST,
		IGST:          sale.IGST,
		DiscountTotal: sale.DiscountTotal,
		GrandTotal:    sale.GrandTotal,
		PaymentMethod: sale.PaymentMethod,
		PaymentStatus: sale.PaymentStatus,
		Status:        sale.Status,
		AmountPaid:    sale.AmountPaid,
		ChangeAmount:  sale.ChangeAmount,
		Outstanding:   sale.Outstanding(),
		Duplicate:     duplicate,
		CreatedAt:     sale.CreatedAt.UTC().Format(time.RFC3339),
	}
	switch buyer := sale.Buyer.(type) {
	case domain.RegisteredBuyer:
		resp.CustomerID = buyer.CustomerID
	case domain.WalkInBuyer:
		walkIn := buyer
		resp.CustomerDetails = &walkIn
	}
	return resp
}
