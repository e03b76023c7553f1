package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"retailpos/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// moneyPlaces is the scale of every stored amount and rate.
const moneyPlaces = 2

func checkScale(field string, d decimal.Decimal) error {
	if !d.Equal(d.Round(moneyPlaces)) {
		return invalidf("%s must have at most %d decimal places", field, moneyPlaces)
	}
	return nil
}

// appliedUnitPrice picks the wholesale price when the line quantity reaches
// the product's wholesale threshold. The decision is per line.
func appliedUnitPrice(p domain.Product, qty int) decimal.Decimal {
	if p.HasWholesaleTier() && qty >= *p.WholesaleThreshold {
		return *p.WholesalePrice
	}
	return p.Price
}

func priceLine(p domain.Product, line domain.CartLine) domain.SaleItem {
	unit := appliedUnitPrice(p, line.Quantity)
	gross := unit.Mul(decimal.NewFromInt(int64(line.Quantity)))

	return domain.SaleItem{
		ProductID: p.ID,
		Name:      p.Name,
		Quantity:  line.Quantity,
		UnitPrice: unit,
		CostPrice: p.CostPrice,
		TaxRate:   p.TaxRate,
		TaxAmount: gross.Mul(p.TaxRate).Div(hundred).Round(2),
		Discount:  line.Discount,
		SubTotal:  gross.Sub(line.Discount),
	}
}

func lineProfit(item domain.SaleItem) decimal.Decimal {
	return item.SubTotal.Sub(item.CostPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
}

type saleTotals struct {
	TotalQuantity int
	SubTotal      decimal.Decimal
	TaxTotal      decimal.Decimal
	CGST          decimal.Decimal
	SGST          decimal.Decimal
	IGST          decimal.Decimal
	DiscountTotal decimal.Decimal
	GrandTotal    decimal.Decimal
	AmountPaid    decimal.Decimal
	ChangeAmount  decimal.Decimal
	Outstanding   decimal.Decimal
	PaymentStatus domain.PaymentStatus
}

// computeTotals folds priced lines and the payment into sale totals.
// Tax is split evenly between CGST and SGST; IGST is always zero.
func computeTotals(items []domain.SaleItem, discountTotal decimal.Decimal, tendered decimal.Decimal) saleTotals {
	t := saleTotals{
		SubTotal:      decimal.Zero,
		TaxTotal:      decimal.Zero,
		IGST:          decimal.Zero,
		DiscountTotal: discountTotal,
	}
	for _, item := range items {
		t.TotalQuantity += item.Quantity
		t.SubTotal = t.SubTotal.Add(item.SubTotal)
		t.TaxTotal = t.TaxTotal.Add(item.TaxAmount)
	}
	half := t.TaxTotal.Div(decimal.NewFromInt(2))
	t.CGST, t.SGST = half, half

	t.GrandTotal = t.SubTotal.Add(t.TaxTotal).Sub(discountTotal)
	t.AmountPaid = decimal.Min(tendered, t.GrandTotal)
	t.ChangeAmount = decimal.Max(decimal.Zero, tendered.Sub(t.GrandTotal))
	t.Outstanding = decimal.Max(decimal.Zero, t.GrandTotal.Sub(tendered))

	t.PaymentStatus = domain.PaymentPaid
	if t.Outstanding.IsPositive() {
		t.PaymentStatus = domain.PaymentPending
	}
	return t
}

// loyaltyPoints awards one point per full 100 of the grand total.
func loyaltyPoints(grandTotal decimal.Decimal) int64 {
	if !grandTotal.IsPositive() {
		return 0
	}
	return grandTotal.Div(hundred).Floor().IntPart()
}

func invoiceNumber(year int, seq int64) string {
	return fmt.Sprintf("INV-%04d%05d", year, seq)
}
