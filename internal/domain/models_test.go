package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDailyReportAddIsAdditive(t *testing.T) {
	var report DailyReport
	report.Add(DailyReport{
		TotalSales: decimal.RequireFromString("619.5"),
		TotalTax:   decimal.RequireFromString("94.5"),
		OrderCount: 1,
		PaymentBreakdown: map[PaymentMethod]decimal.Decimal{
			PaymentCash:   decimal.NewFromInt(600),
			PaymentCredit: decimal.RequireFromString("19.5"),
		},
	})
	report.Add(DailyReport{
		TotalSales:       decimal.NewFromInt(100),
		OrderCount:       1,
		PaymentBreakdown: map[PaymentMethod]decimal.Decimal{PaymentCash: decimal.NewFromInt(100)},
	})

	assert.True(t, report.TotalSales.Equal(decimal.RequireFromString("719.5")))
	assert.Equal(t, 2, report.OrderCount)
	assert.True(t, report.PaymentBreakdown[PaymentCash].Equal(decimal.NewFromInt(700)))
	assert.True(t, report.PaymentBreakdown[PaymentCredit].Equal(decimal.RequireFromString("19.5")))
}

func TestPaymentMethodValid(t *testing.T) {
	for _, m := range []PaymentMethod{PaymentCash, PaymentCard, PaymentUPI, PaymentCredit, PaymentSplit} {
		assert.True(t, m.Valid(), m)
	}
	assert.False(t, PaymentMethod("cheque").Valid())
}

func TestSaleBuyerHelpers(t *testing.T) {
	registered := Sale{Buyer: RegisteredBuyer{CustomerID: "cust-1"}}
	walkIn := Sale{Buyer: WalkInBuyer{Name: DefaultWalkInName}}

	assert.Equal(t, "cust-1", registered.CustomerID())
	assert.Empty(t, walkIn.CustomerID())
}

func TestProductWholesaleTierNeedsBothFields(t *testing.T) {
	price := decimal.NewFromInt(35)
	threshold := 12
	assert.False(t, Product{WholesalePrice: &price}.HasWholesaleTier())
	assert.False(t, Product{WholesaleThreshold: &threshold}.HasWholesaleTier())
	assert.True(t, Product{WholesalePrice: &price, WholesaleThreshold: &threshold}.HasWholesaleTier())
}
