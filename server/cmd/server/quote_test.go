package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/senseease/senseease/server/internal/api"
	"github.com/senseease/senseease/server/internal/cart"
	"github.com/senseease/senseease/server/internal/pricing"
)

func TestPriceQuote(t *testing.T) {
	req := api.QuoteRequest{
		Lines: []api.AddItemRequest{
			{ProductID: "tee", Quantity: 2, UnitPrice: decimal.RequireFromString("12.50")},
			{ProductID: "mug", Quantity: 1, UnitPrice: decimal.RequireFromString("8.00"),
				VariantModifiers: []decimal.Decimal{decimal.RequireFromString("1.50")}},
		},
		Coupons: []api.CouponRequest{
			{Code: "SAVE10", Kind: pricing.CouponPercentage, Amount: decimal.NewFromInt(10)},
		},
	}

	out, err := priceQuote(req, pricing.DefaultPolicy())
	require.NoError(t, err)

	require.Len(t, out.Lines, 2)
	assert.Equal(t, "9.50", out.Lines[1].UnitPrice)
	assert.Equal(t, "34.50", out.Totals.Subtotal)
	assert.Equal(t, 3, out.Totals.ItemCount)
	assert.Equal(t, "2.93", out.Totals.Tax)
	assert.Equal(t, "5.99", out.Totals.Shipping)
	assert.Equal(t, "3.45", out.Totals.Discount)
	assert.Equal(t, "39.97", out.Totals.Total)
}

func TestPriceQuote_KeepsRepeatedProductLines(t *testing.T) {
	req := api.QuoteRequest{
		Lines: []api.AddItemRequest{
			{ProductID: "p", Quantity: 2, UnitPrice: decimal.NewFromInt(10)},
			{ProductID: "p", Quantity: 1, UnitPrice: decimal.NewFromInt(20)},
		},
	}

	out, err := priceQuote(req, pricing.DefaultPolicy())
	require.NoError(t, err)

	require.Len(t, out.Lines, 2)
	assert.Equal(t, "20.00", out.Lines[1].UnitPrice)
	assert.Equal(t, "40.00", out.Totals.Subtotal)
	assert.Equal(t, 3, out.Totals.ItemCount)
	assert.Equal(t, "43.40", out.Totals.Total)
}

func TestPriceQuote_RejectsDuplicateCoupon(t *testing.T) {
	req := api.QuoteRequest{
		Coupons: []api.CouponRequest{
			{Code: "X", Kind: pricing.CouponFixed, Amount: decimal.NewFromInt(1)},
			{Code: "X", Kind: pricing.CouponFixed, Amount: decimal.NewFromInt(2)},
		},
	}
	_, err := priceQuote(req, pricing.DefaultPolicy())
	require.ErrorIs(t, err, cart.ErrDuplicateCoupon)
}

func TestPriceQuote_RejectsInvalidLine(t *testing.T) {
	req := api.QuoteRequest{
		Lines: []api.AddItemRequest{{ProductID: "tee", Quantity: 0, UnitPrice: decimal.NewFromInt(5)}},
	}
	_, err := priceQuote(req, pricing.DefaultPolicy())
	require.ErrorIs(t, err, pricing.ErrInvalidQuantity)
}

func TestQuoteCommand_ReadsStdin(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(`{"lines":[{"product_id":"tee","quantity":4,"unit_price":"10"}]}`))
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"quote", "--config", t.TempDir() + "/missing.yaml", "--json", "-"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); quoteJSON = false })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), `"total": "43.40"`)
	assert.Contains(t, out.String(), `"shipping": "0.00"`)
}
