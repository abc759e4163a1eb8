package pricing

import (
	"math/rand"
	"testing"

	"github.com/angelmondragon/schoolorders-backend/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	lkg     = types.LineKey{Category: "Kinder Box 1.0", Product: "LKG - Pack of 9 Books"}
	nursery = types.LineKey{Category: "Kinder Box 1.0", Product: "Nursery Pack of 5 books"}
	atlas   = types.LineKey{Category: "General Books", Product: "School Atlas"}
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleItems() types.LineItems {
	return types.LineItems{
		lkg:     {Qty: 2, UnitPrice: dec("2175")},
		nursery: {Qty: 1, UnitPrice: dec("950")},
	}
}

func TestFlatDiscountScenario(t *testing.T) {
	totals, err := Calculate(sampleItems(), Flat(dec("300")), nil)
	require.NoError(t, err)

	assert.Equal(t, "5300.00", Format(totals.Gross))
	assert.Equal(t, "300.00", Format(totals.Discount))
	assert.Equal(t, "5000.00", Format(totals.Net))
}

func TestFlatDiscountCappedAtGross(t *testing.T) {
	totals, err := Calculate(sampleItems(), Flat(dec("9000")), nil)
	require.NoError(t, err)

	assert.True(t, totals.Discount.Equal(totals.Gross))
	assert.True(t, totals.Net.IsZero())
	assert.True(t, totals.Net.Equal(totals.Gross.Sub(totals.Discount)))
}

func TestFlatIgnoresCategoryPercentages(t *testing.T) {
	totals, err := Calculate(sampleItems(), Flat(dec("100")), types.CategoryDiscounts{"Kinder Box 1.0": dec("50")})
	require.NoError(t, err)
	assert.Equal(t, "5200.00", Format(totals.Net))
}

func TestPercentUniform(t *testing.T) {
	for _, p := range []string{"0", "10", "12.5", "33.33", "100"} {
		t.Run(p, func(t *testing.T) {
			totals, err := Calculate(sampleItems(), Percent(dec(p)), nil)
			require.NoError(t, err)

			one := decimal.NewFromInt(1)
			want := dec("5300").Mul(one.Sub(dec(p).Div(decimal.NewFromInt(100))))
			assert.True(t, totals.Net.Equal(want.Round(2)), "net %s want %s", totals.Net, want)
		})
	}

	totals, err := Calculate(sampleItems(), Percent(decimal.Zero), nil)
	require.NoError(t, err)
	assert.True(t, totals.Net.Equal(totals.Gross))
}

// The discount is rounded first and net is derived from it, so net and
// discount always add back to gross. On a half-cent discount this can sit one
// cent below rounding gross*(1-p/100) directly.
func TestPercentRoundsDiscountThenSubtracts(t *testing.T) {
	items := types.LineItems{atlas: {Qty: 1, UnitPrice: dec("299.50")}}
	totals, err := Calculate(items, Percent(dec("1")), nil)
	require.NoError(t, err)

	assert.Equal(t, "299.50", Format(totals.Gross))
	assert.Equal(t, "3.00", Format(totals.Discount))
	assert.Equal(t, "296.50", Format(totals.Net))
	assert.True(t, totals.Gross.Equal(totals.Net.Add(totals.Discount)))

	direct := dec("299.50").Mul(dec("0.99")).Round(2)
	assert.Equal(t, "296.51", Format(direct))
}

func TestPercentPerCategoryOverride(t *testing.T) {
	items := sampleItems()
	items[atlas] = types.LineItem{Qty: 2, UnitPrice: dec("450")}

	totals, err := Calculate(items, Percent(dec("5")), types.CategoryDiscounts{"Kinder Box 1.0": dec("10")})
	require.NoError(t, err)

	// 5300 at 10% plus 900 at 5%.
	assert.Equal(t, "6200.00", Format(totals.Gross))
	assert.Equal(t, "575.00", Format(totals.Discount))
	assert.Equal(t, "5625.00", Format(totals.Net))
}

func TestPercentValidation(t *testing.T) {
	_, err := Calculate(sampleItems(), Percent(dec("101")), nil)
	assert.Error(t, err)
	_, err = Calculate(sampleItems(), Percent(dec("-1")), nil)
	assert.Error(t, err)
	_, err = Calculate(sampleItems(), Percent(dec("5")), types.CategoryDiscounts{"Kinder Box 1.0": dec("150")})
	assert.Error(t, err)
	_, err = Calculate(sampleItems(), Flat(dec("-5")), nil)
	assert.Error(t, err)
	_, err = Calculate(sampleItems(), Discount{Mode: "bogus"}, nil)
	assert.Error(t, err)
}

func TestGrossIndependentOfInsertionOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	keys := make([]types.LineKey, 0, 40)
	prices := make([]decimal.Decimal, 0, 40)
	qtys := make([]int, 0, 40)
	want := decimal.Zero
	for i := 0; i < 40; i++ {
		k := types.LineKey{Category: "C", Product: string(rune('A' + i))}
		p := decimal.New(int64(rng.Intn(500000)), -2)
		q := rng.Intn(20)
		keys = append(keys, k)
		prices = append(prices, p)
		qtys = append(qtys, q)
		want = want.Add(p.Mul(decimal.NewFromInt(int64(q))))
	}

	for round := 0; round < 5; round++ {
		items := types.LineItems{}
		for _, i := range rng.Perm(len(keys)) {
			items[keys[i]] = types.LineItem{Qty: qtys[i], UnitPrice: prices[i]}
		}
		assert.True(t, Gross(items).Equal(want))
	}
}

func TestEmptyOrderTotalsAreZero(t *testing.T) {
	totals, err := Calculate(types.LineItems{}, Flat(decimal.Zero), nil)
	require.NoError(t, err)
	assert.Equal(t, "0.00", Format(totals.Gross))
	assert.Equal(t, "0.00", Format(totals.Net))
}

func TestMismatches(t *testing.T) {
	server := Totals{Gross: dec("5300"), Discount: dec("300"), Net: dec("5000")}
	near := dec("5000.004")
	far := dec("4999")
	gross := dec("5300")

	assert.Empty(t, Mismatches(server, ClientTotals{Gross: &gross, Net: &near}, dec("0.01")))
	assert.Equal(t, []string{"net_amount"}, Mismatches(server, ClientTotals{Net: &far}, dec("0.01")))
	assert.Empty(t, Mismatches(server, ClientTotals{}, dec("0.01")))
}
