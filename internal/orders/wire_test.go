package orders

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/schoolorders-backend/internal/catalog"
	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
	"github.com/angelmondragon/schoolorders-backend/pkg/types"
)

func itemMap(t *testing.T, raw string) ItemMap {
	t.Helper()
	var m ItemMap
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

func TestParseItemMapAcceptsLegacyShapes(t *testing.T) {
	m := itemMap(t, `{
		"Kinder Box 1.0-LKG - Pack of 9 Books": {"qty": 2, "price": 1},
		"Kinder Box 1.0-Nursery Pack of 5 books": {"qty": "1"},
		"General Books-School Atlas": {"qty": ""},
		"Activity Kits-Art & Craft Box": 3,
		"Kinder Box 1.0-discount": {"value": "12.5"}
	}`)
	parsed, err := parseItemMap(catalog.MustDefault(), m)
	require.NoError(t, err)

	assert.Equal(t, 2, parsed.lines[types.LineKey{Category: kinder1, Product: lkgPack}])
	assert.Equal(t, 1, parsed.lines[types.LineKey{Category: kinder1, Product: nursery5}])
	assert.Equal(t, 0, parsed.lines[types.LineKey{Category: general, Product: atlas}])
	assert.Equal(t, 3, parsed.lines[types.LineKey{Category: "Activity Kits", Product: "Art & Craft Box"}])
	assert.True(t, parsed.discounts[kinder1].Equal(decimal.RequireFromString("12.5")))
}

func TestParseItemMapCollectsErrors(t *testing.T) {
	m := itemMap(t, `{
		"Stationery-Pencils": {"qty": 1},
		"Kinder Box 1.0-LKG - Pack of 9 Books": {"qty": "two"},
		"General Books-School Atlas": {"qty": 1.5}
	}`)
	_, err := parseItemMap(catalog.MustDefault(), m)
	require.Error(t, err)

	verr := validationFrom("invalid", err)
	assert.Contains(t, verr.Error(), "VALIDATION_ERROR")
	assert.Contains(t, err.Error(), "Stationery-Pencils")
	assert.Contains(t, err.Error(), "quantity must be numeric")
	assert.Contains(t, err.Error(), "whole number")
}

func TestParseItemMapRejectsHugeQuantities(t *testing.T) {
	for _, qty := range []string{`"18446744073709551618"`, `"9223372036854775807"`, `100001`, `-100001`} {
		m := itemMap(t, `{"Kinder Box 1.0-LKG - Pack of 9 Books": {"qty": `+qty+`}}`)
		parsed, err := parseItemMap(catalog.MustDefault(), m)
		require.Error(t, err, qty)
		assert.Contains(t, err.Error(), "quantity too large", qty)
		assert.Empty(t, parsed.lines, qty)
	}

	m := itemMap(t, `{"Kinder Box 1.0-LKG - Pack of 9 Books": {"qty": "100000"}}`)
	parsed, err := parseItemMap(catalog.MustDefault(), m)
	require.NoError(t, err)
	assert.Equal(t, MaxQuantity, parsed.lines[types.LineKey{Category: kinder1, Product: lkgPack}])
}

func TestClientPriceIsIgnored(t *testing.T) {
	m := itemMap(t, `{"Kinder Box 1.0-LKG - Pack of 9 Books": {"qty": 1, "price": 5}}`)
	parsed, err := parseItemMap(catalog.MustDefault(), m)
	require.NoError(t, err)

	draft := NewDraft(catalog.MustDefault(), uuid.New(), enums.DiscountModeFlat)
	parsed.applyTo(draft, true)
	order, err := draft.Commit()
	require.NoError(t, err)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(2175)))
}

func TestFlatDraftSkipsZeroCategoryDiscounts(t *testing.T) {
	m := itemMap(t, `{"Kinder Box 1.0-discount": {"value": ""}}`)
	parsed, err := parseItemMap(catalog.MustDefault(), m)
	require.NoError(t, err)

	draft := NewDraft(catalog.MustDefault(), uuid.New(), enums.DiscountModeFlat)
	parsed.applyTo(draft, true)
	_, err = draft.Commit()
	assert.NoError(t, err)
}

func TestRenderItemMap(t *testing.T) {
	items := types.LineItems{
		{Category: kinder1, Product: lkgPack}: {Qty: 2, UnitPrice: decimal.NewFromInt(2175)},
	}
	discounts := types.CategoryDiscounts{kinder1: decimal.NewFromInt(10)}

	raw, err := json.Marshal(renderItemMap(items, discounts))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"Kinder Box 1.0-LKG - Pack of 9 Books": {"qty": 2, "price": 2175},
		"Kinder Box 1.0-discount": {"value": "10"}
	}`, string(raw))
}
