package orders

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/schoolorders-backend/internal/catalog"
	"github.com/angelmondragon/schoolorders-backend/internal/pricing"
	"github.com/angelmondragon/schoolorders-backend/pkg/types"
)

// LineItemStore holds the quantities and category discounts of one draft.
// Entries are only ever present with qty > 0 and a catalog price.
type LineItemStore struct {
	catalog   *catalog.Catalog
	items     types.LineItems
	discounts types.CategoryDiscounts
}

// NewLineItemStore copies items and discounts; the caller's maps are not retained.
func NewLineItemStore(cat *catalog.Catalog, items types.LineItems, discounts types.CategoryDiscounts) *LineItemStore {
	s := &LineItemStore{
		catalog:   cat,
		items:     items.Clone(),
		discounts: types.CategoryDiscounts{},
	}
	for category, pct := range discounts {
		s.discounts[category] = pct
	}
	return s
}

// MaxQuantity bounds a single line so order totals stay within numeric(12,2).
const MaxQuantity = 100000

// SetQuantity upserts a line at the current catalog price. A zero quantity
// removes the line.
func (s *LineItemStore) SetQuantity(category, product string, qty int) error {
	key := types.LineKey{Category: category, Product: product}
	if qty < 0 {
		return fieldError{field: key.String(), msg: "quantity must not be negative"}
	}
	if qty > MaxQuantity {
		return fieldError{field: key.String(), msg: "quantity too large"}
	}
	entry, ok := s.catalog.Lookup(key)
	if !ok {
		return fieldError{field: key.String(), msg: "unknown catalog item"}
	}
	if qty == 0 {
		delete(s.items, key)
		return nil
	}
	s.items[key] = types.LineItem{Class: entry.Class, Qty: qty, UnitPrice: entry.UnitPrice}
	return nil
}

// Quantity returns 0 for lines that are not present.
func (s *LineItemStore) Quantity(category, product string) int {
	return s.items[types.LineKey{Category: category, Product: product}].Qty
}

// SetCategoryDiscountPercent sets a per-category percentage; 0 clears it.
func (s *LineItemStore) SetCategoryDiscountPercent(category string, pct decimal.Decimal) error {
	field := catalog.DiscountKey(category)
	if !s.catalog.HasCategory(category) {
		return fieldError{field: field, msg: "unknown category"}
	}
	if err := pricing.ValidatePercent(pct); err != nil {
		return fieldError{field: field, msg: err.Error()}
	}
	if pct.IsZero() {
		delete(s.discounts, category)
		return nil
	}
	s.discounts[category] = pct
	return nil
}

func (s *LineItemStore) CategoryDiscount(category string) (decimal.Decimal, bool) {
	pct, ok := s.discounts[category]
	return pct, ok
}

// ClearCategoryDiscounts drops every per-category percentage.
func (s *LineItemStore) ClearCategoryDiscounts() {
	s.discounts = types.CategoryDiscounts{}
}

func (s *LineItemStore) Items() types.LineItems {
	return s.items.Clone()
}

func (s *LineItemStore) CategoryDiscounts() types.CategoryDiscounts {
	out := make(types.CategoryDiscounts, len(s.discounts))
	for k, v := range s.discounts {
		out[k] = v
	}
	return out
}

// fieldError is a validation failure tied to one input field.
type fieldError struct {
	field string
	msg   string
}

func (e fieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.field, e.msg)
}
