package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// LineKey identifies one catalog line within an order.
type LineKey struct {
	Category string
	Product  string
}

// String renders the legacy "{category}-{product}" key used on the wire.
func (k LineKey) String() string {
	return k.Category + "-" + k.Product
}

// LineItem is an ordered quantity with the unit price captured from the catalog.
type LineItem struct {
	Class     string
	Qty       int
	UnitPrice decimal.Decimal
}

// Subtotal is qty times unit price, unrounded.
func (l LineItem) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Qty)))
}

// LineItems is persisted as a JSON array sorted by category then product.
type LineItems map[LineKey]LineItem

type lineItemRow struct {
	Category  string          `json:"category"`
	Product   string          `json:"product"`
	Class     string          `json:"class,omitempty"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Keys returns the keys in stable order.
func (l LineItems) Keys() []LineKey {
	keys := make([]LineKey, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Category != keys[j].Category {
			return keys[i].Category < keys[j].Category
		}
		return keys[i].Product < keys[j].Product
	})
	return keys
}

// Clone returns an independent copy.
func (l LineItems) Clone() LineItems {
	out := make(LineItems, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

func (l LineItems) MarshalJSON() ([]byte, error) {
	rows := make([]lineItemRow, 0, len(l))
	for _, k := range l.Keys() {
		item := l[k]
		rows = append(rows, lineItemRow{
			Category:  k.Category,
			Product:   k.Product,
			Class:     item.Class,
			Qty:       item.Qty,
			UnitPrice: item.UnitPrice,
		})
	}
	return json.Marshal(rows)
}

func (l *LineItems) UnmarshalJSON(data []byte) error {
	var rows []lineItemRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	out := make(LineItems, len(rows))
	for _, row := range rows {
		key := LineKey{Category: row.Category, Product: row.Product}
		if _, dup := out[key]; dup {
			return fmt.Errorf("duplicate line item %q", key.String())
		}
		out[key] = LineItem{Class: row.Class, Qty: row.Qty, UnitPrice: row.UnitPrice}
	}
	*l = out
	return nil
}

func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := l.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *LineItems) Scan(value any) error {
	b, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("line items: %w", err)
	}
	if len(b) == 0 {
		*l = LineItems{}
		return nil
	}
	return l.UnmarshalJSON(b)
}

// CategoryDiscounts maps a category to a percent discount.
type CategoryDiscounts map[string]decimal.Decimal

func (c CategoryDiscounts) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]decimal.Decimal(c))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *CategoryDiscounts) Scan(value any) error {
	b, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("category discounts: %w", err)
	}
	out := CategoryDiscounts{}
	if len(b) > 0 {
		if err := json.Unmarshal(b, (*map[string]decimal.Decimal)(&out)); err != nil {
			return err
		}
	}
	*c = out
	return nil
}

func jsonBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", value)
	}
}
