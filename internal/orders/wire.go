package orders

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/schoolorders-backend/internal/catalog"
	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
	"github.com/angelmondragon/schoolorders-backend/pkg/types"
)

// ItemMap is the item payload clients exchange: "{category}-{product}" keys
// hold {"qty", "price"} and "{category}-discount" keys hold {"value"}.
type ItemMap map[string]json.RawMessage

var maxQuantity = decimal.NewFromInt(MaxQuantity)

type wireLine struct {
	Qty flexNumber `json:"qty"`
}

type wireDiscount struct {
	Value flexNumber `json:"value"`
}

type lineView struct {
	Qty   int         `json:"qty"`
	Price json.Number `json:"price"`
}

type discountView struct {
	Value string `json:"value"`
}

// flexNumber accepts a JSON number, a numeric string, a blank string or null.
// Blank and null read as zero.
type flexNumber struct {
	value decimal.Decimal
}

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		f.value = decimal.Zero
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			f.value = decimal.Zero
			return nil
		}
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("not a number")
	}
	f.value = d
	return nil
}

// parsedItems is an ItemMap resolved against the catalog.
type parsedItems struct {
	lines     map[types.LineKey]int
	discounts map[string]decimal.Decimal
}

func parseItemMap(cat *catalog.Catalog, items ItemMap) (parsedItems, error) {
	out := parsedItems{
		lines:     map[types.LineKey]int{},
		discounts: map[string]decimal.Decimal{},
	}
	var errs error
	for _, raw := range sortedKeys(items) {
		key, err := cat.ParseItemKey(raw)
		if err != nil {
			errs = multierr.Append(errs, fieldError{field: raw, msg: "unknown catalog item"})
			continue
		}
		body := bytes.TrimSpace(items[raw])

		if key.Discount {
			var d wireDiscount
			if err := decodeEntry(body, &d, &d.Value); err != nil {
				errs = multierr.Append(errs, fieldError{field: raw, msg: "discount value must be numeric"})
				continue
			}
			out.discounts[key.Line.Category] = d.Value.value
			continue
		}

		var line wireLine
		if err := decodeEntry(body, &line, &line.Qty); err != nil {
			errs = multierr.Append(errs, fieldError{field: raw, msg: "quantity must be numeric"})
			continue
		}
		if !line.Qty.value.Equal(line.Qty.value.Truncate(0)) {
			errs = multierr.Append(errs, fieldError{field: raw, msg: "quantity must be a whole number"})
			continue
		}
		if line.Qty.value.Abs().GreaterThan(maxQuantity) {
			errs = multierr.Append(errs, fieldError{field: raw, msg: "quantity too large"})
			continue
		}
		out.lines[key.Line] = int(line.Qty.value.IntPart())
	}
	return out, errs
}

// decodeEntry reads an object into obj, or a bare scalar into scalar.
func decodeEntry(body []byte, obj any, scalar *flexNumber) error {
	if len(body) > 0 && body[0] == '{' {
		return json.Unmarshal(body, obj)
	}
	return scalar.UnmarshalJSON(body)
}

// applyTo feeds parsed items into a draft. Category discounts are skipped
// when withDiscounts is false.
func (p parsedItems) applyTo(d *Draft, withDiscounts bool) {
	keys := make([]types.LineKey, 0, len(p.lines))
	for k := range p.lines {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	for _, k := range keys {
		d.SetQuantity(k.Category, k.Product, p.lines[k])
	}
	if !withDiscounts {
		return
	}
	categories := make([]string, 0, len(p.discounts))
	for c := range p.discounts {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		pct := p.discounts[c]
		if pct.IsZero() && d.order.DiscountMode != enums.DiscountModePercent {
			continue
		}
		d.SetCategoryDiscount(c, pct)
	}
}

// renderItemMap produces the wire form of stored items.
func renderItemMap(items types.LineItems, discounts types.CategoryDiscounts) map[string]any {
	out := make(map[string]any, len(items)+len(discounts))
	for key, item := range items {
		out[key.String()] = lineView{Qty: item.Qty, Price: json.Number(item.UnitPrice.String())}
	}
	for category, pct := range discounts {
		out[catalog.DiscountKey(category)] = discountView{Value: pct.String()}
	}
	return out
}

func sortedKeys(m ItemMap) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
