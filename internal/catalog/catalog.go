// Package catalog holds the static product price list. It is loaded once at
// start-up and never mutated.
package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/angelmondragon/schoolorders-backend/pkg/types"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// DiscountSuffix marks the per-category discount slot in legacy item keys.
const DiscountSuffix = "discount"

// Entry is one orderable product.
type Entry struct {
	Category  string          `json:"category"`
	Class     string          `json:"class"`
	Product   string          `json:"product"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Key returns the structured line key for the entry.
func (e Entry) Key() types.LineKey {
	return types.LineKey{Category: e.Category, Product: e.Product}
}

// Catalog is safe for concurrent reads.
type Catalog struct {
	categories []string
	items      map[string][]Entry
	index      map[types.LineKey]Entry
}

type fileFormat struct {
	Categories []struct {
		Name  string `yaml:"name"`
		Items []struct {
			Class   string `yaml:"class"`
			Product string `yaml:"product"`
			Price   string `yaml:"price"`
		} `yaml:"items"`
	} `yaml:"categories"`
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Load(defaultCatalog)
}

// MustDefault panics when the embedded catalog is invalid.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Load parses a YAML price list.
func Load(raw []byte) (*Catalog, error) {
	var file fileFormat
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		items: make(map[string][]Entry, len(file.Categories)),
		index: make(map[types.LineKey]Entry),
	}
	for _, cat := range file.Categories {
		name := strings.TrimSpace(cat.Name)
		if name == "" {
			return nil, fmt.Errorf("catalog category name is required")
		}
		if _, dup := c.items[name]; dup {
			return nil, fmt.Errorf("duplicate catalog category %q", name)
		}
		entries := make([]Entry, 0, len(cat.Items))
		for _, it := range cat.Items {
			price, err := decimal.NewFromString(strings.TrimSpace(it.Price))
			if err != nil {
				return nil, fmt.Errorf("catalog %q/%q: bad price: %w", name, it.Product, err)
			}
			if price.IsNegative() {
				return nil, fmt.Errorf("catalog %q/%q: negative price", name, it.Product)
			}
			e := Entry{Category: name, Class: it.Class, Product: strings.TrimSpace(it.Product), UnitPrice: price}
			if e.Product == "" || e.Product == DiscountSuffix {
				return nil, fmt.Errorf("catalog %q: invalid product name %q", name, it.Product)
			}
			if _, dup := c.index[e.Key()]; dup {
				return nil, fmt.Errorf("duplicate catalog product %q", e.Key().String())
			}
			c.index[e.Key()] = e
			entries = append(entries, e)
		}
		c.categories = append(c.categories, name)
		c.items[name] = entries
	}
	return c, nil
}

// Categories lists category names in file order.
func (c *Catalog) Categories() []string {
	return append([]string(nil), c.categories...)
}

// HasCategory reports whether name is a known category.
func (c *Catalog) HasCategory(name string) bool {
	_, ok := c.items[name]
	return ok
}

// Items returns the ordered entries for category, or an empty slice.
func (c *Catalog) Items(category string) []Entry {
	return append([]Entry{}, c.items[category]...)
}

// Lookup finds the entry for key.
func (c *Catalog) Lookup(key types.LineKey) (Entry, bool) {
	e, ok := c.index[key]
	return e, ok
}

// Price returns the unit price of a product.
func (c *Catalog) Price(category, product string) (decimal.Decimal, bool) {
	e, ok := c.index[types.LineKey{Category: category, Product: product}]
	return e.UnitPrice, ok
}

// ItemKey is a parsed legacy wire key.
type ItemKey struct {
	Line     types.LineKey
	Discount bool
}

// ParseItemKey splits "{category}-{product}" or "{category}-discount".
// Product names may themselves contain "-", so the longest known category
// that prefixes raw wins.
func (c *Catalog) ParseItemKey(raw string) (ItemKey, error) {
	best := ""
	for _, name := range c.categories {
		if len(name) > len(best) && strings.HasPrefix(raw, name+"-") {
			best = name
		}
	}
	if best == "" {
		return ItemKey{}, fmt.Errorf("unknown category in item key %q", raw)
	}
	rest := raw[len(best)+1:]
	if rest == DiscountSuffix {
		return ItemKey{Line: types.LineKey{Category: best}, Discount: true}, nil
	}
	key := types.LineKey{Category: best, Product: rest}
	if _, ok := c.index[key]; !ok {
		return ItemKey{}, fmt.Errorf("unknown product in item key %q", raw)
	}
	return ItemKey{Line: key}, nil
}

// DiscountKey renders the legacy discount slot key for category.
func DiscountKey(category string) string {
	return category + "-" + DiscountSuffix
}
