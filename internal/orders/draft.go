package orders

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/schoolorders-backend/internal/catalog"
	"github.com/angelmondragon/schoolorders-backend/internal/pricing"
	"github.com/angelmondragon/schoolorders-backend/pkg/db/models"
	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/schoolorders-backend/pkg/errors"
	"github.com/angelmondragon/schoolorders-backend/pkg/types"
)

var blockValidator = newBlockValidator()

func newBlockValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Draft threads one order through the form steps. Step errors accumulate and
// are reported together by Commit.
type Draft struct {
	order models.Order
	store *LineItemStore
	errs  error
}

// NewDraft starts a pending order owned by owner.
func NewDraft(cat *catalog.Catalog, owner uuid.UUID, mode enums.DiscountMode) *Draft {
	d := &Draft{
		order: models.Order{
			UserID:       owner,
			DiscountMode: mode,
			Status:       enums.DeliveryStatusPending,
		},
		store: NewLineItemStore(cat, nil, nil),
	}
	if !mode.IsValid() {
		d.fail("discount_mode", "must be flat or percent")
	}
	return d
}

// DraftFrom resumes editing a persisted order. The original is not modified.
func DraftFrom(cat *catalog.Catalog, order *models.Order) *Draft {
	return &Draft{
		order: *order,
		store: NewLineItemStore(cat, order.Items, order.CategoryDiscounts),
	}
}

func (d *Draft) Office(block models.OfficeDetails) *Draft {
	d.check("office", block)
	d.order.Office = block
	return d
}

func (d *Draft) School(block models.SchoolDetails) *Draft {
	d.check("school", block)
	d.order.School = block
	return d
}

func (d *Draft) Contacts(block models.ContactDetails) *Draft {
	d.check("contacts", block)
	d.order.Contacts = block
	return d
}

func (d *Draft) Delivery(block models.DeliveryDetails) *Draft {
	d.check("delivery", block)
	d.order.Delivery = block
	return d
}

func (d *Draft) SetQuantity(category, product string, qty int) *Draft {
	d.errs = multierr.Append(d.errs, d.store.SetQuantity(category, product, qty))
	return d
}

// SetCategoryDiscount is only meaningful for percent-mode orders.
func (d *Draft) SetCategoryDiscount(category string, pct decimal.Decimal) *Draft {
	if d.order.DiscountMode != enums.DiscountModePercent {
		d.fail(catalog.DiscountKey(category), "category discounts require percent mode")
		return d
	}
	d.errs = multierr.Append(d.errs, d.store.SetCategoryDiscountPercent(category, pct))
	return d
}

// SetDiscountValue sets the flat amount or the order-wide percentage.
func (d *Draft) SetDiscountValue(value decimal.Decimal) *Draft {
	if err := (pricing.Discount{Mode: d.order.DiscountMode, Value: value}).Validate(); err != nil {
		d.fail("discount_value", err.Error())
		return d
	}
	d.order.DiscountValue = value
	return d
}

// ResetItems clears every line and category discount.
func (d *Draft) ResetItems() *Draft {
	d.store = NewLineItemStore(d.store.catalog, nil, nil)
	return d
}

func (d *Draft) Quantity(category, product string) int {
	return d.store.Quantity(category, product)
}

// Totals prices the draft as it stands.
func (d *Draft) Totals() (pricing.Totals, error) {
	return pricing.Calculate(d.store.Items(), d.discount(), d.store.CategoryDiscounts())
}

// Commit returns the order with freshly computed totals, or a validation
// error listing every failed step.
func (d *Draft) Commit() (*models.Order, error) {
	if d.errs != nil {
		return nil, validationFrom("invalid order", d.errs)
	}
	totals, err := d.Totals()
	if err != nil {
		return nil, pkgerrors.Validation("invalid order", map[string]string{"discount_value": err.Error()})
	}

	out := d.order
	out.Items = d.store.Items()
	out.CategoryDiscounts = d.store.CategoryDiscounts()
	if out.DiscountMode == enums.DiscountModeFlat {
		out.CategoryDiscounts = types.CategoryDiscounts{}
	}
	out.TotalAmount = totals.Gross
	out.TotalDiscount = totals.Discount
	out.NetAmount = totals.Net
	return &out, nil
}

func (d *Draft) discount() pricing.Discount {
	return pricing.Discount{Mode: d.order.DiscountMode, Value: d.order.DiscountValue}
}

func (d *Draft) fail(field, msg string) {
	d.errs = multierr.Append(d.errs, fieldError{field: field, msg: msg})
}

func (d *Draft) check(prefix string, block any) {
	err := blockValidator.Struct(block)
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		d.fail(prefix, err.Error())
		return
	}
	for _, fe := range verrs {
		d.fail(prefix+"."+fe.Field(), describe(fe))
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "email":
		return "must be a valid email"
	case "datetime":
		return "must be a date (YYYY-MM-DD)"
	case "numeric":
		return "must contain only digits"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	}
	return "is invalid"
}

// validationFrom flattens accumulated step errors into field details.
func validationFrom(message string, err error) error {
	fields := map[string]string{}
	for _, e := range multierr.Errors(err) {
		var fe fieldError
		if errors.As(e, &fe) {
			if _, seen := fields[fe.field]; !seen {
				fields[fe.field] = fe.msg
			}
			continue
		}
		fields["_"] = e.Error()
	}
	return pkgerrors.Validation(message, fields)
}
