package coupon

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CartItem is a line item submitted for discount verification.
type CartItem struct {
	ProductID string
	Price     decimal.Decimal
	Quantity  int
}

// Quote is the outcome of applying a coupon to a price or a cart.
// DiscountAmount and FinalPrice are rounded to two decimal places;
// OriginalPrice is rounded for cart quotes and echoed as given for
// price-only quotes.
type Quote struct {
	DiscountPercentage decimal.Decimal
	OriginalPrice      decimal.Decimal
	DiscountAmount     decimal.Decimal
	FinalPrice         decimal.Decimal
}

// QuotePrice applies the coupon's percentage to a single price.
// Intermediate arithmetic stays at full precision; only the discount and
// final amounts are rounded.
func QuotePrice(c *Coupon, price decimal.Decimal) Quote {
	amount := price.Mul(c.DiscountPercentage).Div(hundred)

	return Quote{
		DiscountPercentage: c.DiscountPercentage,
		OriginalPrice:      price,
		DiscountAmount:     amount.Round(2),
		FinalPrice:         price.Sub(amount).Round(2),
	}
}

// QuoteCart applies the coupon to a cart. A coupon with an empty
// ValidForProducts list discounts the whole cart subtotal; a non-empty list
// discounts only matching line items, while every item still counts toward
// the reported original price. When no item matches an eligible product the
// quote fails with ErrNoEligibleItems.
func QuoteCart(c *Coupon, items []CartItem) (Quote, error) {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(lineTotal(item))
	}

	discount := decimal.Zero
	if len(c.ValidForProducts) > 0 {
		eligible := make(map[string]struct{}, len(c.ValidForProducts))
		for _, id := range c.ValidForProducts {
			eligible[id] = struct{}{}
		}

		matched := false
		for _, item := range items {
			if _, ok := eligible[item.ProductID]; !ok {
				continue
			}
			matched = true
			discount = discount.Add(lineTotal(item).Mul(c.DiscountPercentage).Div(hundred))
		}
		if !matched {
			return Quote{}, ErrNoEligibleItems
		}
	} else {
		discount = subtotal.Mul(c.DiscountPercentage).Div(hundred)
	}

	return Quote{
		DiscountPercentage: c.DiscountPercentage,
		OriginalPrice:      subtotal.Round(2),
		DiscountAmount:     discount.Round(2),
		FinalPrice:         subtotal.Sub(discount).Round(2),
	}, nil
}

func lineTotal(item CartItem) decimal.Decimal {
	return item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
}
