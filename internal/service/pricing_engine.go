package service

import (
	"fmt"
	"math"

	"github.com/noah-isme/edu-billing-api/internal/models"
	appErrors "github.com/noah-isme/edu-billing-api/pkg/errors"
)

// DiscountPolicy controls how an AMOUNT discount larger than the base price
// is handled.
type DiscountPolicy string

const (
	// DiscountPolicyClamp silently limits the discount to the base price.
	DiscountPolicyClamp DiscountPolicy = "clamp"
	// DiscountPolicyReject fails validation instead.
	DiscountPolicyReject DiscountPolicy = "reject"
)

// Discount describes the caller-supplied discount input.
type Discount struct {
	Type  models.DiscountType `json:"type"`
	Value float64             `json:"value"`
}

// PriceBreakdown is the computed pricing tuple. Values are carried in full
// float64 precision; Round2 is applied only where a value is persisted or
// displayed.
type PriceBreakdown struct {
	BasePrice      float64 `json:"base_price"`
	DiscountAmount float64 `json:"discount_amount"`
	Subtotal       float64 `json:"subtotal"`
	TaxRate        float64 `json:"tax_rate"`
	TaxAmount      float64 `json:"tax_amount"`
	FinalPrice     float64 `json:"final_price"`
}

// Round2 rounds to the currency's minor unit. The single rounding boundary
// for the whole engine.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ComputeBreakdown derives the price breakdown from a base price, a discount
// and a tax rate. Pure: no I/O, no state, identical inputs yield identical
// output.
func ComputeBreakdown(basePrice float64, discount Discount, taxRate float64, policy DiscountPolicy) (PriceBreakdown, error) {
	if basePrice < 0 {
		return PriceBreakdown{}, appErrors.Clone(appErrors.ErrValidation, "base price must be non-negative")
	}
	if taxRate < 0 || taxRate > 1 {
		return PriceBreakdown{}, appErrors.Clone(appErrors.ErrValidation, "tax rate must be a fraction between 0 and 1")
	}

	var discountAmount float64
	switch discount.Type {
	case models.DiscountNone, "":
		discountAmount = 0
	case models.DiscountPercentage:
		if discount.Value < 0 || discount.Value > 100 {
			return PriceBreakdown{}, appErrors.Clone(appErrors.ErrValidation, "percentage discount must be between 0 and 100")
		}
		discountAmount = basePrice * discount.Value / 100
	case models.DiscountAmount:
		if discount.Value < 0 {
			return PriceBreakdown{}, appErrors.Clone(appErrors.ErrValidation, "amount discount must be non-negative")
		}
		if discount.Value > basePrice {
			if policy == DiscountPolicyReject {
				return PriceBreakdown{}, appErrors.Clone(appErrors.ErrValidation, "amount discount exceeds base price")
			}
			discountAmount = basePrice
		} else {
			discountAmount = discount.Value
		}
	default:
		return PriceBreakdown{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown discount type %q", discount.Type))
	}

	subtotal := basePrice - discountAmount
	taxAmount := subtotal * taxRate

	return PriceBreakdown{
		BasePrice:      basePrice,
		DiscountAmount: discountAmount,
		Subtotal:       subtotal,
		TaxRate:        taxRate,
		TaxAmount:      taxAmount,
		FinalPrice:     subtotal + taxAmount,
	}, nil
}

// SplitInstallments splits a final price into n installment amounts whose sum
// equals the rounded final price exactly in minor units: the first n-1 share
// the rounded division and the last absorbs the remainder.
func SplitInstallments(finalPrice float64, n int) ([]float64, error) {
	if n < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "installment count must be at least 1")
	}
	if finalPrice < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "final price must be non-negative")
	}

	total := Round2(finalPrice)
	if n == 1 {
		return []float64{total}, nil
	}

	each := Round2(total / float64(n))
	amounts := make([]float64, n)
	var running float64
	for i := 0; i < n-1; i++ {
		amounts[i] = each
		running += each
	}
	amounts[n-1] = Round2(total - running)
	return amounts, nil
}
