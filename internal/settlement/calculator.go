// Package settlement turns a cart into a final bill: subtotal, discount,
// loyalty redemption, tax, and tips. All outputs are int64 cents.
package settlement

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"salondesk/backend/internal/domain"
	"salondesk/backend/internal/money"
)

var (
	ErrEmptyCart              = errors.New("cart is empty")
	ErrInvalidLine            = errors.New("invalid cart line")
	ErrInvalidDiscount        = errors.New("invalid discount")
	ErrDiscountReasonRequired = errors.New("discount reason required")
	ErrInvalidRedemption      = errors.New("invalid loyalty redemption")
	ErrInvalidTip             = errors.New("invalid tip allocation")
	ErrInsufficientPayment    = errors.New("insufficient payment")
	ErrPaymentMismatch        = errors.New("payment split mismatch")
	ErrUnsupportedPayment     = errors.New("unsupported payment method")
)

// reasonThresholdPercent: any discount above half the subtotal needs a
// recorded reason so large markdowns stay auditable.
const reasonThresholdPercent = 50

type Calculator struct {
	taxRate             decimal.Decimal
	pointValueCents     int64
	earnPointsPerDollar int64
}

func NewCalculator(taxRate decimal.Decimal, pointValueCents int64, earnPointsPerDollar int64) *Calculator {
	if pointValueCents < 1 {
		pointValueCents = 1
	}
	if earnPointsPerDollar < 0 {
		earnPointsPerDollar = 0
	}
	return &Calculator{
		taxRate:             taxRate,
		pointValueCents:     pointValueCents,
		earnPointsPerDollar: earnPointsPerDollar,
	}
}

// PointValueCents reports the cent value of one loyalty point.
func (c *Calculator) PointValueCents() int64 {
	return c.pointValueCents
}

// Compute settles a cart. The pipeline is fixed: subtotal, then discount
// (clamped to the subtotal), then loyalty redemption, then tax on what
// remains, then tips. availablePoints caps the redemption.
func (c *Calculator) Compute(lines []domain.CartLine, discount *domain.Discount, redeemPoints int64, availablePoints int64, tips []domain.TipAllocation) (domain.Settlement, error) {
	if len(lines) == 0 {
		return domain.Settlement{}, ErrEmptyCart
	}

	subtotal := int64(0)
	for _, line := range lines {
		if !isLineKindSupported(line.Kind) {
			return domain.Settlement{}, ErrInvalidLine
		}
		if strings.TrimSpace(line.Description) == "" {
			return domain.Settlement{}, ErrInvalidLine
		}
		if line.Qty < 1 || line.UnitPriceCents < 0 {
			return domain.Settlement{}, ErrInvalidLine
		}
		subtotal += int64(line.Qty) * line.UnitPriceCents
	}

	discountCents, err := resolveDiscount(discount, subtotal)
	if err != nil {
		return domain.Settlement{}, err
	}

	remaining := subtotal - discountCents

	if redeemPoints < 0 {
		return domain.Settlement{}, ErrInvalidRedemption
	}
	// Over-asking is not an error: the redemption is capped at the client's
	// balance and at what the discounted sale can absorb.
	if redeemPoints > availablePoints {
		redeemPoints = availablePoints
	}
	if maxPoints := remaining / c.pointValueCents; redeemPoints > maxPoints {
		redeemPoints = maxPoints
	}
	redeemedCents := money.PointsValue(redeemPoints, c.pointValueCents)

	taxable := remaining - redeemedCents
	taxCents := money.ApplyRate(taxable, c.taxRate)

	tipTotal := int64(0)
	for _, tip := range tips {
		if strings.TrimSpace(tip.StaffID) == "" || tip.AmountCents < 0 {
			return domain.Settlement{}, ErrInvalidTip
		}
		tipTotal += tip.AmountCents
	}

	total := taxable + taxCents + tipTotal

	// Points accrue on the full charge, tips included.
	earnable := money.EarnedPoints(total, c.earnPointsPerDollar)

	return domain.Settlement{
		SubtotalCents:  subtotal,
		DiscountCents:  discountCents,
		RedeemedPoints: redeemPoints,
		RedeemedCents:  redeemedCents,
		TaxableCents:   taxable,
		TaxCents:       taxCents,
		TipTotalCents:  tipTotal,
		TotalCents:     total,
		EarnablePoints: earnable,
	}, nil
}

func resolveDiscount(discount *domain.Discount, subtotalCents int64) (int64, error) {
	if discount == nil || discount.Type == "" {
		return 0, nil
	}

	var cents int64
	switch discount.Type {
	case domain.DiscountTypePercentage:
		if discount.Percent < 0 || discount.Percent > 100 {
			return 0, ErrInvalidDiscount
		}
		if discount.AmountCents != 0 {
			return 0, ErrInvalidDiscount
		}
		cents = money.PercentOf(subtotalCents, discount.Percent)
	case domain.DiscountTypeFixed:
		if discount.AmountCents < 0 || discount.Percent != 0 {
			return 0, ErrInvalidDiscount
		}
		cents = money.Clamp(discount.AmountCents, 0, subtotalCents)
	default:
		return 0, ErrInvalidDiscount
	}

	if subtotalCents > 0 && cents*100 > subtotalCents*reasonThresholdPercent {
		if strings.TrimSpace(discount.Reason) == "" {
			return 0, ErrDiscountReasonRequired
		}
	}
	return cents, nil
}

// PaymentResolution is the outcome of validating tender against a settled
// total: how much of each kind was applied and any change due.
type PaymentResolution struct {
	CashAppliedCents   int64
	CardAppliedCents   int64
	CreditAppliedCents int64
	ChangeCents        int64
}

// VerifyPayment checks the tendered payment against the settled total.
// For cash the drawer keeps the exact total and change is returned from
// cash received; split tenders must sum to the total exactly.
func VerifyPayment(totalCents int64, method string, reference string, splits []domain.PaymentSplit, cashReceivedCents int64) (PaymentResolution, error) {
	switch method {
	case domain.PaymentMethodCash:
		if cashReceivedCents < totalCents {
			return PaymentResolution{}, ErrInsufficientPayment
		}
		return PaymentResolution{
			CashAppliedCents: totalCents,
			ChangeCents:      cashReceivedCents - totalCents,
		}, nil

	case domain.PaymentMethodCard:
		if strings.TrimSpace(reference) == "" {
			return PaymentResolution{}, ErrUnsupportedPayment
		}
		return PaymentResolution{CardAppliedCents: totalCents}, nil

	case domain.PaymentMethodCredit:
		return PaymentResolution{CreditAppliedCents: totalCents}, nil

	case domain.PaymentMethodSplit:
		if len(splits) < 2 {
			return PaymentResolution{}, ErrPaymentMismatch
		}
		var res PaymentResolution
		sum := int64(0)
		for _, split := range splits {
			if split.AmountCents < 1 {
				return PaymentResolution{}, ErrPaymentMismatch
			}
			switch split.Method {
			case domain.PaymentMethodCash:
				res.CashAppliedCents += split.AmountCents
			case domain.PaymentMethodCard:
				if strings.TrimSpace(split.Reference) == "" {
					return PaymentResolution{}, ErrPaymentMismatch
				}
				res.CardAppliedCents += split.AmountCents
			case domain.PaymentMethodCredit:
				res.CreditAppliedCents += split.AmountCents
			default:
				return PaymentResolution{}, ErrUnsupportedPayment
			}
			sum += split.AmountCents
		}
		if sum != totalCents {
			return PaymentResolution{}, ErrPaymentMismatch
		}
		return res, nil

	default:
		return PaymentResolution{}, ErrUnsupportedPayment
	}
}

func isLineKindSupported(kind string) bool {
	switch kind {
	case domain.LineKindAppointment, domain.LineKindTreatment, domain.LineKindProduct:
		return true
	default:
		return false
	}
}
