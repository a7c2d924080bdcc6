package settlement

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"salondesk/backend/internal/domain"
)

func newTestCalculator(t *testing.T) *Calculator {
	t.Helper()
	rate, err := decimal.NewFromString("0.15")
	if err != nil {
		t.Fatalf("parse rate: %v", err)
	}
	return NewCalculator(rate, 1, 10)
}

func TestComputeFullPipeline(t *testing.T) {
	calc := newTestCalculator(t)

	// $100 service, 10% discount, 15% tax, $10 tip.
	got, err := calc.Compute(
		[]domain.CartLine{
			{Kind: domain.LineKindAppointment, Description: "Hair color", UnitPriceCents: 10000, Qty: 1, StaffID: "staff-ana"},
		},
		&domain.Discount{Type: domain.DiscountTypePercentage, Percent: 10},
		0, 0,
		[]domain.TipAllocation{{StaffID: "staff-ana", AmountCents: 1000}},
	)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if got.SubtotalCents != 10000 {
		t.Errorf("subtotal = %d, want 10000", got.SubtotalCents)
	}
	if got.DiscountCents != 1000 {
		t.Errorf("discount = %d, want 1000", got.DiscountCents)
	}
	if got.TaxableCents != 9000 {
		t.Errorf("taxable = %d, want 9000", got.TaxableCents)
	}
	if got.TaxCents != 1350 {
		t.Errorf("tax = %d, want 1350", got.TaxCents)
	}
	if got.TipTotalCents != 1000 {
		t.Errorf("tip total = %d, want 1000", got.TipTotalCents)
	}
	if got.TotalCents != 11350 {
		t.Errorf("total = %d, want 11350", got.TotalCents)
	}
	// Points accrue on the full 11350 charge, tip included.
	if got.EarnablePoints != 1135 {
		t.Errorf("earnable points = %d, want 1135", got.EarnablePoints)
	}
}

func TestComputeFixedDiscountClampedToSubtotal(t *testing.T) {
	calc := newTestCalculator(t)

	got, err := calc.Compute(
		[]domain.CartLine{
			{Kind: domain.LineKindProduct, Description: "Shampoo", UnitPriceCents: 2000, Qty: 1},
		},
		&domain.Discount{Type: domain.DiscountTypeFixed, AmountCents: 5000, Reason: "damaged packaging"},
		0, 0, nil,
	)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got.DiscountCents != 2000 {
		t.Errorf("discount = %d, want clamp to 2000", got.DiscountCents)
	}
	if got.TotalCents != 0 {
		t.Errorf("total = %d, want 0", got.TotalCents)
	}
	if got.TaxCents != 0 {
		t.Errorf("tax = %d, want 0", got.TaxCents)
	}
}

func TestComputeLargeDiscountRequiresReason(t *testing.T) {
	calc := newTestCalculator(t)

	lines := []domain.CartLine{
		{Kind: domain.LineKindAppointment, Description: "Manicure", UnitPriceCents: 5000, Qty: 1},
	}

	// $30 off a $50 service with no reason is rejected.
	_, err := calc.Compute(lines, &domain.Discount{Type: domain.DiscountTypeFixed, AmountCents: 3000}, 0, 0, nil)
	if !errors.Is(err, ErrDiscountReasonRequired) {
		t.Fatalf("expected ErrDiscountReasonRequired, got %v", err)
	}

	// Same discount with a reason passes.
	got, err := calc.Compute(lines, &domain.Discount{Type: domain.DiscountTypeFixed, AmountCents: 3000, Reason: "service recovery"}, 0, 0, nil)
	if err != nil {
		t.Fatalf("compute with reason: %v", err)
	}
	if got.DiscountCents != 3000 {
		t.Errorf("discount = %d, want 3000", got.DiscountCents)
	}

	// Exactly 50% does not need a reason.
	if _, err := calc.Compute(lines, &domain.Discount{Type: domain.DiscountTypePercentage, Percent: 50}, 0, 0, nil); err != nil {
		t.Fatalf("50%% discount should not require reason: %v", err)
	}
	if _, err := calc.Compute(lines, &domain.Discount{Type: domain.DiscountTypePercentage, Percent: 51}, 0, 0, nil); !errors.Is(err, ErrDiscountReasonRequired) {
		t.Fatalf("51%% discount should require reason, got %v", err)
	}
}

func TestComputeRejectsInvalidDiscounts(t *testing.T) {
	calc := newTestCalculator(t)
	lines := []domain.CartLine{
		{Kind: domain.LineKindAppointment, Description: "Blowout", UnitPriceCents: 4000, Qty: 1},
	}

	for name, discount := range map[string]*domain.Discount{
		"negative percent":  {Type: domain.DiscountTypePercentage, Percent: -5},
		"over 100 percent":  {Type: domain.DiscountTypePercentage, Percent: 120},
		"negative fixed":    {Type: domain.DiscountTypeFixed, AmountCents: -100},
		"unknown type":      {Type: "bogus", AmountCents: 100},
		"mixed percent+amt": {Type: domain.DiscountTypePercentage, Percent: 10, AmountCents: 50},
	} {
		if _, err := calc.Compute(lines, discount, 0, 0, nil); !errors.Is(err, ErrInvalidDiscount) {
			t.Errorf("%s: expected ErrInvalidDiscount, got %v", name, err)
		}
	}
}

func TestComputeLoyaltyRedemption(t *testing.T) {
	calc := newTestCalculator(t)
	lines := []domain.CartLine{
		{Kind: domain.LineKindTreatment, Description: "Facial", UnitPriceCents: 8000, Qty: 1},
	}

	got, err := calc.Compute(lines, nil, 500, 1200, nil)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got.RedeemedPoints != 500 || got.RedeemedCents != 500 {
		t.Errorf("redeemed = %d pts / %d cents, want 500/500", got.RedeemedPoints, got.RedeemedCents)
	}
	if got.TaxableCents != 7500 {
		t.Errorf("taxable = %d, want 7500", got.TaxableCents)
	}
	if got.TaxCents != 1125 {
		t.Errorf("tax = %d, want 1125", got.TaxCents)
	}

	// Asking for more points than the client has clamps to the balance.
	got, err = calc.Compute(lines, nil, 1500, 1200, nil)
	if err != nil {
		t.Fatalf("compute overdrawn: %v", err)
	}
	if got.RedeemedPoints != 1200 || got.RedeemedCents != 1200 {
		t.Errorf("redeemed = %d pts / %d cents, want clamp to 1200/1200", got.RedeemedPoints, got.RedeemedCents)
	}
	if got.TaxableCents != 6800 {
		t.Errorf("taxable = %d, want 6800", got.TaxableCents)
	}

	// Redemption value beyond the discounted subtotal clamps to the sale.
	got, err = calc.Compute(lines, nil, 9000, 9000, nil)
	if err != nil {
		t.Fatalf("compute oversized: %v", err)
	}
	if got.RedeemedPoints != 8000 || got.RedeemedCents != 8000 {
		t.Errorf("redeemed = %d pts / %d cents, want clamp to 8000/8000", got.RedeemedPoints, got.RedeemedCents)
	}
	if got.TaxableCents != 0 || got.TotalCents != 0 {
		t.Errorf("taxable = %d total = %d, want 0/0", got.TaxableCents, got.TotalCents)
	}

	if _, err := calc.Compute(lines, nil, -1, 1200, nil); !errors.Is(err, ErrInvalidRedemption) {
		t.Fatalf("expected ErrInvalidRedemption for negative points, got %v", err)
	}
}

func TestComputeRejectsBadLinesAndTips(t *testing.T) {
	calc := newTestCalculator(t)

	if _, err := calc.Compute(nil, nil, 0, 0, nil); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}

	bad := [][]domain.CartLine{
		{{Kind: "membership", Description: "x", UnitPriceCents: 100, Qty: 1}},
		{{Kind: domain.LineKindAppointment, Description: "", UnitPriceCents: 100, Qty: 1}},
		{{Kind: domain.LineKindAppointment, Description: "x", UnitPriceCents: 100, Qty: 0}},
		{{Kind: domain.LineKindAppointment, Description: "x", UnitPriceCents: -100, Qty: 1}},
	}
	for i, lines := range bad {
		if _, err := calc.Compute(lines, nil, 0, 0, nil); !errors.Is(err, ErrInvalidLine) {
			t.Errorf("case %d: expected ErrInvalidLine, got %v", i, err)
		}
	}

	lines := []domain.CartLine{
		{Kind: domain.LineKindAppointment, Description: "Trim", UnitPriceCents: 3000, Qty: 1},
	}
	if _, err := calc.Compute(lines, nil, 0, 0, []domain.TipAllocation{{StaffID: "", AmountCents: 500}}); !errors.Is(err, ErrInvalidTip) {
		t.Fatalf("expected ErrInvalidTip for missing staff, got %v", err)
	}
	if _, err := calc.Compute(lines, nil, 0, 0, []domain.TipAllocation{{StaffID: "staff-bo", AmountCents: -1}}); !errors.Is(err, ErrInvalidTip) {
		t.Fatalf("expected ErrInvalidTip for negative tip, got %v", err)
	}
}

func TestVerifyPaymentCash(t *testing.T) {
	res, err := VerifyPayment(11350, domain.PaymentMethodCash, "", nil, 12000)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.CashAppliedCents != 11350 || res.ChangeCents != 650 {
		t.Fatalf("cash=%d change=%d, want 11350/650", res.CashAppliedCents, res.ChangeCents)
	}

	if _, err := VerifyPayment(11350, domain.PaymentMethodCash, "", nil, 11000); !errors.Is(err, ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}
}

func TestVerifyPaymentCardNeedsReference(t *testing.T) {
	if _, err := VerifyPayment(5000, domain.PaymentMethodCard, "", nil, 0); !errors.Is(err, ErrUnsupportedPayment) {
		t.Fatalf("expected ErrUnsupportedPayment without reference, got %v", err)
	}
	res, err := VerifyPayment(5000, domain.PaymentMethodCard, "AUTH-123", nil, 0)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.CardAppliedCents != 5000 || res.ChangeCents != 0 {
		t.Fatalf("unexpected resolution %+v", res)
	}
}

func TestVerifyPaymentSplit(t *testing.T) {
	splits := []domain.PaymentSplit{
		{Method: domain.PaymentMethodCash, AmountCents: 4000},
		{Method: domain.PaymentMethodCard, AmountCents: 5000, Reference: "AUTH-9"},
		{Method: domain.PaymentMethodCredit, AmountCents: 2350},
	}
	res, err := VerifyPayment(11350, domain.PaymentMethodSplit, "", splits, 0)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.CashAppliedCents != 4000 || res.CardAppliedCents != 5000 || res.CreditAppliedCents != 2350 {
		t.Fatalf("unexpected resolution %+v", res)
	}

	// Short one cent.
	short := []domain.PaymentSplit{
		{Method: domain.PaymentMethodCash, AmountCents: 4000},
		{Method: domain.PaymentMethodCard, AmountCents: 7349, Reference: "AUTH-9"},
	}
	if _, err := VerifyPayment(11350, domain.PaymentMethodSplit, "", short, 0); !errors.Is(err, ErrPaymentMismatch) {
		t.Fatalf("expected ErrPaymentMismatch, got %v", err)
	}

	// A single split is not a split.
	one := []domain.PaymentSplit{{Method: domain.PaymentMethodCash, AmountCents: 11350}}
	if _, err := VerifyPayment(11350, domain.PaymentMethodSplit, "", one, 0); !errors.Is(err, ErrPaymentMismatch) {
		t.Fatalf("expected ErrPaymentMismatch for single split, got %v", err)
	}

	bogus := []domain.PaymentSplit{
		{Method: "check", AmountCents: 4000},
		{Method: domain.PaymentMethodCash, AmountCents: 7350},
	}
	if _, err := VerifyPayment(11350, domain.PaymentMethodSplit, "", bogus, 0); !errors.Is(err, ErrUnsupportedPayment) {
		t.Fatalf("expected ErrUnsupportedPayment, got %v", err)
	}
}

func TestVerifyPaymentCredit(t *testing.T) {
	res, err := VerifyPayment(3000, domain.PaymentMethodCredit, "", nil, 0)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.CreditAppliedCents != 3000 {
		t.Fatalf("credit = %d, want 3000", res.CreditAppliedCents)
	}
}
