// Package pricing holds the closed variant types shared by the fulfillment
// pipeline (fulfillment method, price unit, membership tier) and the pure
// fee policy. Cart preview, checkout-session building and trolley validation
// all call the same ComputeFees so the three can never disagree.
package pricing

import "github.com/shopspring/decimal"

type Method string

const (
	MethodDelivery Method = "delivery"
	MethodPickup   Method = "pickup"
)

func (m Method) Valid() bool {
	return m == MethodDelivery || m == MethodPickup
}

func (m Method) String() string {
	return string(m)
}

// UnitType distinguishes items counted per unit from items weighed in
// kilograms. The two take different computation paths everywhere money is
// involved: "ea" multiplies a unit price by an integer count, "kg" carries a
// precomputed total because fractional quantities are not representable as a
// gateway line-item quantity.
type UnitType string

const (
	UnitEach     UnitType = "ea"
	UnitKilogram UnitType = "kg"
)

func (u UnitType) Valid() bool {
	return u == UnitEach || u == UnitKilogram
}

type Tier string

const (
	TierNone       Tier = "none"
	TierSaver      Tier = "Saver"
	TierSuperSaver Tier = "Super Saver"
)

// All money is integer cents.
const (
	DeliveryFeeCents int64 = 870
	BagFeeCents      int64 = 150

	// FreeServiceThresholdCents (T1) waives the service fee for Saver and
	// above; FreeBagThresholdCents (T2) additionally waives the bag fee for
	// Super Saver. T1 > T2.
	FreeServiceThresholdCents int64 = 5000
	FreeBagThresholdCents     int64 = 3000
)

// ComputeFees maps (subtotal, method, tier) to (serviceFee, bagFee).
// Pure: no clock, no storage. Pickup never incurs the delivery fee.
func ComputeFees(subtotalCents int64, method Method, tier Tier) (serviceFeeCents, bagFeeCents int64) {
	serviceFee := int64(0)
	if method == MethodDelivery {
		serviceFee = DeliveryFeeCents
	}

	switch tier {
	case TierSaver:
		if subtotalCents >= FreeServiceThresholdCents {
			return 0, BagFeeCents
		}
		return serviceFee, BagFeeCents
	case TierSuperSaver:
		switch {
		case subtotalCents >= FreeServiceThresholdCents:
			return 0, 0
		case subtotalCents >= FreeBagThresholdCents:
			return 0, BagFeeCents
		default:
			return serviceFee, BagFeeCents
		}
	default:
		return serviceFee, BagFeeCents
	}
}

// LineTotal computes the price of one cart or order line in cents.
func LineTotal(unitPriceCents int64, unit UnitType, quantity decimal.Decimal) int64 {
	if unit == UnitEach {
		return unitPriceCents * quantity.IntPart()
	}
	return decimal.NewFromInt(unitPriceCents).Mul(quantity).Round(0).IntPart()
}
