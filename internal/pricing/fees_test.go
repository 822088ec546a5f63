package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"grocery-backend/internal/pricing"
)

func TestComputeFees(t *testing.T) {
	tests := []struct {
		name           string
		subtotal       int64
		method         pricing.Method
		tier           pricing.Tier
		wantServiceFee int64
		wantBagFee     int64
	}{
		{
			name:           "none_delivery",
			subtotal:       1000,
			method:         pricing.MethodDelivery,
			tier:           pricing.TierNone,
			wantServiceFee: pricing.DeliveryFeeCents,
			wantBagFee:     pricing.BagFeeCents,
		},
		{
			name:           "none_pickup_no_delivery_fee",
			subtotal:       1000,
			method:         pricing.MethodPickup,
			tier:           pricing.TierNone,
			wantServiceFee: 0,
			wantBagFee:     pricing.BagFeeCents,
		},
		{
			name:           "none_large_subtotal_still_pays",
			subtotal:       100000,
			method:         pricing.MethodDelivery,
			tier:           pricing.TierNone,
			wantServiceFee: pricing.DeliveryFeeCents,
			wantBagFee:     pricing.BagFeeCents,
		},
		{
			name:           "saver_above_threshold",
			subtotal:       pricing.FreeServiceThresholdCents,
			method:         pricing.MethodDelivery,
			tier:           pricing.TierSaver,
			wantServiceFee: 0,
			wantBagFee:     pricing.BagFeeCents,
		},
		{
			name:           "saver_below_threshold",
			subtotal:       pricing.FreeServiceThresholdCents - 1,
			method:         pricing.MethodDelivery,
			tier:           pricing.TierSaver,
			wantServiceFee: pricing.DeliveryFeeCents,
			wantBagFee:     pricing.BagFeeCents,
		},
		{
			name:           "saver_below_threshold_pickup",
			subtotal:       pricing.FreeServiceThresholdCents - 1,
			method:         pricing.MethodPickup,
			tier:           pricing.TierSaver,
			wantServiceFee: 0,
			wantBagFee:     pricing.BagFeeCents,
		},
		{
			name:           "super_saver_above_t1",
			subtotal:       8000,
			method:         pricing.MethodDelivery,
			tier:           pricing.TierSuperSaver,
			wantServiceFee: 0,
			wantBagFee:     0,
		},
		{
			name:           "super_saver_between_t2_and_t1",
			subtotal:       pricing.FreeBagThresholdCents,
			method:         pricing.MethodDelivery,
			tier:           pricing.TierSuperSaver,
			wantServiceFee: 0,
			wantBagFee:     pricing.BagFeeCents,
		},
		{
			name:           "super_saver_below_t2",
			subtotal:       pricing.FreeBagThresholdCents - 1,
			method:         pricing.MethodDelivery,
			tier:           pricing.TierSuperSaver,
			wantServiceFee: pricing.DeliveryFeeCents,
			wantBagFee:     pricing.BagFeeCents,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serviceFee, bagFee := pricing.ComputeFees(tt.subtotal, tt.method, tt.tier)
			assert.Equal(t, tt.wantServiceFee, serviceFee)
			assert.Equal(t, tt.wantBagFee, bagFee)
		})
	}
}

func TestComputeFeesIsPure(t *testing.T) {
	for i := 0; i < 3; i++ {
		serviceFee, bagFee := pricing.ComputeFees(1000, pricing.MethodDelivery, pricing.TierNone)
		assert.Equal(t, pricing.DeliveryFeeCents, serviceFee)
		assert.Equal(t, pricing.BagFeeCents, bagFee)
	}
}

func TestLineTotal(t *testing.T) {
	tests := []struct {
		name     string
		price    int64
		unit     pricing.UnitType
		quantity string
		want     int64
	}{
		{name: "each", price: 250, unit: pricing.UnitEach, quantity: "3", want: 750},
		{name: "weight_whole", price: 499, unit: pricing.UnitKilogram, quantity: "2", want: 998},
		{name: "weight_fractional", price: 1000, unit: pricing.UnitKilogram, quantity: "1.5", want: 1500},
		{name: "weight_rounded", price: 333, unit: pricing.UnitKilogram, quantity: "0.5", want: 167},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qty := decimal.RequireFromString(tt.quantity)
			assert.Equal(t, tt.want, pricing.LineTotal(tt.price, tt.unit, qty))
		})
	}
}
