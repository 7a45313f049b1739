package usecases

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculateFee(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		cfg    FeeConfig
		want   string
	}{
		{
			name:   "minimum floor applies",
			amount: "10",
			cfg:    FeeConfig{Rate: d("0.01"), Fixed: d("0"), Minimum: d("5")},
			want:   "5",
		},
		{
			name:   "rate plus fixed above floor",
			amount: "1000",
			cfg:    FeeConfig{Rate: d("0.025"), Fixed: d("1"), Minimum: d("0")},
			want:   "26",
		},
		{
			name:   "exactly at minimum",
			amount: "500",
			cfg:    FeeConfig{Rate: d("0.01"), Fixed: d("0"), Minimum: d("5")},
			want:   "5",
		},
		{
			name:   "zero config yields zero fee",
			amount: "123.45",
			cfg:    FeeConfig{},
			want:   "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateFee(d(tt.amount), tt.cfg)
			assert.True(t, got.Equal(d(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestApplyFee(t *testing.T) {
	cfg := FeeConfig{Rate: d("0.025"), Fixed: d("1"), Minimum: d("0")}

	fee, payout := ApplyFee(d("1000"), cfg, FeeModeInternal)
	assert.True(t, fee.Equal(d("26")), "fee %s", fee)
	assert.True(t, payout.Equal(d("974")), "payout %s", payout)

	fee, total := ApplyFee(d("1000"), cfg, FeeModeExternal)
	assert.True(t, fee.Equal(d("26")), "fee %s", fee)
	assert.True(t, total.Equal(d("1026")), "total %s", total)
}
