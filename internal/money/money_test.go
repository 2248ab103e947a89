package money

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRound2(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"1.005", "1.01"},
		{"1.004", "1.00"},
		{"2.675", "2.68"},
		{"0.125", "0.13"},
		{"-1.005", "-1.01"},
		{"10", "10.00"},
		{"3.705", "3.71"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(Round2(MustParse(tt.in))))
		})
	}
}

func TestParse(t *testing.T) {
	fallback := MustParse("9.99")
	tests := []struct {
		name     string
		in       any
		expected string
	}{
		{"Nil", nil, "9.99"},
		{"Empty string", "", "9.99"},
		{"Whitespace", "  ", "9.99"},
		{"Malformed", "12,50", "9.99"},
		{"String", " 12.50 ", "12.50"},
		{"Float", 12.5, "12.50"},
		{"NaN", math.NaN(), "9.99"},
		{"Inf", math.Inf(1), "9.99"},
		{"Int", 12, "12.00"},
		{"Json number", json.Number("7.25"), "7.25"},
		{"Bytes", []byte("1.1"), "1.10"},
		{"Unsupported", struct{}{}, "9.99"},
		{"Decimal", decimal.NewFromInt(3), "3.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(Parse(tt.in, fallback)))
		})
	}
}

func TestCents(t *testing.T) {
	assert.Equal(t, int64(15000), ToCents(MustParse("150")))
	assert.Equal(t, int64(1001), ToCents(MustParse("10.005")))
	assert.Equal(t, "12.34", Format(FromCents(1234)))
}

func TestClamp(t *testing.T) {
	lo, hi := MustParse("0"), MustParse("10")
	assert.Equal(t, "0.00", Format(Clamp(MustParse("-1"), lo, hi)))
	assert.Equal(t, "10.00", Format(Clamp(MustParse("11"), lo, hi)))
	assert.Equal(t, "5.00", Format(Clamp(MustParse("5"), lo, hi)))
	assert.Equal(t, "0.00", Format(NonNegative(MustParse("-3"))))
	assert.Equal(t, "6.00", Format(Sum(MustParse("1"), MustParse("2"), MustParse("3"))))
}
