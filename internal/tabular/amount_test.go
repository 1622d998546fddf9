package tabular

import (
	"math"
	"strconv"
	"testing"
)

// TestParseAmount_String は文字列入力のヒューリスティックパースを検証する。
func TestParseAmount_String(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		// 基本
		{"123", 123},
		{"123.45", 123.45},
		{"-123.45", -123.45},
		{"  42  ", 42},
		// 括弧による負数表記
		{"(123.45)", -123.45},
		{"(1,234.50)", -1234.5},
		// 通貨トークン
		{"₹1,500", 1500},
		{"Rs. 2,000", 2000},
		{"INR 999", 999},
		{"rupees 50", 50},
		{"1500/-", 1500},
		{"Rs 1,000/-", 1000},
		// 桁区切りサフィックス
		{"2.5L", 250000},
		{"2.5 lakh", 250000},
		{"3 Lakhs", 300000},
		{"1Cr", 10000000},
		{"1.5 crore", 15000000},
		{"2 Crores", 20000000},
		// 桁区切りカンマ
		{"1,234.56", 1234.56},
		{"12,34,567", 1234567},
		// 非先頭の負号は除去される
		{"12-34", 1234},
		{"--5", -5},
		// 特殊空白
		{" 1,000 ", 1000},
		// パース不能
		{"abc", 0},
		{"", 0},
		{"   ", 0},
		{"()", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseAmount(tt.input)
			if got != tt.want {
				t.Errorf("ParseAmount(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// TestParseAmount_Numbers は数値入力がそのまま返ることを検証する。
func TestParseAmount_Numbers(t *testing.T) {
	if got := ParseAmount(42.5); got != 42.5 {
		t.Errorf("ParseAmount(42.5) = %v, want 42.5", got)
	}
	if got := ParseAmount(7); got != 7 {
		t.Errorf("ParseAmount(7) = %v, want 7", got)
	}
	if got := ParseAmount(int64(-3)); got != -3 {
		t.Errorf("ParseAmount(int64(-3)) = %v, want -3", got)
	}
	// 非有限値は0
	if got := ParseAmount(math.NaN()); got != 0 {
		t.Errorf("ParseAmount(NaN) = %v, want 0", got)
	}
	if got := ParseAmount(math.Inf(1)); got != 0 {
		t.Errorf("ParseAmount(+Inf) = %v, want 0", got)
	}
}

// TestParseAmount_NilAndUnknown はnilや未対応型が0になることを検証する。
func TestParseAmount_NilAndUnknown(t *testing.T) {
	if got := ParseAmount(nil); got != 0 {
		t.Errorf("ParseAmount(nil) = %v, want 0", got)
	}
	if got := ParseAmount(struct{}{}); got != 0 {
		t.Errorf("ParseAmount(struct{}{}) = %v, want 0", got)
	}
}

// TestParseAmount_RoundTrip は通貨トークンやサフィックスを含まない整数の
// ラウンドトリップを検証する。
func TestParseAmount_RoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, 42, 999, 10000, 123456789, -500} {
		s := strconv.FormatInt(n, 10)
		if got := ParseAmount(s); got != float64(n) {
			t.Errorf("ParseAmount(%q) = %v, want %d", s, got, n)
		}
	}
}
