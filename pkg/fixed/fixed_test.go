package fixed

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFromBigToBig(t *testing.T) {
	tests := []struct {
		name string
		raw  int64
		want string
	}{
		{"one", 1_000_000, "1"},
		{"negative price", -1_100_000_000, "-1100"},
		{"sub unit", 1, "0.000001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromBig(big.NewInt(tt.raw))
			if got.String() != tt.want {
				t.Errorf("FromBig(%d) = %s, want %s", tt.raw, got, tt.want)
			}
			if back := ToBig(got); back.Int64() != tt.raw {
				t.Errorf("ToBig(%s) = %s, want %d", got, back, tt.raw)
			}
		})
	}
}

func TestToBigTruncates(t *testing.T) {
	d := decimal.RequireFromString("1.0000019")
	if got := ToBig(d).Int64(); got != 1_000_001 {
		t.Errorf("ToBig = %d, want 1000001", got)
	}
}

func TestParse(t *testing.T) {
	if _, err := Parse("12.5"); err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if _, err := Parse("0.0000001"); err == nil {
		t.Error("expected error for 7 decimal places")
	}
	if _, err := Parse("abc"); err == nil {
		t.Error("expected error for garbage")
	}
}

func TestFromWei(t *testing.T) {
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	if !FromWei(wei).Equal(One) {
		t.Errorf("FromWei(1e18) = %s, want 1", FromWei(wei))
	}
}
