package asset

import (
	"math/big"
	"testing"
)

func TestFromRaw(t *testing.T) {
	tests := []struct {
		name     string
		decimals int32
		raw      string
		want     string
	}{
		{"usdc six decimals", 6, "1500000", "1.5"},
		{"eth eighteen decimals", 18, "2000000000000000000", "2"},
		{"zero raw", 18, "0", "0"},
		{"sub unit", 6, "1", "0.000001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := MustNew("X", tt.decimals)
			raw, _ := new(big.Int).SetString(tt.raw, 10)
			if got := a.FromRaw(raw).String(); got != tt.want {
				t.Errorf("FromRaw(%s) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestToRaw_RoundTrip(t *testing.T) {
	a := MustNew("USDC", 6)
	raw := big.NewInt(1234567)
	got := a.ToRaw(a.FromRaw(raw))
	if got.Cmp(raw) != 0 {
		t.Errorf("round trip = %s, want %s", got, raw)
	}
}

func TestNew_Rejections(t *testing.T) {
	if _, err := New("", 6); err == nil {
		t.Error("New with empty symbol: want error")
	}
	if _, err := New("ETH", 31); err == nil {
		t.Error("New with decimals 31: want error")
	}
}

func TestParsePair(t *testing.T) {
	tests := []struct {
		in      string
		want    Pair
		wantErr bool
	}{
		{"ETH-USDC", Pair{"ETH", "USDC"}, false},
		{"eth/usdc", Pair{"ETH", "USDC"}, false},
		{"BTC-USDT", Pair{"BTC", "USDT"}, false},
		{"ETHUSDC", Pair{}, true},
		{"-USDC", Pair{}, true},
	}

	for _, tt := range tests {
		got, err := ParsePair(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePair(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParsePair(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
