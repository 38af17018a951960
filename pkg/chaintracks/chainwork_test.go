package chaintracks

import (
	"math/big"
	"testing"
)

func TestCompactToBig(t *testing.T) {
	tests := []struct {
		name     string
		compact  uint32
		expected string // hex representation
	}{
		{
			name:     "genesis block mainnet",
			compact:  0x1d00ffff,
			expected: "00000000ffff0000000000000000000000000000000000000000000000000000",
		},
		{
			name:     "typical difficulty",
			compact:  0x1b0404cb,
			expected: "00000000000404cb000000000000000000000000000000000000000000000000",
		},
		{
			name:     "regtest limit",
			compact:  0x207fffff,
			expected: "7fffff0000000000000000000000000000000000000000000000000000000000",
		},
		{
			name:     "small exponent",
			compact:  0x03123456,
			expected: "123456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CompactToBig(tt.compact)
			expected := new(big.Int)
			expected.SetString(tt.expected, 16)

			if result.Cmp(expected) != 0 {
				t.Errorf("CompactToBig(%x) = %x, expected %x", tt.compact, result, expected)
			}
		})
	}
}

func TestCalculateWork(t *testing.T) {
	tests := []struct {
		name     string
		bits     uint32
		expected int64 // 0 means only positivity is checked
	}{
		{
			name: "genesis difficulty",
			bits: 0x1d00ffff,
			// 2^256 / (0xffff * 2^208 + 1)
			expected: 0x100010001,
		},
		{
			name: "typical difficulty",
			bits: 0x1b0404cb,
		},
		{
			name:     "regtest limit",
			bits:     0x207fffff,
			expected: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			work := CalculateWork(tt.bits)
			if work.Sign() <= 0 {
				t.Fatalf("CalculateWork(%x) returned non-positive work: %v", tt.bits, work)
			}
			if tt.expected != 0 && work.Cmp(big.NewInt(tt.expected)) != 0 {
				t.Errorf("CalculateWork(%x) = %v, expected %v", tt.bits, work, tt.expected)
			}
		})
	}
}

func TestCalculateWork_NegativeTarget(t *testing.T) {
	if work := CalculateWork(0x01810000); work.Sign() != 0 {
		t.Errorf("CalculateWork() with negative target = %v, expected 0", work)
	}
}

func TestAddWork(t *testing.T) {
	bits := uint32(0x1d00ffff)
	initial := big.NewInt(0)

	result := AddWork(initial, bits)

	if result.Sign() <= 0 {
		t.Errorf("AddWork() returned non-positive work: %v", result)
	}

	// Initial should not be modified
	if initial.Sign() != 0 {
		t.Errorf("AddWork() modified initial value: %v", initial)
	}

	twice := AddWork(result, bits)
	if twice.Cmp(new(big.Int).Lsh(result, 1)) != 0 {
		t.Errorf("AddWork() twice = %v, expected %v", twice, new(big.Int).Lsh(result, 1))
	}
}

func TestCompareChainWork(t *testing.T) {
	a := big.NewInt(100)
	b := big.NewInt(200)
	c := big.NewInt(100)

	if CompareChainWork(a, b) >= 0 {
		t.Errorf("CompareChainWork(100, 200) should be negative")
	}

	if CompareChainWork(b, a) <= 0 {
		t.Errorf("CompareChainWork(200, 100) should be positive")
	}

	if CompareChainWork(a, c) != 0 {
		t.Errorf("CompareChainWork(100, 100) should be zero")
	}
}

func TestChainWorkToHex(t *testing.T) {
	work := big.NewInt(12345)
	hex := ChainWorkToHex(work)

	if len(hex) != 64 {
		t.Errorf("ChainWorkToHex() returned %d characters, expected 64", len(hex))
	}

	if hex != "0000000000000000000000000000000000000000000000000000000000003039" {
		t.Errorf("ChainWorkToHex() not properly padded: %s", hex)
	}

	if ChainWorkToHex(nil) != zeroHex {
		t.Errorf("ChainWorkToHex(nil) = %s, expected zeros", ChainWorkToHex(nil))
	}
}

func TestChainWorkFromHex(t *testing.T) {
	tests := []struct {
		name    string
		hexStr  string
		want    int64
		wantErr bool
	}{
		{
			name:   "valid hex",
			hexStr: "0000000000000000000000000000000000000000000000000000000000003039",
			want:   12345,
		},
		{
			name:   "zero",
			hexStr: zeroHex,
			want:   0,
		},
		{
			name:    "invalid hex",
			hexStr:  "invalid",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ChainWorkFromHex(tt.hexStr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ChainWorkFromHex() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if result.Cmp(big.NewInt(tt.want)) != 0 {
				t.Errorf("ChainWorkFromHex() = %v, expected %v", result, tt.want)
			}
		})
	}
}
