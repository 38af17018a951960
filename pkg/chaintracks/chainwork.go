package chaintracks

import (
	"fmt"
	"math/big"
)

var (
	bigOne     = big.NewInt(1)
	oneLsh256  = new(big.Int).Lsh(bigOne, 256)
	maxWorkHex = 64
)

// CompactToBig converts the compact "bits" representation of a target to a big integer
func CompactToBig(compact uint32) *big.Int {
	// The top byte is the exponent, bit 23 the sign and the low 23 bits the mantissa.
	mantissa := compact & 0x007fffff
	isNegative := compact&0x00800000 != 0
	exponent := uint(compact >> 24)

	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	if isNegative {
		bn = bn.Neg(bn)
	}

	return bn
}

// CalculateWork returns the expected number of hashes needed to find a block with the given bits
func CalculateWork(bits uint32) *big.Int {
	target := CompactToBig(bits)
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}

	// work = 2^256 / (target + 1)
	denominator := new(big.Int).Add(target, bigOne)
	return new(big.Int).Div(oneLsh256, denominator)
}

// AddWork returns prev plus the work of a block with the given bits, leaving prev untouched
func AddWork(prev *big.Int, bits uint32) *big.Int {
	return new(big.Int).Add(prev, CalculateWork(bits))
}

// CompareChainWork compares two chainwork values like big.Int.Cmp
func CompareChainWork(a, b *big.Int) int {
	return a.Cmp(b)
}

// ChainWorkToHex formats chainwork as a zero-padded 64 character hex string
func ChainWorkToHex(work *big.Int) string {
	if work == nil {
		work = big.NewInt(0)
	}
	return fmt.Sprintf("%0*x", maxWorkHex, work)
}

// ChainWorkFromHex parses a hex chainwork string
func ChainWorkFromHex(hexStr string) (*big.Int, error) {
	work, ok := new(big.Int).SetString(hexStr, 16)
	if !ok {
		return nil, fmt.Errorf("invalid chainwork hex: %q", hexStr)
	}
	return work, nil
}
