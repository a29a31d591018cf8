package ast

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// FieldSize is the width in bytes of every Yul value (spec's FIELD_SIZE), the same word size the
// zkEVM and the EVM it emulates both use.
const FieldSize = 32

// FieldValue wraps the 256-bit word every Yul literal and runtime value carries. It is a thin
// adapter over uint256.Int (the word type ethereum-go-ethereum and ProbeChain-go-probe both use for
// EVM-width arithmetic) so the AST and the builders never hand-roll big-integer wraparound.
type FieldValue struct {
	v uint256.Int
}

// NewFieldValue wraps x, truncating to 256 bits as uint256.Int.SetUint64 already guarantees.
func NewFieldValue(x uint64) *FieldValue {
	return &FieldValue{v: *uint256.NewInt(x)}
}

// ParseFieldValue decodes a Yul numeric literal: decimal, 0x-prefixed hex, or a quoted string
// (whose bytes are placed left-aligned in the 32-byte word and zero-padded on the right, per Yul's
// string-literal-as-bytes32 rule).
func ParseFieldValue(raw string) (*FieldValue, error) {
	switch {
	case strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X"):
		z, err := uint256.FromHex(raw)
		if err != nil {
			return nil, fmt.Errorf("ast: invalid hex literal %q: %w", raw, err)
		}
		return &FieldValue{v: *z}, nil
	case strings.HasPrefix(raw, `"`) || strings.HasPrefix(raw, "'"):
		s := raw[1 : len(raw)-1]
		var buf [FieldSize]byte
		copy(buf[:], s)
		z := new(uint256.Int).SetBytes(buf[:])
		return &FieldValue{v: *z}, nil
	default:
		z, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("ast: invalid decimal literal %q", raw)
		}
		fv, overflow := uint256.FromBig(z)
		if overflow {
			return nil, fmt.Errorf("ast: literal %q overflows 256 bits", raw)
		}
		return &FieldValue{v: *fv}, nil
	}
}

// Uint256 exposes the underlying word for builder implementations that need direct arithmetic.
func (f *FieldValue) Uint256() *uint256.Int { return &f.v }

// Bytes32 returns the big-endian 32-byte encoding, the wire/memory representation used throughout
// the heap, storage, and calldata address spaces.
func (f *FieldValue) Bytes32() [32]byte { return f.v.Bytes32() }

// IsZero reports whether the value is the zero field element.
func (f *FieldValue) IsZero() bool { return f.v.IsZero() }

// Eq reports bitwise equality, used by Switch lowering to compare a scrutinee against a Case value.
func (f *FieldValue) Eq(o *FieldValue) bool { return f.v.Eq(&o.v) }

// String renders the value as a decimal string, matching how the teacher's nodetype.go prints
// DataInteger literals.
func (f *FieldValue) String() string { return f.v.Dec() }

// FieldValueFromBytes32 reinterprets a 32-byte big-endian buffer as a field element, used by the
// eval builder when reading back from its byte-addressable memory/storage regions.
func FieldValueFromBytes32(b [32]byte) *FieldValue {
	return &FieldValue{v: *new(uint256.Int).SetBytes(b[:])}
}

// FieldValueFromUint256 wraps an already-computed uint256.Int, used by the eval builder after it
// performs arithmetic directly against the embedded word type.
func FieldValueFromUint256(z *uint256.Int) *FieldValue {
	return &FieldValue{v: *z}
}

// Cmp returns -1, 0, or 1 comparing f and o as unsigned 256-bit integers.
func (f *FieldValue) Cmp(o *FieldValue) int { return f.v.Cmp(&o.v) }
