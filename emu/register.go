// Package emu provides the functional semantics of dataflow nodes: typed
// registers and the integer, floating-point, conversion and address units
// that transform operand registers into result registers.
package emu

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"slices"

	"github.com/sarchlab/dfsim/ir"
)

var (
	// ErrTypeMismatch is returned when a register is assigned a payload of a
	// different type.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrDivisionByZero is returned by integer division and remainder when
	// the divisor is zero.
	ErrDivisionByZero = errors.New("integer division by zero")
	// ErrInvalidConversion is returned when a floating-point value cannot be
	// represented in the target integer type (NaN, infinity, out of range).
	ErrInvalidConversion = errors.New("invalid floating-point conversion")
	// ErrFieldIndex is returned when a struct index selects a missing field.
	ErrFieldIndex = errors.New("struct field index out of range")
	// ErrPredicate is returned when a predicate does not fit the comparison.
	ErrPredicate = errors.New("invalid comparison predicate")
)

// Register is a typed storage cell. Integers are stored zero-extended and
// masked to their width, floats as their IEEE-754 bit pattern (binary32 in
// the low 32 bits), pointers as a 64-bit address. Integers wider than 64 bits
// also carry the full payload as a big.Int; raw then holds its low 64 bits.
//
// The type of a register is fixed at creation. Assign replaces the payload
// only.
type Register struct {
	id  uint64
	typ ir.Type
	raw uint64
	// wide is never mutated once stored, so copies of a register may share it.
	wide *big.Int
}

// NewRegister creates a zeroed register owned by the value with the given id.
func NewRegister(id uint64, t ir.Type) Register {
	return Register{id: id, typ: t}
}

// IntValue creates an unowned integer register holding v truncated or
// sign-extended to t.
func IntValue(t ir.Type, v int64) Register {
	r := Register{typ: t}
	if r.IsWide() {
		r.SetBig(big.NewInt(v))
		return r
	}
	r.SetRaw(uint64(v))
	return r
}

// BigValue creates an unowned integer register holding v modulo 2^width.
func BigValue(t ir.Type, v *big.Int) Register {
	r := Register{typ: t}
	r.SetBig(v)
	return r
}

// FloatValue creates an unowned float register.
func FloatValue(v float32) Register {
	return Register{typ: ir.Float(), raw: uint64(math.Float32bits(v))}
}

// DoubleValue creates an unowned double register.
func DoubleValue(v float64) Register {
	return Register{typ: ir.Double(), raw: math.Float64bits(v)}
}

// PointerValue creates an unowned pointer register.
func PointerValue(addr uint64) Register {
	return Register{typ: ir.Pointer(), raw: addr}
}

// RawValue creates an unowned register of type t from a raw payload.
func RawValue(t ir.Type, raw uint64) Register {
	r := Register{typ: t}
	r.SetRaw(raw)
	return r
}

// ID returns the id of the value owning the register.
func (r Register) ID() uint64 { return r.id }

// Type returns the register type.
func (r Register) Type() ir.Type { return r.typ }

// IsWide reports whether the register is an integer wider than 64 bits.
func (r Register) IsWide() bool {
	return r.typ.IsInt() && r.typ.Bits > 64
}

// Raw returns the payload bits, the low 64 bits for wide integers.
func (r Register) Raw() uint64 { return r.raw }

// Uint returns the payload zero-extended to 64 bits, or its low 64 bits.
func (r Register) Uint() uint64 { return r.raw }

// Int returns the payload sign-extended from the register width. Wide
// integers are truncated to their low 64 bits.
func (r Register) Int() int64 {
	return SignExtend(r.raw, r.typ.SizeInBits())
}

// Big returns the payload as a non-negative integer.
func (r Register) Big() *big.Int {
	if r.wide != nil {
		return new(big.Int).Set(r.wide)
	}
	return new(big.Int).SetUint64(r.raw)
}

// SignedBig returns the payload read as a two's-complement number of the
// register width.
func (r Register) SignedBig() *big.Int {
	return ToSigned(r.Big(), r.typ.SizeInBits())
}

// Bool reports whether the payload is nonzero.
func (r Register) Bool() bool {
	if r.wide != nil {
		return r.wide.Sign() != 0
	}
	return r.raw != 0
}

// Equal reports whether both registers hold the same type and payload.
func (r Register) Equal(o Register) bool {
	if r.typ != o.typ || r.raw != o.raw {
		return false
	}
	if r.IsWide() {
		return r.Big().Cmp(o.Big()) == 0
	}
	return true
}

// Float returns a floating-point payload widened to float64.
func (r Register) Float() float64 {
	if r.typ.Kind == ir.TypeFloat {
		return float64(math.Float32frombits(uint32(r.raw)))
	}
	return math.Float64frombits(r.raw)
}

// Unowned returns a copy of the register detached from its value id.
func (r Register) Unowned() Register {
	r.id = 0
	return r
}

// Pointer returns the address held by the register.
func (r Register) Pointer() uint64 { return r.raw }

// SetRaw stores payload bits, masking them to the register width. A wide
// integer is zero-extended.
func (r *Register) SetRaw(v uint64) {
	if r.IsWide() {
		r.wide = new(big.Int).SetUint64(v)
		r.raw = v
		return
	}
	r.raw = v & Mask(r.typ.SizeInBits())
}

// SetBig stores v modulo 2^width. Negative values are taken in two's
// complement.
func (r *Register) SetBig(v *big.Int) {
	bits := r.typ.SizeInBits()
	u := Truncate(v, bits)
	if r.IsWide() {
		r.wide = u
		r.raw = low64(u)
		return
	}
	r.raw = u.Uint64()
}

// SetFloat stores f, rounding to binary32 if the register is a float.
func (r *Register) SetFloat(f float64) {
	if r.typ.Kind == ir.TypeFloat {
		r.raw = uint64(math.Float32bits(float32(f)))
		return
	}
	r.raw = math.Float64bits(f)
}

// Assign copies the payload of src. The types must match.
func (r *Register) Assign(src Register) error {
	if src.typ != r.typ {
		return fmt.Errorf("%w: cannot assign %s to %s", ErrTypeMismatch, src.typ, r.typ)
	}
	r.raw = src.raw
	r.wide = src.wide
	return nil
}

// Bytes returns the payload in little-endian order, one byte per started
// byte of the type width.
func (r Register) Bytes() []byte {
	if r.wide != nil {
		data := r.wide.FillBytes(make([]byte, r.typ.SizeInBytes()))
		slices.Reverse(data)
		return data
	}
	return EncodeLE(r.raw, r.typ.SizeInBytes())
}

// SetBytes loads the payload from a little-endian byte slice.
func (r *Register) SetBytes(b []byte) error {
	if uint64(len(b)) != r.typ.SizeInBytes() {
		return fmt.Errorf("%w: %d bytes for %s", ErrTypeMismatch, len(b), r.typ)
	}
	if r.IsWide() {
		be := slices.Clone(b)
		slices.Reverse(be)
		r.SetBig(new(big.Int).SetBytes(be))
		return nil
	}
	r.SetRaw(DecodeLE(b))
	return nil
}

func (r Register) String() string {
	switch r.typ.Kind {
	case ir.TypeInt:
		if r.typ.Bits == 1 {
			return fmt.Sprintf("i1 %t", r.Bool())
		}
		if r.IsWide() {
			return fmt.Sprintf("%s %s", r.typ, r.SignedBig())
		}
		return fmt.Sprintf("%s %d", r.typ, r.Int())
	case ir.TypeFloat, ir.TypeDouble:
		return fmt.Sprintf("%s %g", r.typ, r.Float())
	case ir.TypePointer:
		return fmt.Sprintf("ptr 0x%x", r.raw)
	default:
		return "void"
	}
}

// Mask returns a mask covering the low bits bits.
func Mask(bits uint) uint64 {
	if bits >= 64 {
		return math.MaxUint64
	}
	return (uint64(1) << bits) - 1
}

// SignExtend interprets the low bits bits of v as a two's-complement number.
func SignExtend(v uint64, bits uint) int64 {
	if bits == 0 {
		return 0
	}
	if bits >= 64 {
		return int64(v)
	}
	shift := 64 - bits
	return int64(v<<shift) >> shift
}

// EncodeLE writes the low n bytes of v in little-endian order.
func EncodeLE(v uint64, n uint64) []byte {
	data := make([]byte, n)
	for i := uint64(0); i < n && i < 8; i++ {
		data[i] = byte(v >> (i * 8))
	}
	return data
}

// DecodeLE reads up to eight little-endian bytes.
func DecodeLE(data []byte) uint64 {
	var v uint64
	for i := 0; i < len(data) && i < 8; i++ {
		v |= uint64(data[i]) << (i * 8)
	}
	return v
}

// Truncate returns v modulo 2^bits as a non-negative integer.
func Truncate(v *big.Int, bits uint) *big.Int {
	mask := new(big.Int).Lsh(big.NewInt(1), bits)
	mask.Sub(mask, big.NewInt(1))
	return mask.And(mask, v)
}

// ToSigned interprets the non-negative bits-wide v as a two's-complement
// number.
func ToSigned(v *big.Int, bits uint) *big.Int {
	if bits == 0 || v.Bit(int(bits)-1) == 0 {
		return v
	}
	return new(big.Int).Sub(v, new(big.Int).Lsh(big.NewInt(1), bits))
}

func low64(v *big.Int) uint64 {
	return Truncate(v, 64).Uint64()
}
