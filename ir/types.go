package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// PointerBits is the width of an address. The model assumes a 64-bit address
// space.
const PointerBits = 64

// MaxIntBits is the widest integer type a register can hold, the LLVM limit
// of 2^23-1 bits. Widths above 64 bits take the arbitrary-precision path.
const MaxIntBits = 1<<23 - 1

// TypeKind identifies the payload class of a value.
type TypeKind uint8

// Type kinds.
const (
	TypeVoid TypeKind = iota
	TypeInt
	TypeFloat
	TypeDouble
	TypePointer
)

// Type is a first-class value type. Bits is only meaningful for TypeInt; the
// other kinds have an implied width.
type Type struct {
	Kind TypeKind
	Bits uint
}

// Void returns the type of nodes that produce no value.
func Void() Type { return Type{Kind: TypeVoid} }

// Int returns an integer type of the given width.
func Int(bits uint) Type { return Type{Kind: TypeInt, Bits: bits} }

// Bool returns the one-bit integer type produced by comparisons.
func Bool() Type { return Int(1) }

// Float returns the IEEE-754 binary32 type.
func Float() Type { return Type{Kind: TypeFloat} }

// Double returns the IEEE-754 binary64 type.
func Double() Type { return Type{Kind: TypeDouble} }

// Pointer returns the address type.
func Pointer() Type { return Type{Kind: TypePointer} }

// IsVoid returns true for the void type.
func (t Type) IsVoid() bool { return t.Kind == TypeVoid }

// IsInt returns true for integer types.
func (t Type) IsInt() bool { return t.Kind == TypeInt }

// IsFloat returns true for float and double.
func (t Type) IsFloat() bool { return t.Kind == TypeFloat || t.Kind == TypeDouble }

// IsPointer returns true for the address type.
func (t Type) IsPointer() bool { return t.Kind == TypePointer }

// SizeInBits returns the storage width of the type.
func (t Type) SizeInBits() uint {
	switch t.Kind {
	case TypeInt:
		return t.Bits
	case TypeFloat:
		return 32
	case TypeDouble:
		return 64
	case TypePointer:
		return PointerBits
	default:
		return 0
	}
}

// SizeInBytes returns the number of bytes a memory access of this type
// covers, rounding partial bytes up.
func (t Type) SizeInBytes() uint64 {
	bits := t.SizeInBits()
	if bits == 0 {
		return 0
	}
	return uint64((bits-1)>>3) + 1
}

// AllocSize returns the size in bytes the type occupies in an aggregate,
// rounded up to a power of two for integers.
func (t Type) AllocSize() uint64 {
	size := t.SizeInBytes()
	alloc := uint64(1)
	for alloc < size {
		alloc <<= 1
	}
	if size == 0 {
		return 0
	}
	return alloc
}

// Validate checks that the type can be held in a register.
func (t Type) Validate() error {
	switch t.Kind {
	case TypeInt:
		if t.Bits == 0 || t.Bits > MaxIntBits {
			return fmt.Errorf("integer width %d outside 1..%d", t.Bits, MaxIntBits)
		}
	case TypeVoid, TypeFloat, TypeDouble, TypePointer:
	default:
		return fmt.Errorf("invalid type kind %d", t.Kind)
	}
	return nil
}

func (t Type) String() string {
	switch t.Kind {
	case TypeVoid:
		return "void"
	case TypeInt:
		return "i" + strconv.FormatUint(uint64(t.Bits), 10)
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypePointer:
		return "ptr"
	default:
		return fmt.Sprintf("Type(%d)", t.Kind)
	}
}

// ParseType parses the textual form produced by String. "ptr" may also be
// written with a trailing star (e.g. "i32*").
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "void":
		return Void(), nil
	case s == "float":
		return Float(), nil
	case s == "double":
		return Double(), nil
	case s == "ptr" || strings.HasSuffix(s, "*"):
		return Pointer(), nil
	case strings.HasPrefix(s, "i"):
		bits, err := strconv.ParseUint(s[1:], 10, 32)
		if err != nil {
			return Type{}, fmt.Errorf("invalid integer type %q", s)
		}
		t := Int(uint(bits))
		if err := t.Validate(); err != nil {
			return Type{}, err
		}
		return t, nil
	}
	return Type{}, fmt.Errorf("unknown type %q", s)
}
