package loader

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/sarchlab/dfsim/emu"
	"github.com/sarchlab/dfsim/ir"
)

// ParseValue parses a typed literal such as "i32 -5", "i1 true",
// "float 1.5" or "ptr 0x1000".
func ParseValue(s string) (emu.Register, error) {
	typ, lit, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return emu.Register{}, fmt.Errorf("literal %q needs a type and a value", s)
	}
	t, err := ir.ParseType(typ)
	if err != nil {
		return emu.Register{}, err
	}
	return parseAs(t, strings.TrimSpace(lit))
}

func parseAs(t ir.Type, lit string) (emu.Register, error) {
	switch t.Kind {
	case ir.TypeInt:
		if t.Bits == 1 {
			switch lit {
			case "true":
				return emu.IntValue(t, 1), nil
			case "false":
				return emu.IntValue(t, 0), nil
			}
		}
		if t.Bits > 64 {
			v, ok := new(big.Int).SetString(lit, 0)
			if !ok {
				return emu.Register{}, fmt.Errorf("%s literal %q: invalid integer", t, lit)
			}
			return emu.BigValue(t, v), nil
		}
		v, err := parseInt(lit)
		if err != nil {
			return emu.Register{}, fmt.Errorf("%s literal %q: %w", t, lit, err)
		}
		return emu.IntValue(t, v), nil

	case ir.TypeFloat, ir.TypeDouble:
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return emu.Register{}, fmt.Errorf("%s literal %q: %w", t, lit, err)
		}
		if t.Kind == ir.TypeFloat {
			return emu.FloatValue(float32(f)), nil
		}
		return emu.DoubleValue(f), nil

	case ir.TypePointer:
		if lit == "null" {
			return emu.PointerValue(0), nil
		}
		v, err := strconv.ParseUint(lit, 0, 64)
		if err != nil {
			return emu.Register{}, fmt.Errorf("pointer literal %q: %w", lit, err)
		}
		return emu.PointerValue(v), nil
	}
	return emu.Register{}, fmt.Errorf("no literals of type %s", t)
}

// parseInt accepts signed values and unsigned values up to 64 bits, in any
// base strconv recognizes.
func parseInt(lit string) (int64, error) {
	if v, err := strconv.ParseInt(lit, 0, 64); err == nil {
		return v, nil
	}
	u, err := strconv.ParseUint(lit, 0, 64)
	if err != nil {
		return 0, err
	}
	return int64(u), nil
}
