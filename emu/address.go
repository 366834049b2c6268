package emu

import (
	"fmt"

	"github.com/sarchlab/dfsim/ir"
)

// ComputeAddress walks getelementptr steps. Array steps scale the signed
// index by the element size, struct steps add the selected field offset. The
// result wraps at 64 bits.
func ComputeAddress(base uint64, steps []ir.Step, indices []int64) (uint64, error) {
	if len(steps) != len(indices) {
		return 0, fmt.Errorf("%d indices for %d address steps", len(indices), len(steps))
	}

	addr := base
	for i, step := range steps {
		idx := indices[i]
		switch step.Kind {
		case ir.IndexArray:
			addr += uint64(idx) * step.ElementSize
		case ir.IndexStruct:
			if idx < 0 || idx >= int64(len(step.FieldOffsets)) {
				return 0, fmt.Errorf("%w: field %d of %d", ErrFieldIndex, idx, len(step.FieldOffsets))
			}
			addr += step.FieldOffsets[idx]
		default:
			return 0, fmt.Errorf("invalid index kind %d", step.Kind)
		}
	}
	return addr, nil
}
