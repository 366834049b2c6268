// Package latency provides the per-opcode timing model of compute nodes.
//
// Every opcode maps to a functional-unit class, and every class has a fixed
// latency in cycles that can be configured via TimingConfig. A latency of
// zero means the node computes and commits in the cycle it launches.
package latency

import (
	"github.com/sarchlab/dfsim/ir"
)

// Table provides opcode latency lookups.
type Table struct {
	config *TimingConfig
}

// NewTable creates a new latency table with default timing values.
func NewTable() *Table {
	return &Table{
		config: DefaultTimingConfig(),
	}
}

// NewTableWithConfig creates a new latency table with custom timing configuration.
func NewTableWithConfig(config *TimingConfig) *Table {
	return &Table{
		config: config,
	}
}

// Latency returns the fixed latency in cycles for the given opcode.
func (t *Table) Latency(op ir.Op) uint64 {
	return t.ClassLatency(op.Class())
}

// ClassLatency returns the latency of a functional-unit class.
func (t *Table) ClassLatency(class ir.Class) uint64 {
	c := t.config
	switch class {
	case ir.ClassIntALU:
		return c.IntALULatency
	case ir.ClassIntMul:
		return c.IntMulLatency
	case ir.ClassIntDiv:
		return c.IntDivLatency
	case ir.ClassFPAdd:
		return c.FPAddLatency
	case ir.ClassFPMul:
		return c.FPMulLatency
	case ir.ClassFPDiv:
		return c.FPDivLatency
	case ir.ClassCompare:
		return c.CompareLatency
	case ir.ClassConversion:
		return c.ConversionLatency
	case ir.ClassAddress:
		return c.GEPLatency
	case ir.ClassLoad:
		return c.LoadLatency
	case ir.ClassStore:
		return c.StoreLatency
	case ir.ClassBranch:
		return c.BranchLatency
	case ir.ClassPhi:
		return c.PhiLatency
	case ir.ClassSelect:
		return c.SelectLatency
	case ir.ClassCall:
		return c.CallLatency
	default:
		return 1
	}
}

// Config returns the current timing configuration.
func (t *Table) Config() *TimingConfig {
	return t.config
}
