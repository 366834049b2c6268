package latency

import (
	"encoding/json"
	"fmt"
	"os"
)

// MaxLatency bounds every configured latency.
const MaxLatency = 1024

// TimingConfig holds latency values for each functional-unit class.
type TimingConfig struct {
	// IntALULatency covers add, sub, shifts and bitwise ops. Default: 1 cycle.
	IntALULatency uint64 `json:"int_alu_latency"`

	// IntMulLatency is the integer multiplier latency. Default: 3 cycles.
	IntMulLatency uint64 `json:"int_mul_latency"`

	// IntDivLatency covers udiv, sdiv, urem and srem. Default: 10 cycles.
	IntDivLatency uint64 `json:"int_div_latency"`

	// FPAddLatency covers fadd and fsub. Default: 5 cycles.
	FPAddLatency uint64 `json:"fp_add_latency"`

	// FPMulLatency is the floating-point multiplier latency. Default: 4 cycles.
	FPMulLatency uint64 `json:"fp_mul_latency"`

	// FPDivLatency covers fdiv and frem. Default: 16 cycles.
	FPDivLatency uint64 `json:"fp_div_latency"`

	// CompareLatency covers icmp and fcmp. Default: 1 cycle.
	CompareLatency uint64 `json:"compare_latency"`

	// ConversionLatency covers all casts. Default: 1 cycle.
	ConversionLatency uint64 `json:"conversion_latency"`

	// GEPLatency is the address computation latency. Default: 0 cycles
	// (folded into the consuming memory access).
	GEPLatency uint64 `json:"gep_latency"`

	// LoadLatency is the minimum number of cycles from launch to commit of a
	// load. It overlaps the memory access: the load commits once both this
	// latency has passed and the response has arrived. Default: 0 cycles.
	LoadLatency uint64 `json:"load_latency"`

	// StoreLatency is the minimum launch-to-commit time of a store,
	// overlapping the write acknowledgement like LoadLatency. Default: 0 cycles.
	StoreLatency uint64 `json:"store_latency"`

	// BranchLatency covers br, switch and ret. Default: 0 cycles.
	BranchLatency uint64 `json:"branch_latency"`

	// PhiLatency is the latency of a phi multiplexer. Default: 0 cycles.
	PhiLatency uint64 `json:"phi_latency"`

	// SelectLatency is the latency of a select multiplexer. Default: 1 cycle.
	SelectLatency uint64 `json:"select_latency"`

	// CallLatency is the minimum launch-to-commit time of a call. It overlaps
	// the callee's execution; the call commits once both this latency has
	// passed and the callee has returned. Default: 0 cycles.
	CallLatency uint64 `json:"call_latency"`
}

// DefaultTimingConfig returns a TimingConfig with default values.
func DefaultTimingConfig() *TimingConfig {
	return &TimingConfig{
		IntALULatency:     1,
		IntMulLatency:     3,
		IntDivLatency:     10,
		FPAddLatency:      5,
		FPMulLatency:      4,
		FPDivLatency:      16,
		CompareLatency:    1,
		ConversionLatency: 1,
		GEPLatency:        0,
		LoadLatency:       0,
		StoreLatency:      0,
		BranchLatency:     0,
		PhiLatency:        0,
		SelectLatency:     1,
		CallLatency:       0,
	}
}

// LoadConfig loads a TimingConfig from a JSON file. Keys missing from the
// file keep their default values.
func LoadConfig(path string) (*TimingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}

	config := DefaultTimingConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a TimingConfig to a JSON file.
func (c *TimingConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write timing config file: %w", err)
	}

	return nil
}

// Validate checks that divider latencies are nonzero and that no latency
// exceeds MaxLatency.
func (c *TimingConfig) Validate() error {
	if c.IntDivLatency == 0 {
		return fmt.Errorf("int_div_latency must be > 0")
	}
	if c.FPDivLatency == 0 {
		return fmt.Errorf("fp_div_latency must be > 0")
	}

	for name, v := range map[string]uint64{
		"int_alu_latency":    c.IntALULatency,
		"int_mul_latency":    c.IntMulLatency,
		"int_div_latency":    c.IntDivLatency,
		"fp_add_latency":     c.FPAddLatency,
		"fp_mul_latency":     c.FPMulLatency,
		"fp_div_latency":     c.FPDivLatency,
		"compare_latency":    c.CompareLatency,
		"conversion_latency": c.ConversionLatency,
		"gep_latency":        c.GEPLatency,
		"load_latency":       c.LoadLatency,
		"store_latency":      c.StoreLatency,
		"branch_latency":     c.BranchLatency,
		"phi_latency":        c.PhiLatency,
		"select_latency":     c.SelectLatency,
		"call_latency":       c.CallLatency,
	} {
		if v > MaxLatency {
			return fmt.Errorf("%s must be <= %d, got %d", name, MaxLatency, v)
		}
	}
	return nil
}

// Clone returns a deep copy of the TimingConfig.
func (c *TimingConfig) Clone() *TimingConfig {
	clone := *c
	return &clone
}
