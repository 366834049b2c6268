package dataflow

import "github.com/sarchlab/dfsim/emu"

// Operand binds argument slot Slot of a consuming node to the register of a
// producer. The operand latches the producer's value when it is satisfied,
// so the producer may re-fire without disturbing a waiting consumer.
type Operand struct {
	producer  ID
	slot      int
	active    bool
	satisfied bool
	value     emu.Register
}

// Producer returns the id of the value bound to the slot.
func (o *Operand) Producer() ID { return o.producer }

// Slot returns the argument position.
func (o *Operand) Slot() int { return o.slot }

// Active reports whether the operand takes part in the current firing. Only
// the incoming operand selected by a phi is active; all other operands are
// always active.
func (o *Operand) Active() bool { return o.active }

// Satisfied reports whether the operand holds its value for this firing.
func (o *Operand) Satisfied() bool { return o.satisfied }

// Value returns the latched value.
func (o *Operand) Value() emu.Register { return o.value }

func (o *Operand) reset() {
	o.satisfied = false
	o.active = true
}

func (o *Operand) latch(v emu.Register) {
	o.value = v
	o.satisfied = true
}
