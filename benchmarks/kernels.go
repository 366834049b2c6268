package benchmarks

import (
	"fmt"

	"github.com/sarchlab/dfsim/dataflow"
	"github.com/sarchlab/dfsim/emu"
	"github.com/sarchlab/dfsim/ir"
	"github.com/sarchlab/dfsim/loader"
	"github.com/sarchlab/dfsim/timing/engine"
	"github.com/sarchlab/dfsim/timing/mem"
)

var (
	i32 = ir.Int(32)
	i64 = ir.Int(64)
	ptr = ir.Pointer()
)

// GetKernels returns the built-in kernels.
func GetKernels() []Benchmark {
	return []Benchmark{
		vectorAdd(64),
		dotProduct(64),
		linearSearch(64, 123),
		switchDispatch(48),
		callChain(16),
	}
}

// kernel is a small helper for writing graphs by hand.
type kernel struct {
	b     *dataflow.Builder
	fn    dataflow.ID
	block dataflow.ID
}

func newKernel(b *dataflow.Builder, name string, ret ir.Type, params ...dataflow.Param) *kernel {
	k := &kernel{b: b, fn: b.AddFunction(name, ret, params...)}
	k.block = k.newBlock("entry")
	return k
}

func (k *kernel) arg(i int) dataflow.ID {
	return k.b.Arguments(k.fn)[i]
}

func (k *kernel) newBlock(name string) dataflow.ID {
	return k.b.AddBlock(k.fn, name)
}

func (k *kernel) at(block dataflow.ID) *kernel {
	k.block = block
	return k
}

func (k *kernel) op(op ir.Op, t ir.Type, beh dataflow.Behavior, args ...dataflow.ID) dataflow.ID {
	return k.b.AddNode(k.block, dataflow.NodeSpec{Op: op, Type: t, Operands: args, Behavior: beh})
}

func (k *kernel) konst(t ir.Type, v int64) dataflow.ID {
	return k.b.AddConstant(emu.IntValue(t, v))
}

func (k *kernel) phi(t ir.Type) dataflow.ID {
	return k.op(ir.OpPhi, t, nil)
}

func (k *kernel) incoming(phi dataflow.ID, values []dataflow.ID, blocks []dataflow.ID) {
	k.b.SetOperands(phi, values...)
	k.b.SetBehavior(phi, dataflow.PhiInfo{Blocks: blocks})
}

func (k *kernel) index(base, i dataflow.ID, elem ir.Type) dataflow.ID {
	return k.op(ir.OpGetElementPtr, ptr, dataflow.AddressInfo{Steps: []ir.Step{ir.ArrayStep(elem.AllocSize())}}, base, i)
}

func (k *kernel) cmp(pred ir.Predicate, x, y dataflow.ID) dataflow.ID {
	return k.op(ir.OpICmp, ir.Bool(), dataflow.CompareInfo{Predicate: pred}, x, y)
}

func (k *kernel) br(dest dataflow.ID) {
	k.op(ir.OpBr, ir.Void(), dataflow.Unconditional(dest))
}

func (k *kernel) condBr(cond, ifTrue, ifFalse dataflow.ID) {
	k.op(ir.OpBr, ir.Void(), dataflow.Conditional(ifTrue, ifFalse), cond)
}

func (k *kernel) ret(v ...dataflow.ID) {
	k.op(ir.OpRet, ir.Void(), nil, v...)
}

func words(vs []int32) []byte {
	data := make([]byte, 0, 4*len(vs))
	for _, v := range vs {
		data = append(data, emu.EncodeLE(uint64(uint32(v)), 4)...)
	}
	return data
}

func sequence(n int, f func(i int) int32) []int32 {
	vs := make([]int32, n)
	for i := range vs {
		vs[i] = f(i)
	}
	return vs
}

func expectReturn(want int64) func(engine.Result, *mem.Controller) error {
	return func(res engine.Result, _ *mem.Controller) error {
		if !res.HasReturn || res.Return.Int() != want {
			return fmt.Errorf("returned %s, want %d", res.Return, want)
		}
		return nil
	}
}

const (
	bufA = 0x10000
	bufB = 0x20000
	bufC = 0x30000
)

// vectorAdd stores a[i] + b[i] to c[i].
func vectorAdd(n int) Benchmark {
	a := sequence(n, func(i int) int32 { return int32(i) })
	b := sequence(n, func(i int) int32 { return int32(2 * i) })

	build := func(opts ...dataflow.BuilderOption) (*dataflow.Graph, error) {
		bld := dataflow.NewBuilder(opts...)
		k := newKernel(bld, "vecadd", ir.Void(),
			dataflow.Param{Name: "a", Type: ptr},
			dataflow.Param{Name: "b", Type: ptr},
			dataflow.Param{Name: "c", Type: ptr},
			dataflow.Param{Name: "n", Type: i64})
		entry, loop, exit := k.block, k.newBlock("loop"), k.newBlock("exit")
		k.br(loop)

		k.at(loop)
		i := k.phi(i64)
		x := k.op(ir.OpLoad, i32, nil, k.index(k.arg(0), i, i32))
		y := k.op(ir.OpLoad, i32, nil, k.index(k.arg(1), i, i32))
		s := k.op(ir.OpAdd, i32, nil, x, y)
		k.op(ir.OpStore, ir.Void(), nil, s, k.index(k.arg(2), i, i32))
		next := k.op(ir.OpAdd, i64, nil, i, k.konst(i64, 1))
		k.condBr(k.cmp(ir.ICmpULT, next, k.arg(3)), loop, exit)
		k.incoming(i, []dataflow.ID{k.konst(i64, 0), next}, []dataflow.ID{entry, loop})

		k.at(exit).ret()
		return bld.Build()
	}

	return Benchmark{
		Name:        "vecadd",
		Description: fmt.Sprintf("c[i] = a[i] + b[i] over %d elements (load/store bound)", n),
		Build:       build,
		Entry:       "vecadd",
		Args: []emu.Register{
			emu.PointerValue(bufA), emu.PointerValue(bufB), emu.PointerValue(bufC),
			emu.IntValue(i64, int64(n)),
		},
		Image: []loader.Segment{{Addr: bufA, Data: words(a)}, {Addr: bufB, Data: words(b)}},
		Check: func(_ engine.Result, ctrl *mem.Controller) error {
			got, err := ctrl.Peek(bufC, uint64(4*n))
			if err != nil {
				return err
			}
			for i := 0; i < n; i++ {
				v := int32(emu.DecodeLE(got[4*i : 4*i+4]))
				if v != a[i]+b[i] {
					return fmt.Errorf("c[%d] = %d, want %d", i, v, a[i]+b[i])
				}
			}
			return nil
		},
	}
}

// dotProduct returns the sum of a[i] * b[i].
func dotProduct(n int) Benchmark {
	a := sequence(n, func(i int) int32 { return int32(i%7 - 3) })
	b := sequence(n, func(i int) int32 { return int32(i + 1) })
	var want int32
	for i := range a {
		want += a[i] * b[i]
	}

	build := func(opts ...dataflow.BuilderOption) (*dataflow.Graph, error) {
		bld := dataflow.NewBuilder(opts...)
		k := newKernel(bld, "dot", i32,
			dataflow.Param{Name: "a", Type: ptr},
			dataflow.Param{Name: "b", Type: ptr},
			dataflow.Param{Name: "n", Type: i64})
		entry, loop, exit := k.block, k.newBlock("loop"), k.newBlock("exit")
		k.br(loop)

		k.at(loop)
		i := k.phi(i64)
		acc := k.phi(i32)
		x := k.op(ir.OpLoad, i32, nil, k.index(k.arg(0), i, i32))
		y := k.op(ir.OpLoad, i32, nil, k.index(k.arg(1), i, i32))
		sum := k.op(ir.OpAdd, i32, nil, acc, k.op(ir.OpMul, i32, nil, x, y))
		next := k.op(ir.OpAdd, i64, nil, i, k.konst(i64, 1))
		k.condBr(k.cmp(ir.ICmpULT, next, k.arg(2)), loop, exit)
		k.incoming(i, []dataflow.ID{k.konst(i64, 0), next}, []dataflow.ID{entry, loop})
		k.incoming(acc, []dataflow.ID{k.konst(i32, 0), sum}, []dataflow.ID{entry, loop})

		k.at(exit).ret(sum)
		return bld.Build()
	}

	return Benchmark{
		Name:        "dotprod",
		Description: fmt.Sprintf("integer dot product over %d elements (reduction)", n),
		Build:       build,
		Entry:       "dot",
		Args:        []emu.Register{emu.PointerValue(bufA), emu.PointerValue(bufB), emu.IntValue(i64, int64(n))},
		Image:       []loader.Segment{{Addr: bufA, Data: words(a)}, {Addr: bufB, Data: words(b)}},
		Check:       expectReturn(int64(want)),
	}
}

// linearSearch returns the index of key in a, or -1.
func linearSearch(n int, key int32) Benchmark {
	a := sequence(n, func(i int) int32 { return int32(3 * i) })
	want := int64(-1)
	for i, v := range a {
		if v == key {
			want = int64(i)
			break
		}
	}

	build := func(opts ...dataflow.BuilderOption) (*dataflow.Graph, error) {
		bld := dataflow.NewBuilder(opts...)
		k := newKernel(bld, "search", i64,
			dataflow.Param{Name: "a", Type: ptr},
			dataflow.Param{Name: "n", Type: i64},
			dataflow.Param{Name: "key", Type: i32})
		entry := k.block
		loop, step := k.newBlock("loop"), k.newBlock("step")
		found, missing := k.newBlock("found"), k.newBlock("missing")
		k.br(loop)

		k.at(loop)
		i := k.phi(i64)
		v := k.op(ir.OpLoad, i32, nil, k.index(k.arg(0), i, i32))
		k.condBr(k.cmp(ir.ICmpEQ, v, k.arg(2)), found, step)

		k.at(step)
		next := k.op(ir.OpAdd, i64, nil, i, k.konst(i64, 1))
		k.condBr(k.cmp(ir.ICmpULT, next, k.arg(1)), loop, missing)
		k.incoming(i, []dataflow.ID{k.konst(i64, 0), next}, []dataflow.ID{entry, step})

		k.at(found).ret(i)
		k.at(missing).ret(k.konst(i64, -1))
		return bld.Build()
	}

	return Benchmark{
		Name:        "search",
		Description: fmt.Sprintf("linear search over %d elements (data-dependent exit)", n),
		Build:       build,
		Entry:       "search",
		Args:        []emu.Register{emu.PointerValue(bufA), emu.IntValue(i64, int64(n)), emu.IntValue(i32, int64(key))},
		Image:       []loader.Segment{{Addr: bufA, Data: words(a)}},
		Check:       expectReturn(want),
	}
}

// switchDispatch interprets a stream of opcodes: 0 adds 3, 1 subtracts 1,
// 2 doubles and anything else leaves the accumulator alone.
func switchDispatch(n int) Benchmark {
	ops := sequence(n, func(i int) int32 { return int32((i * 5) % 4) })
	var want int32
	for _, op := range ops {
		switch op {
		case 0:
			want += 3
		case 1:
			want--
		case 2:
			want *= 2
		}
	}

	build := func(opts ...dataflow.BuilderOption) (*dataflow.Graph, error) {
		bld := dataflow.NewBuilder(opts...)
		k := newKernel(bld, "dispatch", i32,
			dataflow.Param{Name: "ops", Type: ptr},
			dataflow.Param{Name: "n", Type: i64})
		entry := k.block
		loop, latch, exit := k.newBlock("loop"), k.newBlock("latch"), k.newBlock("exit")
		add, sub, dbl := k.newBlock("add"), k.newBlock("sub"), k.newBlock("double")
		k.br(loop)

		k.at(loop)
		i := k.phi(i64)
		acc := k.phi(i32)
		op := k.op(ir.OpLoad, i32, nil, k.index(k.arg(0), i, i32))
		k.op(ir.OpSwitch, ir.Void(), dataflow.SwitchInfo{
			Cases: []dataflow.SwitchCase{
				{Value: 0, Dest: add},
				{Value: 1, Dest: sub},
				{Value: 2, Dest: dbl},
			},
			Default: latch,
		}, op)

		k.at(add)
		added := k.op(ir.OpAdd, i32, nil, acc, k.konst(i32, 3))
		k.br(latch)
		k.at(sub)
		subbed := k.op(ir.OpSub, i32, nil, acc, k.konst(i32, 1))
		k.br(latch)
		k.at(dbl)
		doubled := k.op(ir.OpShl, i32, nil, acc, k.konst(i32, 1))
		k.br(latch)

		k.at(latch)
		v := k.phi(i32)
		k.incoming(v, []dataflow.ID{added, subbed, doubled, acc}, []dataflow.ID{add, sub, dbl, loop})
		next := k.op(ir.OpAdd, i64, nil, i, k.konst(i64, 1))
		k.condBr(k.cmp(ir.ICmpULT, next, k.arg(1)), loop, exit)

		k.incoming(i, []dataflow.ID{k.konst(i64, 0), next}, []dataflow.ID{entry, latch})
		k.incoming(acc, []dataflow.ID{k.konst(i32, 0), v}, []dataflow.ID{entry, latch})

		k.at(exit).ret(v)
		return bld.Build()
	}

	return Benchmark{
		Name:        "switch",
		Description: fmt.Sprintf("switch-based interpreter over %d opcodes (control bound)", n),
		Build:       build,
		Entry:       "dispatch",
		Args:        []emu.Register{emu.PointerValue(bufA), emu.IntValue(i64, int64(n))},
		Image:       []loader.Segment{{Addr: bufA, Data: words(ops)}},
		Check:       expectReturn(int64(want)),
	}
}

// callChain sums f1(i) for i in [0, n), where f1(x) = f2(x+1) + 1 and
// f2(x) = 2x.
func callChain(n int) Benchmark {
	var want int64
	for i := 0; i < n; i++ {
		want += 2*int64(i+1) + 1
	}

	build := func(opts ...dataflow.BuilderOption) (*dataflow.Graph, error) {
		bld := dataflow.NewBuilder(opts...)

		f2 := newKernel(bld, "f2", i32, dataflow.Param{Name: "x", Type: i32})
		f2.ret(f2.op(ir.OpMul, i32, nil, f2.arg(0), f2.konst(i32, 2)))

		f1 := newKernel(bld, "f1", i32, dataflow.Param{Name: "x", Type: i32})
		inc := f1.op(ir.OpAdd, i32, nil, f1.arg(0), f1.konst(i32, 1))
		r := f1.op(ir.OpCall, i32, dataflow.CallInfo{Callee: f2.fn}, inc)
		f1.ret(f1.op(ir.OpAdd, i32, nil, r, f1.konst(i32, 1)))

		k := newKernel(bld, "main", i32, dataflow.Param{Name: "n", Type: i32})
		entry, loop, exit := k.block, k.newBlock("loop"), k.newBlock("exit")
		k.br(loop)

		k.at(loop)
		i := k.phi(i32)
		acc := k.phi(i32)
		sum := k.op(ir.OpAdd, i32, nil, acc, k.op(ir.OpCall, i32, dataflow.CallInfo{Callee: f1.fn}, i))
		next := k.op(ir.OpAdd, i32, nil, i, k.konst(i32, 1))
		k.condBr(k.cmp(ir.ICmpSLT, next, k.arg(0)), loop, exit)
		k.incoming(i, []dataflow.ID{k.konst(i32, 0), next}, []dataflow.ID{entry, loop})
		k.incoming(acc, []dataflow.ID{k.konst(i32, 0), sum}, []dataflow.ID{entry, loop})

		k.at(exit).ret(sum)
		return bld.Build()
	}

	return Benchmark{
		Name:        "callchain",
		Description: fmt.Sprintf("%d iterations of a two-level call chain (invocation overhead)", n),
		Build:       build,
		Entry:       "main",
		Args:        []emu.Register{emu.IntValue(i32, int64(n))},
		Check:       expectReturn(want),
	}
}
