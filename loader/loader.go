// Package loader reads dataflow programs described in YAML and builds their
// validated graph together with the initial memory image.
package loader

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/sarchlab/dfsim/dataflow"
	"github.com/sarchlab/dfsim/ir"
)

// Segment is a piece of the initial memory image.
type Segment struct {
	Addr uint64
	Data []byte
}

// Program is a loaded graph ready for simulation.
type Program struct {
	Graph *dataflow.Graph
	// Entry is the function a run starts from.
	Entry string
	// Segments must be written to memory before the run.
	Segments []Segment
}

// Load reads and builds the program stored at path.
func Load(path string, opts ...dataflow.BuilderOption) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program: %w", err)
	}
	prog, err := Parse(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

// Parse builds a program from its YAML text.
func Parse(data []byte, opts ...dataflow.BuilderOption) (*Program, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse program: %w", err)
	}
	return Build(&f, opts...)
}

// Build turns a program description into a validated graph. Functions,
// blocks and nodes are declared first so that any of them can be referenced
// before its definition; operands and metadata are resolved afterwards.
func Build(f *File, opts ...dataflow.BuilderOption) (*Program, error) {
	l := &loader{
		b:       dataflow.NewBuilder(opts...),
		globals: make(map[string]dataflow.ID),
		funcs:   make(map[string]dataflow.ID),
		consts:  make(map[string]dataflow.ID),
	}
	prog := &Program{Entry: f.Entry}

	for _, g := range f.Globals {
		seg, err := l.declareGlobal(g)
		if err != nil {
			return nil, err
		}
		if seg != nil {
			prog.Segments = append(prog.Segments, *seg)
		}
	}
	for _, m := range f.Memory {
		seg, err := encodeMemory(m)
		if err != nil {
			return nil, err
		}
		prog.Segments = append(prog.Segments, seg)
	}

	scopes := make([]*scope, len(f.Functions))
	for i := range f.Functions {
		s, err := l.declareFunction(&f.Functions[i])
		if err != nil {
			return nil, err
		}
		scopes[i] = s
	}
	for _, s := range scopes {
		if err := l.defineFunction(s); err != nil {
			return nil, err
		}
	}

	g, err := l.b.Build()
	if err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	prog.Graph = g

	if prog.Entry == "" && len(f.Functions) > 0 {
		prog.Entry = f.Functions[0].Name
	}
	if _, ok := g.FunctionByName(prog.Entry); !ok && prog.Entry != "" {
		return nil, fmt.Errorf("entry function %q is not defined", prog.Entry)
	}
	return prog, nil
}

type loader struct {
	b       *dataflow.Builder
	globals map[string]dataflow.ID
	funcs   map[string]dataflow.ID
	consts  map[string]dataflow.ID
}

// scope holds the names visible inside one function.
type scope struct {
	desc   *FunctionDesc
	fn     dataflow.ID
	values map[string]dataflow.ID
	blocks map[string]dataflow.ID
	nodes  [][]dataflow.ID
}

func (l *loader) declareGlobal(g GlobalDesc) (*Segment, error) {
	if g.Name == "" {
		return nil, fmt.Errorf("global at 0x%x has no name", g.Addr)
	}
	if _, dup := l.globals[g.Name]; dup {
		return nil, fmt.Errorf("global @%s defined twice", g.Name)
	}

	if g.Const == "" {
		l.globals[g.Name] = l.b.AddGlobal(g.Name, g.Addr)
		return nil, nil
	}

	init, err := ParseValue(g.Const)
	if err != nil {
		return nil, fmt.Errorf("global @%s: %w", g.Name, err)
	}
	l.globals[g.Name] = l.b.AddGlobalConstant(g.Name, g.Addr, init)
	return &Segment{Addr: g.Addr, Data: init.Bytes()}, nil
}

func encodeMemory(m MemoryDesc) (Segment, error) {
	t, err := ir.ParseType(m.Type)
	if err != nil {
		return Segment{}, fmt.Errorf("memory at 0x%x: %w", m.Addr, err)
	}
	stride := t.AllocSize()
	if stride == 0 {
		return Segment{}, fmt.Errorf("memory at 0x%x: type %s has no size", m.Addr, t)
	}

	data := make([]byte, stride*uint64(len(m.Values)))
	for i, lit := range m.Values {
		r, err := parseAs(t, strings.TrimSpace(lit))
		if err != nil {
			return Segment{}, fmt.Errorf("memory at 0x%x: value %d: %w", m.Addr, i, err)
		}
		copy(data[uint64(i)*stride:], r.Bytes())
	}
	return Segment{Addr: m.Addr, Data: data}, nil
}

func (l *loader) declareFunction(d *FunctionDesc) (*scope, error) {
	if _, dup := l.funcs[d.Name]; dup {
		return nil, fmt.Errorf("function %s defined twice", d.Name)
	}
	ret, err := parseType(d.Ret)
	if err != nil {
		return nil, fmt.Errorf("function %s: return type: %w", d.Name, err)
	}

	params := make([]dataflow.Param, len(d.Params))
	for i, p := range d.Params {
		t, err := ir.ParseType(p.Type)
		if err != nil {
			return nil, fmt.Errorf("function %s: parameter %s: %w", d.Name, p.Name, err)
		}
		params[i] = dataflow.Param{Name: p.Name, Type: t}
	}

	s := &scope{
		desc:   d,
		fn:     l.b.AddFunction(d.Name, ret, params...),
		values: make(map[string]dataflow.ID),
		blocks: make(map[string]dataflow.ID),
	}
	l.funcs[d.Name] = s.fn
	for i, arg := range l.b.Arguments(s.fn) {
		if err := s.define(d.Params[i].Name, arg); err != nil {
			return nil, err
		}
	}

	for _, bd := range d.Blocks {
		if _, dup := s.blocks[bd.Name]; dup {
			return nil, fmt.Errorf("function %s: block %s defined twice", d.Name, bd.Name)
		}
		block := l.b.AddBlock(s.fn, bd.Name)
		s.blocks[bd.Name] = block

		ids := make([]dataflow.ID, len(bd.Nodes))
		for j, nd := range bd.Nodes {
			op, err := ir.ParseOp(nd.Op)
			if err != nil {
				return nil, fmt.Errorf("function %s: block %s: node %d: %w", d.Name, bd.Name, j, err)
			}
			t, err := parseType(nd.Type)
			if err != nil {
				return nil, fmt.Errorf("function %s: block %s: node %d: %w", d.Name, bd.Name, j, err)
			}
			ids[j] = l.b.AddNode(block, dataflow.NodeSpec{
				Name:    nd.Name,
				Op:      op,
				Type:    t,
				Latency: nd.Latency,
			})
			if err := s.define(nd.Name, ids[j]); err != nil {
				return nil, err
			}
		}
		s.nodes = append(s.nodes, ids)
	}
	return s, nil
}

func (s *scope) define(name string, id dataflow.ID) error {
	if name == "" {
		return nil
	}
	if _, dup := s.values[name]; dup {
		return fmt.Errorf("function %s: %%%s defined twice", s.desc.Name, name)
	}
	s.values[name] = id
	return nil
}

func (l *loader) defineFunction(s *scope) error {
	for i, bd := range s.desc.Blocks {
		for j := range bd.Nodes {
			nd := &bd.Nodes[j]
			if err := l.defineNode(s, s.nodes[i][j], nd); err != nil {
				return fmt.Errorf("function %s: block %s: node %d (%s): %w", s.desc.Name, bd.Name, j, nd.Op, err)
			}
		}
	}
	return nil
}

func (l *loader) defineNode(s *scope, id dataflow.ID, nd *NodeDesc) error {
	args, err := l.resolveAll(s, nd.Args)
	if err != nil {
		return err
	}

	var behavior dataflow.Behavior
	switch nd.Op {
	case "icmp", "fcmp":
		op, _ := ir.ParseOp(nd.Op)
		pred, err := ir.ParsePredicate(op, nd.Pred)
		if err != nil {
			return err
		}
		behavior = dataflow.CompareInfo{Predicate: pred}

	case "getelementptr":
		steps, err := parseSteps(nd.Steps)
		if err != nil {
			return err
		}
		behavior = dataflow.AddressInfo{Steps: steps}

	case "br":
		targets := make([]dataflow.ID, len(nd.Targets))
		for i, name := range nd.Targets {
			if targets[i], err = s.block(name); err != nil {
				return err
			}
		}
		switch len(targets) {
		case 1:
			behavior = dataflow.Unconditional(targets[0])
		case 2:
			behavior = dataflow.Conditional(targets[0], targets[1])
		default:
			return fmt.Errorf("br needs one or two targets, got %d", len(targets))
		}

	case "switch":
		info := dataflow.SwitchInfo{}
		if info.Default, err = s.block(nd.Default); err != nil {
			return err
		}
		for _, c := range nd.Cases {
			dest, err := s.block(c.Dest)
			if err != nil {
				return err
			}
			info.Cases = append(info.Cases, dataflow.SwitchCase{Value: c.Value, Dest: dest})
		}
		behavior = info

	case "phi":
		info := dataflow.PhiInfo{}
		args = args[:0]
		for _, in := range nd.Incoming {
			v, err := l.resolve(s, in.Value)
			if err != nil {
				return err
			}
			blk, err := s.block(in.Block)
			if err != nil {
				return err
			}
			args = append(args, v)
			info.Blocks = append(info.Blocks, blk)
		}
		behavior = info

	case "call":
		callee, ok := l.funcs[nd.Callee]
		if !ok {
			return fmt.Errorf("call of undefined function %q", nd.Callee)
		}
		behavior = dataflow.CallInfo{Callee: callee}
	}

	l.b.SetOperands(id, args...)
	l.b.SetBehavior(id, behavior)
	return nil
}

func (l *loader) resolveAll(s *scope, refs []string) ([]dataflow.ID, error) {
	ids := make([]dataflow.ID, len(refs))
	for i, ref := range refs {
		id, err := l.resolve(s, ref)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// resolve maps a value reference to its id. Equal literals share one
// constant.
func (l *loader) resolve(s *scope, ref string) (dataflow.ID, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(ref, "%"):
		id, ok := s.values[ref[1:]]
		if !ok {
			return dataflow.NoID, fmt.Errorf("undefined value %s", ref)
		}
		return id, nil
	case strings.HasPrefix(ref, "@"):
		id, ok := l.globals[ref[1:]]
		if !ok {
			return dataflow.NoID, fmt.Errorf("undefined global %s", ref)
		}
		return id, nil
	}

	if id, ok := l.consts[ref]; ok {
		return id, nil
	}
	r, err := ParseValue(ref)
	if err != nil {
		return dataflow.NoID, err
	}
	id := l.b.AddConstant(r)
	l.consts[ref] = id
	return id, nil
}

func (s *scope) block(name string) (dataflow.ID, error) {
	id, ok := s.blocks[name]
	if !ok {
		return dataflow.NoID, fmt.Errorf("undefined block %q", name)
	}
	return id, nil
}

func parseSteps(descs []StepDesc) ([]ir.Step, error) {
	steps := make([]ir.Step, len(descs))
	for i, d := range descs {
		switch {
		case d.Array != "" && len(d.Struct) == 0:
			t, err := ir.ParseType(d.Array)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			steps[i] = ir.ArrayStep(t.AllocSize())
		case d.Array == "" && len(d.Struct) > 0:
			fields := make([]ir.Type, len(d.Struct))
			for j, name := range d.Struct {
				t, err := ir.ParseType(name)
				if err != nil {
					return nil, fmt.Errorf("step %d: field %d: %w", i, j, err)
				}
				fields[j] = t
			}
			offsets, _ := ir.StructLayout(fields...)
			steps[i] = ir.StructStep(offsets...)
		default:
			return nil, fmt.Errorf("step %d must set exactly one of array and struct", i)
		}
	}
	return steps, nil
}

func parseType(s string) (ir.Type, error) {
	if s == "" {
		return ir.Void(), nil
	}
	return ir.ParseType(s)
}
