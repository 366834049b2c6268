package loader

// File is the YAML description of a program: its globals, initial memory
// image and functions. Values are referenced by name: "%x" is an argument or
// instruction of the enclosing function, "@g" a global, and anything else a
// typed literal such as "i32 -5", "double 0.5", "i1 true" or "ptr 0x1000".
type File struct {
	// Entry names the function a run starts from.
	Entry     string         `yaml:"entry"`
	Globals   []GlobalDesc   `yaml:"globals"`
	Memory    []MemoryDesc   `yaml:"memory"`
	Functions []FunctionDesc `yaml:"functions"`
}

// GlobalDesc declares a named memory object at a fixed address. A global
// with Const set is read-only and its loads bypass memory.
type GlobalDesc struct {
	Name  string `yaml:"name"`
	Addr  uint64 `yaml:"addr"`
	Const string `yaml:"const,omitempty"`
}

// MemoryDesc is a run of values of one type stored from Addr upwards.
type MemoryDesc struct {
	Addr   uint64   `yaml:"addr"`
	Type   string   `yaml:"type"`
	Values []string `yaml:"values"`
}

// FunctionDesc declares a function. The first block is the entry.
type FunctionDesc struct {
	Name   string      `yaml:"name"`
	Ret    string      `yaml:"ret"`
	Params []ParamDesc `yaml:"params"`
	Blocks []BlockDesc `yaml:"blocks"`
}

// ParamDesc declares a function parameter.
type ParamDesc struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// BlockDesc is a basic block.
type BlockDesc struct {
	Name  string     `yaml:"name"`
	Nodes []NodeDesc `yaml:"nodes"`
}

// NodeDesc is one instruction. Only the fields its opcode needs are set.
type NodeDesc struct {
	Name string   `yaml:"name,omitempty"`
	Op   string   `yaml:"op"`
	Type string   `yaml:"type,omitempty"`
	Args []string `yaml:"args,omitempty"`
	// Latency overrides the latency table.
	Latency *uint64 `yaml:"latency,omitempty"`

	// Pred is the icmp/fcmp predicate.
	Pred string `yaml:"pred,omitempty"`
	// Targets are the br successors: one, or true and false.
	Targets []string `yaml:"targets,omitempty"`
	// Cases and Default describe a switch.
	Cases   []CaseDesc `yaml:"cases,omitempty"`
	Default string     `yaml:"default,omitempty"`
	// Incoming lists the phi operands with their predecessor blocks.
	Incoming []IncomingDesc `yaml:"incoming,omitempty"`
	// Steps describe the getelementptr indices after the base pointer.
	Steps []StepDesc `yaml:"steps,omitempty"`
	// Callee names the function a call invokes.
	Callee string `yaml:"callee,omitempty"`
}

// CaseDesc is one switch case.
type CaseDesc struct {
	Value int64  `yaml:"value"`
	Dest  string `yaml:"dest"`
}

// IncomingDesc is one phi operand.
type IncomingDesc struct {
	Value string `yaml:"value"`
	Block string `yaml:"block"`
}

// StepDesc is one getelementptr level: either an array of Array elements
// or a struct whose field types are listed in Struct.
type StepDesc struct {
	Array  string   `yaml:"array,omitempty"`
	Struct []string `yaml:"struct,omitempty"`
}
