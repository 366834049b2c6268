package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const doubleProgram = `
entry: double
globals:
  - {name: src, addr: 0x100}
memory:
  - {addr: 0x100, type: i32, values: ["21"]}
functions:
  - name: double
    ret: i32
    params:
      - {name: k, type: i32}
    blocks:
      - name: entry
        nodes:
          - {name: x, op: load, type: i32, args: ["@src"]}
          - {name: y, op: mul, type: i32, args: ["%x", "%k"]}
          - {op: ret, args: ["%y"]}
`

var _ = Describe("dfsim", func() {
	var (
		dir            string
		stdout, stderr *bytes.Buffer
	)

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
		return path
	}

	dfsim := func(args ...string) int {
		return run(context.Background(), args, stdout, stderr)
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		stdout = &bytes.Buffer{}
		stderr = &bytes.Buffer{}
	})

	It("should run the entry function and print a report", func() {
		program := write("double.yaml", doubleProgram)

		Expect(dfsim("-args", "i32 2", program)).To(Equal(0), stderr.String())
		Expect(stdout.String()).To(ContainSubstring("Return: i32 42"))
		Expect(stdout.String()).To(ContainSubstring("Loads:             1"))
		Expect(stdout.String()).To(ContainSubstring("mul"))
	})

	It("should print statistics as JSON", func() {
		program := write("double.yaml", doubleProgram)

		Expect(dfsim("-json", "-cache", "-args", "i32 3", program)).To(Equal(0), stderr.String())

		var r report
		Expect(json.Unmarshal(stdout.Bytes(), &r)).To(Succeed())
		Expect(r.Return).To(Equal("i32 63"))
		Expect(r.Entry).To(Equal("double"))
		Expect(r.Stats.Loads).To(Equal(uint64(1)))
		Expect(r.Memory.Reads).To(Equal(uint64(1)))
		Expect(r.Cache).ToNot(BeNil())
		Expect(r.Cache.Misses).To(Equal(uint64(1)))
	})

	It("should pretty-print with -dump", func() {
		program := write("double.yaml", doubleProgram)

		Expect(dfsim("-dump", "-args", "i32 1", program)).To(Equal(0), stderr.String())
		Expect(stdout.String()).To(ContainSubstring("Cycles"))
		Expect(stdout.String()).To(ContainSubstring("BlockActivations"))
	})

	It("should honor the timing and memory configs", func() {
		program := write("double.yaml", doubleProgram)
		Expect(dfsim("-json", "-args", "i32 1", program)).To(Equal(0))
		var base report
		Expect(json.Unmarshal(stdout.Bytes(), &base)).To(Succeed())

		stdout.Reset()
		timing := write("timing.json", `{"int_mul_latency": 9}`)
		memory := write("mem.json", `{"latency": 40}`)
		Expect(dfsim("-json", "-config", timing, "-mem-config", memory, "-args", "i32 1", program)).
			To(Equal(0), stderr.String())
		var slow report
		Expect(json.Unmarshal(stdout.Bytes(), &slow)).To(Succeed())

		Expect(slow.Stats.Cycles).To(Equal(base.Stats.Cycles + 6 + 20))
	})

	It("should log at the requested verbosity", func() {
		program := write("double.yaml", doubleProgram)

		Expect(dfsim("-v", "2", "-args", "i32 1", program)).To(Equal(0))
		Expect(stderr.String()).To(ContainSubstring("running"))
		Expect(stderr.String()).To(ContainSubstring("commit"))
	})

	It("should stop at the cycle limit", func() {
		program := write("double.yaml", doubleProgram)

		Expect(dfsim("-max-cycles", "5", "-args", "i32 1", program)).To(Equal(1))
		Expect(stderr.String()).To(ContainSubstring("cycle limit"))
	})

	DescribeTable("usage errors",
		func(args ...string) {
			Expect(dfsim(args...)).To(Equal(2))
		},
		Entry("no program", "-args", "i32 1"),
		Entry("bad argument literal", "-args", "i32 x", "prog.yaml"),
		Entry("unknown flag", "-bogus", "prog.yaml"),
	)

	DescribeTable("simulation errors",
		func(content string, args []string, message string) {
			program := write("p.yaml", content)

			Expect(dfsim(append(args, program)...)).To(Equal(1))
			Expect(stderr.String()).To(ContainSubstring(message))
		},
		Entry("wrong argument count", doubleProgram, []string{}, "argument"),
		Entry("unknown entry", doubleProgram, []string{"-entry", "triple", "-args", "i32 1"}, "unknown function"),
		Entry("malformed program", "functions: [", []string{}, "loading program"),
	)
})
