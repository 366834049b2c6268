package dataflow_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dfsim/dataflow"
	"github.com/sarchlab/dfsim/emu"
	"github.com/sarchlab/dfsim/ir"
	"github.com/sarchlab/dfsim/timing/mem"
)

var _ = Describe("Memory nodes", func() {
	var (
		f           *fixture
		g           *dataflow.Graph
		load, store dataflow.ID
	)

	BeforeEach(func() {
		f = newFixture(ir.Void(), dataflow.Param{Name: "p", Type: ir.Pointer()})
		load = f.node(f.entry, ir.OpLoad, ir.Int(32), nil, nil, f.arg(0))
		store = f.node(f.entry, ir.OpStore, ir.Void(), nil, nil, f.i32(7), f.arg(0))
		f.ret(f.entry)
		g = f.build()
		Expect(g.SetArgument(f.arg(0), emu.PointerValue(0x1000))).To(Succeed())
		Expect(g.Activate(f.entry, dataflow.NoID)).To(Succeed())
	})

	It("should issue one read request per load", func() {
		committed, _, err := g.Fire(load)
		Expect(err).ToNot(HaveOccurred())
		Expect(committed).To(BeFalse())

		req, err := g.Node(load).MemoryRequest()
		Expect(err).ToNot(HaveOccurred())
		Expect(req).ToNot(BeNil())
		Expect(req.Write).To(BeFalse())
		Expect(req.Addr).To(Equal(uint64(0x1000)))
		Expect(req.Length).To(Equal(uint64(4)))
	})

	It("should carry the stored bytes in a write request", func() {
		_, _, err := g.Fire(store)
		Expect(err).ToNot(HaveOccurred())

		req, err := g.Node(store).MemoryRequest()
		Expect(err).ToNot(HaveOccurred())
		Expect(req.Write).To(BeTrue())
		Expect(req.Data).To(Equal([]byte{7, 0, 0, 0}))
	})

	It("should not commit or reset while the request is outstanding", func() {
		_, _, err := g.Fire(load)
		Expect(err).ToNot(HaveOccurred())
		for i := 0; i < 10; i++ {
			g.Node(load).Advance()
		}
		Expect(g.Node(load).Elapsed()).To(BeFalse())
		_, err = g.Commit(load)
		Expect(err).To(MatchError(dataflow.ErrOutstandingRequest))
		Expect(g.Node(load).Reset()).To(MatchError(dataflow.ErrOutstandingRequest))
	})

	It("should take the loaded value from the matching response", func() {
		_, _, err := g.Fire(load)
		Expect(err).ToNot(HaveOccurred())
		req, _ := g.Node(load).MemoryRequest()

		stray := mem.NewReadRequest(0x1000, 4)
		err = g.Node(load).CompleteMemoryRequest(&mem.Response{RequestID: stray.ID, Data: []byte{1, 0, 0, 0}})
		Expect(err).To(MatchError(dataflow.ErrUnexpectedResponse))

		rsp := &mem.Response{RequestID: req.ID, Data: []byte{42, 0, 0, 0}}
		Expect(g.Node(load).CompleteMemoryRequest(rsp)).To(Succeed())
		Expect(g.Node(load).Elapsed()).To(BeTrue())

		_, err = g.Commit(load)
		Expect(err).ToNot(HaveOccurred())
		Expect(g.Node(load).Result().Int()).To(Equal(int64(42)))

		req, err = g.Node(load).MemoryRequest()
		Expect(err).ToNot(HaveOccurred())
		Expect(req).To(BeNil())
	})

	Describe("with a load latency", func() {
		BeforeEach(func() {
			f = newFixture(ir.Void(), dataflow.Param{Name: "p", Type: ir.Pointer()})
			load = f.node(f.entry, ir.OpLoad, ir.Int(32), nil, cycles(3), f.arg(0))
			f.ret(f.entry)
			g = f.build()
			Expect(g.SetArgument(f.arg(0), emu.PointerValue(0x1000))).To(Succeed())
			Expect(g.Activate(f.entry, dataflow.NoID)).To(Succeed())
		})

		respond := func() {
			req, err := g.Node(load).MemoryRequest()
			Expect(err).ToNot(HaveOccurred())
			rsp := &mem.Response{RequestID: req.ID, Data: []byte{5, 0, 0, 0}}
			Expect(g.Node(load).CompleteMemoryRequest(rsp)).To(Succeed())
		}

		It("should overlap the latency with an early response", func() {
			_, _, err := g.Fire(load)
			Expect(err).ToNot(HaveOccurred())
			g.Node(load).Advance()
			respond()
			Expect(g.Node(load).Elapsed()).To(BeFalse())

			g.Node(load).Advance()
			g.Node(load).Advance()
			Expect(g.Node(load).Cycle()).To(Equal(uint64(3)))
			Expect(g.Node(load).Elapsed()).To(BeTrue())
		})

		It("should commit as soon as a late response arrives", func() {
			_, _, err := g.Fire(load)
			Expect(err).ToNot(HaveOccurred())
			for i := 0; i < 5; i++ {
				g.Node(load).Advance()
			}
			Expect(g.Node(load).Elapsed()).To(BeFalse())

			respond()
			Expect(g.Node(load).Elapsed()).To(BeTrue())
			_, err = g.Commit(load)
			Expect(err).ToNot(HaveOccurred())
			Expect(g.Node(load).Result().Int()).To(Equal(int64(5)))
		})
	})

	It("should reject memory queries on other nodes", func() {
		ret := g.Block(f.entry).Terminator()
		_, err := g.Node(ret).MemoryRequest()
		Expect(err).To(MatchError(dataflow.ErrNotMemory))
	})
})

var _ = Describe("Constant loads", func() {
	It("should bypass memory and commit in the launch cycle", func() {
		f := newFixture(ir.Void())
		k := f.b.AddGlobalConstant("k", 0x100, emu.IntValue(ir.Int(32), 42))
		load := f.node(f.entry, ir.OpLoad, ir.Int(32), nil, nil, k)
		f.ret(f.entry)
		g := f.build()
		Expect(g.Activate(f.entry, dataflow.NoID)).To(Succeed())

		committed, _, err := g.Fire(load)
		Expect(err).ToNot(HaveOccurred())
		Expect(committed).To(BeTrue())

		n := g.Node(load)
		Expect(n.ShortCircuited()).To(BeTrue())
		Expect(n.Result().Int()).To(Equal(int64(42)))
		req, err := n.MemoryRequest()
		Expect(err).ToNot(HaveOccurred())
		Expect(req).To(BeNil())
	})
})
