package mem_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dfsim/timing/cache"
	"github.com/sarchlab/dfsim/timing/mem"
)

var _ = Describe("Controller", func() {
	var (
		config mem.Config
		ctrl   *mem.Controller
	)

	JustBeforeEach(func() {
		var err error
		ctrl, err = mem.NewController(config)
		Expect(err).ToNot(HaveOccurred())
	})

	BeforeEach(func() {
		config = mem.DefaultConfig()
	})

	It("should respond after the configured latency", func() {
		Expect(ctrl.Preload(0x100, []byte{1, 2, 3, 4})).To(Succeed())

		req := mem.NewReadRequest(0x100, 4)
		Expect(ctrl.Send(req, 0)).To(Succeed())
		Expect(ctrl.Pending()).To(Equal(1))

		Expect(ctrl.Tick(19)).To(BeEmpty())
		rsps := ctrl.Tick(20)
		Expect(rsps).To(HaveLen(1))
		Expect(rsps[0].RequestID).To(Equal(req.ID))
		Expect(rsps[0].Data).To(Equal([]byte{1, 2, 3, 4}))
		Expect(ctrl.Pending()).To(BeZero())
	})

	It("should charge one cycle per extra beat", func() {
		Expect(ctrl.Send(mem.NewReadRequest(0, 16), 0)).To(Succeed())
		Expect(ctrl.Tick(20)).To(BeEmpty())
		Expect(ctrl.Tick(21)).To(HaveLen(1))
	})

	It("should apply stores functionally at issue", func() {
		Expect(ctrl.Send(mem.NewWriteRequest(0x40, []byte{9, 8}), 3)).To(Succeed())
		data, err := ctrl.Peek(0x40, 2)
		Expect(err).ToNot(HaveOccurred())
		Expect(data).To(Equal([]byte{9, 8}))

		rsps := ctrl.Tick(23)
		Expect(rsps).To(HaveLen(1))
		Expect(rsps[0].Write).To(BeTrue())
		Expect(ctrl.Stats().BytesWritten).To(Equal(uint64(2)))
	})

	It("should deliver responses in send order", func() {
		first := mem.NewReadRequest(0, 4)
		second := mem.NewReadRequest(8, 4)
		Expect(ctrl.Send(first, 0)).To(Succeed())
		Expect(ctrl.Send(second, 0)).To(Succeed())

		rsps := ctrl.Tick(100)
		Expect(rsps).To(HaveLen(2))
		Expect(rsps[0].RequestID).To(Equal(first.ID))
		Expect(rsps[1].RequestID).To(Equal(second.ID))
	})

	It("should reject requests beyond the per-cycle limit", func() {
		Expect(ctrl.Send(mem.NewReadRequest(0, 4), 5)).To(Succeed())
		Expect(ctrl.Send(mem.NewReadRequest(0, 4), 5)).To(Succeed())
		Expect(ctrl.Send(mem.NewReadRequest(0, 4), 5)).To(MatchError(mem.ErrBusy))
		Expect(ctrl.Send(mem.NewReadRequest(0, 4), 6)).To(Succeed())
		Expect(ctrl.Stats().Rejected).To(Equal(uint64(1)))
	})

	Context("with a small outstanding limit", func() {
		BeforeEach(func() {
			config.MaxOutstanding = 1
		})

		It("should stall until a response drains", func() {
			Expect(ctrl.Send(mem.NewReadRequest(0, 4), 0)).To(Succeed())
			Expect(ctrl.Send(mem.NewReadRequest(0, 4), 1)).To(MatchError(mem.ErrBusy))
			ctrl.Tick(20)
			Expect(ctrl.Send(mem.NewReadRequest(0, 4), 20)).To(Succeed())
		})
	})

	It("should reject accesses beyond capacity", func() {
		err := ctrl.Send(mem.NewReadRequest(config.Capacity-2, 4), 0)
		Expect(err).To(MatchError(mem.ErrOutOfRange))
	})

	Context("with a cache", func() {
		BeforeEach(func() {
			c := cache.DefaultConfig()
			config.Cache = &c
		})

		It("should use hit and miss latencies", func() {
			Expect(ctrl.Send(mem.NewReadRequest(0x1000, 4), 0)).To(Succeed())
			Expect(ctrl.Tick(39)).To(BeEmpty())
			Expect(ctrl.Tick(40)).To(HaveLen(1))

			Expect(ctrl.Send(mem.NewReadRequest(0x1004, 4), 40)).To(Succeed())
			Expect(ctrl.Tick(42)).To(HaveLen(1))

			stats, ok := ctrl.CacheStats()
			Expect(ok).To(BeTrue())
			Expect(stats.Hits).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
		})

		It("should split accesses crossing a line", func() {
			Expect(ctrl.Preload(0x3C, []byte{1, 2, 3, 4, 5, 6, 7, 8})).To(Succeed())
			Expect(ctrl.Send(mem.NewReadRequest(0x3C, 8), 0)).To(Succeed())

			rsps := ctrl.Tick(41)
			Expect(rsps).To(HaveLen(1))
			Expect(rsps[0].Data).To(Equal([]byte{1, 2, 3, 4, 5, 6, 7, 8}))

			stats, _ := ctrl.CacheStats()
			Expect(stats.Misses).To(Equal(uint64(2)))
		})

		It("should make cached stores visible to Peek", func() {
			Expect(ctrl.Send(mem.NewWriteRequest(0x80, []byte{0xAA}), 0)).To(Succeed())
			data, err := ctrl.Peek(0x80, 1)
			Expect(err).ToNot(HaveOccurred())
			Expect(data).To(Equal([]byte{0xAA}))
		})
	})

	It("should reject invalid configurations", func() {
		bad := mem.DefaultConfig()
		bad.PortWidth = 0
		_, err := mem.NewController(bad)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("LoadConfig", func() {
	write := func(content string) string {
		path := filepath.Join(GinkgoT().TempDir(), "mem.json")
		Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
		return path
	}

	It("should keep defaults for missing fields", func() {
		config, err := mem.LoadConfig(write(`{"latency": 4, "cache": {"size": 4096, "associativity": 2, "block_size": 64, "hit_latency": 1, "miss_latency": 8}}`))

		Expect(err).ToNot(HaveOccurred())
		Expect(config.Latency).To(Equal(uint64(4)))
		Expect(config.PortWidth).To(Equal(mem.DefaultConfig().PortWidth))
		Expect(config.Cache).ToNot(BeNil())
		Expect(config.Cache.Associativity).To(Equal(2))
	})

	It("should reject invalid values", func() {
		_, err := mem.LoadConfig(write(`{"port_width": 0}`))
		Expect(err).To(HaveOccurred())
	})

	It("should report malformed files", func() {
		_, err := mem.LoadConfig(write(`{`))
		Expect(err).To(MatchError(ContainSubstring("failed to parse memory config")))
	})
})
