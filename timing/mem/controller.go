package mem

import (
	"encoding/json"
	"fmt"
	"os"

	akitamem "github.com/sarchlab/akita/v4/mem/mem"

	"github.com/sarchlab/dfsim/timing/cache"
)

// Config holds the parameters of the reference memory controller.
type Config struct {
	// Capacity of the backing storage in bytes.
	Capacity uint64 `json:"capacity"`
	// Latency of a backing access in cycles when no cache is configured.
	Latency uint64 `json:"latency"`
	// PortWidth is the number of bytes transferred per cycle. Wider
	// accesses take one extra cycle per additional beat.
	PortWidth uint64 `json:"port_width"`
	// RequestsPerCycle bounds how many requests Send accepts per cycle.
	RequestsPerCycle int `json:"requests_per_cycle"`
	// MaxOutstanding bounds the number of requests in flight.
	MaxOutstanding int `json:"max_outstanding"`
	// Cache enables a data cache in front of the backing storage.
	Cache *cache.Config `json:"cache,omitempty"`
}

// DefaultConfig returns a 64MB memory with a 20-cycle latency, an 8-byte
// port accepting two requests per cycle and no cache.
func DefaultConfig() Config {
	return Config{
		Capacity:         64 * akitamem.MB,
		Latency:          20,
		PortWidth:        8,
		RequestsPerCycle: 2,
		MaxOutstanding:   16,
	}
}

// LoadConfig reads a controller configuration from a JSON file. Fields
// missing from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read memory config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse memory config: %w", err)
	}

	return config, config.Validate()
}

// Validate checks the controller parameters.
func (c Config) Validate() error {
	if c.Capacity == 0 {
		return fmt.Errorf("memory capacity must be > 0")
	}
	if c.PortWidth == 0 {
		return fmt.Errorf("port width must be > 0")
	}
	if c.RequestsPerCycle <= 0 || c.MaxOutstanding <= 0 {
		return fmt.Errorf("requests per cycle and max outstanding must be > 0")
	}
	if c.Cache != nil {
		if err := c.Cache.Validate(); err != nil {
			return fmt.Errorf("invalid cache config: %w", err)
		}
	}
	return nil
}

// Statistics holds memory traffic counters.
type Statistics struct {
	Reads        uint64 `json:"reads"`
	Writes       uint64 `json:"writes"`
	BytesRead    uint64 `json:"bytes_read"`
	BytesWritten uint64 `json:"bytes_written"`
	Rejected     uint64 `json:"rejected"`
}

type inflight struct {
	rsp *Response
	due uint64
}

// Controller is a reference memory boundary. The functional access happens
// when the request is accepted; the response is held back until the access
// latency has elapsed.
type Controller struct {
	config  Config
	backing *cache.StorageBacking
	cache   *cache.Cache

	inflight []inflight
	cycle    uint64
	accepted int

	stats Statistics
}

// NewController creates a memory controller.
func NewController(config Config) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		config:  config,
		backing: cache.NewStorageBacking(config.Capacity),
	}
	if config.Cache != nil {
		c.cache = cache.New(*config.Cache, c.backing)
	}
	return c, nil
}

// Config returns the controller configuration.
func (c *Controller) Config() Config {
	return c.config
}

// Storage returns the Akita storage holding the memory image.
func (c *Controller) Storage() *akitamem.Storage {
	return c.backing.Storage()
}

// Stats returns memory traffic counters.
func (c *Controller) Stats() Statistics {
	return c.stats
}

// CacheStats returns the cache counters, or false when no cache is present.
func (c *Controller) CacheStats() (cache.Statistics, bool) {
	if c.cache == nil {
		return cache.Statistics{}, false
	}
	return c.cache.Stats(), true
}

// Pending returns the number of requests in flight.
func (c *Controller) Pending() int {
	return len(c.inflight)
}

// Send accepts a request issued at cycle now.
func (c *Controller) Send(req *Request, now uint64) error {
	if now != c.cycle {
		c.cycle = now
		c.accepted = 0
	}
	if c.accepted >= c.config.RequestsPerCycle || len(c.inflight) >= c.config.MaxOutstanding {
		c.stats.Rejected++
		return ErrBusy
	}
	if req.Length == 0 || req.Addr+req.Length > c.config.Capacity || req.Addr+req.Length < req.Addr {
		return fmt.Errorf("%w: %s", ErrOutOfRange, req)
	}

	rsp := &Response{RequestID: req.ID, Write: req.Write}
	latency, err := c.access(req, rsp)
	if err != nil {
		return fmt.Errorf("request %s: %w", req, err)
	}

	beats := (req.Length + c.config.PortWidth - 1) / c.config.PortWidth
	latency += beats - 1
	if latency == 0 {
		latency = 1
	}

	c.accepted++
	c.inflight = append(c.inflight, inflight{rsp: rsp, due: now + latency})
	return nil
}

func (c *Controller) access(req *Request, rsp *Response) (uint64, error) {
	if req.Write {
		c.stats.Writes++
		c.stats.BytesWritten += req.Length
	} else {
		c.stats.Reads++
		c.stats.BytesRead += req.Length
	}

	if c.cache == nil {
		if req.Write {
			return c.config.Latency, c.backing.Write(req.Addr, req.Data)
		}
		data, err := c.backing.Read(req.Addr, int(req.Length))
		rsp.Data = data
		return c.config.Latency, err
	}

	// Split the access at cache line boundaries; the slowest line decides.
	var latency uint64
	if !req.Write {
		rsp.Data = make([]byte, 0, req.Length)
	}
	for addr, end := req.Addr, req.Addr+req.Length; addr < end; {
		lineEnd := c.cache.BlockAddr(addr) + uint64(c.cache.Config().BlockSize)
		n := min(lineEnd, end) - addr

		var result cache.AccessResult
		var err error
		if req.Write {
			off := addr - req.Addr
			result, err = c.cache.Write(addr, req.Data[off:off+n])
		} else {
			result, err = c.cache.Read(addr, int(n))
			rsp.Data = append(rsp.Data, result.Data...)
		}
		if err != nil {
			return 0, err
		}
		latency = max(latency, result.Latency)
		addr += n
	}
	return latency, nil
}

// Tick returns the responses due at or before now.
func (c *Controller) Tick(now uint64) []*Response {
	var done []*Response
	remaining := c.inflight[:0]
	for _, f := range c.inflight {
		if f.due <= now {
			done = append(done, f.rsp)
			continue
		}
		remaining = append(remaining, f)
	}
	c.inflight = remaining
	return done
}

// Preload writes an initial memory image, bypassing timing. Cached lines are
// written back and dropped so that later accesses observe the image.
func (c *Controller) Preload(addr uint64, data []byte) error {
	if addr+uint64(len(data)) > c.config.Capacity {
		return fmt.Errorf("%w: preload 0x%x+%d", ErrOutOfRange, addr, len(data))
	}
	if c.cache != nil {
		if err := c.cache.Flush(); err != nil {
			return err
		}
	}
	return c.backing.Write(addr, data)
}

// Peek reads memory contents, bypassing timing. Dirty cache lines are
// written back first.
func (c *Controller) Peek(addr, length uint64) ([]byte, error) {
	if addr+length > c.config.Capacity {
		return nil, fmt.Errorf("%w: peek 0x%x+%d", ErrOutOfRange, addr, length)
	}
	if c.cache != nil {
		if err := c.cache.Flush(); err != nil {
			return nil, err
		}
	}
	return c.backing.Read(addr, int(length))
}
