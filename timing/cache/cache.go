package cache

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds cache configuration parameters.
type Config struct {
	// Size in bytes
	Size int `json:"size"`
	// Associativity (number of ways)
	Associativity int `json:"associativity"`
	// BlockSize in bytes (cache line size)
	BlockSize int `json:"block_size"`
	// HitLatency in cycles
	HitLatency uint64 `json:"hit_latency"`
	// MissLatency in cycles (includes the backing memory access)
	MissLatency uint64 `json:"miss_latency"`
}

// DefaultConfig returns a small accelerator-local data cache: 32KB, 4-way,
// 64B lines.
func DefaultConfig() Config {
	return Config{
		Size:          32 * 1024,
		Associativity: 4,
		BlockSize:     64,
		HitLatency:    2,
		MissLatency:   40,
	}
}

// Validate checks that the geometry yields at least one full set.
func (c Config) Validate() error {
	if c.Associativity <= 0 || c.BlockSize <= 0 {
		return fmt.Errorf("cache associativity and block size must be positive")
	}
	if c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("cache block size %d is not a power of two", c.BlockSize)
	}
	if c.Size < c.Associativity*c.BlockSize || c.Size%(c.Associativity*c.BlockSize) != 0 {
		return fmt.Errorf("cache size %d is not a multiple of %d-way x %dB sets",
			c.Size, c.Associativity, c.BlockSize)
	}
	if c.HitLatency > c.MissLatency {
		return fmt.Errorf("hit latency %d exceeds miss latency %d", c.HitLatency, c.MissLatency)
	}
	return nil
}

// AccessResult contains the result of a cache access.
type AccessResult struct {
	// Hit indicates whether the access was a cache hit.
	Hit bool
	// Latency is the number of cycles this access takes.
	Latency uint64
	// Data is the data read (for load operations).
	Data []byte
	// Evicted is true if a valid block was replaced.
	Evicted bool
	// EvictedAddr is the address of the evicted block (if Evicted is true).
	EvictedAddr uint64
}

// Cache is a write-back, write-allocate cache using Akita cache components.
// Accesses must not cross a block boundary.
type Cache struct {
	config Config

	// Akita cache directory for tag/state management
	directory *akitacache.DirectoryImpl

	// Data storage - indexed by (setID * associativity + wayID)
	dataStore [][]byte

	stats Statistics

	backing BackingStore
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads      uint64 `json:"reads"`
	Writes     uint64 `json:"writes"`
	Hits       uint64 `json:"hits"`
	Misses     uint64 `json:"misses"`
	Evictions  uint64 `json:"evictions"`
	Writebacks uint64 `json:"writebacks"`
}

// BackingStore interface for the next level in the memory hierarchy.
type BackingStore interface {
	// Read fetches data from the backing store.
	Read(addr uint64, size int) ([]byte, error)
	// Write stores data to the backing store.
	Write(addr uint64, data []byte) error
}

// New creates a new cache with the given configuration.
func New(config Config, backing BackingStore) *Cache {
	numSets := config.Size / (config.Associativity * config.BlockSize)
	totalBlocks := numSets * config.Associativity

	dataStore := make([][]byte, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.BlockSize)
	}

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
		backing:   backing,
	}
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// ResetStats clears cache statistics.
func (c *Cache) ResetStats() {
	c.stats = Statistics{}
}

// BlockAddr returns the block-aligned address containing addr.
func (c *Cache) BlockAddr(addr uint64) uint64 {
	return addr / uint64(c.config.BlockSize) * uint64(c.config.BlockSize)
}

func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

func (c *Cache) checkSpan(addr uint64, size int) error {
	if size <= 0 {
		return fmt.Errorf("cache access of %d bytes", size)
	}
	if c.BlockAddr(addr) != c.BlockAddr(addr+uint64(size)-1) {
		return fmt.Errorf("access 0x%x+%d crosses a %dB block", addr, size, c.config.BlockSize)
	}
	return nil
}

// Read performs a cache read of size bytes.
func (c *Cache) Read(addr uint64, size int) (AccessResult, error) {
	if err := c.checkSpan(addr, size); err != nil {
		return AccessResult{}, err
	}
	c.stats.Reads++

	block := c.directory.Lookup(0, c.BlockAddr(addr))
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)

		offset := addr % uint64(c.config.BlockSize)
		blockData := c.dataStore[c.blockIndex(block)]
		return AccessResult{
			Hit:     true,
			Latency: c.config.HitLatency,
			Data:    extractData(blockData, offset, size),
		}, nil
	}

	c.stats.Misses++
	return c.handleMiss(addr, size, nil)
}

// Write performs a cache write.
// Uses write-allocate policy: on miss, fetch the block first, then write.
func (c *Cache) Write(addr uint64, data []byte) (AccessResult, error) {
	if err := c.checkSpan(addr, len(data)); err != nil {
		return AccessResult{}, err
	}
	c.stats.Writes++

	block := c.directory.Lookup(0, c.BlockAddr(addr))
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)

		offset := addr % uint64(c.config.BlockSize)
		copy(c.dataStore[c.blockIndex(block)][offset:], data)
		block.IsDirty = true

		return AccessResult{
			Hit:     true,
			Latency: c.config.HitLatency,
		}, nil
	}

	c.stats.Misses++
	return c.handleMiss(addr, len(data), data)
}

// handleMiss fills a victim block from the backing store. A nil writeData
// means a read.
func (c *Cache) handleMiss(addr uint64, size int, writeData []byte) (AccessResult, error) {
	result := AccessResult{
		Hit:     false,
		Latency: c.config.MissLatency,
	}

	blockAddr := c.BlockAddr(addr)
	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		return result, fmt.Errorf("no victim for block 0x%x", blockAddr)
	}

	victimData := c.dataStore[c.blockIndex(victim)]

	if victim.IsValid {
		c.stats.Evictions++
		result.Evicted = true
		result.EvictedAddr = victim.Tag

		if victim.IsDirty && c.backing != nil {
			c.stats.Writebacks++
			if err := c.backing.Write(victim.Tag, victimData); err != nil {
				return result, err
			}
		}
	}

	if c.backing != nil {
		newData, err := c.backing.Read(blockAddr, c.config.BlockSize)
		if err != nil {
			return result, err
		}
		copy(victimData, newData)
	} else {
		clear(victimData)
	}

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = false

	offset := addr % uint64(c.config.BlockSize)
	if writeData != nil {
		copy(victimData[offset:], writeData)
		victim.IsDirty = true
	} else {
		result.Data = extractData(victimData, offset, size)
	}

	c.directory.Visit(victim)

	return result, nil
}

// Invalidate marks a cache line as invalid without writeback.
func (c *Cache) Invalidate(addr uint64) {
	block := c.directory.Lookup(0, c.BlockAddr(addr))
	if block != nil && block.IsValid {
		block.IsValid = false
		block.IsDirty = false
	}
}

// Flush writes back all dirty blocks and invalidates them.
func (c *Cache) Flush() error {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty && c.backing != nil {
				blockData := c.dataStore[c.blockIndex(block)]
				if err := c.backing.Write(block.Tag, blockData); err != nil {
					return err
				}
				c.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
	return nil
}

// Reset invalidates all cache lines without writeback.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Statistics{}
}

func extractData(data []byte, offset uint64, size int) []byte {
	out := make([]byte, size)
	copy(out, data[offset:])
	return out
}
