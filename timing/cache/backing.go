// Package cache provides the data cache model used by the memory boundary,
// built on Akita cache components.
package cache

import (
	"fmt"

	"github.com/sarchlab/akita/v4/mem/mem"
)

// StorageBacking adapts an Akita storage to the BackingStore interface.
type StorageBacking struct {
	storage *mem.Storage
}

// NewStorageBacking creates a backing store over a new storage of the given
// capacity in bytes.
func NewStorageBacking(capacity uint64) *StorageBacking {
	return &StorageBacking{storage: mem.NewStorage(capacity)}
}

// WrapStorage creates a backing store over an existing storage.
func WrapStorage(storage *mem.Storage) *StorageBacking {
	return &StorageBacking{storage: storage}
}

// Storage returns the underlying Akita storage.
func (s *StorageBacking) Storage() *mem.Storage {
	return s.storage
}

// Read fetches size bytes starting at addr.
func (s *StorageBacking) Read(addr uint64, size int) ([]byte, error) {
	data, err := s.storage.Read(addr, uint64(size))
	if err != nil {
		return nil, fmt.Errorf("backing read at 0x%x: %w", addr, err)
	}
	return data, nil
}

// Write stores data starting at addr.
func (s *StorageBacking) Write(addr uint64, data []byte) error {
	if err := s.storage.Write(addr, data); err != nil {
		return fmt.Errorf("backing write at 0x%x: %w", addr, err)
	}
	return nil
}
