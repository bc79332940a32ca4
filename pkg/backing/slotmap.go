package backing

import (
	"sync"

	"github.com/marmos91/dittoswap/pkg/cache"
)

type slotWord struct {
	region cache.RegionID
	index  uint64
}

// SlotMap is a sparse bitmap of occupied slots, one bit per page. Devices
// that cannot answer SlotInUse cheaply keep one next to their storage.
type SlotMap struct {
	mu    sync.RWMutex
	words map[slotWord]uint64
	count int
}

// NewSlotMap returns an empty SlotMap.
func NewSlotMap() *SlotMap {
	return &SlotMap{words: make(map[slotWord]uint64)}
}

func locate(region cache.RegionID, offset uint64) (slotWord, uint64) {
	return slotWord{region: region, index: offset / 64}, uint64(1) << (offset % 64)
}

// Set marks the slot occupied and reports whether it already was.
func (m *SlotMap) Set(region cache.RegionID, offset uint64) bool {
	w, bit := locate(region, offset)

	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.words[w]
	if old&bit != 0 {
		return true
	}
	m.words[w] = old | bit
	m.count++
	return false
}

// Clear marks the slot free and reports whether it was occupied.
func (m *SlotMap) Clear(region cache.RegionID, offset uint64) bool {
	w, bit := locate(region, offset)

	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.words[w]
	if !ok || old&bit == 0 {
		return false
	}
	if old &^= bit; old == 0 {
		delete(m.words, w)
	} else {
		m.words[w] = old
	}
	m.count--
	return true
}

// Test reports whether the slot is occupied.
func (m *SlotMap) Test(region cache.RegionID, offset uint64) bool {
	w, bit := locate(region, offset)

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.words[w]&bit != 0
}

// Len returns the number of occupied slots.
func (m *SlotMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}
