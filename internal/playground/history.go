package playground

import "sync"

// MemoryHistory is a History that keeps the current fragment in memory. The
// server uses one per live session to mirror what the browser address bar
// holds; tests use it to observe writes.
type MemoryHistory struct {
	mu       sync.Mutex
	fragment string
	writes   int
}

// NewMemoryHistory creates a history whose address carries fragment.
func NewMemoryHistory(fragment string) *MemoryHistory {
	return &MemoryHistory{fragment: fragment}
}

// ReplaceFragment overwrites the current fragment.
func (h *MemoryHistory) ReplaceFragment(fragment string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fragment = fragment
	h.writes++
	return nil
}

// Fragment returns the current fragment.
func (h *MemoryHistory) Fragment() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fragment
}

// Writes returns how many times the fragment was replaced.
func (h *MemoryHistory) Writes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writes
}
