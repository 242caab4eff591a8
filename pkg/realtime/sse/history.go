package sse

import "sync"

// History keeps recently sent messages for Last-Event-ID replay.
type History interface {
	// Add appends msg. Comment-only messages must be ignored.
	Add(msg *Message)
	// Next returns the message stored right after the one whose id is
	// afterID. It returns false when afterID is empty, unknown, or the newest.
	Next(afterID string) (*Message, bool)
	// Len returns the number of stored messages.
	Len() int
}

// MemoryHistory is a fixed-capacity FIFO History kept in memory.
type MemoryHistory struct {
	mu       sync.RWMutex
	capacity int
	entries  []*Message
	head     int
	size     int
}

// NewMemoryHistory creates a history holding at most capacity messages.
// A capacity of zero or less stores nothing.
func NewMemoryHistory(capacity int) *MemoryHistory {
	if capacity < 0 {
		capacity = 0
	}
	return &MemoryHistory{
		capacity: capacity,
		entries:  make([]*Message, capacity),
	}
}

// Add appends msg and evicts the oldest entry once capacity is exceeded.
func (h *MemoryHistory) Add(msg *Message) {
	if msg == nil || msg.IsCommentOnly() || msg.IsEmpty() || h.capacity == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.size < h.capacity {
		h.entries[(h.head+h.size)%h.capacity] = msg
		h.size++
		return
	}
	h.entries[h.head] = msg
	h.head = (h.head + 1) % h.capacity
}

// Next implements History. Ids are matched exactly, oldest first.
func (h *MemoryHistory) Next(afterID string) (*Message, bool) {
	if afterID == "" {
		return nil, false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for i := 0; i < h.size; i++ {
		if h.at(i).ID != afterID {
			continue
		}
		if i+1 < h.size {
			return h.at(i + 1), true
		}
		return nil, false
	}
	return nil, false
}

// Len implements History.
func (h *MemoryHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Capacity returns the configured capacity.
func (h *MemoryHistory) Capacity() int { return h.capacity }

// Messages returns the stored messages, oldest first.
func (h *MemoryHistory) Messages() []*Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Message, 0, h.size)
	for i := 0; i < h.size; i++ {
		out = append(out, h.at(i))
	}
	return out
}

func (h *MemoryHistory) at(i int) *Message {
	return h.entries[(h.head+i)%h.capacity]
}
