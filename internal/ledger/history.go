package ledger

import (
	"sync"

	"flexmarket/internal/model"
)

// HistoryStore is a fixed-capacity trade log. Appends overwrite the
// oldest entry once the capacity is reached; reads return newest first.
// Agents consume a small window of it as decision context, the query
// surface a slightly larger one.
type HistoryStore struct {
	mu   sync.RWMutex
	buf  []model.Trade
	head int // next write position
	size int
}

func NewHistoryStore(capacity int) *HistoryStore {
	if capacity <= 0 {
		capacity = 1
	}
	return &HistoryStore{buf: make([]model.Trade, capacity)}
}

// Append records trades in execution order, evicting the oldest entries
// when full.
func (h *HistoryStore) Append(trades ...model.Trade) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range trades {
		h.buf[h.head] = t
		h.head = (h.head + 1) % len(h.buf)
		if h.size < len(h.buf) {
			h.size++
		}
	}
}

// Recent returns up to n trades, most recent first.
func (h *HistoryStore) Recent(n int) []model.Trade {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n > h.size {
		n = h.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]model.Trade, 0, n)
	idx := h.head
	for i := 0; i < n; i++ {
		idx--
		if idx < 0 {
			idx = len(h.buf) - 1
		}
		out = append(out, h.buf[idx])
	}
	return out
}

// Len is the number of trades currently retained.
func (h *HistoryStore) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Capacity is the configured bound.
func (h *HistoryStore) Capacity() int {
	return len(h.buf)
}
