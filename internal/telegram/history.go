package telegram

import (
	"sort"
	"sync"
	"time"

	"github.com/edgard/chanwatch/internal/payload"
)

// DefaultHistorySize is the per-chat message capacity of a History.
const DefaultHistorySize = 2000

// History keeps the most recent messages seen per chat. The Bot API cannot
// read chat history, so it is the only source for history reads.
type History struct {
	mu       sync.RWMutex
	capacity int
	chats    map[int64]*chatLog
}

type chatLog struct {
	byID map[int64]payload.Document
	ids  []int64 // ascending
}

// NewHistory creates a History holding up to capacity messages per chat.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{capacity: capacity, chats: make(map[int64]*chatLog)}
}

// Add stores or replaces a message. Documents without an id are ignored.
// When a chat is full the lowest message id is evicted.
func (h *History) Add(chatID int64, doc payload.Document) {
	id, ok := doc.ID()
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	log, ok := h.chats[chatID]
	if !ok {
		log = &chatLog{byID: make(map[int64]payload.Document)}
		h.chats[chatID] = log
	}
	if _, exists := log.byID[id]; !exists {
		i := sort.Search(len(log.ids), func(i int) bool { return log.ids[i] >= id })
		log.ids = append(log.ids, 0)
		copy(log.ids[i+1:], log.ids[i:])
		log.ids[i] = id
	}
	log.byID[id] = doc

	for len(log.ids) > h.capacity {
		delete(log.byID, log.ids[0])
		log.ids = log.ids[1:]
	}
}

// Get returns one message.
func (h *History) Get(chatID, id int64) (payload.Document, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	log, ok := h.chats[chatID]
	if !ok {
		return nil, false
	}
	doc, ok := log.byID[id]
	return doc, ok
}

// Before returns the chat's messages dated at or before offset, newest
// first. A zero offset means no upper bound.
func (h *History) Before(chatID int64, offset time.Time) []payload.Document {
	h.mu.RLock()
	defer h.mu.RUnlock()
	log, ok := h.chats[chatID]
	if !ok {
		return nil
	}

	out := make([]payload.Document, 0, len(log.ids))
	for i := len(log.ids) - 1; i >= 0; i-- {
		doc := log.byID[log.ids[i]]
		if !offset.IsZero() {
			if ts, ok := doc.Date(); ok && ts.After(offset) {
				continue
			}
		}
		out = append(out, doc)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, _ := out[i].Date()
		tj, _ := out[j].Date()
		return ti.After(tj)
	})
	return out
}

// Len returns the number of messages held for a chat.
func (h *History) Len(chatID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if log, ok := h.chats[chatID]; ok {
		return len(log.ids)
	}
	return 0
}
