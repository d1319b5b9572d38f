package logger

import (
	"sync"
	"time"
)

// Entry is one collected log record.
type Entry struct {
	Level   string                 `json:"level"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
	At      time.Time              `json:"at"`
	Count   int                    `json:"count"`
}

// Collector keeps a bounded ring of recent warn/error entries so the admin
// API can expose them without log shipping. Consecutive duplicates (same
// level and message) fold into one entry with a bumped count.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
	cap     int
}

func NewCollector(capacity int) *Collector {
	if capacity <= 0 {
		capacity = 200
	}
	return &Collector{cap: capacity}
}

func (c *Collector) Add(level, msg string, fields map[string]interface{}) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if n := len(c.entries); n > 0 {
		last := &c.entries[n-1]
		if last.Level == level && last.Message == msg {
			last.Count++
			last.At = now
			return
		}
	}

	c.entries = append(c.entries, Entry{Level: level, Message: msg, Fields: fields, At: now, Count: 1})
	if len(c.entries) > c.cap {
		c.entries = c.entries[len(c.entries)-c.cap:]
	}
}

// Recent returns a copy of the collected entries, oldest first.
func (c *Collector) Recent() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}
