package strategies

import "sync"

// Memory keeps entries in memory so tests can assert on what was logged.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemory creates an empty Memory strategy.
func NewMemory() *Memory {
	return &Memory{}
}

// Log implements Strategy.
func (m *Memory) Log(entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// Sync implements Strategy.
func (m *Memory) Sync() error { return nil }

// Entries returns a copy of the captured entries.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Messages returns the captured messages in order.
func (m *Memory) Messages() []string {
	entries := m.Entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}
