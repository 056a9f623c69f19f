// Package connectivity tracks whether the remote data service is reachable.
// The monitor never probes on its own: callers report reachability transitions
// and subscribers are told about each change.
package connectivity

import (
	"log/slog"
	"sync"
)

// Monitor holds the current online/offline state.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   map[int]chan bool
	nextID int
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInitial sets the state before the first transition is observed.
func WithInitial(online bool) Option {
	return func(m *Monitor) { m.online = online }
}

// New returns a monitor that assumes it is online until told otherwise.
func New(opts ...Option) *Monitor {
	m := &Monitor{online: true, subs: make(map[int]chan bool)}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Online reports the last observed state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records a reachability signal. Subscribers are notified only when the
// state actually changes.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online == online {
		return
	}
	m.online = online
	slog.Debug("connectivity changed", "online", online)

	for _, ch := range m.subs {
		// Keep only the latest state for slow subscribers.
		select {
		case <-ch:
		default:
		}
		ch <- online
	}
}

// Subscribe returns a channel receiving every transition and a cancel func
// that unregisters and closes it.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan bool, 1)
	m.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}
