package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrNoAdapter = errors.New("no adapter for destination kind")

// Mux routes sends to the adapter registered for the target's kind.
// It is safe for concurrent use.
type Mux struct {
	mu       sync.RWMutex
	adapters map[Kind]Adapter
}

func NewMux(adapters ...Adapter) *Mux {
	m := &Mux{adapters: map[Kind]Adapter{}}
	for _, a := range adapters {
		if a != nil {
			m.adapters[a.Kind()] = a
		}
	}
	return m
}

func (m *Mux) Register(a Adapter) {
	if a == nil {
		return
	}
	m.mu.Lock()
	m.adapters[a.Kind()] = a
	m.mu.Unlock()
}

func (m *Mux) Adapter(k Kind) (Adapter, bool) {
	m.mu.RLock()
	a, ok := m.adapters[k]
	m.mu.RUnlock()
	return a, ok
}

// Kinds returns registered kinds in a stable order.
func (m *Mux) Kinds() []Kind {
	m.mu.RLock()
	out := make([]Kind, 0, len(m.adapters))
	for k := range m.adapters {
		out = append(out, k)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Mux) SendText(ctx context.Context, to Target, text string, opt *SendOptions) error {
	a, ok := m.Adapter(to.Kind)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoAdapter, to.Kind)
	}
	return a.SendText(ctx, to, text, opt)
}

// CheckAlive probes every registered adapter and returns the first failure.
func (m *Mux) CheckAlive(ctx context.Context) error {
	for _, k := range m.Kinds() {
		a, _ := m.Adapter(k)
		if err := a.Alive(ctx); err != nil {
			return fmt.Errorf("%s not alive: %w", k, err)
		}
	}
	return nil
}

func (m *Mux) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for _, a := range m.adapters {
		if err := a.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
