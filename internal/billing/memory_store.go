package billing

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	charges map[string]*Charge
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{charges: make(map[string]*Charge)}
}

func (m *MemoryStore) Create(_ context.Context, c *Charge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, other := range m.charges {
		if other.TenantID == c.TenantID && sameDay(other.DueDate, c.DueDate) {
			return ErrDuplicateCharge
		}
	}
	cp := *c
	m.charges[c.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Charge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.charges[id]
	if !ok {
		return nil, ErrChargeNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) GetForCycle(_ context.Context, tenantID string, dueDate time.Time) (*Charge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.charges {
		if c.TenantID == tenantID && sameDay(c.DueDate, dueDate) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrChargeNotFound
}

func (m *MemoryStore) Update(_ context.Context, c *Charge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.charges[c.ID]; !ok {
		return ErrChargeNotFound
	}
	cp := *c
	m.charges[c.ID] = &cp
	return nil
}

func (m *MemoryStore) ListOpen(_ context.Context) ([]*Charge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Charge
	for _, c := range m.charges {
		if c.Open() {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (m *MemoryStore) ListByTenant(_ context.Context, tenantID string) ([]*Charge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Charge
	for _, c := range m.charges {
		if c.TenantID == tenantID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.After(out[j].DueDate) })
	return out, nil
}

func sameDay(a, b time.Time) bool {
	au, bu := a.UTC(), b.UTC()
	return au.Year() == bu.Year() && au.Month() == bu.Month() && au.Day() == bu.Day()
}
