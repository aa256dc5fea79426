// Package store provides payments.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/scheduled-payments/payments"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	wallets map[string][]payments.Payment
}

func NewMemory() *Memory {
	return &Memory{wallets: make(map[string][]payments.Payment)}
}

// LoadPayments returns copies of a wallet's payments in creation order.
func (m *Memory) LoadPayments(_ context.Context, wallet string) ([]payments.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.wallets[wallet]
	out := make([]payments.Payment, len(stored))
	for i, p := range stored {
		out[i] = p.Clone()
	}
	return out, nil
}

// SavePayment replaces a payment with the same ID or appends a new one.
func (m *Memory) SavePayment(_ context.Context, wallet string, p payments.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.wallets[wallet]
	for i := range stored {
		if stored[i].ID == p.ID {
			stored[i] = p.Clone()
			return nil
		}
	}
	m.wallets[wallet] = append(stored, p.Clone())
	return nil
}

func (m *Memory) DeletePayments(_ context.Context, wallet string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	var kept []payments.Payment
	for _, p := range m.wallets[wallet] {
		if !drop[p.ID] {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		delete(m.wallets, wallet)
		return nil
	}
	m.wallets[wallet] = kept
	return nil
}

func (m *Memory) ListWallets(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.wallets))
	for w := range m.wallets {
		out = append(out, w)
	}
	sort.Strings(out)
	return out, nil
}

var _ payments.Store = (*Memory)(nil)
