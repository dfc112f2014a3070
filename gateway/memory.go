package gateway

import (
	"context"
	"sync"
)

// =============================================================================
// MEMORY VERIFIER - Programmable fake (tests, local dev)
// =============================================================================

// Memory is an in-memory Verifier. References are registered with a fixed
// outcome; unknown references verify as rejected, matching a gateway that
// has never seen the order. Setting Down simulates an outage.
type Memory struct {
	mu           sync.RWMutex
	verification map[string]Verification
	down         bool
}

func NewMemory() *Memory {
	return &Memory{verification: make(map[string]Verification)}
}

// Register fixes the outcome for a reference.
func (m *Memory) Register(v Verification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verification[v.Reference] = v
}

// SetDown toggles the simulated outage.
func (m *Memory) SetDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

func (m *Memory) Verify(_ context.Context, reference string) (Verification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.down {
		return Verification{}, ErrUnavailable
	}
	if v, ok := m.verification[reference]; ok {
		return v, nil
	}
	return Verification{Reference: reference, Status: StatusRejected}, nil
}
