package memory

import (
	"context"
	"sync"
)

// StaticPermissions maps users to the stores they manage. Staff management
// lives outside the core; this covers local runs and tests.
type StaticPermissions struct {
	mu       sync.RWMutex
	managers map[string]map[string]bool
}

func NewStaticPermissions() *StaticPermissions {
	return &StaticPermissions{managers: make(map[string]map[string]bool)}
}

func (p *StaticPermissions) Grant(userID, storeID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.managers[userID] == nil {
		p.managers[userID] = make(map[string]bool)
	}
	p.managers[userID][storeID] = true
}

func (p *StaticPermissions) CanManageStore(ctx context.Context, userID, storeID string) (bool, error) {
	_ = ctx
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.managers[userID][storeID], nil
}
