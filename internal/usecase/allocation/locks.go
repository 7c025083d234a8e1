package allocation

import (
	"sync"

	"github.com/google/uuid"
)

// AssetLocks hands out one mutex per asset. Every writer that reads and then
// mutates an asset's targets, snapshots or events must hold the asset's lock
// across the whole read-modify-write, so writers on the same asset serialize
// while different assets do not contend. One instance is shared by everything
// that writes allocation state.
type AssetLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewAssetLocks creates an empty lock registry
func NewAssetLocks() *AssetLocks {
	return &AssetLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// For returns the exclusive-section mutex for one asset
func (l *AssetLocks) For(assetID uuid.UUID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[assetID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[assetID] = lock
	}
	return lock
}
