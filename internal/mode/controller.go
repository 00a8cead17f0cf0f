// Package mode owns the online/offline flag and picks the delay source for
// each new reaction test.
package mode

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/chav-jf/speedy-green-flash/internal/channel"
	"github.com/chav-jf/speedy-green-flash/internal/delay"
)

// OfflineKey is the fixed name the offline flag is persisted under.
const OfflineKey = "greenflash.offline-mode"

// Store persists boolean flags by name.
type Store interface {
	Load(key string) (value bool, found bool, err error)
	Save(key string, value bool) error
}

// Controller is safe for concurrent use.
type Controller struct {
	mu      sync.RWMutex
	offline bool
	store   Store
	log     *zap.Logger
}

// NewController restores the persisted flag. A missing entry means online.
func NewController(store Store, log *zap.Logger) (*Controller, error) {
	c := &Controller{store: store, log: log}
	if store == nil {
		return c, nil
	}
	v, found, err := store.Load(OfflineKey)
	if err != nil {
		return nil, fmt.Errorf("loading offline flag: %w", err)
	}
	if found {
		c.offline = v
	}
	return c, nil
}

func (c *Controller) Offline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offline
}

// SetOffline updates and persists the flag. It reports whether the value
// changed. A failed save keeps the new in-memory value and returns the error.
func (c *Controller) SetOffline(offline bool) (bool, error) {
	c.mu.Lock()
	if c.offline == offline {
		c.mu.Unlock()
		return false, nil
	}
	c.offline = offline
	c.mu.Unlock()

	c.log.Info("Mode changed", zap.Bool("offline", offline))
	if c.store == nil {
		return true, nil
	}
	if err := c.store.Save(OfflineKey, offline); err != nil {
		return true, fmt.Errorf("saving offline flag: %w", err)
	}
	return true, nil
}

// Source decides which delay source is authoritative for a test starting
// now: the remote peer only when online and connected.
func (c *Controller) Source(state channel.State) delay.Kind {
	if !c.Offline() && state == channel.Connected {
		return delay.KindRemote
	}
	return delay.KindLocal
}
