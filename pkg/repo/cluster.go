// ABOUTME: Cluster coordination surface for multi-process deployments
// ABOUTME: Process-local implementation backs single-node operation

package repo

import (
	"context"
	"sync"
)

// Coordinator abstracts the cluster services a repository needs:
// shared session bookkeeping and a named global lock. A single-node
// deployment uses ProcessLocalCoordinator; a clustered one plugs in
// an implementation backed by its coordination service.
type Coordinator interface {
	// SessionInfo returns the stored value for key, with ok=false
	// when no value is present.
	SessionInfo(ctx context.Context, key string) (string, bool, error)

	// PutSessionInfo stores value under key.
	PutSessionInfo(ctx context.Context, key, value string) error

	// RemoveSessionInfo deletes key. Removing an absent key is not
	// an error.
	RemoveSessionInfo(ctx context.Context, key string) error

	// ExecuteWithGlobalLock runs fn while holding the named lock.
	// Callers must not assume reentrancy.
	ExecuteWithGlobalLock(ctx context.Context, name string, fn func(context.Context) error) error
}

// ProcessLocalCoordinator implements Coordinator with in-process
// state. Locks are plain mutexes keyed by name.
type ProcessLocalCoordinator struct {
	mu    sync.Mutex
	info  map[string]string
	locks map[string]*sync.Mutex
}

func NewProcessLocalCoordinator() *ProcessLocalCoordinator {
	return &ProcessLocalCoordinator{
		info:  make(map[string]string),
		locks: make(map[string]*sync.Mutex),
	}
}

func (c *ProcessLocalCoordinator) SessionInfo(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.info[key]
	return v, ok, nil
}

func (c *ProcessLocalCoordinator) PutSessionInfo(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info[key] = value
	return nil
}

func (c *ProcessLocalCoordinator) RemoveSessionInfo(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.info, key)
	return nil
}

func (c *ProcessLocalCoordinator) ExecuteWithGlobalLock(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	lock, ok := c.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[name] = lock
	}
	c.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}
