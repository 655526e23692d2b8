package bridge

import (
	"errors"
	"sync"
)

var ErrNotRegistered = errors.New("bridge: no NativeMotion registered")

var (
	mu     sync.RWMutex
	global NativeMotion
)

// Register is called once from native (Swift/Kotlin) before Start().
func Register(m NativeMotion) {
	mu.Lock()
	defer mu.Unlock()
	global = m
}

// Safe returns the registered bridge, or ErrNotRegistered.
func Safe() (NativeMotion, error) {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		return nil, ErrNotRegistered
	}
	return global, nil
}
