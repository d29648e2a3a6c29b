package utils

import (
	"fmt"
	"sync"
)

// MutexMap hands out one mutex per key. Entries are dropped once nobody holds
// or waits for them, and at most maxKeys keys can be locked at once.
type MutexMap struct {
	edit    sync.Mutex
	waiters map[string]int
	mutexes map[string]*sync.Mutex
	maxKeys int
}

func NewMutexMap(maxKeys int) *MutexMap {
	return &MutexMap{
		waiters: make(map[string]int),
		mutexes: make(map[string]*sync.Mutex),
		maxKeys: maxKeys,
	}
}

func (m *MutexMap) Lock(key string) error {
	m.edit.Lock()

	mu, ok := m.mutexes[key]
	if !ok {
		if len(m.mutexes) >= m.maxKeys {
			m.edit.Unlock()
			return fmt.Errorf("cannot lock %s: %d keys already locked", key, m.maxKeys)
		}
		mu = &sync.Mutex{}
		m.mutexes[key] = mu
	}
	m.waiters[key]++
	m.edit.Unlock()

	mu.Lock()
	return nil
}

func (m *MutexMap) Unlock(key string) error {
	m.edit.Lock()
	defer m.edit.Unlock()

	mu, ok := m.mutexes[key]
	if !ok {
		return fmt.Errorf("key %s is not locked", key)
	}

	mu.Unlock()
	m.waiters[key]--

	if m.waiters[key] == 0 {
		delete(m.mutexes, key)
		delete(m.waiters, key)
	}
	return nil
}
