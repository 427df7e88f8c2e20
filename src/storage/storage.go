// Package storage provides durable key/value storage for player state.
package storage

import (
	"fmt"
	"regexp"
)

// KV is a durable key/value store. Values are opaque byte slices.
type KV interface {
	// Get returns the value stored under key. The boolean is false if the
	// key does not exist.
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	// Delete removes the keys. Keys that do not exist are ignored.
	Delete(keys ...string) error
	Close() error
}

var safeKeyRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func checkKey(key string) error {
	if !safeKeyRe.MatchString(key) {
		return fmt.Errorf("invalid storage key: %q", key)
	}
	return nil
}
