package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File stores every key in a separate JSON file in a directory.
type File struct {
	dir  string
	lock sync.Mutex
}

var _ KV = (*File)(nil)

// OpenFile creates the directory if needed.
func OpenFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &File{dir: dir}, nil
}

func (store *File) path(key string) string {
	return filepath.Join(store.dir, key+".json")
}

// Get implements KV.
func (store *File) Get(key string) ([]byte, bool, error) {
	if err := checkKey(key); err != nil {
		return nil, false, err
	}
	store.lock.Lock()
	defer store.lock.Unlock()

	data, err := os.ReadFile(store.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set implements KV. The value is written to a temporary file first so a
// crash never leaves a truncated value behind.
func (store *File) Set(key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	store.lock.Lock()
	defer store.lock.Unlock()

	file, err := os.CreateTemp(store.dir, key+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := file.Write(value); err != nil {
		file.Close()
		os.Remove(file.Name())
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return err
	}
	return os.Rename(file.Name(), store.path(key))
}

// Delete implements KV.
func (store *File) Delete(keys ...string) error {
	store.lock.Lock()
	defer store.lock.Unlock()
	for _, key := range keys {
		if err := checkKey(key); err != nil {
			return err
		}
		if err := os.Remove(store.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Close implements KV.
func (store *File) Close() error {
	return nil
}
