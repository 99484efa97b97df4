// Package memory contains an in-memory object store for tests.
package memory

import (
	"context"
	"io"
	"sync"
)

// Object captures one Put call.
type Object struct {
	Path        string
	ContentType string
	Data        []byte
}

// Store records uploaded objects.
type Store struct {
	mu      sync.RWMutex
	objects []Object
}

// New returns a memory Store.
func New() *Store {
	return &Store{}
}

// Put records the object and returns a mem:// URI.
func (s *Store) Put(_ context.Context, path, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = append(s.objects, Object{Path: path, ContentType: contentType, Data: data})
	return "mem://" + path, nil
}

// Objects returns a copy of the recorded objects.
func (s *Store) Objects() []Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Object, len(s.objects))
	copy(out, s.objects)
	return out
}
