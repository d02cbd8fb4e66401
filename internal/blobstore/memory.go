package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

type object struct {
	data []byte
	ref  Ref
}

// MemoryStore keeps objects in process. Download URLs use the memory:// scheme.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]object
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]object)}
}

func (m *MemoryStore) Upload(_ context.Context, path string, body io.Reader, contentType string) (Ref, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return Ref{}, fmt.Errorf("blobstore: read body: %w", err)
	}
	ref := Ref{Path: path, Name: baseName(path), ContentType: contentType, Size: int64(len(data)), UpdatedAt: time.Now().UTC()}
	m.mu.Lock()
	m.objects[path] = object{data: data, ref: ref}
	m.mu.Unlock()
	return ref, nil
}

func (m *MemoryStore) DownloadURL(_ context.Context, ref Ref) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[ref.Path]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref.Path)
	}
	return (&url.URL{Scheme: "memory", Path: "/" + ref.Path}).String(), nil
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]Ref, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var refs []Ref
	for path, obj := range m.objects {
		if strings.HasPrefix(path, prefix) {
			refs = append(refs, obj.ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
	return refs, nil
}

// Read returns the stored bytes for path.
func (m *MemoryStore) Read(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	return obj.data, ok
}
