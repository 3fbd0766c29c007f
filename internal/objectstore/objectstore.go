// Package objectstore is the external Object Store contract from spec §6:
// head/get/put over an opaque bucket+key. Production wiring points this at
// S3-compatible storage; this package ships an in-memory implementation
// used by tests and local development, plus a filesystem-backed one that
// every binary (apiserver, ingestord, laneworker, opctl) wires in.
package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/amplify-rag/ingestcore/internal/apperr"
)

type Metadata struct {
	Size int64
	Mime string
	Tags map[string]string
}

type Store interface {
	Head(ctx context.Context, bucket, key string) (Metadata, error)
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// Memory is an in-process Store, safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
	meta    map[string]Metadata
}

func NewMemory() *Memory {
	return &Memory{objects: map[string][]byte{}, meta: map[string]Metadata{}}
}

func objKey(bucket, key string) string { return bucket + "/" + key }

func (m *Memory) Head(_ context.Context, bucket, key string) (Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.meta[objKey(bucket, key)]
	if !ok {
		return Metadata{}, apperr.NotFound("object not found", nil)
	}
	return meta, nil
}

func (m *Memory) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[objKey(bucket, key)]
	if !ok {
		return nil, apperr.NotFound("object not found", nil)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Put(_ context.Context, bucket, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := objKey(bucket, key)
	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[k] = buf
	tags := map[string]string{}
	if existing, ok := m.meta[k]; ok {
		for tk, tv := range existing.Tags {
			tags[tk] = tv
		}
	}
	m.meta[k] = Metadata{Size: int64(len(buf)), Mime: contentType, Tags: tags}
	return nil
}

// SetTags lets tests seed RAG-enabled / force_reprocess markers without a
// full Put round-trip.
func (m *Memory) SetTags(bucket, key string, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := objKey(bucket, key)
	meta := m.meta[k]
	meta.Tags = tags
	m.meta[k] = meta
}

// FS is a filesystem-backed Store rooted at a base directory, one
// subdirectory per bucket.
type FS struct {
	root string
}

func NewFS(root string) *FS { return &FS{root: root} }

func (f *FS) path(bucket, key string) string {
	return filepath.Join(f.root, bucket, filepath.FromSlash(key))
}

func (f *FS) Head(_ context.Context, bucket, key string) (Metadata, error) {
	info, err := os.Stat(f.path(bucket, key))
	if os.IsNotExist(err) {
		return Metadata{}, apperr.NotFound("object not found", nil)
	}
	if err != nil {
		return Metadata{}, apperr.Upstream("stat object", err)
	}
	return Metadata{Size: info.Size()}, nil
}

func (f *FS) Get(_ context.Context, bucket, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(bucket, key))
	if os.IsNotExist(err) {
		return nil, apperr.NotFound("object not found", nil)
	}
	if err != nil {
		return nil, apperr.Upstream("read object", err)
	}
	return data, nil
}

func (f *FS) Put(_ context.Context, bucket, key string, data []byte, _ string) error {
	p := f.path(bucket, key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return apperr.Upstream("mkdir", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return apperr.Upstream("write object", err)
	}
	return nil
}

