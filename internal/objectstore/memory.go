package objectstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process Gateway. Sticky keys accept deletes without removing
// the object, and failing keys reject deletes, so callers can exercise
// storage inconsistencies.
type Memory struct {
	mu       sync.Mutex
	objects  map[string]memoryObject
	sticky   map[string]struct{}
	failing  map[string]struct{}
	down     bool
	puts     int
	endpoint string
}

type memoryObject struct {
	body        []byte
	contentType string
}

// NewMemory returns an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		objects:  make(map[string]memoryObject),
		sticky:   make(map[string]struct{}),
		failing:  make(map[string]struct{}),
		endpoint: "memory.local",
	}
}

func memoryKey(bucket, key string) string {
	return bucket + "/" + key
}

// Put stores a copy of body.
func (m *Memory) Put(_ context.Context, bucket, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return fmt.Errorf("%w: put %s/%s", ErrUnreachable, bucket, key)
	}
	m.objects[memoryKey(bucket, key)] = memoryObject{body: append([]byte(nil), body...), contentType: contentType}
	m.puts++
	return nil
}

// Head reports whether the object exists.
func (m *Memory) Head(_ context.Context, bucket, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return false, fmt.Errorf("%w: head %s/%s", ErrUnreachable, bucket, key)
	}
	_, ok := m.objects[memoryKey(bucket, key)]
	return ok, nil
}

// Delete removes the object unless the key is sticky or failing.
func (m *Memory) Delete(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return fmt.Errorf("%w: delete %s/%s", ErrUnreachable, bucket, key)
	}
	full := memoryKey(bucket, key)
	if _, ok := m.failing[full]; ok {
		return errors.New("delete rejected")
	}
	if _, ok := m.sticky[full]; ok {
		return nil
	}
	delete(m.objects, full)
	return nil
}

// PresignGet returns a fake signed URL.
func (m *Memory) PresignGet(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("%s?expires=%d", ObjectURL(m.endpoint, bucket, key), int(ttl.Seconds())), nil
}

// Ping fails only when the gateway has been taken down.
func (m *Memory) Ping(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return fmt.Errorf("%w: bucket %q", ErrUnreachable, bucket)
	}
	return nil
}

// Object returns the stored body and content type.
func (m *Memory) Object(bucket, key string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[memoryKey(bucket, key)]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), obj.body...), obj.contentType, true
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// Puts returns how many uploads were accepted.
func (m *Memory) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// MakeSticky makes deletes of key report success while keeping the object.
func (m *Memory) MakeSticky(bucket, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sticky[memoryKey(bucket, key)] = struct{}{}
}

// FailDeletes makes deletes of key return an error.
func (m *Memory) FailDeletes(bucket, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[memoryKey(bucket, key)] = struct{}{}
}

// SetDown toggles a simulated outage.
func (m *Memory) SetDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}
