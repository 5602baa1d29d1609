package service

import (
	"errors"
	"sync"

	"github.com/S1riyS/memfs9p/server/internal/repository"
)

var (
	ErrInstanceExists   = errors.New("filesystem already exists")
	ErrTooManyInstances = errors.New("too many filesystems")
	ErrInstanceNotFound = errors.New("filesystem not found")
)

// Instance is one filesystem and the lock that serializes every operation on it.
type Instance struct {
	mu sync.Mutex
	fs *repository.Filesystem
}

// Registry keeps one filesystem per client token.
type Registry struct {
	mu        sync.Mutex
	instances map[string]*Instance
	max       int
}

func NewRegistry(maxInstances int) *Registry {
	return &Registry{
		instances: make(map[string]*Instance),
		max:       maxInstances,
	}
}

func (r *Registry) Create(token string) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.instances[token]; ok {
		return nil, ErrInstanceExists
	}
	return r.createLocked(token)
}

func (r *Registry) Get(token string) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[token]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return inst, nil
}

func (r *Registry) GetOrCreate(token string) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if inst, ok := r.instances[token]; ok {
		return inst, nil
	}
	return r.createLocked(token)
}

func (r *Registry) Drop(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.instances[token]; !ok {
		return false
	}
	delete(r.instances, token)
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.instances)
}

func (r *Registry) createLocked(token string) (*Instance, error) {
	if len(r.instances) >= r.max {
		return nil, ErrTooManyInstances
	}

	inst := &Instance{fs: repository.NewFilesystem()}
	r.instances[token] = inst
	return inst, nil
}
