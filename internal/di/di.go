// Package di provides a minimal service container with typed tokens.
// Services registered through tokens are constructed lazily and cached as
// singletons.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry resolves services by name.
type ServiceRegistry interface {
	// Get returns the service registered under name, invoking its factory
	// on first access. It panics when the name is unknown.
	Get(name string) any
}

// Container is a ServiceRegistry that also accepts registrations.
type Container interface {
	ServiceRegistry

	// Register stores an already-built service instance.
	Register(name string, svc any)

	// RegisterLazy stores a factory invoked once, on first Get.
	RegisterLazy(name string, factory func(ServiceRegistry) any)
}

// Token identifies a service with a compile-time type.
type Token[T any] struct {
	name string
}

// NewToken creates a typed token. The name must be unique per container.
func NewToken[T any](name string) Token[T] {
	return Token[T]{name: name}
}

// Name returns the token's registry name.
func (t Token[T]) Name() string { return t.name }

// RegisterToken registers a lazy singleton factory under the token's name.
func RegisterToken[T any](c Container, tok Token[T], factory func(ServiceRegistry) T) {
	c.RegisterLazy(tok.name, func(sr ServiceRegistry) any {
		return factory(sr)
	})
}

// GetToken resolves the token's service with its static type. A factory
// may return a typed nil to signal an optional service that is not
// configured; that comes back as the zero value.
func GetToken[T any](sr ServiceRegistry, tok Token[T]) T {
	svc := sr.Get(tok.name)
	if svc == nil {
		var zero T
		return zero
	}
	typed, ok := svc.(T)
	if !ok {
		panic(fmt.Sprintf("di: service %q has type %T, token expects different type", tok.name, svc))
	}
	return typed
}

type lazyEntry struct {
	once    sync.Once
	factory func(ServiceRegistry) any
	value   any
}

type container struct {
	mu        sync.RWMutex
	instances map[string]any
	lazy      map[string]*lazyEntry
}

// NewContainer creates an empty container.
func NewContainer() Container {
	return &container{
		instances: make(map[string]any),
		lazy:      make(map[string]*lazyEntry),
	}
}

func (c *container) Register(name string, svc any) {
	c.mu.Lock()
	c.instances[name] = svc
	c.mu.Unlock()
}

func (c *container) RegisterLazy(name string, factory func(ServiceRegistry) any) {
	c.mu.Lock()
	c.lazy[name] = &lazyEntry{factory: factory}
	c.mu.Unlock()
}

func (c *container) Get(name string) any {
	c.mu.RLock()
	if svc, ok := c.instances[name]; ok {
		c.mu.RUnlock()
		return svc
	}
	e, ok := c.lazy[name]
	c.mu.RUnlock()

	if !ok {
		panic(fmt.Sprintf("di: unknown service %q", name))
	}

	e.once.Do(func() {
		e.value = e.factory(c)
	})
	return e.value
}
