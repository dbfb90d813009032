package ombra

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry holds the registered components of one engine. Read-mostly
// after warm-up; safe for concurrent use.
type Registry struct {
	components map[string]*Component
	mutex      sync.RWMutex
	watchers   []chan Event
}

// Event represents a change in the component registry
type Event struct {
	Type      EventType
	Component *Component
	Timestamp time.Time
}

// EventType represents the type of registry event
type EventType int

const (
	EventRegistered EventType = iota
	EventRemoved
)

// NewRegistry creates an empty component registry
func NewRegistry() *Registry {
	return &Registry{
		components: make(map[string]*Component),
	}
}

// Register adds a component. Names are unique per registry; registering a
// taken name is an error, never a silent override.
func (r *Registry) Register(component *Component) error {
	if err := component.validate(); err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.components[component.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateComponent, component.Name)
	}
	r.components[component.Name] = component

	r.notify(Event{
		Type:      EventRegistered,
		Component: component,
		Timestamp: time.Now(),
	})
	return nil
}

// Get retrieves a component by name
func (r *Registry) Get(name string) (*Component, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	component, exists := r.components[name]
	return component, exists
}

// Remove removes a component from the registry
func (r *Registry) Remove(name string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	component, exists := r.components[name]
	if !exists {
		return
	}
	delete(r.components, name)

	r.notify(Event{
		Type:      EventRemoved,
		Component: component,
		Timestamp: time.Now(),
	})
}

// All returns the registered components sorted by name.
func (r *Registry) All() []*Component {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]*Component, 0, len(r.components))
	for _, c := range r.components {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered names sorted.
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]string, 0, len(r.components))
	for name := range r.components {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of registered components
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.components)
}

// Watch returns a channel that receives registry events
func (r *Registry) Watch() <-chan Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan Event, 100)
	r.watchers = append(r.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it
func (r *Registry) UnWatch(ch <-chan Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}

// notify delivers an event to every watcher. Callers hold the lock.
func (r *Registry) notify(event Event) {
	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
}
