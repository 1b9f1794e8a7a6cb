// Package device is the actuation layer: a vendor-neutral gateway that turns
// flow device actions (on/off/cycle/pulse/timed/until-threshold) into
// schedules over the on/off primitives every vendor adapter exposes.
package device

import (
	"context"
	"fmt"
	"sync"
)

// Actuator is the capability every vendor adapter provides. Adapters stop at
// on/off/state; all timing and threshold behavior lives in the Gateway so the
// engine never depends on vendor fields.
type Actuator interface {
	TurnOn(ctx context.Context, deviceID string) error
	TurnOff(ctx context.Context, deviceID string) error
	State(ctx context.Context, deviceID string) (bool, error)
}

// Initializer lets an adapter establish connections at startup.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Shutdowner lets an adapter release connections during graceful shutdown.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Registry maps device ids to the adapter that drives them.
type Registry struct {
	mu        sync.RWMutex
	actuators map[string]Actuator
}

func NewRegistry() *Registry {
	return &Registry{actuators: make(map[string]Actuator)}
}

func (r *Registry) Register(deviceID string, a Actuator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actuators[deviceID] = a
}

func (r *Registry) Lookup(deviceID string) (Actuator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actuators[deviceID]
	if !ok {
		return nil, fmt.Errorf("no actuator registered for device %q", deviceID)
	}
	return a, nil
}

// Devices returns the registered device ids.
func (r *Registry) Devices() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.actuators))
	for id := range r.actuators {
		ids = append(ids, id)
	}
	return ids
}

// Initialize calls Initialize on every adapter that wants startup work.
func (r *Registry) Initialize(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[Actuator]bool)
	for id, a := range r.actuators {
		if seen[a] {
			continue
		}
		seen[a] = true
		if init, ok := a.(Initializer); ok {
			if err := init.Initialize(ctx); err != nil {
				return fmt.Errorf("initializing actuator for %s: %w", id, err)
			}
		}
	}
	return nil
}

// Shutdown calls Shutdown on every adapter that needs cleanup. All adapters
// are attempted; the first error is returned.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var firstErr error
	seen := make(map[Actuator]bool)
	for _, a := range r.actuators {
		if seen[a] {
			continue
		}
		seen[a] = true
		if sd, ok := a.(Shutdowner); ok {
			if err := sd.Shutdown(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
