package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"netonboard/internal/domain"
)

// ErrNotMatched is returned by a driver when the device answered but is not
// the platform the driver handles.
var ErrNotMatched = errors.New("device does not match driver platform")

// Target identifies the device endpoint for one attempt.
type Target struct {
	Address  string
	Port     int
	Protocol domain.Protocol
	Platform string
	Timeout  time.Duration
}

// Driver retrieves facts from one device platform. A Driver instance serves a
// single session and is not reused across attempts.
type Driver interface {
	// Name returns the driver name (e.g. "cisco_ios")
	Name() string

	// Protocol returns the transport the driver speaks
	Protocol() domain.Protocol

	// Authenticate opens the session
	Authenticate(ctx context.Context, target Target, creds domain.Credentials) error

	// GetFacts collects facts over the open session
	GetFacts(ctx context.Context) (*domain.RawDeviceFacts, error)

	// Close releases the session. Safe to call more than once.
	Close() error
}

// Factory builds a fresh Driver.
type Factory func() Driver

// Registry manages the set of known drivers.
type Registry struct {
	factories map[string]registered
	mu        sync.RWMutex
}

type registered struct {
	factory  Factory
	protocol domain.Protocol
}

// NewRegistry creates an empty driver registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]registered)}
}

// Register adds a driver factory. The factory is invoked once to learn the
// driver's name and protocol.
func (r *Registry) Register(f Factory) error {
	d := f()
	name := d.Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("driver %s already registered", name)
	}

	r.factories[name] = registered{factory: f, protocol: d.Protocol()}
	return nil
}

// New instantiates the named driver.
func (r *Registry) New(name string) (Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.factories[name]
	if !ok {
		return nil, false
	}
	return reg.factory(), true
}

func (r *Registry) protocolOf(name string) (domain.Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.factories[name]
	return reg.protocol, ok
}

// Names returns all registered driver names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ForProtocol filters order down to registered drivers speaking p.
func (r *Registry) ForProtocol(order []string, p domain.Protocol) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, n := range order {
		if reg, ok := r.factories[n]; ok && reg.protocol == p {
			out = append(out, n)
		}
	}
	return out
}

// DefaultRegistry returns a registry with every built-in driver.
func DefaultRegistry(opts ...SSHOption) *Registry {
	r := NewRegistry()
	for _, p := range Profiles() {
		profile := p
		_ = r.Register(func() Driver { return NewSSHDriver(profile, opts...) })
	}
	_ = r.Register(func() Driver { return NewSNMPDriver() })
	return r
}
