// Package registry maps gateway names to constructors. Gateway packages register
// themselves from init(), so importing a gateway package is enough to make it available.
package registry

import (
	"sort"
	"strings"
	"sync"

	"iranpay/internal/config"
	"iranpay/internal/domain"
	"iranpay/internal/domain/ports/adapter"
	"iranpay/internal/infra/httpclient"
)

// Constructor builds a gateway from its immutable config.
type Constructor func(cfg config.GatewayConfig, opts ...httpclient.Option) (adapter.Gateway, error)

var (
	mu    sync.RWMutex
	ctors = map[string]Constructor{}
)

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// Register binds name to ctor. Registering an existing name overwrites it.
func Register(name string, ctor Constructor) {
	if ctor == nil {
		panic("registry: nil constructor for " + name)
	}
	mu.Lock()
	defer mu.Unlock()
	ctors[key(name)] = ctor
}

// Unregister removes name; used by tests that register temporary gateways.
func Unregister(name string) {
	mu.Lock()
	defer mu.Unlock()
	delete(ctors, key(name))
}

// Create builds the gateway registered under name.
// Constructor errors are returned unchanged.
func Create(name string, cfg config.GatewayConfig, opts ...httpclient.Option) (adapter.Gateway, error) {
	mu.RLock()
	ctor, ok := ctors[key(name)]
	mu.RUnlock()
	if !ok {
		return nil, &domain.UnknownGatewayError{Name: name}
	}
	return ctor(cfg, opts...)
}

// Names lists registered gateways in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(ctors))
	for n := range ctors {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
