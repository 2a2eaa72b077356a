package authz

import (
	"sort"
	"strings"
	"sync"
)

// Requirement is the (module, operation) pair a handler declares.
type Requirement struct {
	Module    string
	Operation string
}

type prefixRequirement struct {
	prefix      string
	requirement Requirement
}

// Registry maps route identifiers to their declared requirement. Routes are
// registered explicitly at wiring time; no reflection, no runtime attribute
// scanning. A route-level registration wins over its containing group prefix.
type Registry struct {
	mu       sync.RWMutex
	routes   map[string]Requirement
	prefixes []prefixRequirement
}

func NewRegistry() *Registry {
	return &Registry{
		routes: make(map[string]Requirement),
	}
}

func routeKey(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// Register declares the requirement for one specific (method, route path).
// The path is the route pattern as registered with the router, e.g.
// "/api/v1/tenants/:id".
func (r *Registry) Register(method, path, module, operation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[routeKey(method, path)] = Requirement{Module: module, Operation: operation}
}

// RegisterPrefix declares a requirement for every route under a path prefix,
// the group-level equivalent of Register.
func (r *Registry) RegisterPrefix(prefix, module, operation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefixes = append(r.prefixes, prefixRequirement{
		prefix:      prefix,
		requirement: Requirement{Module: module, Operation: operation},
	})
	// Longest prefix first, so the most specific group wins.
	sort.SliceStable(r.prefixes, func(i, j int) bool {
		return len(r.prefixes[i].prefix) > len(r.prefixes[j].prefix)
	})
}

// Lookup returns the requirement for a route, preferring an exact route
// registration over any group prefix.
func (r *Registry) Lookup(method, path string) (Requirement, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if req, ok := r.routes[routeKey(method, path)]; ok {
		return req, true
	}
	for _, p := range r.prefixes {
		if strings.HasPrefix(path, p.prefix) {
			return p.requirement, true
		}
	}
	return Requirement{}, false
}
