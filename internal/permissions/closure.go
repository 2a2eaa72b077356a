package permissions

import (
	"strings"
	"time"
)

// ModuleGrant is one module the user can reach, with the operation values
// granted on it. Operations are unioned across every role path that reaches
// the module.
type ModuleGrant struct {
	Key        string   `json:"key"`
	Operations []string `json:"operations"`
}

// Allows reports whether the grant covers the operation, case-insensitively.
func (m *ModuleGrant) Allows(operation string) bool {
	for _, op := range m.Operations {
		if strings.EqualFold(op, operation) {
			return true
		}
	}
	return false
}

// Closure is the fully resolved set of (module, operations) a user is
// entitled to at a point in time.
type Closure struct {
	UserID     string        `json:"userId"`
	TenantSlug string        `json:"tenantSlug"`
	Modules    []ModuleGrant `json:"modules"`
	ResolvedAt time.Time     `json:"resolvedAt"`
}

// Module finds a grant by module key, case-insensitively.
func (c *Closure) Module(key string) (*ModuleGrant, bool) {
	for i := range c.Modules {
		if strings.EqualFold(c.Modules[i].Key, key) {
			return &c.Modules[i], true
		}
	}
	return nil, false
}

// Empty is true when the user reaches no modules at all.
func (c *Closure) Empty() bool {
	return len(c.Modules) == 0
}
