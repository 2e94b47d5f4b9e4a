package models

import "fmt"

// ScopeLevel identifies a budget boundary.
type ScopeLevel string

const (
	ScopeUser   ScopeLevel = "user"
	ScopeTenant ScopeLevel = "tenant"
	ScopeGlobal ScopeLevel = "global"
)

// Scope is one budget boundary instance, e.g. user:alice or tenant:acme.
type Scope struct {
	Level ScopeLevel
	ID    string
}

// Key returns the stable ledger key for the scope.
func (s Scope) Key() string {
	if s.Level == ScopeGlobal {
		return string(ScopeGlobal)
	}
	return fmt.Sprintf("%s:%s", s.Level, s.ID)
}

// ScopeChainFor builds the evaluation chain for a request, most specific
// first: user, then tenant, then global. Budget denial at any link denies the
// request.
func ScopeChainFor(req *GenerationRequest) []Scope {
	chain := make([]Scope, 0, 3)
	if req.UserID != "" {
		chain = append(chain, Scope{Level: ScopeUser, ID: req.UserID})
	}
	if req.TenantID != "" {
		chain = append(chain, Scope{Level: ScopeTenant, ID: req.TenantID})
	}
	chain = append(chain, Scope{Level: ScopeGlobal})
	return chain
}
