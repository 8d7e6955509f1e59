package planning

import (
	"fmt"
	"sort"
	"strings"
)

// ScopeKind is one --only category.
type ScopeKind string

const (
	ScopeRepos       ScopeKind = "repos"
	ScopeBranches    ScopeKind = "branches"
	ScopeProtections ScopeKind = "protections"
	ScopeProjects    ScopeKind = "projects"
)

// AllScopeKinds returns every category in processing order.
func AllScopeKinds() []ScopeKind {
	return []ScopeKind{ScopeRepos, ScopeBranches, ScopeProtections, ScopeProjects}
}

// ScopeKindList joins every category name with sep, e.g. for help text.
func ScopeKindList(sep string) string {
	kinds := AllScopeKinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, sep)
}

// IsValid returns true if the kind is a known category.
func (k ScopeKind) IsValid() bool {
	for _, known := range AllScopeKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Scope restricts reconciliation to a set of categories. A nil or empty
// scope covers everything.
type Scope map[ScopeKind]bool

// ParseScope parses values such as ["repos,branches", "projects"].
func ParseScope(values []string) (Scope, error) {
	scope := Scope{}
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(strings.ToLower(part))
			if part == "" {
				continue
			}
			k := ScopeKind(part)
			if !k.IsValid() {
				return nil, fmt.Errorf("invalid resource kind %q (want one of %s)", part, ScopeKindList(", "))
			}
			scope[k] = true
		}
	}
	return scope, nil
}

// Covers reports whether the category is reconciled.
func (s Scope) Covers(k ScopeKind) bool {
	return len(s) == 0 || s[k]
}

// Allows reports whether actions of the given kind may be emitted.
func (s Scope) Allows(k ActionKind) bool {
	return s.Covers(k.ScopeKind())
}

func (s Scope) String() string {
	if len(s) == 0 {
		return "all"
	}
	parts := make([]string, 0, len(s))
	for k := range s {
		parts = append(parts, string(k))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// RemovalPolicy decides what happens to remote branch protection on a
// branch whose desired spec carries no policy.
type RemovalPolicy string

const (
	// RemovalIgnore leaves existing remote protection untouched.
	RemovalIgnore RemovalPolicy = "ignore"
	// RemovalPrune removes remote protection the spec does not declare.
	RemovalPrune RemovalPolicy = "prune"
)

// ParseRemovalPolicy parses a string; empty means RemovalIgnore.
func ParseRemovalPolicy(s string) (RemovalPolicy, error) {
	switch RemovalPolicy(strings.ToLower(s)) {
	case "", RemovalIgnore:
		return RemovalIgnore, nil
	case RemovalPrune:
		return RemovalPrune, nil
	default:
		return "", fmt.Errorf("invalid protection removal policy: %s", s)
	}
}
