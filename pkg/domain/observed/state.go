// Package observed models the live configuration read from the remote
// platform during a single run.
package observed

import (
	"github.com/felixgeelhaar/orgsync/pkg/domain/desired"
)

// Presence is the outcome of looking a resource up. Unknown means the lookup
// itself failed, which is different from the resource being absent.
type Presence string

const (
	Absent  Presence = "absent"
	Present Presence = "present"
	Unknown Presence = "unknown"
)

// State is a snapshot of the remote organization, keyed by desired names.
type State struct {
	Org          Presence               `json:"org"`
	OrgErr       string                 `json:"org_error,omitempty"`
	Repositories map[string]*Repository `json:"repositories"`
	Projects     map[string]*Project    `json:"projects"`
}

// NewState returns an empty snapshot for the given org presence.
func NewState(org Presence) *State {
	return &State{
		Org:          org,
		Repositories: make(map[string]*Repository),
		Projects:     make(map[string]*Project),
	}
}

// Repository returns the observation for name. A repository that was never
// looked up reads as Unknown so callers never mistake it for Absent.
func (s *State) Repository(name string) *Repository {
	if r, ok := s.Repositories[name]; ok && r != nil {
		return r
	}
	return &Repository{Name: name, Presence: Unknown, Err: "not observed"}
}

// Project returns the observation for title, Unknown if it was never looked up.
func (s *State) Project(title string) *Project {
	if p, ok := s.Projects[title]; ok && p != nil {
		return p
	}
	return &Project{Title: title, Presence: Unknown, Err: "not observed"}
}

// Repository is the observed state of one repository.
type Repository struct {
	Name     string   `json:"name"`
	Presence Presence `json:"presence"`
	Err      string   `json:"error,omitempty"`

	// Populated only when Presence is Present.
	DefaultBranch    string             `json:"default_branch,omitempty"`
	BranchesPresence Presence           `json:"branches_presence,omitempty"`
	BranchesErr      string             `json:"branches_error,omitempty"`
	Branches         map[string]*Branch `json:"branches,omitempty"`
}

// HasBranch reports whether the branch was observed on the remote.
func (r *Repository) HasBranch(name string) bool {
	_, ok := r.Branches[name]
	return ok
}

// Branch is the observed state of one branch. ProtectionPresence Absent means
// the branch is unprotected.
type Branch struct {
	Name               string                    `json:"name"`
	ProtectionPresence Presence                  `json:"protection_presence"`
	ProtectionErr      string                    `json:"protection_error,omitempty"`
	Protection         *desired.ProtectionPolicy `json:"protection,omitempty"`
}

// Project is the observed state of one project board.
type Project struct {
	Title    string   `json:"title"`
	Presence Presence `json:"presence"`
	Err      string   `json:"error,omitempty"`
}
