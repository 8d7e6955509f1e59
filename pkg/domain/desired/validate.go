package desired

import (
	"errors"
	"fmt"
)

// ErrInvalidSpec is matched by every ConfigurationError.
var ErrInvalidSpec = errors.New("invalid organization spec")

// ConfigurationError reports a structural inconsistency in an OrgSpec.
// Field is the path of the offending value, e.g. "repositories[0].default_branch".
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidSpec
}

func configErr(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks the spec's structural invariants without any I/O.
// All violations are reported, joined with errors.Join.
func (s *OrgSpec) Validate() error {
	var errs []error

	if s.Name == "" {
		errs = append(errs, configErr("name", "organization name is required"))
	}

	seenRepos := make(map[string]int, len(s.Repositories))
	for i, r := range s.Repositories {
		errs = append(errs, r.validate(fmt.Sprintf("repositories[%d]", i))...)
		if r.Name == "" {
			continue
		}
		if first, dup := seenRepos[r.Name]; dup {
			errs = append(errs, configErr(fmt.Sprintf("repositories[%d].name", i),
				"duplicate repository %q (first defined at repositories[%d])", r.Name, first))
			continue
		}
		seenRepos[r.Name] = i
	}

	seenProjects := make(map[string]bool, len(s.Projects))
	for i, p := range s.Projects {
		field := fmt.Sprintf("projects[%d].title", i)
		switch {
		case p.Title == "":
			errs = append(errs, configErr(field, "project title is required"))
		case seenProjects[p.Title]:
			errs = append(errs, configErr(field, "duplicate project %q", p.Title))
		default:
			seenProjects[p.Title] = true
		}
	}

	return errors.Join(errs...)
}

func (r RepoSpec) validate(path string) []error {
	var errs []error

	if r.Name == "" {
		errs = append(errs, configErr(path+".name", "repository name is required"))
	}
	if !r.Visibility.IsValid() {
		errs = append(errs, configErr(path+".visibility", "must be %q or %q, got %q",
			VisibilityPublic, VisibilityPrivate, r.Visibility))
	}
	if len(r.Branches) == 0 {
		errs = append(errs, configErr(path+".branches", "at least one branch is required"))
	}

	seen := make(map[string]bool, len(r.Branches))
	for i, b := range r.Branches {
		field := fmt.Sprintf("%s.branches[%d]", path, i)
		switch {
		case b.Name == "":
			errs = append(errs, configErr(field+".name", "branch name is required"))
		case seen[b.Name]:
			errs = append(errs, configErr(field+".name", "duplicate branch %q", b.Name))
		default:
			seen[b.Name] = true
		}
		if b.Protection != nil && b.Protection.RequiredApprovals < 0 {
			errs = append(errs, configErr(field+".protection.required_approvals",
				"must be >= 0, got %d", b.Protection.RequiredApprovals))
		}
	}

	switch {
	case r.DefaultBranch == "":
		errs = append(errs, configErr(path+".default_branch", "default branch is required"))
	case !seen[r.DefaultBranch]:
		errs = append(errs, configErr(path+".default_branch",
			"branch %q is not listed in branches", r.DefaultBranch))
	}

	return errs
}
