package storage_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/orgsync/pkg/domain/desired"
	"github.com/felixgeelhaar/orgsync/pkg/storage"
)

const yamlSpec = `name: acme
repositories:
  - name: svc-a
    description: Service A
    visibility: private
    license: mit
    default_branch: dev
    branches:
      - name: main
        protection:
          required_approvals: 2
          enforce_admins: true
      - name: staging
      - name: dev
projects:
  - title: Roadmap
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOrgSpec_YAML(t *testing.T) {
	spec, err := storage.LoadOrgSpec(writeFile(t, "org.yaml", yamlSpec))
	if err != nil {
		t.Fatalf("LoadOrgSpec failed: %v", err)
	}
	if spec.Name != "acme" || len(spec.Repositories) != 1 || len(spec.Projects) != 1 {
		t.Fatalf("unexpected spec: %+v", spec)
	}
	repo := spec.Repositories[0]
	if repo.Visibility != desired.VisibilityPrivate || repo.DefaultBranch != "dev" || repo.License != "mit" {
		t.Errorf("unexpected repository: %+v", repo)
	}
	if repo.InitialBranch() != "main" {
		t.Errorf("expected main as initial branch, got %s", repo.InitialBranch())
	}
	want := &desired.ProtectionPolicy{RequiredApprovals: 2, EnforceAdmins: true}
	if !repo.Branches[0].Protection.Equal(want) {
		t.Errorf("unexpected protection: %+v", repo.Branches[0].Protection)
	}
	if repo.Branches[1].Protection != nil {
		t.Error("branch without protection should have a nil policy")
	}
	if err := spec.Validate(); err != nil {
		t.Errorf("loaded spec should be valid: %v", err)
	}
}

func TestLoadOrgSpec_JSON(t *testing.T) {
	doc := `{"name":"acme","repositories":[{"name":"svc-b","visibility":"public","branches":[{"name":"trunk"}],"default_branch":"trunk"}]}`
	spec, err := storage.LoadOrgSpec(writeFile(t, "org.json", doc))
	if err != nil {
		t.Fatalf("LoadOrgSpec failed: %v", err)
	}
	if spec.Repositories[0].Visibility != desired.VisibilityPublic {
		t.Errorf("unexpected visibility: %s", spec.Repositories[0].Visibility)
	}
}

func TestLoadOrgSpec_SchemaViolations(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		issue string
	}{
		{
			name:  "bad visibility",
			doc:   "name: acme\nrepositories:\n  - name: a\n    visibility: internal\n    default_branch: main\n    branches: [{name: main}]\n",
			issue: "visibility",
		},
		{
			name:  "negative approvals",
			doc:   "name: acme\nrepositories:\n  - name: a\n    visibility: public\n    default_branch: main\n    branches:\n      - name: main\n        protection: {required_approvals: -1}\n",
			issue: "required_approvals",
		},
		{
			name:  "no branches",
			doc:   "name: acme\nrepositories:\n  - name: a\n    visibility: public\n    default_branch: main\n    branches: []\n",
			issue: "branches",
		},
		{
			name:  "unknown field",
			doc:   "name: acme\nrepositories: []\nteams: [core]\n",
			issue: "teams",
		},
		{
			name:  "missing name",
			doc:   "repositories: []\n",
			issue: "name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := storage.LoadOrgSpec(writeFile(t, "org.yaml", tt.doc))

			var schemaErr *storage.SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("expected SchemaError, got %v", err)
			}
			if !errors.Is(err, desired.ErrInvalidSpec) {
				t.Error("schema errors should count as invalid spec")
			}
			if !strings.Contains(err.Error(), tt.issue) {
				t.Errorf("expected %q in %v", tt.issue, err)
			}
		})
	}
}

func TestLoadOrgSpec_Unreadable(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") }},
		{"broken yaml", func(t *testing.T) string { return writeFile(t, "org.yaml", "name: [acme\n") }},
		{"broken json", func(t *testing.T) string { return writeFile(t, "org.json", "{") }},
		{"empty file", func(t *testing.T) string { return writeFile(t, "org.yaml", "") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := storage.LoadOrgSpec(tt.path(t))
			if !errors.Is(err, storage.ErrUnreadableSpec) {
				t.Errorf("expected ErrUnreadableSpec, got %v", err)
			}
		})
	}
}

func TestSaveRunReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "run.json")
	report := map[string]any{"id": "run-1", "failed": 0}

	if err := storage.SaveRunReport(path, report); err != nil {
		t.Fatalf("SaveRunReport failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600, got %v", info.Mode().Perm())
	}

	data, _ := os.ReadFile(path)
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil || got["id"] != "run-1" {
		t.Errorf("unexpected report content: %s", data)
	}
}
