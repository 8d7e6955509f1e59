package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/orgsync/pkg/domain/desired"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema/orgspec.schema.json
var orgSpecSchemaJSON []byte

var orgSpecSchemaLoader = gojsonschema.NewBytesLoader(orgSpecSchemaJSON)

// ErrUnreadableSpec is returned when the spec file cannot be read or parsed.
var ErrUnreadableSpec = errors.New("unreadable spec file")

// SchemaError lists every schema violation found in a spec document.
type SchemaError struct {
	Path   string
	Issues []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s does not match the spec schema: %s", e.Path, strings.Join(e.Issues, "; "))
}

// Is lets schema failures be handled like any other invalid spec.
func (e *SchemaError) Is(target error) bool {
	return target == desired.ErrInvalidSpec
}

// SpecLoader reads organization specs from YAML or JSON files.
type SpecLoader struct {
	retryConfig retry.Config
}

func NewSpecLoader() *SpecLoader {
	return &SpecLoader{
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  10 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
}

// LoadOrgSpec reads, schema-checks and decodes the spec at path.
func LoadOrgSpec(path string) (*desired.OrgSpec, error) {
	return NewSpecLoader().Load(path)
}

// Load reads the file with a short retry, then parses it by extension:
// .json as JSON, anything else as YAML. Structural validation
// (OrgSpec.Validate) is left to the caller.
func (l *SpecLoader) Load(path string) (*desired.OrgSpec, error) {
	retryer := retry.New[[]byte](l.retryConfig)
	data, err := retryer.Do(context.Background(), func(ctx context.Context) ([]byte, error) {
		// #nosec G304 -- the spec path is chosen by the operator
		return os.ReadFile(path)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSpec, err)
	}
	return ParseOrgSpec(path, data)
}

// ParseOrgSpec decodes an in-memory document. name selects the format and
// is used in error messages.
func ParseOrgSpec(name string, data []byte) (*desired.OrgSpec, error) {
	doc, err := toJSON(name, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableSpec, name, err)
	}

	result, err := gojsonschema.Validate(orgSpecSchemaLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableSpec, name, err)
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			issues = append(issues, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return nil, &SchemaError{Path: name, Issues: issues}
	}

	var spec desired.OrgSpec
	if err := json.Unmarshal(doc, &spec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableSpec, name, err)
	}
	return &spec, nil
}

func toJSON(name string, data []byte) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(name), ".json") {
		if !json.Valid(data) {
			return nil, errors.New("invalid JSON")
		}
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("empty document")
	}
	return json.Marshal(doc)
}

// SaveRunReport writes v as indented JSON, creating parent directories.
func SaveRunReport(path string, v any) error {
	if path == "" {
		return fmt.Errorf("report path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		// G301: Use 0700 for directories
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}

	// G306: Use 0600 for files
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write run report: %w", err)
	}
	return nil
}
