package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

const testSpec = `name: acme
repositories:
  - name: svc-a
    visibility: private
    default_branch: dev
    branches:
      - name: main
        protection:
          required_approvals: 1
      - name: staging
      - name: dev
projects:
  - title: Roadmap
`

// resetFlags restores every package-level flag variable. Cobra binds flags
// to these once, so values leak between Execute calls otherwise.
func resetFlags() {
	configPath = ""
	backend = ""
	verbose = false
	logFormat = "text"
	reconcileFlags = runFlags{output: outputText}
	reconcileDry = false
	planFlags = runFlags{output: outputText}
	watchFlags = runFlags{output: outputText}
	watchDryRun = false
	configForce = false
	historyFile = ""
	historyOrg = ""
	historyVerify = false
	historyLast = false
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// memoryConfig writes a config file selecting the in-memory backend.
func memoryConfig(t *testing.T, dir string) string {
	t.Helper()
	return writeFile(t, dir, "config.yaml", "backend: memory\nconcurrency: 2\nretry:\n  max_attempts: 2\n  initial_delay: 1ms\n")
}

func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeCmdContext(t, context.Background(), args...)
}

func executeCmdContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	buf := new(bytes.Buffer)
	RootCmd.SetOut(buf)
	RootCmd.SetErr(buf)
	RootCmd.SetArgs(args)
	err := RootCmd.ExecuteContext(ctx)
	return buf.String(), err
}
