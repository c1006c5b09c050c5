package capability_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/axonhq/axon/internal/capability"
)

func TestLoadGrantsFileMissingYieldsEmptyTable(t *testing.T) {
	t.Parallel()

	table, err := capability.LoadGrantsFile(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadGrantsFile: %v", err)
	}

	if table.Lookup("anything").Allows("axon:get") {
		t.Fatal("missing grants file should deny everything")
	}
}

func TestLoadGrantsFileParsesTokens(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "grants.json")

	contents := `{
		// comment, since this is JSONC
		"tokens": {
			"readonly-token": ["axon:get", "axon:has"],
			"admin-token": ["axon"],
		}
	}`

	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	table, err := capability.LoadGrantsFile(path)
	if err != nil {
		t.Fatalf("LoadGrantsFile: %v", err)
	}

	readonly := table.Lookup("readonly-token")
	if !readonly.Allows("axon:get") || readonly.Allows("axon:upload") {
		t.Fatalf("readonly-token grants incorrect")
	}

	admin := table.Lookup("admin-token")
	if !admin.Allows("axon:upload") {
		t.Fatalf("admin-token should allow everything under the axon prefix")
	}

	if table.Lookup("unknown-token").Allows("axon:get") {
		t.Fatalf("unknown token should be denied")
	}
}
