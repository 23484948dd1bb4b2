package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func useConfigFile(t *testing.T, path string) {
	t.Helper()
	t.Cleanup(func() {
		cfgFile = ""
		viper.Reset()
	})
	cfgFile = path
	viper.Reset()
}

func TestSaveDefaultConfigCreatesExampleTemplate(t *testing.T) {
	tmpConfig := filepath.Join(t.TempDir(), "nested", "clinic.yaml")
	useConfigFile(t, tmpConfig)

	var out bytes.Buffer
	if err := saveDefaultConfig(&out); err != nil {
		t.Fatalf("unexpected error creating config: %v", err)
	}

	content, err := os.ReadFile(tmpConfig)
	if err != nil {
		t.Fatalf("expected config file to exist: %v", err)
	}
	if !strings.HasPrefix(string(content), "# clinicsync configuration") {
		t.Fatalf("expected example header in config file, got:\n%s", content)
	}
	if !strings.Contains(out.String(), "New config file created") || !strings.Contains(out.String(), "1 teams, 1 people, 0 aliases") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestSaveDefaultConfigChecksExistingFileWithoutRewriting(t *testing.T) {
	tmpConfig := filepath.Join(t.TempDir(), "existing.yaml")
	original := "operator:\n  user_id: 7\ndirectory:\n  teams:\n    - id: 3\n      name: \"Comercial\"\n  people:\n    - user_id: 7\n      full_name: \"Maria Souza\"\n      team_id: 3\n  aliases:\n    - name: \"Mari\"\n      user_id: 7\n"
	if err := os.WriteFile(tmpConfig, []byte(original), 0o644); err != nil {
		t.Fatalf("failed writing initial config: %v", err)
	}
	useConfigFile(t, tmpConfig)

	var out bytes.Buffer
	if err := saveDefaultConfig(&out); err != nil {
		t.Fatalf("unexpected error checking config: %v", err)
	}

	content, err := os.ReadFile(tmpConfig)
	if err != nil {
		t.Fatalf("failed reading existing config after create: %v", err)
	}
	if string(content) != original {
		t.Fatalf("expected existing config to remain unchanged")
	}
	if !strings.Contains(out.String(), "already exists") || !strings.Contains(out.String(), "1 aliases") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestSaveDefaultConfigRejectsAliasForUnknownUser(t *testing.T) {
	tmpConfig := filepath.Join(t.TempDir(), "broken.yaml")
	broken := "operator:\n  user_id: 1\ndirectory:\n  people:\n    - user_id: 1\n      full_name: \"Administrador\"\n  aliases:\n    - name: \"Mari\"\n      user_id: 2\n"
	if err := os.WriteFile(tmpConfig, []byte(broken), 0o644); err != nil {
		t.Fatalf("failed writing initial config: %v", err)
	}
	useConfigFile(t, tmpConfig)

	var out bytes.Buffer
	err := saveDefaultConfig(&out)
	if err == nil {
		t.Fatalf("expected an error for an alias pointing at an unknown user")
	}
	if !strings.Contains(err.Error(), "directory.aliases[0]") || !strings.Contains(err.Error(), tmpConfig) {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no output on failure, got %q", out.String())
	}
}
