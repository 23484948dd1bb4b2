package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidateYAMLContent_ExampleIsValid(t *testing.T) {
	t.Parallel()

	cfg, err := ValidateYAMLContent([]byte(ExampleYAML()))
	if err != nil {
		t.Fatalf("expected example config to validate: %v", err)
	}
	if cfg.Import.InsertBatchSize != 500 || cfg.Import.UpdateBatchSize != 50 {
		t.Fatalf("unexpected batch sizes: %+v", cfg.Import)
	}
	if cfg.Import.BatchTimeout != 2*time.Minute {
		t.Fatalf("expected 2m batch timeout, got %s", cfg.Import.BatchTimeout)
	}
	if cfg.Backup.Retention() != 7*24*time.Hour {
		t.Fatalf("expected 7 day retention, got %s", cfg.Backup.Retention())
	}
	if len(cfg.Directory.People) != 1 || cfg.Directory.People[0].TeamID != 1 {
		t.Fatalf("unexpected directory: %+v", cfg.Directory)
	}
}

func TestValidateYAMLContent_AppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := ValidateYAMLContent([]byte("operator:\n  user_id: 3\n"))
	if err != nil {
		t.Fatalf("expected config to validate: %v", err)
	}
	if cfg.Database.Path != DefaultDatabasePath {
		t.Fatalf("expected default database path, got %q", cfg.Database.Path)
	}
	if cfg.Import.UpdateWorkers != 1 || cfg.Import.MessageLimit != 100 || !cfg.Import.BackupBeforeImport {
		t.Fatalf("unexpected import defaults: %+v", cfg.Import)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected log defaults: %+v", cfg.Log)
	}
}

func TestValidateYAMLContent_RejectsOutOfRangeWorkers(t *testing.T) {
	t.Parallel()

	content := []byte(`operator:
  user_id: 1
import:
  update_workers: 64
`)

	_, err := ValidateYAMLContent(content)
	if err == nil {
		t.Fatalf("expected validation error for update_workers")
	}
	if !strings.Contains(err.Error(), "UpdateWorkers") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateYAMLContent_RejectsUnknownLogFormat(t *testing.T) {
	t.Parallel()

	content := []byte(`operator:
  user_id: 1
log:
  format: "xml"
`)

	if _, err := ValidateYAMLContent(content); err == nil {
		t.Fatalf("expected validation error for log format")
	}
}

func TestValidateYAMLContent_RejectsAliasForUnknownUser(t *testing.T) {
	t.Parallel()

	content := []byte(`operator:
  user_id: 1
directory:
  teams:
    - id: 1
      name: "Comercial"
  people:
    - user_id: 1
      full_name: "Maria Souza"
      team_id: 1
  aliases:
    - name: "Mari"
      user_id: 2
`)

	_, err := ValidateYAMLContent(content)
	if err == nil {
		t.Fatalf("expected validation error for alias")
	}
	if !strings.Contains(err.Error(), "unknown user 2") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateYAMLContent_RequiresOperatorInDirectory(t *testing.T) {
	t.Parallel()

	content := []byte(`operator:
  user_id: 9
directory:
  people:
    - user_id: 1
      full_name: "Maria Souza"
`)

	_, err := ValidateYAMLContent(content)
	if err == nil {
		t.Fatalf("expected validation error for operator")
	}
	if !strings.Contains(err.Error(), "operator.user_id 9") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateYAMLContent_RejectsDuplicateTeams(t *testing.T) {
	t.Parallel()

	content := []byte(`operator:
  user_id: 1
directory:
  teams:
    - id: 1
      name: "A"
    - id: 1
      name: "B"
`)

	if _, err := ValidateYAMLContent(content); err == nil {
		t.Fatalf("expected validation error for duplicate team ids")
	}
}
