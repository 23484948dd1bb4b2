package config

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	KeyDatabasePath               = "database.path"
	KeyOperatorUserID             = "operator.user_id"
	KeyImportInsertBatchSize      = "import.insert_batch_size"
	KeyImportUpdateBatchSize      = "import.update_batch_size"
	KeyImportUpdateWorkers        = "import.update_workers"
	KeyImportBatchTimeout         = "import.batch_timeout"
	KeyImportProgressInterval     = "import.progress_interval"
	KeyImportIndexPageSize        = "import.index_page_size"
	KeyImportMessageLimit         = "import.message_limit"
	KeyImportBackupBeforeImport   = "import.backup_before_import"
	KeyImportAutoRecalculateAfter = "import.auto_recalculate_after_import"
	KeyBackupRetentionDays        = "backup.retention_days"
	KeyLogLevel                   = "log.level"
	KeyLogFormat                  = "log.format"
	KeyDirectory                  = "directory"
	EnvPrefix                     = "CLINICSYNC"
	DefaultDatabasePath           = "clinicsync.db"
)

type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Operator  OperatorConfig  `mapstructure:"operator"`
	Import    ImportConfig    `mapstructure:"import"`
	Backup    BackupConfig    `mapstructure:"backup"`
	Log       LogConfig       `mapstructure:"log"`
	Directory DirectoryConfig `mapstructure:"directory"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// OperatorConfig names the user unattributed sales fall back to.
type OperatorConfig struct {
	UserID int64 `mapstructure:"user_id" validate:"gt=0"`
}

type ImportConfig struct {
	InsertBatchSize            int           `mapstructure:"insert_batch_size" validate:"gt=0,lte=5000"`
	UpdateBatchSize            int           `mapstructure:"update_batch_size" validate:"gt=0,lte=1000"`
	UpdateWorkers              int           `mapstructure:"update_workers" validate:"gte=1,lte=16"`
	BatchTimeout               time.Duration `mapstructure:"batch_timeout" validate:"gt=0"`
	ProgressInterval           time.Duration `mapstructure:"progress_interval" validate:"gte=0"`
	IndexPageSize              int           `mapstructure:"index_page_size" validate:"gt=0"`
	MessageLimit               int           `mapstructure:"message_limit" validate:"gt=0"`
	BackupBeforeImport         bool          `mapstructure:"backup_before_import"`
	AutoRecalculateAfterImport bool          `mapstructure:"auto_recalculate_after_import"`
}

type BackupConfig struct {
	RetentionDays int `mapstructure:"retention_days" validate:"gt=0"`
}

func (b BackupConfig) Retention() time.Duration {
	return time.Duration(b.RetentionDays) * 24 * time.Hour
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// DirectoryConfig seeds the teams, people and seller aliases attribution
// resolves against. It is written to the store by "directory sync".
type DirectoryConfig struct {
	Teams   []TeamConfig   `mapstructure:"teams" validate:"dive"`
	People  []PersonConfig `mapstructure:"people" validate:"dive"`
	Aliases []AliasConfig  `mapstructure:"aliases" validate:"dive"`
}

type TeamConfig struct {
	ID   int64  `mapstructure:"id" validate:"gt=0"`
	Name string `mapstructure:"name" validate:"required"`
}

type PersonConfig struct {
	UserID   int64  `mapstructure:"user_id" validate:"gt=0"`
	FullName string `mapstructure:"full_name" validate:"required"`
	TeamID   int64  `mapstructure:"team_id" validate:"gte=0"`
}

type AliasConfig struct {
	Name   string `mapstructure:"name" validate:"required"`
	UserID int64  `mapstructure:"user_id" validate:"gt=0"`
}

// SetDefaults sets default values if not provided
func SetDefaults() {
	setDefaults(viper.GetViper())
}

// LoadAndValidate loads config from Viper and validates it
func LoadAndValidate() (*Config, error) {
	return loadAndValidateFromViper(viper.GetViper())
}

// ValidateYAMLContent validates configuration from raw YAML content.
func ValidateYAMLContent(content []byte) (*Config, error) {
	local := viper.New()
	setDefaults(local)
	local.SetConfigType("yaml")
	if err := local.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("read config content: %w", err)
	}
	return loadAndValidateFromViper(local)
}

// ExampleYAML returns the default configuration template.
func ExampleYAML() string {
	return `# clinicsync configuration
database:
  path: "clinicsync.db"

operator:
  # user credited with sales whose seller cannot be resolved
  user_id: 1

import:
  insert_batch_size: 500
  update_batch_size: 50
  update_workers: 1
  batch_timeout: "2m"
  progress_interval: "250ms"
  index_page_size: 1000
  message_limit: 100
  backup_before_import: true
  auto_recalculate_after_import: true

backup:
  retention_days: 7

log:
  level: "info"
  format: "text"

directory:
  teams:
    - id: 1
      name: "Recepcao"
  people:
    - user_id: 1
      full_name: "Administrador"
      team_id: 1
  aliases: []
`
}

func loadAndValidateFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if err := validateDirectory(cfg.Directory, cfg.Operator.UserID); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyDatabasePath, DefaultDatabasePath)
	v.SetDefault(KeyOperatorUserID, 1)
	v.SetDefault(KeyImportInsertBatchSize, 500)
	v.SetDefault(KeyImportUpdateBatchSize, 50)
	v.SetDefault(KeyImportUpdateWorkers, 1)
	v.SetDefault(KeyImportBatchTimeout, "2m")
	v.SetDefault(KeyImportProgressInterval, "250ms")
	v.SetDefault(KeyImportIndexPageSize, 1000)
	v.SetDefault(KeyImportMessageLimit, 100)
	v.SetDefault(KeyImportBackupBeforeImport, true)
	v.SetDefault(KeyImportAutoRecalculateAfter, true)
	v.SetDefault(KeyBackupRetentionDays, 7)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyDirectory, map[string]any{})
}

func validateDirectory(directory DirectoryConfig, operatorUserID int64) error {
	teams := make(map[int64]struct{}, len(directory.Teams))
	for i, team := range directory.Teams {
		if _, exists := teams[team.ID]; exists {
			return fmt.Errorf("validation failed: directory.teams[%d] duplicates team id %d", i, team.ID)
		}
		teams[team.ID] = struct{}{}
	}

	people := make(map[int64]struct{}, len(directory.People))
	for i, person := range directory.People {
		if _, exists := people[person.UserID]; exists {
			return fmt.Errorf("validation failed: directory.people[%d] duplicates user id %d", i, person.UserID)
		}
		people[person.UserID] = struct{}{}
		if person.TeamID == 0 {
			continue
		}
		if _, ok := teams[person.TeamID]; !ok {
			return fmt.Errorf("validation failed: directory.people[%d] references unknown team %d", i, person.TeamID)
		}
	}

	for i, alias := range directory.Aliases {
		if _, ok := people[alias.UserID]; !ok {
			return fmt.Errorf("validation failed: directory.aliases[%d] references unknown user %d", i, alias.UserID)
		}
	}

	if len(directory.People) > 0 {
		if _, ok := people[operatorUserID]; !ok {
			return fmt.Errorf("validation failed: operator.user_id %d is not listed in directory.people", operatorUserID)
		}
	}
	return nil
}
