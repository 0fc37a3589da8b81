package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	// full: compile, execute, and count. gateway: validate and allocate a
	// query id, but never touch the clinical database.
	RuntimeMode string `mapstructure:"RUNTIME_MODE"`

	AppDatabaseURL string `mapstructure:"APP_DATABASE_URL"`
	AppDBMaxConns  int32  `mapstructure:"APP_DB_MAX_CONNS"`
	AppDBMinConns  int32  `mapstructure:"APP_DB_MIN_CONNS"`

	ClinDatabaseURL  string `mapstructure:"CLIN_DATABASE_URL"`
	ClinMaxParallel  int    `mapstructure:"CLIN_MAX_PARALLEL"`
	ClinQueryTimeout int    `mapstructure:"CLIN_QUERY_TIMEOUT_SEC"`
	ClinDialect      string `mapstructure:"CLIN_DIALECT"`

	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	CompilerAlias    string `mapstructure:"COMPILER_ALIAS"`
	FieldPersonID    string `mapstructure:"FIELD_PERSON_ID"`
	FieldEncounterID string `mapstructure:"FIELD_ENCOUNTER_ID"`
	AppDBName        string `mapstructure:"APP_DB_NAME"`

	ObfuscationEnabled bool `mapstructure:"OBFUSCATION_ENABLED"`
	ObfuscationShift   int  `mapstructure:"OBFUSCATION_SHIFT"`
	LowCellThreshold   int  `mapstructure:"LOW_CELL_THRESHOLD"`

	CohortRowLimit    int `mapstructure:"COHORT_ROW_LIMIT"`
	CohortExportLimit int `mapstructure:"COHORT_EXPORT_LIMIT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("RUNTIME_MODE", "full")
	v.SetDefault("APP_DB_MAX_CONNS", 20)
	v.SetDefault("APP_DB_MIN_CONNS", 5)
	v.SetDefault("CLIN_MAX_PARALLEL", 6)
	v.SetDefault("CLIN_QUERY_TIMEOUT_SEC", 180)
	v.SetDefault("CLIN_DIALECT", "postgres")
	v.SetDefault("COMPILER_ALIAS", "@")
	v.SetDefault("FIELD_PERSON_ID", "person_id")
	v.SetDefault("FIELD_ENCOUNTER_ID", "encounter_id")
	v.SetDefault("APP_DB_NAME", "leaf_app")
	v.SetDefault("OBFUSCATION_SHIFT", 10)
	v.SetDefault("LOW_CELL_THRESHOLD", 10)
	v.SetDefault("COHORT_ROW_LIMIT", 500000)
	v.SetDefault("COHORT_EXPORT_LIMIT", 5000)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("RUNTIME_MODE")
	v.BindEnv("APP_DATABASE_URL")
	v.BindEnv("APP_DB_MAX_CONNS")
	v.BindEnv("APP_DB_MIN_CONNS")
	v.BindEnv("CLIN_DATABASE_URL")
	v.BindEnv("CLIN_MAX_PARALLEL")
	v.BindEnv("CLIN_QUERY_TIMEOUT_SEC")
	v.BindEnv("CLIN_DIALECT")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_SIGNING_KEY")
	v.BindEnv("COMPILER_ALIAS")
	v.BindEnv("FIELD_PERSON_ID")
	v.BindEnv("FIELD_ENCOUNTER_ID")
	v.BindEnv("APP_DB_NAME")
	v.BindEnv("OBFUSCATION_ENABLED")
	v.BindEnv("OBFUSCATION_SHIFT")
	v.BindEnv("LOW_CELL_THRESHOLD")
	v.BindEnv("COHORT_ROW_LIMIT")
	v.BindEnv("COHORT_EXPORT_LIMIT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.AppDatabaseURL == "" {
		return nil, fmt.Errorf("APP_DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsGateway reports whether the server runs as a federated gateway,
// allocating query ids without computing real counts.
func (c *Config) IsGateway() bool {
	return strings.EqualFold(c.RuntimeMode, "gateway")
}

// QueryTimeout returns the per-statement clinical query timeout.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.ClinQueryTimeout) * time.Second
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch strings.ToLower(c.RuntimeMode) {
	case "full", "gateway":
	default:
		return fmt.Errorf("RUNTIME_MODE must be \"full\" or \"gateway\", got %q", c.RuntimeMode)
	}

	if !c.IsGateway() && c.ClinDatabaseURL == "" {
		return fmt.Errorf("CLIN_DATABASE_URL is required when RUNTIME_MODE is \"full\"")
	}
	if c.ClinMaxParallel < 1 {
		return fmt.Errorf("CLIN_MAX_PARALLEL must be >= 1, got %d", c.ClinMaxParallel)
	}
	if c.ClinQueryTimeout < 1 {
		return fmt.Errorf("CLIN_QUERY_TIMEOUT_SEC must be >= 1, got %d", c.ClinQueryTimeout)
	}

	switch strings.ToLower(c.ClinDialect) {
	case "sqlserver", "mysql", "mariadb", "oracle", "postgres", "bigquery":
	default:
		return fmt.Errorf("CLIN_DIALECT %q is not supported", c.ClinDialect)
	}

	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required outside development. " +
			"Refusing to start without authentication configuration")
	}

	if c.ObfuscationEnabled {
		if c.ObfuscationShift < 1 {
			return fmt.Errorf("OBFUSCATION_SHIFT must be >= 1 when obfuscation is enabled")
		}
		if c.LowCellThreshold < 1 {
			return fmt.Errorf("LOW_CELL_THRESHOLD must be >= 1 when obfuscation is enabled")
		}
	}

	if c.CohortExportLimit > c.CohortRowLimit {
		return fmt.Errorf("COHORT_EXPORT_LIMIT (%d) cannot exceed COHORT_ROW_LIMIT (%d)",
			c.CohortExportLimit, c.CohortRowLimit)
	}

	return nil
}
