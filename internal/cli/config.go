package cli

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/pgtenant/pgtenant"
)

const (
	maxWalkDepth = 25
)

// Config represents the pgtenant configuration from pgtenant.yaml.
type Config struct {
	// Tenancy configuration
	Tenancy TenancyConfig `mapstructure:"tenancy"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Per-command configuration
	Enable  EnableConfig  `mapstructure:"enable"`
	Disable DisableConfig `mapstructure:"disable"`
	Doctor  DoctorConfig  `mapstructure:"doctor"`
}

// TenancyConfig holds the tenancy-model settings shared by every command.
type TenancyConfig struct {
	TenantTable     string `mapstructure:"tenant_table"`
	TenantSetting   string `mapstructure:"tenant_setting"`
	UserSetting     string `mapstructure:"user_setting"`
	SuperuserBypass bool   `mapstructure:"superuser_bypass"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// EnableConfig holds enable command settings.
type EnableConfig struct {
	Tables []string `mapstructure:"tables"`
	DryRun bool     `mapstructure:"dry_run"`
}

// DisableConfig holds disable command settings.
type DisableConfig struct {
	Tables []string `mapstructure:"tables"`
	DryRun bool     `mapstructure:"dry_run"`
}

// DoctorConfig holds doctor command settings.
type DoctorConfig struct {
	Verbose bool `mapstructure:"verbose"`
}

// LoadConfig discovers and loads configuration with proper precedence:
// flags > env > config file > defaults.
//
// Returns the loaded config, the path to the config file (empty if none found),
// and any error encountered.
func LoadConfig(explicitConfigPath string) (*Config, string, error) {
	v := viper.New()

	// 1. Set defaults first (lowest precedence)
	setDefaults(v)

	// 2. Set up environment variable binding
	v.SetEnvPrefix("PGTENANT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 3. Find and load config file
	configPath, err := findConfigFile(explicitConfigPath)
	if err != nil {
		return nil, "", err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, configPath, fmt.Errorf("reading config file: %w", err)
		}
	}

	// 4. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, configPath, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, configPath, nil
}

func setDefaults(v *viper.Viper) {
	// Tenancy defaults
	v.SetDefault("tenancy.tenant_table", pgtenant.DefaultTenantTable)
	v.SetDefault("tenancy.tenant_setting", pgtenant.DefaultTenantSetting)
	v.SetDefault("tenancy.user_setting", pgtenant.DefaultUserSetting)
	v.SetDefault("tenancy.superuser_bypass", false)

	// Database defaults
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "prefer")

	// Enable defaults
	v.SetDefault("enable.tables", []string{})
	v.SetDefault("enable.dry_run", false)

	// Disable defaults
	v.SetDefault("disable.tables", []string{})
	v.SetDefault("disable.dry_run", false)

	// Doctor defaults
	v.SetDefault("doctor.verbose", false)
}

// findConfigFile finds the config file to use.
// If explicitPath is provided, it validates the file exists.
// Otherwise, it walks up from cwd looking for pgtenant.yaml or pgtenant.yml,
// stopping at a .git directory or after maxWalkDepth levels.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	// Auto-discovery: walk up to .git or maxWalkDepth
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}

	dir := cwd
	for i := 0; i < maxWalkDepth; i++ {
		// Try pgtenant.yaml then pgtenant.yml
		for _, name := range []string{"pgtenant.yaml", "pgtenant.yml"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		// Check for repo boundary (.git file or directory)
		gitPath := filepath.Join(dir, ".git")
		if _, err := os.Stat(gitPath); err == nil {
			break // Stop at repo root
		}

		// Move up
		parent := filepath.Dir(dir)
		if parent == dir {
			break // Reached filesystem root
		}
		dir = parent
	}

	return "", nil // No config found, use defaults
}

// DSN returns the database connection string.
// If database.url is set, it's returned directly.
// Otherwise, builds a DSN from discrete fields.
func (c *Config) DSN() (string, error) {
	db := c.Database

	if db.URL != "" {
		return db.URL, nil
	}

	// Build DSN from discrete fields
	if db.Host == "" {
		return "", fmt.Errorf("database.host is required when database.url is not set")
	}
	if db.Name == "" {
		return "", fmt.Errorf("database.name is required when database.url is not set")
	}
	if db.User == "" {
		return "", fmt.Errorf("database.user is required when database.url is not set")
	}

	// Build postgres:// URL
	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   "/" + db.Name,
	}

	if db.Password != "" {
		u.User = url.UserPassword(db.User, db.Password)
	} else {
		u.User = url.User(db.User)
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// TenancyModel converts the file-level tenancy section into the runtime
// configuration the policy and session layers consume.
func (c *Config) TenancyModel() pgtenant.Config {
	return pgtenant.Config{
		TenantTable:     c.Tenancy.TenantTable,
		TenantSetting:   c.Tenancy.TenantSetting,
		UserSetting:     c.Tenancy.UserSetting,
		SuperuserBypass: c.Tenancy.SuperuserBypass,
	}.WithDefaults()
}
