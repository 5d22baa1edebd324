// Package config resolves the buildpack settings once at startup.
//
// Keys are the lower-cased names of the environment variables operators set
// on the app (HIBERNATE_DIALECT becomes hibernate_dialect). Sources, from
// lowest to highest precedence: built-in defaults, the optional YAML config
// file, a .env file in the build dir, the Heroku ENV_DIR, the process
// environment, command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentic-research/wildfly-postgresql/internal/dialect"
	"github.com/agentic-research/wildfly-postgresql/internal/persistence"
	"github.com/agentic-research/wildfly-postgresql/internal/wildfly"
)

// Keys.
const (
	KeyJBossHome      = "jboss_home"
	KeyDeploymentRoot = "deployment_root"
	KeyPersistenceXML = "persistence_xml_path"
	KeyDialect        = "hibernate_dialect"
	KeyAutoPatch      = "hibernate_dialect_auto_patch"
	KeyValidate       = "hibernate_dialect_validate"
	KeyCatalogURL     = "hibernate_dialect_catalog_url"
	KeyDriverName     = "postgresql_driver_name"
	KeyDriverVersion  = "postgresql_driver_version"
	KeyRepositoryURL  = "postgresql_driver_repository"
	KeyDatasourceName = "postgresql_datasource_name"
	KeyJNDIName       = "postgresql_datasource_jndi_name"
	KeyConnectionURL  = "postgresql_connection_url"
	KeyUserName       = "postgresql_user_name"
	KeyPassword       = "postgresql_password"
	KeyController     = "wildfly_controller"
	KeyStartTimeout   = "wildfly_start_timeout"
	KeyPollInterval   = "wildfly_poll_interval"
	KeyStopTimeout    = "wildfly_stop_timeout"
	KeyLogFile        = "buildpack_log_file"
	KeyVerbose        = "buildpack_verbose"
	KeyServerLogFile  = "wildfly_server_log"
	KeyDatabaseURL    = "database_url"
)

const (
	defaultDriverName  = "postgresql"
	defaultDriverVer   = "42.7.4"
	defaultRepository  = "https://repo1.maven.org/maven2"
	defaultDatasource  = "appDS"
	defaultJNDIPrefix  = "java:jboss/datasources/"
	defaultJDBCURL     = "${env.JDBC_DATABASE_URL}"
	defaultJDBCUser    = "${env.JDBC_DATABASE_USERNAME}"
	defaultJDBCPass    = "${env.JDBC_DATABASE_PASSWORD}"
	defaultJBossSubdir = ".jboss/wildfly"
)

// ErrConfiguration is the kind of every *Error.
var ErrConfiguration = errors.New("configuration error")

// Error reports a setting that is missing or unusable.
type Error struct {
	Key    string
	Value  string
	Reason string
	// Example is a valid value to suggest in the hint.
	Example string
}

func (e *Error) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", strings.ToUpper(e.Key), e.Reason)
	}
	return fmt.Sprintf("%s=%q: %s", strings.ToUpper(e.Key), e.Value, e.Reason)
}

func (e *Error) Unwrap() error { return ErrConfiguration }

// Hint names the config var to set.
func (e *Error) Hint() string {
	if e.Example != "" {
		return fmt.Sprintf("Set %s to a duration with a unit, e.g. `heroku config:set %s=%s`.",
			strings.ToUpper(e.Key), strings.ToUpper(e.Key), e.Example)
	}
	return fmt.Sprintf("Set %s with `heroku config:set %s=...`, or run the WildFly\n"+
		"buildpack before this one so it is discovered automatically.",
		strings.ToUpper(e.Key), strings.ToUpper(e.Key))
}

// Options are the positional inputs of a build.
type Options struct {
	BuildDir string
	CacheDir string
	EnvDir   string
	// File is an optional YAML config file.
	File string
}

// Config is every setting a component needs, resolved once.
type Config struct {
	BuildDir string
	CacheDir string
	EnvDir   string

	JBossHome      string
	DeploymentRoot string
	PersistenceXML string

	Dialect         string
	AutoPatch       bool
	ValidateDialect bool
	CatalogURL      string

	DriverName    string
	DriverVersion string
	RepositoryURL string

	DatasourceName string
	JNDIName       string
	ConnectionURL  string
	UserName       string
	Password       string

	Controller    string
	StartTimeout  time.Duration
	PollInterval  time.Duration
	StopTimeout   time.Duration
	ServerLogFile string

	// DatabaseURL is only needed to suggest a dialect from the server version.
	DatabaseURL string

	LogFile string
	Verbose bool
}

// SetDefaults registers the built-in defaults that do not depend on the
// build inputs.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyPersistenceXML, persistence.DefaultMember)
	v.SetDefault(KeyDialect, dialect.Default)
	v.SetDefault(KeyAutoPatch, true)
	v.SetDefault(KeyValidate, true)
	v.SetDefault(KeyCatalogURL, dialect.DefaultCatalogURL)
	v.SetDefault(KeyDriverName, defaultDriverName)
	v.SetDefault(KeyDriverVersion, defaultDriverVer)
	v.SetDefault(KeyRepositoryURL, defaultRepository)
	v.SetDefault(KeyDatasourceName, defaultDatasource)
	v.SetDefault(KeyJNDIName, "")
	v.SetDefault(KeyConnectionURL, defaultJDBCURL)
	v.SetDefault(KeyUserName, defaultJDBCUser)
	v.SetDefault(KeyPassword, defaultJDBCPass)
	v.SetDefault(KeyController, "")
	v.SetDefault(KeyStartTimeout, wildfly.DefaultStartTimeout)
	v.SetDefault(KeyPollInterval, wildfly.DefaultPollInterval)
	v.SetDefault(KeyStopTimeout, wildfly.DefaultStopTimeout)
	v.SetDefault(KeyServerLogFile, "")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyJBossHome, "")
	v.SetDefault(KeyDeploymentRoot, "")
	v.SetDefault(KeyDatabaseURL, "")
}

// Load layers the sources onto v and resolves a Config. Flags must already
// be bound to v by the caller.
func Load(v *viper.Viper, opts Options) (*Config, error) {
	SetDefaults(v)

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", opts.File, err)
		}
	}

	if opts.BuildDir != "" {
		dotenv, err := readDotenv(filepath.Join(opts.BuildDir, ".env"))
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(dotenv); err != nil {
			return nil, fmt.Errorf("merge .env: %w", err)
		}
	}

	if opts.EnvDir != "" {
		envDir, err := ReadEnvDir(opts.EnvDir)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(lowerKeys(envDir)); err != nil {
			return nil, fmt.Errorf("merge env dir: %w", err)
		}
	}

	v.AutomaticEnv()

	cfg := &Config{
		BuildDir:        opts.BuildDir,
		CacheDir:        opts.CacheDir,
		EnvDir:          opts.EnvDir,
		JBossHome:       firstNonEmpty(v.GetString(KeyJBossHome), joinIfSet(opts.BuildDir, defaultJBossSubdir)),
		DeploymentRoot:  firstNonEmpty(v.GetString(KeyDeploymentRoot), joinIfSet(opts.BuildDir, "target")),
		PersistenceXML:  strings.TrimSpace(v.GetString(KeyPersistenceXML)),
		Dialect:         strings.TrimSpace(v.GetString(KeyDialect)),
		AutoPatch:       v.GetBool(KeyAutoPatch),
		ValidateDialect: v.GetBool(KeyValidate),
		CatalogURL:      v.GetString(KeyCatalogURL),
		DriverName:      strings.TrimSpace(v.GetString(KeyDriverName)),
		DriverVersion:   strings.TrimSpace(v.GetString(KeyDriverVersion)),
		RepositoryURL:   strings.TrimRight(v.GetString(KeyRepositoryURL), "/"),
		DatasourceName:  strings.TrimSpace(v.GetString(KeyDatasourceName)),
		JNDIName:        strings.TrimSpace(v.GetString(KeyJNDIName)),
		ConnectionURL:   v.GetString(KeyConnectionURL),
		UserName:        v.GetString(KeyUserName),
		Password:        v.GetString(KeyPassword),
		Controller:      v.GetString(KeyController),
		StartTimeout:    v.GetDuration(KeyStartTimeout),
		PollInterval:    v.GetDuration(KeyPollInterval),
		StopTimeout:     v.GetDuration(KeyStopTimeout),
		ServerLogFile:   v.GetString(KeyServerLogFile),
		DatabaseURL:     v.GetString(KeyDatabaseURL),
		LogFile:         v.GetString(KeyLogFile),
		Verbose:         v.GetBool(KeyVerbose),
	}
	if cfg.JNDIName == "" {
		cfg.JNDIName = defaultJNDIPrefix + cfg.DatasourceName
	}
	if cfg.ServerLogFile == "" && cfg.CacheDir != "" {
		cfg.ServerLogFile = filepath.Join(cfg.CacheDir, "wildfly-postgresql", "server.log")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DriverName == "":
		return &Error{Key: KeyDriverName, Reason: "must not be empty"}
	case c.DriverVersion == "":
		return &Error{Key: KeyDriverVersion, Reason: "must not be empty"}
	case c.DatasourceName == "":
		return &Error{Key: KeyDatasourceName, Reason: "must not be empty"}
	case c.PersistenceXML == "":
		return &Error{Key: KeyPersistenceXML, Reason: "must not be empty"}
	case c.PollInterval <= 0:
		return &Error{Key: KeyPollInterval, Value: c.PollInterval.String(), Reason: "must be positive", Example: "1s"}
	case c.StartTimeout < c.PollInterval:
		// A bare number like 120 reads as nanoseconds.
		return &Error{Key: KeyStartTimeout, Value: c.StartTimeout.String(),
			Reason: "shorter than the poll interval " + c.PollInterval.String(), Example: "2m"}
	}
	return nil
}

// RequireJBossHome fails unless JBossHome is an existing directory.
func (c *Config) RequireJBossHome() error {
	if c.JBossHome == "" {
		return &Error{Key: KeyJBossHome, Reason: "WildFly installation not found"}
	}
	info, err := os.Stat(c.JBossHome)
	if err != nil || !info.IsDir() {
		return &Error{Key: KeyJBossHome, Value: c.JBossHome, Reason: "WildFly installation not found"}
	}
	return nil
}

// ControllerOptions returns the polling settings for wildfly.NewController.
func (c *Config) ControllerOptions() wildfly.Options {
	return wildfly.Options{
		PollInterval: c.PollInterval,
		StartTimeout: c.StartTimeout,
		StopTimeout:  c.StopTimeout,
	}
}

// ReadEnvDir reads a Heroku ENV_DIR: one file per variable, named after it,
// holding the raw value. A missing dir yields an empty map.
func ReadEnvDir(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read env dir: %w", err)
	}
	vars := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read env var %s: %w", e.Name(), err)
		}
		vars[e.Name()] = strings.TrimRight(string(data), "\r\n")
	}
	return vars, nil
}

func readDotenv(path string) (map[string]any, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return map[string]any{}, nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lowerKeys(vars), nil
}

func lowerKeys(vars map[string]string) map[string]any {
	out := make(map[string]any, len(vars))
	for k, val := range vars {
		out[strings.ToLower(k)] = val
	}
	return out
}

func joinIfSet(dir, rel string) string {
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, rel)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
