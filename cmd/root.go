package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/agentic-research/wildfly-postgresql/internal/config"
	"github.com/agentic-research/wildfly-postgresql/internal/dialect"
	"github.com/agentic-research/wildfly-postgresql/internal/logging"
	"github.com/agentic-research/wildfly-postgresql/internal/wildfly"
)

var cfgFile string

// flagKeys maps flag names to the config keys they override.
var flagKeys = map[string]string{
	"jboss-home":       config.KeyJBossHome,
	"controller":       config.KeyController,
	"verbose":          config.KeyVerbose,
	"log-file":         config.KeyLogFile,
	"start-timeout":    config.KeyStartTimeout,
	"deployment-root":  config.KeyDeploymentRoot,
	"member":           config.KeyPersistenceXML,
	"dialect":          config.KeyDialect,
	"auto-patch":       config.KeyAutoPatch,
	"validate-dialect": config.KeyValidate,
	"driver-version":   config.KeyDriverVersion,
	"datasource-name":  config.KeyDatasourceName,
	"database-url":     config.KeyDatabaseURL,
}

var rootCmd = &cobra.Command{
	Use:   "wildfly-postgresql",
	Short: "Install a PostgreSQL driver and datasource into WildFly",
	Long: `wildfly-postgresql is the compile step of the WildFly PostgreSQL buildpack.
It installs the JDBC driver as a module, registers a datasource named after the
application's persistence unit and patches the Hibernate dialect to PostgreSQL.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		renderError(os.Stderr, err)
		os.Exit(1)
	}
}

type hinter interface {
	Hint() string
}

// renderError prints err buildpack style, followed by its remediation hint.
func renderError(w io.Writer, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		_, _ = fmt.Fprintln(w, " !     "+line)
	}
	var h hinter
	if errors.As(err, &h) {
		_, _ = fmt.Fprintln(w, " !")
		for _, line := range strings.Split(h.Hint(), "\n") {
			_, _ = fmt.Fprintln(w, " !     "+line)
		}
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "YAML config file")
	pf.String("jboss-home", "", "WildFly installation (default BUILD_DIR/.jboss/wildfly, env JBOSS_HOME)")
	pf.String("controller", "", "management address host:port (env WILDFLY_CONTROLLER)")
	pf.BoolP("verbose", "v", false, "log every management command")
	pf.String("log-file", "", "also write a JSON debug log here")
	pf.Duration("start-timeout", wildfly.DefaultStartTimeout, "how long to wait for the server to report running")
}

// setup resolves the configuration for cmd and builds its logger.
func setup(cmd *cobra.Command, opts config.Options) (*config.Config, *zap.Logger, error) {
	v := viper.New()
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			_ = v.BindPFlag(key, f)
		}
	})
	opts.File = cfgFile

	cfg, err := config.Load(v, opts)
	if err != nil {
		return nil, nil, err
	}
	logFile := cfg.LogFile
	if logFile == "" && cfg.CacheDir != "" {
		logFile = filepath.Join(cfg.CacheDir, "wildfly-postgresql", "buildpack.log")
	}
	log := logging.New(logging.Config{
		Verbose: cfg.Verbose,
		File:    logFile,
		Out:     cmd.ErrOrStderr(),
	})
	return cfg, log, nil
}

// newController wires the management CLI and the admin-only launcher.
func newController(cfg *config.Config, log *zap.Logger) *wildfly.Controller {
	cli := wildfly.NewJBossCLI(cfg.JBossHome, log)
	cli.Controller = cfg.Controller
	launcher := wildfly.NewStandaloneLauncher(cfg.JBossHome, cfg.ServerLogFile)
	return wildfly.NewController(cli, launcher, cfg.ControllerOptions(), log)
}

// newValidator consults the online catalog unless validation is turned off.
func newValidator(cfg *config.Config, log *zap.Logger) *dialect.Validator {
	if !cfg.ValidateDialect {
		return &dialect.Validator{}
	}
	return &dialect.Validator{Catalog: dialect.NewHTTPCatalog(cfg.CatalogURL, log)}
}
