package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/wildfly-postgresql/internal/config"
	"github.com/agentic-research/wildfly-postgresql/internal/driver"
	"github.com/agentic-research/wildfly-postgresql/internal/provision"
)

var provisionJSON bool

var provisionCmd = &cobra.Command{
	Use:   "provision BUILD_DIR [CACHE_DIR] [ENV_DIR]",
	Short: "Install the driver, patch the dialect and add the datasource",
	Args:  cobra.RangeArgs(1, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := config.Options{BuildDir: args[0]}
		if len(args) > 1 {
			opts.CacheDir = args[1]
		} else {
			opts.CacheDir = filepath.Join(os.TempDir(), "wildfly-postgresql-cache")
		}
		if len(args) > 2 {
			opts.EnvDir = args[2]
		}

		cfg, log, err := setup(cmd, opts)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fetcher := driver.NewFetcher(cfg.RepositoryURL, filepath.Join(cfg.CacheDir, "wildfly-postgresql", "drivers"), log)
		p := provision.New(cfg, fetcher, newValidator(cfg, log), newController(cfg, log), log)

		ds, err := p.Run(ctx)
		if err != nil {
			return err
		}
		log.Info("datasource ready", zap.String("name", ds.Name), zap.String("jndi", ds.JNDIName))

		if provisionJSON {
			data, err := json.MarshalIndent(ds, "", "  ")
			if err != nil {
				return fmt.Errorf("encode summary: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		}
		return nil
	},
}

func init() {
	f := provisionCmd.Flags()
	f.BoolVar(&provisionJSON, "json", false, "print what was installed as JSON on stdout")
	f.String("deployment-root", "", "directory scanned for WARs (default BUILD_DIR/target)")
	f.String("member", "", "persistence descriptor path inside the WAR")
	f.String("dialect", "", "Hibernate dialect to patch in (env HIBERNATE_DIALECT)")
	f.Bool("auto-patch", true, "patch the dialect (env HIBERNATE_DIALECT_AUTO_PATCH)")
	f.Bool("validate-dialect", true, "check the dialect against the online catalog (env HIBERNATE_DIALECT_VALIDATE)")
	f.String("driver-version", "", "PostgreSQL JDBC driver version (env POSTGRESQL_DRIVER_VERSION)")
	f.String("datasource-name", "", "datasource name when no persistence unit names one")
	rootCmd.AddCommand(provisionCmd)
}
