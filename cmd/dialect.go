package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/wildfly-postgresql/internal/config"
	"github.com/agentic-research/wildfly-postgresql/internal/database"
	"github.com/agentic-research/wildfly-postgresql/internal/dialect"
)

var dialectCmd = &cobra.Command{
	Use:   "dialect",
	Short: "Validate or patch the Hibernate dialect",
}

var dialectCheckCmd = &cobra.Command{
	Use:   "check VALUE",
	Short: "Check that VALUE names an existing PostgreSQL dialect",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd, config.Options{})
		if err != nil {
			return err
		}
		if err := newValidator(cfg, log).Validate(cmd.Context(), args[0]); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), args[0])
		return nil
	},
}

var dialectPatchCmd = &cobra.Command{
	Use:   "patch WAR",
	Short: "Set the dialect of the persistence descriptor inside WAR",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd, config.Options{})
		if err != nil {
			return err
		}
		outcome, err := dialect.PatchArchive(cmd.Context(), args[0], cfg.PersistenceXML, cfg.Dialect, newValidator(cfg, log))
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), outcome)
		return nil
	},
}

var dialectSuggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Print the dialect matching the version of the database at DATABASE_URL",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup(cmd, config.Options{})
		if err != nil {
			return err
		}
		n, err := database.ServerVersion(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		suggested := dialect.ForServerVersion(n)
		log.Debug("server version", zap.Int("server_version_num", n), zap.String("dialect", suggested))
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), suggested)
		return nil
	},
}

func init() {
	dialectSuggestCmd.Flags().String("database-url", "", "PostgreSQL URL (env DATABASE_URL)")

	dialectCheckCmd.Flags().Bool("validate-dialect", true, "also look the class up in the online catalog")

	f := dialectPatchCmd.Flags()
	f.String("member", "", "persistence descriptor path inside the WAR")
	f.String("dialect", "", "dialect to set (env HIBERNATE_DIALECT)")
	f.Bool("validate-dialect", true, "also look the class up in the online catalog")

	dialectCmd.AddCommand(dialectCheckCmd, dialectPatchCmd, dialectSuggestCmd)
	rootCmd.AddCommand(dialectCmd)
}
