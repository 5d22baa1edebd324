package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-research/wildfly-postgresql/internal/archive"
	"github.com/agentic-research/wildfly-postgresql/internal/config"
)

var locatePattern string

var locateCmd = &cobra.Command{
	Use:   "locate ROOT",
	Short: "Print the first archive under ROOT holding the persistence descriptor",
	Long: `Print the first archive under ROOT, in directory listing order, that contains
the persistence descriptor. Nothing is printed when no archive matches.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd, config.Options{})
		if err != nil {
			return err
		}
		war, err := archive.LocateMatching(args[0], locatePattern, cfg.PersistenceXML)
		if err != nil {
			return err
		}
		if war == "" {
			log.Warn("no archive contains " + cfg.PersistenceXML)
			return nil
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), war)
		return nil
	},
}

func init() {
	locateCmd.Flags().String("member", "", "descriptor path inside the archive")
	locateCmd.Flags().StringVar(&locatePattern, "pattern", archive.DefaultPattern, "archive file glob")
	rootCmd.AddCommand(locateCmd)
}
