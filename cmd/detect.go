package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentic-research/wildfly-postgresql/internal/archive"
)

// errNotDetected makes detect exit non-zero.
var errNotDetected = errors.New("no WildFly installation or WAR found")

var detectCmd = &cobra.Command{
	Use:   "detect BUILD_DIR",
	Short: "Exit 0 when the app has a WildFly installation or a WAR to deploy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !detect(args[0]) {
			return errNotDetected
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "WildFly PostgreSQL")
		return nil
	},
}

func detect(buildDir string) bool {
	if info, err := os.Stat(filepath.Join(buildDir, ".jboss", "wildfly")); err == nil && info.IsDir() {
		return true
	}
	wars, _ := archive.Candidates(filepath.Join(buildDir, "target"), archive.DefaultPattern)
	return len(wars) > 0
}

func init() {
	rootCmd.AddCommand(detectCmd)
}
