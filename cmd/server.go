package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-research/wildfly-postgresql/internal/config"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Drive the WildFly server through its management CLI",
}

var serverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print running or stopped",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup(cmd, config.Options{})
		if err != nil {
			return err
		}
		state := "stopped"
		if newController(cfg, log).IsRunning(cmd.Context()) {
			state = "running"
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), state)
		return nil
	},
}

var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in admin-only mode and wait until it runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup(cmd, config.Options{})
		if err != nil {
			return err
		}
		if err := cfg.RequireJBossHome(); err != nil {
			return err
		}
		c := newController(cfg, log)
		if c.IsRunning(cmd.Context()) {
			log.Info("server already running")
			return nil
		}
		if err := c.Start(cmd.Context()); err != nil {
			return err
		}
		return c.AwaitRunning(cmd.Context())
	},
}

var serverStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Shut the server down if it is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup(cmd, config.Options{})
		if err != nil {
			return err
		}
		return newController(cfg, log).Shutdown(cmd.Context())
	},
}

var serverExecCmd = &cobra.Command{
	Use:   "exec COMMAND",
	Short: "Run one management command against a running server",
	Long: `Run one management command against a running server. Only the command's
output is written to stdout, so it can be piped into other tools.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd, config.Options{})
		if err != nil {
			return err
		}
		out, err := newController(cfg, log).ExecuteCommandPipable(cmd.Context(), args[0])
		if out != "" {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
		}
		return err
	},
}

func init() {
	serverCmd.AddCommand(serverStatusCmd, serverStartCmd, serverStopCmd, serverExecCmd)
	rootCmd.AddCommand(serverCmd)
}
