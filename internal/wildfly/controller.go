package wildfly

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrTimeout means the server did not report running before the deadline.
var ErrTimeout = errors.New("timed out waiting for server to start")

// Defaults for Options.
const (
	DefaultPollInterval = time.Second
	DefaultStartTimeout = 2 * time.Minute
	DefaultStopTimeout  = 30 * time.Second
	DefaultQueryTimeout = 10 * time.Second
)

// CommandError is a management command that exited non-zero.
type CommandError struct {
	Label    string
	Command  string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s failed (exit status %d)\n  command: %s", e.Label, e.ExitCode, e.Command)
	if e.Output != "" {
		msg += "\n  output: " + e.Output
	}
	return msg
}

// Hint tells the operator where to look next.
func (e *CommandError) Hint() string {
	return "The server log of the admin-only run has the details. Re-run with\n" +
		"--verbose to see every management command the buildpack issued."
}

// Options tunes polling. Zero values fall back to the defaults.
type Options struct {
	PollInterval time.Duration
	StartTimeout time.Duration
	StopTimeout  time.Duration
	// QueryTimeout bounds a single server-state query while waiting.
	QueryTimeout time.Duration
}

// Controller tracks a WildFly server: Stopped, Starting, Running, Stopped.
// The server is only observed through the server-state attribute.
type Controller struct {
	cli      CLI
	launcher Launcher
	opts     Options
	log      *zap.Logger

	// proc is set when this controller launched the server.
	proc Process
}

// NewController wires a controller.
func NewController(cli CLI, launcher Launcher, opts Options, log *zap.Logger) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = DefaultStartTimeout
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{cli: cli, launcher: launcher, opts: opts, log: log}
}

// IsRunning makes one server-state query. Any failure reads as not running.
func (c *Controller) IsRunning(ctx context.Context) bool {
	res, err := c.cli.Run(ctx, CmdServerState)
	if err != nil || res.ExitCode != 0 {
		return false
	}
	resp, err := ParseResponse(res.Output)
	if err != nil {
		c.log.Debug("unreadable server-state response", zap.String("output", res.Output), zap.Error(err))
		return false
	}
	state, _ := resp.Result.(string)
	return resp.Succeeded() && state == "running"
}

// Start launches the server in admin-only mode and returns without waiting.
func (c *Controller) Start(ctx context.Context) error {
	if c.launcher == nil {
		return errors.New("no launcher configured")
	}
	proc, err := c.launcher.Launch(ctx)
	if err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	c.proc = proc
	c.log.Info("server starting in admin-only mode", zap.Int("pid", proc.Pid()))
	return nil
}

// AwaitRunning polls until the server reports running, the start deadline
// passes (ErrTimeout) or ctx is done. The deadline also bounds each
// server-state query, so a management call that never answers cannot hold
// the wait open.
func (c *Controller) AwaitRunning(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, c.opts.StartTimeout)
	defer cancel()
	tick := time.NewTicker(c.opts.PollInterval)
	defer tick.Stop()

	for polls := 1; ; polls++ {
		if c.poll(waitCtx) {
			c.log.Debug("server running", zap.Int("polls", polls))
			return nil
		}
		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("%w after %s", ErrTimeout, c.opts.StartTimeout)
		case <-c.exited():
			return errors.New("server process exited before reaching running state")
		case <-tick.C:
		}
	}
}

// poll is one IsRunning query limited to QueryTimeout.
func (c *Controller) poll(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.opts.QueryTimeout)
	defer cancel()
	return c.IsRunning(ctx)
}

// exited returns the launched process's exit channel, or nil (never ready).
func (c *Controller) exited() <-chan struct{} {
	if c.proc == nil {
		return nil
	}
	return c.proc.Done()
}

// Shutdown stops a running server. A server that is not running is left
// alone and no command is sent.
func (c *Controller) Shutdown(ctx context.Context) error {
	if !c.IsRunning(ctx) {
		c.log.Debug("shutdown skipped, server not running")
		return nil
	}
	res, err := c.cli.Run(ctx, CmdShutdown)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if res.ExitCode != 0 {
		return &CommandError{Label: "shutdown", Command: CmdShutdown, ExitCode: res.ExitCode, Output: res.Output}
	}
	c.log.Info("server shut down")
	c.waitExit()
	return nil
}

func (c *Controller) waitExit() {
	if c.proc == nil {
		return
	}
	select {
	case <-c.proc.Done():
	case <-time.After(c.opts.StopTimeout):
		c.log.Warn("server did not exit after shutdown, killing", zap.Int("pid", c.proc.Pid()))
		_ = c.proc.Kill()
	}
	c.proc = nil
}

// ensureRunning starts and awaits the server when it is not running yet.
func (c *Controller) ensureRunning(ctx context.Context) error {
	if c.IsRunning(ctx) {
		return nil
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	if err := c.AwaitRunning(ctx); err != nil {
		c.kill()
		return err
	}
	return nil
}

// ExecuteCommand makes sure the server runs, then issues command. label names
// the step in logs and errors. A non-zero exit yields a *CommandError.
//
// Start may leave a background process attached to the caller, so the output
// of this variant is not meant to be piped; use ExecuteCommandPipable.
func (c *Controller) ExecuteCommand(ctx context.Context, command, label string) (string, error) {
	if err := c.ensureRunning(ctx); err != nil {
		return "", err
	}
	c.log.Debug("management command", zap.String("label", label), zap.String("command", command))
	res, err := c.cli.Run(ctx, command)
	if err != nil {
		return "", fmt.Errorf("%s: %w", label, err)
	}
	if res.ExitCode != 0 {
		return res.Output, &CommandError{Label: label, Command: command, ExitCode: res.ExitCode, Output: res.Output}
	}
	c.log.Info(label + ": done")
	return res.Output, nil
}

// ExecuteCommandPipable issues command against an already running server and
// returns only its output; diagnostics go to the logger.
func (c *Controller) ExecuteCommandPipable(ctx context.Context, command string) (string, error) {
	res, err := c.cli.Run(ctx, command)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		c.log.Debug("management command failed", zap.String("command", command), zap.Int("exit", res.ExitCode))
		return res.Output, &CommandError{Label: "command", Command: command, ExitCode: res.ExitCode, Output: res.Output}
	}
	return res.Output, nil
}

// kill force-stops a server this controller launched.
func (c *Controller) kill() {
	if c.proc == nil {
		return
	}
	if err := c.proc.Kill(); err != nil {
		c.log.Warn("kill server", zap.Error(err))
	}
	c.proc = nil
}

// Guard holds a running server for the length of an installation. Release
// in a defer shuts the server down when the installation failed.
type Guard struct {
	c      *Controller
	ctx    context.Context
	closed bool
}

// Acquire starts the server when needed and waits until it runs.
func (c *Controller) Acquire(ctx context.Context) (*Guard, error) {
	if err := c.ensureRunning(ctx); err != nil {
		return nil, err
	}
	return &Guard{c: c, ctx: context.WithoutCancel(ctx)}, nil
}

// Release shuts the server down if *errp holds an error. Shutdown is best
// effort: when it fails the launched process group is killed.
func (g *Guard) Release(errp *error) {
	if g == nil || g.closed || errp == nil || *errp == nil {
		return
	}
	g.closed = true
	g.c.log.Warn("installation failed, stopping server", zap.Error(*errp))

	ctx, cancel := context.WithTimeout(g.ctx, g.c.opts.StopTimeout)
	defer cancel()
	if err := g.c.Shutdown(ctx); err != nil {
		g.c.log.Warn("graceful shutdown failed", zap.Error(err))
		g.c.kill()
	}
}

// Close shuts the server down after a successful installation.
func (g *Guard) Close(ctx context.Context) error {
	if g == nil || g.closed {
		return nil
	}
	g.closed = true
	return g.c.Shutdown(ctx)
}
