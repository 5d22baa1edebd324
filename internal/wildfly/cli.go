// Package wildfly drives a WildFly server through jboss-cli.sh: liveness
// queries, admin-only start, shutdown and one-shot management commands.
package wildfly

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"go.uber.org/zap"
)

// Management commands the controller issues itself.
const (
	CmdServerState = ":read-attribute(name=server-state)"
	CmdShutdown    = ":shutdown"
)

// Result is the outcome of one management command.
type Result struct {
	Output   string
	ExitCode int
}

// CLI runs a single management command against the server.
// A non-zero exit status is reported in Result, not as an error; the error is
// reserved for failing to run the tool at all.
type CLI interface {
	Run(ctx context.Context, command string) (Result, error)
}

// JBossCLI shells out to $JBOSS_HOME/bin/jboss-cli.sh with JSON output.
type JBossCLI struct {
	Home string
	// Controller overrides the management address (host:port).
	Controller string
	Log        *zap.Logger
}

// NewJBossCLI returns a CLI for the installation at home.
func NewJBossCLI(home string, log *zap.Logger) *JBossCLI {
	if log == nil {
		log = zap.NewNop()
	}
	return &JBossCLI{Home: home, Log: log}
}

// Path is the jboss-cli.sh script location.
func (c *JBossCLI) Path() string {
	return filepath.Join(c.Home, "bin", "jboss-cli.sh")
}

// Args builds the argument list for command.
func (c *JBossCLI) Args(command string) []string {
	args := []string{"--connect", "--output-json"}
	if c.Controller != "" {
		args = append(args, "--controller="+c.Controller)
	}
	return append(args, "--command="+command)
}

// Run implements CLI. Standard error never reaches the caller's stdout; it
// is logged at debug level.
func (c *JBossCLI) Run(ctx context.Context, command string) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Path(), c.Args(command)...)
	cmd.Env = append(cmd.Environ(), "JBOSS_HOME="+c.Home, "NOPAUSE=true")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if stderr.Len() > 0 {
		c.Log.Debug("jboss-cli stderr", zap.String("command", command), zap.String("stderr", strings.TrimSpace(stderr.String())))
	}
	res := Result{Output: strings.TrimSpace(stdout.String())}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		if res.Output == "" {
			res.Output = strings.TrimSpace(stderr.String())
		}
		return res, nil
	default:
		return res, fmt.Errorf("run %s: %w", c.Path(), err)
	}
}

var (
	resultPath  = jp.MustParseString("$.result")
	outcomePath = jp.MustParseString("$.outcome")
)

// Response is a decoded JSON management response.
type Response struct {
	Outcome string
	Result  any
}

// Succeeded reports whether the server accepted the operation.
func (r Response) Succeeded() bool { return r.Outcome == "success" }

// ParseResponse decodes jboss-cli --output-json output.
func ParseResponse(output string) (Response, error) {
	doc, err := oj.ParseString(output)
	if err != nil {
		return Response{}, fmt.Errorf("parse management response: %w", err)
	}
	var r Response
	if v, ok := outcomePath.First(doc).(string); ok {
		r.Outcome = v
	}
	r.Result = resultPath.First(doc)
	return r, nil
}
