package wildfly

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

// Process is a server process this package started.
type Process interface {
	Pid() int
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Kill terminates the process and everything in its process group.
	Kill() error
}

// Launcher starts the server in the background.
type Launcher interface {
	Launch(ctx context.Context) (Process, error)
}

// StandaloneLauncher runs bin/standalone.sh in admin-only mode, detached
// into its own process group with output appended to LogPath.
type StandaloneLauncher struct {
	Home    string
	LogPath string
	Args    []string
}

// NewStandaloneLauncher returns a launcher for the installation at home.
func NewStandaloneLauncher(home, logPath string) *StandaloneLauncher {
	return &StandaloneLauncher{
		Home:    home,
		LogPath: logPath,
		Args:    []string{"--admin-only"},
	}
}

// Launch implements Launcher. It returns as soon as the process is started.
func (l *StandaloneLauncher) Launch(_ context.Context) (Process, error) {
	script := filepath.Join(l.Home, "bin", "standalone.sh")
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("standalone script: %w", err)
	}

	logPath := l.LogPath
	if logPath == "" {
		logPath = os.DevNull
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open server log: %w", err)
	}

	// Not CommandContext: the server must outlive a cancelled caller until
	// it is shut down explicitly.
	cmd := exec.Command(script, l.Args...)
	cmd.Env = append(os.Environ(), "JBOSS_HOME="+l.Home, "NOPAUSE=true")
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return nil, fmt.Errorf("start %s: %w", script, err)
	}
	// The child holds its own descriptor.
	_ = logFile.Close()

	p := &process{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type process struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func (p *process) Pid() int { return p.cmd.Process.Pid }

func (p *process) Done() <-chan struct{} { return p.done }

func (p *process) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	pgid, err := unix.Getpgid(p.Pid())
	if err != nil {
		return p.cmd.Process.Kill()
	}
	if err := unix.Kill(-pgid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return fmt.Errorf("kill process group %d: %w", pgid, err)
	}
	return nil
}
