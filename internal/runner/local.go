package runner

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/go-logr/logr"
)

// Local runs commands on the management machine (terraform, packer,
// ansible-playbook, local ssh/scp helpers).
type Local struct {
	log logr.Logger

	// Dir, when set, is the working directory for every command.
	Dir string

	// Env entries are appended to the current process environment.
	Env []string
}

// NewLocal creates a local runner. The logger traces every invocation at
// verbosity 1.
func NewLocal(log logr.Logger) *Local {
	return &Local{log: log}
}

// Run implements Runner. The child is placed in its own process group so
// a timeout kills the whole tree, not just the direct child.
func (l *Local) Run(ctx context.Context, cmd Command) Result {
	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	l.log.V(1).Info("exec", "argv", cmd.Argv, "timeout", timeout.String())

	if len(cmd.Argv) == 0 {
		return Failure(errEmptyArgv)
	}

	// #nosec G204 -- argv comes from internal command assembly, not user input
	child := exec.Command(cmd.Argv[0], cmd.Argv[1:]...)
	child.Dir = l.Dir
	if cmd.Dir != "" {
		child.Dir = cmd.Dir
	}
	env := append([]string{}, l.Env...)
	env = append(env, cmd.Env...)
	if len(env) > 0 {
		child.Env = append(os.Environ(), env...)
	}
	child.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	sink, closeSink, err := openLogSink(cmd.LogPath)
	if err != nil {
		return Failure(err)
	}
	defer closeSink()

	child.Stdout = io.MultiWriter(&stdout, sink)
	child.Stderr = io.MultiWriter(&stderr, sink)

	if err := child.Start(); err != nil {
		return Failure(err)
	}

	done := make(chan error, 1)
	go func() { done <- child.Wait() }()

	select {
	case err := <-done:
		res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
		if err != nil {
			var exitErr *exec.ExitError
			if ok := asExitError(err, &exitErr); ok {
				res.ExitCode = exitErr.ExitCode()
			} else {
				return Failure(err)
			}
		}
		return res
	case <-time.After(timeout):
		killGroup(child)
		<-done
		res := Timeout(timeout)
		res.Stdout = stdout.String()
		return res
	case <-ctx.Done():
		killGroup(child)
		<-done
		res := Failure(ctx.Err())
		res.Stdout = stdout.String()
		return res
	}
}

// killGroup terminates the child's process group.
func killGroup(child *exec.Cmd) {
	if child.Process == nil {
		return
	}
	_ = syscall.Kill(-child.Process.Pid, syscall.SIGKILL)
}

// openLogSink returns a synchronized writer appending to path, or a
// discard writer when no path is set.
func openLogSink(path string) (io.Writer, func(), error) {
	if path == "" {
		return io.Discard, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return &syncWriter{w: f}, func() { _ = f.Close() }, nil
}

// syncWriter serializes interleaved stdout/stderr writes to the log file.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
