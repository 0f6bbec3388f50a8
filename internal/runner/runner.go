// Package runner executes external commands, locally or through a remote
// transport, and reports the outcome as a value instead of an error.
//
// Every orchestration step in pxkube ends up here: qm/pveum/rbd calls on
// the Proxmox host, terraform and ansible-playbook runs on the management
// machine. Callers inspect the exit code; a non-zero exit, a timeout or an
// unreachable transport all come back as a failed Result, never as a Go
// error, so the caller decides whether the failure is fatal.
package runner

import (
	"context"
	"strings"
	"time"
)

// Result is the outcome of a single command invocation. It is ephemeral
// and never persisted.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// OK reports whether the command ran to completion with exit code 0.
func (r Result) OK() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Output returns trimmed stdout.
func (r Result) Output() string {
	return strings.TrimSpace(r.Stdout)
}

// Failure builds a Result for a command that could not be executed at all
// (spawn error, unreachable host).
func Failure(err error) Result {
	return Result{ExitCode: -1, Stderr: err.Error()}
}

// Timeout builds a Result for a command killed at its deadline.
func Timeout(d time.Duration) Result {
	return Result{ExitCode: -1, TimedOut: true, Stderr: "command timed out after " + d.String()}
}

// Command describes one invocation. Argv is an argument vector; the
// command is never passed through a local shell, so values containing
// spaces or secrets need no quoting.
type Command struct {
	Argv []string

	// Timeout bounds the whole invocation. Zero means DefaultTimeout.
	Timeout time.Duration

	// Dir is the working directory for local execution. Empty means the
	// runner's default. Remote transports ignore it.
	Dir string

	// Env entries are appended to the inherited environment for local
	// execution. Remote transports ignore them.
	Env []string

	// LogPath, when set, appends interleaved stdout+stderr to the named
	// file incrementally, so long builds are observable while running.
	LogPath string
}

// DefaultTimeout applies when a Command does not set one.
const DefaultTimeout = 5 * time.Minute

// Runner executes commands. Implementations never return a Go error from
// Run; failures are encoded in the Result.
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
}

// Join renders an argument vector as a single shell command line with
// each argument single-quoted. Used when handing a vector to a transport
// that only accepts a command string (the remote side of SSH).
func Join(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = quote(a)
	}
	return strings.Join(quoted, " ")
}

// quote single-quotes s for POSIX sh, escaping embedded single quotes.
func quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'`$\\!*?[]{}()<>|&;~#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
