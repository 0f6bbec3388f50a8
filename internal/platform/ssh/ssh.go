// Package ssh provides the remote transport for running hypervisor
// commands on the Proxmox host. It handles key-based authentication,
// connection establishment with bounded retry, and command execution with
// a per-command deadline that is independent of the dial timeout.
//
// Security: host key verification is disabled by default, which matches
// lab/homelab Proxmox hosts that get reinstalled; set HostKeyCallback for
// persistent production hosts.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/crypto/ssh"

	"github.com/pxkube/pxkube/internal/runner"
	"github.com/pxkube/pxkube/internal/util/retry"
)

const (
	defaultPort            = 22
	defaultDialTimeout     = 10 * time.Second
	defaultConnectAttempts = 3
	defaultConnectDelay    = 5 * time.Second
)

// Config holds the SSH connection parameters for the Proxmox host.
type Config struct {
	Host           string
	Port           int
	User           string
	PrivateKeyPath string

	// DialTimeout bounds TCP connection establishment. It is fixed and
	// independent of any per-command timeout.
	DialTimeout time.Duration

	// ConnectAttempts and ConnectDelay bound the dial retry loop.
	ConnectAttempts int
	ConnectDelay    time.Duration

	// HostKeyCallback handles host key verification. Nil means
	// ssh.InsecureIgnoreHostKey().
	HostKeyCallback ssh.HostKeyCallback
}

// Client executes commands on the remote host. It parses the private key
// once at construction and dials on demand per Run call. Client
// implements runner.Runner.
type Client struct {
	config *Config
	signer ssh.Signer
	log    logr.Logger
}

// NewClient validates cfg, loads and parses the private key, and returns
// a ready client.
func NewClient(cfg *Config, log logr.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("ssh config cannot be nil")
	}
	if cfg.Host == "" {
		return nil, errors.New("ssh host cannot be empty")
	}
	if cfg.User == "" {
		return nil, errors.New("ssh user cannot be empty")
	}
	if cfg.PrivateKeyPath == "" {
		return nil, errors.New("ssh private key path cannot be empty")
	}

	cc := *cfg
	if cc.Port == 0 {
		cc.Port = defaultPort
	}
	if cc.DialTimeout == 0 {
		cc.DialTimeout = defaultDialTimeout
	}
	if cc.ConnectAttempts == 0 {
		cc.ConnectAttempts = defaultConnectAttempts
	}
	if cc.ConnectDelay == 0 {
		cc.ConnectDelay = defaultConnectDelay
	}
	if cc.HostKeyCallback == nil {
		cc.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // default for lab hosts
	}

	key, err := os.ReadFile(cc.PrivateKeyPath) // #nosec G304 -- path from validated config
	if err != nil {
		return nil, fmt.Errorf("failed to read private key %s: %w", cc.PrivateKeyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &Client{config: &cc, signer: signer, log: log}, nil
}

// Run implements runner.Runner. The argument vector is rendered into a
// quoted command line for the remote shell. Transport failures and
// timeouts come back as failed Results, never as panics or hidden state.
func (c *Client) Run(ctx context.Context, cmd runner.Command) runner.Result {
	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = runner.DefaultTimeout
	}
	line := runner.Join(cmd.Argv)
	c.log.V(1).Info("ssh exec", "host", c.config.Host, "cmd", line, "timeout", timeout.String())

	client, err := c.connect(ctx)
	if err != nil {
		return runner.Failure(err)
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return runner.Failure(fmt.Errorf("failed to open session on %s: %w", c.config.Host, err))
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	sink, closeSink, err := logSink(cmd.LogPath)
	if err != nil {
		return runner.Failure(err)
	}
	defer closeSink()
	session.Stdout = io.MultiWriter(&stdout, sink)
	session.Stderr = io.MultiWriter(&stderr, sink)

	if err := session.Start(line); err != nil {
		return runner.Failure(err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case err := <-done:
		res := runner.Result{Stdout: stdout.String(), Stderr: stderr.String()}
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				res.ExitCode = exitErr.ExitStatus()
			} else {
				return runner.Failure(err)
			}
		}
		return res
	case <-time.After(timeout):
		// Closing the session unblocks Wait; receive from done so the
		// output copies have stopped before the buffers are read.
		_ = session.Close()
		<-done
		res := runner.Timeout(timeout)
		res.Stdout = stdout.String()
		res.Stderr = stderr.String()
		return res
	case <-ctx.Done():
		_ = session.Close()
		<-done
		res := runner.Failure(ctx.Err())
		res.Stdout = stdout.String()
		res.Stderr = stderr.String()
		return res
	}
}

// connect dials the host, retrying transient failures.
func (c *Client) connect(ctx context.Context) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            c.config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(c.signer)},
		HostKeyCallback: c.config.HostKeyCallback,
		Timeout:         c.config.DialTimeout,
	}

	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	var client *ssh.Client

	err := retry.Do(ctx, func() error {
		var dialErr error
		client, dialErr = ssh.Dial("tcp", addr, config)
		return dialErr
	},
		retry.WithAttempts(c.config.ConnectAttempts),
		retry.WithDelay(c.config.ConnectDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", addr, err)
	}
	return client, nil
}

// logSink mirrors runner's incremental log streaming for remote commands.
func logSink(path string) (io.Writer, func(), error) {
	if path == "" {
		return io.Discard, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
