package ssh

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/crypto/ssh"

	"github.com/pxkube/pxkube/internal/runner"
	"github.com/pxkube/pxkube/internal/util/keygen"
)

// writeTestKey generates an RSA key pair and writes the private key to a
// temp file, returning its path.
func writeTestKey(t *testing.T) string {
	t.Helper()
	keyPair, err := keygen.GenerateRSAKeyPair(2048)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "id_rsa")
	if err := os.WriteFile(path, keyPair.PrivateKey, 0o600); err != nil {
		t.Fatalf("failed to write test key: %v", err)
	}
	return path
}

func TestNewClient_Success(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Host:           "192.168.1.100",
		User:           "root",
		PrivateKeyPath: writeTestKey(t),
	}

	client, err := NewClient(cfg, logr.Discard())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if client == nil {
		t.Fatal("expected client, got nil")
	}

	if client.config.Port != defaultPort {
		t.Errorf("expected port %d, got %d", defaultPort, client.config.Port)
	}
	if client.config.DialTimeout != defaultDialTimeout {
		t.Errorf("expected dial timeout %v, got %v", defaultDialTimeout, client.config.DialTimeout)
	}
	if client.config.ConnectAttempts != defaultConnectAttempts {
		t.Errorf("expected connect attempts %d, got %d", defaultConnectAttempts, client.config.ConnectAttempts)
	}
	if client.config.ConnectDelay != defaultConnectDelay {
		t.Errorf("expected connect delay %v, got %v", defaultConnectDelay, client.config.ConnectDelay)
	}
	if client.signer == nil {
		t.Error("expected signer to be set, got nil")
	}
}

func TestNewClient_NilConfig(t *testing.T) {
	t.Parallel()

	_, err := NewClient(nil, logr.Discard())
	if err == nil {
		t.Fatal("expected error for nil config, got nil")
	}
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	keyPath := writeTestKey(t)

	tests := []struct {
		name string
		cfg  *Config
	}{
		{
			name: "empty host",
			cfg:  &Config{User: "root", PrivateKeyPath: keyPath},
		},
		{
			name: "empty user",
			cfg:  &Config{Host: "192.168.1.100", PrivateKeyPath: keyPath},
		},
		{
			name: "empty key path",
			cfg:  &Config{Host: "192.168.1.100", User: "root"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewClient(tt.cfg, logr.Discard()); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestNewClient_MissingKeyFile(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Host:           "192.168.1.100",
		User:           "root",
		PrivateKeyPath: filepath.Join(t.TempDir(), "no-such-key"),
	}

	_, err := NewClient(cfg, logr.Discard())
	if err == nil {
		t.Fatal("expected error for missing key file, got nil")
	}
}

func TestNewClient_InvalidKey(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "id_rsa")
	if err := os.WriteFile(path, []byte("not a key"), 0o600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	cfg := &Config{
		Host:           "192.168.1.100",
		User:           "root",
		PrivateKeyPath: path,
	}

	_, err := NewClient(cfg, logr.Discard())
	if err == nil {
		t.Fatal("expected error for invalid private key, got nil")
	}
}

func TestNewClient_CustomConfigPreserved(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Host:            "192.168.1.100",
		Port:            2222,
		User:            "root",
		PrivateKeyPath:  writeTestKey(t),
		DialTimeout:     5 * time.Second,
		ConnectAttempts: 10,
		ConnectDelay:    2 * time.Second,
	}

	client, err := NewClient(cfg, logr.Discard())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if client.config.Port != 2222 {
		t.Errorf("expected port 2222, got %d", client.config.Port)
	}
	if client.config.DialTimeout != 5*time.Second {
		t.Errorf("expected dial timeout 5s, got %v", client.config.DialTimeout)
	}
	if client.config.ConnectAttempts != 10 {
		t.Errorf("expected connect attempts 10, got %d", client.config.ConnectAttempts)
	}
	if client.config.ConnectDelay != 2*time.Second {
		t.Errorf("expected connect delay 2s, got %v", client.config.ConnectDelay)
	}
}

func TestNewClient_ConfigNotMutated(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Host:           "192.168.1.100",
		User:           "root",
		PrivateKeyPath: writeTestKey(t),
	}

	if _, err := NewClient(cfg, logr.Discard()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.Port != 0 || cfg.DialTimeout != 0 || cfg.ConnectAttempts != 0 || cfg.ConnectDelay != 0 {
		t.Errorf("caller config was mutated: %+v", cfg)
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Host:            "192.0.2.1", // TEST-NET, never routable
		User:            "root",
		PrivateKeyPath:  writeTestKey(t),
		DialTimeout:     100 * time.Millisecond,
		ConnectAttempts: 3,
		ConnectDelay:    50 * time.Millisecond,
	}

	client, err := NewClient(cfg, logr.Discard())
	if err != nil {
		t.Fatalf("expected no error creating client, got: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := client.Run(ctx, runner.Command{Argv: []string{"echo", "test"}})
	if res.OK() {
		t.Fatal("expected failed result for cancelled context")
	}
	if res.ExitCode != -1 {
		t.Errorf("expected exit code -1 for transport failure, got %d", res.ExitCode)
	}
}

// startStallingServer runs a minimal SSH server that accepts an exec
// request, writes one line of output and then never sends an exit
// status, forcing the client down the timeout path.
func startStallingServer(t *testing.T) (host string, port int) {
	t.Helper()

	keyPair, err := keygen.GenerateRSAKeyPair(2048)
	if err != nil {
		t.Fatalf("failed to generate host key: %v", err)
	}
	hostKey, err := ssh.ParsePrivateKey(keyPair.PrivateKey)
	if err != nil {
		t.Fatalf("failed to parse host key: %v", err)
	}

	serverConfig := &ssh.ServerConfig{NoClientAuth: true}
	serverConfig.AddHostKey(hostKey)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			return
		}
		serverConn, chans, reqs, handshakeErr := ssh.NewServerConn(conn, serverConfig)
		if handshakeErr != nil {
			return
		}
		defer serverConn.Close()
		go ssh.DiscardRequests(reqs)

		for newChannel := range chans {
			if newChannel.ChannelType() != "session" {
				_ = newChannel.Reject(ssh.UnknownChannelType, "unsupported")
				continue
			}
			channel, requests, acceptChanErr := newChannel.Accept()
			if acceptChanErr != nil {
				continue
			}
			go func() {
				for req := range requests {
					if req.Type == "exec" {
						_ = req.Reply(true, nil)
						_, _ = channel.Write([]byte("started\n"))
						// No exit-status follows; the client has to
						// give up on its own.
					}
				}
			}()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func TestRun_TimeoutWaitsForOutputCopies(t *testing.T) {
	t.Parallel()

	host, port := startStallingServer(t)

	client, err := NewClient(&Config{
		Host:            host,
		Port:            port,
		User:            "test",
		PrivateKeyPath:  writeTestKey(t),
		DialTimeout:     2 * time.Second,
		ConnectAttempts: 1,
		ConnectDelay:    10 * time.Millisecond,
	}, logr.Discard())
	if err != nil {
		t.Fatalf("expected no error creating client, got: %v", err)
	}

	res := client.Run(context.Background(), runner.Command{
		Argv:    []string{"sleep", "60"},
		Timeout: 300 * time.Millisecond,
	})

	if !res.TimedOut {
		t.Fatalf("expected timed-out result, got %+v", res)
	}
	if res.OK() {
		t.Fatal("timed-out command must not report success")
	}
	if !strings.Contains(res.Stdout, "started") {
		t.Errorf("expected output written before the deadline, got %q", res.Stdout)
	}
}
