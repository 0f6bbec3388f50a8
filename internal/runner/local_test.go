package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRun_Success(t *testing.T) {
	t.Parallel()
	l := NewLocal(logr.Discard())

	res := l.Run(context.Background(), Command{Argv: []string{"sh", "-c", "echo hello"}})

	assert.True(t, res.OK())
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello", res.Output())
}

func TestLocalRun_NonZeroExitIsNotAnError(t *testing.T) {
	t.Parallel()
	l := NewLocal(logr.Discard())

	res := l.Run(context.Background(), Command{Argv: []string{"sh", "-c", "echo oops >&2; exit 3"}})

	assert.False(t, res.OK())
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Stderr, "oops")
	assert.False(t, res.TimedOut)
}

func TestLocalRun_Timeout(t *testing.T) {
	t.Parallel()
	l := NewLocal(logr.Discard())

	start := time.Now()
	res := l.Run(context.Background(), Command{
		Argv:    []string{"sleep", "10"},
		Timeout: 100 * time.Millisecond,
	})

	assert.True(t, res.TimedOut)
	assert.False(t, res.OK())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLocalRun_ContextCancel(t *testing.T) {
	t.Parallel()
	l := NewLocal(logr.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	res := l.Run(ctx, Command{Argv: []string{"sleep", "10"}})

	assert.False(t, res.OK())
}

func TestLocalRun_SpawnFailure(t *testing.T) {
	t.Parallel()
	l := NewLocal(logr.Discard())

	res := l.Run(context.Background(), Command{Argv: []string{"/nonexistent/binary"}})

	assert.False(t, res.OK())
	assert.Equal(t, -1, res.ExitCode)
	assert.NotEmpty(t, res.Stderr)
}

func TestLocalRun_EmptyArgv(t *testing.T) {
	t.Parallel()
	l := NewLocal(logr.Discard())

	res := l.Run(context.Background(), Command{})

	assert.Equal(t, -1, res.ExitCode)
}

func TestLocalRun_StreamsToLogFile(t *testing.T) {
	t.Parallel()
	l := NewLocal(logr.Discard())
	logPath := filepath.Join(t.TempDir(), "run.log")

	res := l.Run(context.Background(), Command{
		Argv:    []string{"sh", "-c", "echo out; echo err >&2"},
		LogPath: logPath,
	})
	require.True(t, res.OK())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "out")
	assert.Contains(t, string(data), "err")

	// A second run appends rather than truncates.
	res = l.Run(context.Background(), Command{
		Argv:    []string{"sh", "-c", "echo again"},
		LogPath: logPath,
	})
	require.True(t, res.OK())
	data, err = os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "out")
	assert.Contains(t, string(data), "again")
}

func TestJoin_QuotesArguments(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		argv []string
		want string
	}{
		{
			name: "plain words pass through",
			argv: []string{"qm", "config", "9001"},
			want: "qm config 9001",
		},
		{
			name: "spaces are quoted",
			argv: []string{"pveum", "user", "add", "packer@pam", "--comment", "Packer automation user"},
			want: "pveum user add packer@pam --comment 'Packer automation user'",
		},
		{
			name: "single quote escaped",
			argv: []string{"echo", "it's"},
			want: `echo 'it'\''s'`,
		},
		{
			name: "empty argument preserved",
			argv: []string{"echo", ""},
			want: "echo ''",
		},
		{
			name: "shell metacharacters neutralized",
			argv: []string{"echo", "$TOKEN;rm -rf /"},
			want: "echo '$TOKEN;rm -rf /'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Join(tt.argv)
			assert.Equal(t, tt.want, got)
			assert.False(t, strings.Contains(got, "\n"))
		})
	}
}
