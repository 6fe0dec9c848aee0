package devtools

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vburojevic/dth/internal/proc"
)

// fakeServerScript emulates the tool server: it prints the handshake, then
// answers every request line with a canned response matched by id.
const fakeServerScript = `
echo '{"event":"server.started","params":{"host":"127.0.0.1","port":9321,"pid":99,"protocolVersion":"1.1.0"}}'
while IFS= read -r line; do
  id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
  case "$line" in
    *vscode.extensions.discover*)
      printf '{"id":%s,"result":{"/proj":{"extensions":[{"packageName":"foo","extension":{"name":"foo_ext"}}],"parseErrors":[]}}}\n' "$id" ;;
    *)
      printf '{"id":%s,"result":{}}\n' "$id" ;;
  esac
done
`

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests spawn sh")
	}
}

func shSession(t *testing.T, script string, ports *proc.PortState) *Session {
	t.Helper()
	s := NewSession(Config{
		Invocation: proc.Invocation{
			Kind:       proc.StrategyDirectRuntime,
			Executable: "sh",
			BaseArgs:   []string{"-c", script},
		},
		Ports:          ports,
		SupervisorOpts: []proc.Option{proc.WithRestartDelay(0)},
	})
	t.Cleanup(s.Stop)
	return s
}

func TestSessionStartHandshake(t *testing.T) {
	requireUnix(t)

	ports := &proc.PortState{}
	s := shSession(t, fakeServerScript, ports)

	url, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9321/", url)
	assert.Equal(t, StateRunning, s.State())
	assert.Equal(t, 9321, ports.Preferred(), "successful start remembers the bound port")
	assert.True(t, s.SupportsPathURLs())
	assert.Contains(t, s.PIDs(), 99, "handshake pid joins the termination list")
}

func TestSessionRegisterAndDiscover(t *testing.T) {
	requireUnix(t)

	s := shSession(t, fakeServerScript, nil)
	_, err := s.Start(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.Register(ctx, "ws://127.0.0.1:8181/ws"))
	// Re-registering the same endpoint is harmless.
	require.NoError(t, s.Register(ctx, "ws://127.0.0.1:8181/ws"))

	results, err := s.DiscoverExtensions(ctx, []string{"/proj"})
	require.NoError(t, err)
	require.Contains(t, results, "/proj")
	require.Len(t, results["/proj"].Extensions, 1)
	assert.Equal(t, "foo", results["/proj"].Extensions[0].PackageName)
	assert.Empty(t, results["/proj"].ParseErrors)
}

func TestSessionExitBeforeHandshakeFails(t *testing.T) {
	requireUnix(t)

	ports := &proc.PortState{}
	ports.Set(9000)
	s := shSession(t, "echo nope >&2; exit 1", ports)

	_, err := s.Start(context.Background())
	require.Error(t, err)

	var exitErr *proc.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.Code)
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, proc.NoPreference, ports.Preferred(), "abnormal exit clears the port preference")
}

func TestSessionCleanExitBeforeHandshake(t *testing.T) {
	requireUnix(t)

	s := shSession(t, "exit 0", nil)
	_, err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before reporting its address")
}

func TestSessionOpsRequireRunning(t *testing.T) {
	s := NewSession(Config{Invocation: proc.Invocation{Executable: "sh", BaseArgs: []string{"-c", "true"}}})

	err := s.Register(context.Background(), "ws://x")
	assert.ErrorIs(t, err, ErrNotRunning)

	_, err = s.DiscoverExtensions(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestSessionStopInvalidatesURL(t *testing.T) {
	requireUnix(t)

	s := shSession(t, fakeServerScript, nil)
	_, err := s.Start(context.Background())
	require.NoError(t, err)

	s.Stop()

	assert.Equal(t, StateStopped, s.State())
	_, ok := s.BaseURL()
	assert.False(t, ok)

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Stop")
	}

	assert.ErrorIs(t, s.Register(context.Background(), "ws://x"), ErrNotRunning)
}

func TestSessionPortOverrideWins(t *testing.T) {
	ports := &proc.PortState{}
	ports.Set(9100)

	s := NewSession(Config{
		Invocation:   proc.Invocation{Executable: "sh"},
		Ports:        ports,
		PortOverride: 9555,
	})
	assert.Equal(t, []string{"--port=9555"}, s.portArgs())

	s2 := NewSession(Config{
		Invocation: proc.Invocation{Executable: "sh"},
		Ports:      ports,
	})
	assert.Equal(t, []string{"--port=9100"}, s2.portArgs())

	s3 := NewSession(Config{Invocation: proc.Invocation{Executable: "sh"}})
	assert.Nil(t, s3.portArgs())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "not-started", StateNotStarted.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopped", StateStopped.String())
}
