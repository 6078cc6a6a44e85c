package listener

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// socketPath returns a short socket path; unix socket paths are length limited.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "cptn")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "hooks.sock")
}

// staleSocket leaves a socket file behind with nothing listening on it.
func staleSocket(t *testing.T, path string) {
	t.Helper()
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, ln.Close())

	st, err := os.Lstat(path)
	require.NoError(t, err)
	require.NotZero(t, st.Mode()&os.ModeSocket)
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in     string
		kind   Kind
		port   int
		path   string
		target string
	}{
		{in: "8080", kind: KindTCP, port: 8080, target: ":8080"},
		{in: " 9000 ", kind: KindTCP, port: 9000, target: ":9000"},
		{in: "0", kind: KindTCP, port: 0, target: ":0"},
		{in: "/run/cptn.sock", kind: KindUnix, path: "/run/cptn.sock", target: "/run/cptn.sock"},
		{in: "hooks.sock", kind: KindUnix, path: "hooks.sock", target: "hooks.sock"},
		{in: "8080abc", kind: KindUnix, path: "8080abc", target: "8080abc"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			a := ParseAddress(tt.in)
			assert.Equal(t, tt.kind, a.Kind)
			assert.Equal(t, tt.port, a.Port)
			assert.Equal(t, tt.path, a.Path)
			assert.Equal(t, tt.target, a.Target())
		})
	}
}

func TestListen_TCP(t *testing.T) {
	b := NewBinder("0", nil)
	ln, err := b.Listen()
	require.NoError(t, err)
	defer ln.Close()

	assert.Equal(t, StateBound, b.State())
	assert.Equal(t, "tcp", ln.Addr().Network())
	assert.False(t, b.Retried())
}

func TestListen_TCPInUseIsFatal(t *testing.T) {
	occupied, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer occupied.Close()

	port := occupied.Addr().(*net.TCPAddr).Port
	b := NewBinder(strconv.Itoa(port), nil)
	_, err = b.Listen()

	require.Error(t, err)
	var bindErr *BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, "listen", bindErr.Op)
	assert.True(t, errors.Is(err, syscall.EADDRINUSE))
	assert.Equal(t, StateBindFailed, b.State())
	assert.False(t, b.Retried(), "tcp binds are never retried")
}

func TestListen_UnixSetsPermissions(t *testing.T) {
	path := socketPath(t)

	ln, err := Listen(path, nil)
	require.NoError(t, err)
	defer ln.Close()

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, SocketMode, st.Mode().Perm())
}

func TestListen_UnixStaleSocketIsReplaced(t *testing.T) {
	path := socketPath(t)
	staleSocket(t, path)

	b := NewBinder(path, nil)
	ln, err := b.Listen()
	require.NoError(t, err)
	defer ln.Close()

	assert.True(t, b.Retried())
	assert.Equal(t, StateBound, b.State())

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	conn.Close()
}

func TestListen_UnixLiveSocketFails(t *testing.T) {
	path := socketPath(t)
	live, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer live.Close()

	b := NewBinder(path, nil)
	_, err = b.Listen()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSocketInUse)
	assert.Equal(t, StateBindFailed, b.State())

	_, statErr := os.Lstat(path)
	assert.NoError(t, statErr, "live socket must not be removed")
}

func TestListen_UnixRegularFileIsNotRemoved(t *testing.T) {
	path := socketPath(t)
	require.NoError(t, os.WriteFile(path, []byte("keep me"), 0o600))

	_, err := Listen(path, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotSocket)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "keep me", string(data))
}

func TestListen_UnixRetryFailurePropagates(t *testing.T) {
	path := socketPath(t)
	staleSocket(t, path)

	inUse := &net.OpError{Op: "listen", Net: "unix", Err: os.NewSyscallError("bind", syscall.EADDRINUSE)}
	calls := 0

	b := NewBinder(path, nil)
	b.listen = func(network, address string) (net.Listener, error) {
		calls++
		return nil, inUse
	}

	_, err := b.Listen()
	require.Error(t, err)

	var bindErr *BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, "retry", bindErr.Op)
	assert.Equal(t, 2, calls, "exactly one retry")
	assert.True(t, b.Retried())
	assert.Equal(t, StateBindFailed, b.State())
}

func TestListen_UnixOtherErrorIsFatal(t *testing.T) {
	path := filepath.Join(socketPath(t)+".d", "missing", "hooks.sock")

	b := NewBinder(path, nil)
	_, err := b.Listen()

	require.Error(t, err)
	var bindErr *BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, "listen", bindErr.Op)
	assert.False(t, b.Retried())
}

func TestIsAddrInUse(t *testing.T) {
	assert.True(t, isAddrInUse(&net.OpError{Err: os.NewSyscallError("bind", syscall.EADDRINUSE)}))
	assert.True(t, isAddrInUse(errors.New("listen unix /x: bind: address already in use")))
	assert.False(t, isAddrInUse(&net.OpError{Err: os.NewSyscallError("bind", syscall.EACCES)}))
}
