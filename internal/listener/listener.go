// Package listener binds the webhook server to a TCP port or a unix socket.
//
// DESIGN: An address that parses as an integer is a TCP port; anything else
// is a filesystem path for a unix socket. Binding is a small state machine:
//
//	Binding ──ok──────────────────────────────→ Bound
//	   │
//	   └─EADDRINUSE (unix, stale socket)─→ remove file ─→ Binding (once)
//	   │
//	   └─any other error / second failure ─────→ BindFailed
//
// A socket file is stale when nothing accepts connections on it. Before
// unlinking, the path is probed: a live socket fails with ErrSocketInUse and a
// non-socket file with ErrNotSocket, both without removal or retry. Only a
// stale socket takes the remove-and-retry-once path. After a unix bind the socket is
// chmod'ed 0777 so unprivileged peers (e.g. a reverse proxy) can connect.
package listener

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cptn-hooks/cptn/internal/monitoring"
)

// SocketMode is applied to unix sockets after bind.
const SocketMode os.FileMode = 0o777

// probeTimeout bounds the liveness check on an occupied socket path.
const probeTimeout = 500 * time.Millisecond

var (
	// ErrSocketInUse means a live process accepts connections on the socket path.
	ErrSocketInUse = errors.New("socket is in use by a live process")

	// ErrNotSocket means the socket path exists and is not a socket.
	ErrNotSocket = errors.New("path exists and is not a socket")
)

// Kind distinguishes TCP ports from unix socket paths.
type Kind int

const (
	KindTCP Kind = iota
	KindUnix
)

func (k Kind) String() string {
	if k == KindUnix {
		return "unix"
	}
	return "tcp"
}

// Address is a parsed bind target.
type Address struct {
	Raw  string
	Kind Kind
	Port int    // KindTCP
	Path string // KindUnix
}

// ParseAddress classifies addr. Integers (surrounding whitespace ignored)
// are TCP ports; everything else is a socket path.
func ParseAddress(addr string) Address {
	if port, err := strconv.Atoi(strings.TrimSpace(addr)); err == nil {
		return Address{Raw: addr, Kind: KindTCP, Port: port}
	}
	return Address{Raw: addr, Kind: KindUnix, Path: addr}
}

// Network returns the net.Listen network name.
func (a Address) Network() string { return a.Kind.String() }

// Target returns the net.Listen address.
func (a Address) Target() string {
	if a.Kind == KindTCP {
		return ":" + strconv.Itoa(a.Port)
	}
	return a.Path
}

func (a Address) String() string {
	return a.Network() + ":" + a.Target()
}

// State is a step of the bind state machine.
type State int

const (
	StateBinding State = iota
	StateBound
	StateBindFailed
)

func (s State) String() string {
	switch s {
	case StateBinding:
		return "binding"
	case StateBound:
		return "bound"
	case StateBindFailed:
		return "bind_failed"
	default:
		return "unknown"
	}
}

// BindError reports a failed bind.
type BindError struct {
	Address Address
	Op      string // listen, probe, remove, retry, chmod
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %s: %v", e.Address, e.Op, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Binder runs the bind state machine for one address.
type Binder struct {
	Address Address
	logger  *monitoring.Logger
	state   State
	retried bool

	listen func(network, address string) (net.Listener, error)
	dial   func(network, address string, timeout time.Duration) (net.Conn, error)
}

// NewBinder creates a binder for addr. logger may be nil.
func NewBinder(addr string, logger *monitoring.Logger) *Binder {
	if logger == nil {
		logger = monitoring.Nop()
	}
	return &Binder{
		Address: ParseAddress(addr),
		logger:  logger,
		state:   StateBinding,
		listen:  net.Listen,
		dial:    net.DialTimeout,
	}
}

// State returns the current state.
func (b *Binder) State() State { return b.state }

// Retried reports whether a stale socket was removed and the bind retried.
func (b *Binder) Retried() bool { return b.retried }

// Listen binds the address, recovering once from a stale unix socket.
func (b *Binder) Listen() (net.Listener, error) {
	b.state = StateBinding
	addr := b.Address

	ln, err := b.listen(addr.Network(), addr.Target())
	if err != nil {
		if addr.Kind != KindUnix || !isAddrInUse(err) {
			return nil, b.fail("listen", err)
		}
		if err := b.removeStale(); err != nil {
			return nil, err
		}

		b.retried = true
		b.logger.Debug().Str("path", addr.Path).Msg("retrying bind after removing stale socket")
		ln, err = b.listen(addr.Network(), addr.Target())
		if err != nil {
			return nil, b.fail("retry", err)
		}
	}

	if addr.Kind == KindUnix {
		b.logger.Debug().Str("path", addr.Path).Msg("changing socket permissions")
		if err := os.Chmod(addr.Path, SocketMode); err != nil {
			ln.Close()
			return nil, b.fail("chmod", err)
		}
	}

	b.state = StateBound
	b.logger.Debug().Str("address", addr.String()).Str("bound", ln.Addr().String()).Msg("listening")
	return ln, nil
}

// removeStale deletes the socket file if nothing is serving on it.
func (b *Binder) removeStale() error {
	path := b.Address.Path

	st, err := os.Lstat(path)
	if err != nil {
		return b.fail("probe", err)
	}
	if st.Mode()&os.ModeSocket == 0 {
		return b.fail("probe", fmt.Errorf("%w: %s", ErrNotSocket, path))
	}

	if conn, err := b.dial("unix", path, probeTimeout); err == nil {
		conn.Close()
		return b.fail("probe", fmt.Errorf("%w: %s", ErrSocketInUse, path))
	}

	b.logger.Debug().Str("path", path).Msg("unlinking stale socket")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return b.fail("remove", err)
	}
	return nil
}

func (b *Binder) fail(op string, err error) error {
	b.state = StateBindFailed
	return &BindError{Address: b.Address, Op: op, Err: err}
}

// Listen binds addr. See Binder for the recovery rules.
func Listen(addr string, logger *monitoring.Logger) (net.Listener, error) {
	return NewBinder(addr, logger).Listen()
}

// isAddrInUse reports whether err is EADDRINUSE.
func isAddrInUse(err error) bool {
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	return strings.Contains(err.Error(), "address already in use")
}
