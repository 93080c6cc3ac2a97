package netconn

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/cyberinferno/netprint/addrcache"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate(t *testing.T) {
	t.Run("parses host and port", func(t *testing.T) {
		conn, err := Create("192.168.0.205:9100")
		require.NoError(t, err)
		assert.Equal(t, "192.168.0.205", conn.Host())
		assert.Equal(t, 9100, conn.Port())
		assert.False(t, conn.IsConnected())
	})

	t.Run("applies defaults", func(t *testing.T) {
		conn, err := Create("printer.local:9100")
		require.NoError(t, err)

		config := conn.Config()
		assert.Equal(t, FamilyIPv4, config.Family)
		assert.Equal(t, SocketStream, config.SocketType)
		assert.Equal(t, time.Second, config.SelectTimeout)
		assert.Equal(t, 4096, config.ReadBufferSize)
		assert.NotNil(t, config.Logger)
		assert.NotNil(t, config.Dialer)
		assert.Equal(t, "tcp4", config.Network())
	})

	t.Run("malformed endpoint is a config error", func(t *testing.T) {
		_, err := Create("192.168.0.205")

		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "192.168.0.205", cfgErr.Input)
	})

	t.Run("invalid config is a config error", func(t *testing.T) {
		config := DefaultConfig()
		config.ReadBufferSize = 0

		_, err := CreateWithConfig("10.0.0.1:9100", config)

		var cfgErr *ConfigError
		assert.ErrorAs(t, err, &cfgErr)
	})
}

func TestNew(t *testing.T) {
	t.Run("rejects empty host", func(t *testing.T) {
		_, err := New("", 9100, DefaultConfig())

		var cfgErr *ConfigError
		assert.ErrorAs(t, err, &cfgErr)
	})

	t.Run("rejects port out of range", func(t *testing.T) {
		for _, port := range []int{0, -1, 65536} {
			_, err := New("10.0.0.1", port, DefaultConfig())

			var cfgErr *ConfigError
			assert.ErrorAs(t, err, &cfgErr, "port %d", port)
		}
	})

	t.Run("brackets ipv6 endpoint", func(t *testing.T) {
		conn, err := New("::1", 9100, DefaultConfig())
		require.NoError(t, err)
		assert.Equal(t, "[::1]:9100", conn.Endpoint())
		assert.Contains(t, conn.String(), "[::1]:9100")
	})
}

func TestConnection_Connect(t *testing.T) {
	t.Run("dials configured network and address", func(t *testing.T) {
		sock := &fakeSocket{}
		conn, dialer := newFakeConnection(sock)

		require.NoError(t, conn.Connect(context.Background()))
		assert.True(t, conn.IsConnected())
		assert.Equal(t, []string{"10.0.0.1:9100"}, dialer.addresses)
		assert.Equal(t, []string{"tcp4"}, dialer.networks)
	})

	t.Run("dial failure is a connection error", func(t *testing.T) {
		conn, _ := newFakeConnection()

		err := conn.Connect(context.Background())

		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, "connect", connErr.Op)
		assert.ErrorIs(t, err, errDial)
		assert.False(t, conn.IsConnected())
	})

	t.Run("second connect releases the first socket", func(t *testing.T) {
		first, second := &fakeSocket{}, &fakeSocket{}
		conn, _ := newFakeConnection(first, second)

		require.NoError(t, conn.Connect(context.Background()))
		require.NoError(t, conn.Connect(context.Background()))

		assert.Equal(t, 1, first.shutdowns)
		assert.Equal(t, 1, first.closes)
		assert.Equal(t, 0, second.closes)
	})
}

func TestConnection_Write(t *testing.T) {
	t.Run("full send is a single call", func(t *testing.T) {
		sock := &fakeSocket{}
		conn, _ := newFakeConnection(sock)
		require.NoError(t, conn.Connect(context.Background()))

		payload := bytes.Repeat([]byte{0x1b, '@'}, 500)
		require.NoError(t, conn.Write(payload))

		require.Len(t, sock.sends, 1)
		assert.Equal(t, payload, sock.sends[0])
		assert.Equal(t, []PollMode{PollWrite}, sock.polls)
	})

	t.Run("partial sends continue with the unsent suffix", func(t *testing.T) {
		sock := &fakeSocket{send: func(p []byte) (int, error) {
			return min(len(p), 3), nil
		}}
		conn, _ := newFakeConnection(sock)
		require.NoError(t, conn.Connect(context.Background()))

		require.NoError(t, conn.Write([]byte("abcdefgh")))

		assert.Equal(t, [][]byte{[]byte("abcdefgh"), []byte("defgh"), []byte("gh")}, sock.sends)
	})

	t.Run("zero byte send fails without hanging", func(t *testing.T) {
		calls := 0
		sock := &fakeSocket{send: func(p []byte) (int, error) {
			calls++
			if calls == 1 {
				return 2, nil
			}
			return 0, nil
		}}
		conn, _ := newFakeConnection(sock)
		require.NoError(t, conn.Connect(context.Background()))

		err := conn.Write([]byte("hello"))

		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, "write", connErr.Op)
		assert.ErrorIs(t, err, ErrConnectionBroken)
		assert.Equal(t, 2, calls)
	})

	t.Run("send error is a connection error", func(t *testing.T) {
		reset := errors.New("connection reset by peer")
		sock := &fakeSocket{send: func(p []byte) (int, error) {
			return 0, reset
		}}
		conn, _ := newFakeConnection(sock)
		require.NoError(t, conn.Connect(context.Background()))

		err := conn.Write([]byte("x"))

		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.ErrorIs(t, err, reset)
	})

	t.Run("empty payload sends nothing", func(t *testing.T) {
		sock := &fakeSocket{}
		conn, _ := newFakeConnection(sock)
		require.NoError(t, conn.Connect(context.Background()))

		require.NoError(t, conn.Write(nil))
		assert.Empty(t, sock.sends)
		assert.Len(t, sock.polls, 1)
	})

	t.Run("never connected connection dials on first write", func(t *testing.T) {
		sock := &fakeSocket{}
		conn, dialer := newFakeConnection(sock)

		require.NoError(t, conn.Write([]byte("lazy")))
		assert.Equal(t, 1, dialer.dials())
		assert.Equal(t, [][]byte{[]byte("lazy")}, sock.sends)
	})
}

func TestConnection_Read(t *testing.T) {
	t.Run("returns received bytes", func(t *testing.T) {
		sock := &fakeSocket{recvData: []byte("OK\n")}
		conn, _ := newFakeConnection(sock)
		require.NoError(t, conn.Connect(context.Background()))

		assert.Equal(t, []byte("OK\n"), conn.Read())
		assert.Equal(t, []PollMode{PollRead}, sock.polls)
	})

	t.Run("limits to read buffer size", func(t *testing.T) {
		sock := &fakeSocket{recvData: bytes.Repeat([]byte("x"), 100)}
		dialer := &fakeDialer{sockets: []*fakeSocket{sock}}

		config := DefaultConfig()
		config.ReadBufferSize = 16
		config.Dialer = dialer
		conn, err := New("10.0.0.1", 9100, config)
		require.NoError(t, err)
		require.NoError(t, conn.Connect(context.Background()))

		assert.Len(t, conn.Read(), 16)
	})

	t.Run("receive error yields empty result", func(t *testing.T) {
		sock := &fakeSocket{recvErr: errors.New("connection reset by peer")}
		conn, _ := newFakeConnection(sock)
		require.NoError(t, conn.Connect(context.Background()))

		got := conn.Read()
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("read err reports the receive error", func(t *testing.T) {
		sock := &fakeSocket{recvErr: io.EOF}
		conn, _ := newFakeConnection(sock)
		require.NoError(t, conn.Connect(context.Background()))

		got, err := conn.ReadErr()
		assert.Empty(t, got)
		assert.ErrorIs(t, err, io.EOF)

		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, "read", connErr.Op)
	})

	t.Run("nothing received is not an error", func(t *testing.T) {
		sock := &fakeSocket{}
		conn, _ := newFakeConnection(sock)
		require.NoError(t, conn.Connect(context.Background()))

		got, err := conn.ReadErr()
		assert.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestConnection_Readiness(t *testing.T) {
	t.Run("write fails when reconnected socket is not ready either", func(t *testing.T) {
		dead := &fakeSocket{ready: []bool{false}}
		stillDead := &fakeSocket{ready: []bool{false}}
		conn, dialer := newFakeConnection(dead, stillDead)
		require.NoError(t, conn.Connect(context.Background()))

		err := conn.Write([]byte("hello"))

		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.ErrorIs(t, err, ErrNotReady)
		assert.Equal(t, "write", connErr.Op)
		assert.Contains(t, err.Error(), "cannot write to socket")
		assert.Equal(t, 2, dialer.dials(), "exactly one reconnect")
		assert.Empty(t, dead.sends)
		assert.Empty(t, stillDead.sends)
	})

	t.Run("write fails when reconnect fails", func(t *testing.T) {
		dead := &fakeSocket{ready: []bool{false}}
		conn, dialer := newFakeConnection(dead, nil)
		require.NoError(t, conn.Connect(context.Background()))

		err := conn.Write([]byte("hello"))

		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, "connect", connErr.Op)
		assert.ErrorIs(t, err, errDial)
		assert.Equal(t, 2, dialer.dials())
		assert.Equal(t, 1, dead.shutdowns, "old socket released before the failed dial")
		assert.Equal(t, 1, dead.closes)
		assert.False(t, conn.IsConnected())
	})

	t.Run("read returns empty when never ready", func(t *testing.T) {
		dead := &fakeSocket{ready: []bool{false}, recvData: []byte("unused")}
		stillDead := &fakeSocket{ready: []bool{false}, recvData: []byte("unused")}
		conn, _ := newFakeConnection(dead, stillDead)
		require.NoError(t, conn.Connect(context.Background()))

		assert.Empty(t, conn.Read())
		assert.Zero(t, dead.recvs)
		assert.Zero(t, stillDead.recvs)
	})

	t.Run("read err names the read direction", func(t *testing.T) {
		conn, _ := newFakeConnection(&fakeSocket{ready: []bool{false}}, &fakeSocket{ready: []bool{false}})
		require.NoError(t, conn.Connect(context.Background()))

		_, err := conn.ReadErr()
		assert.ErrorIs(t, err, ErrNotReady)
		assert.Contains(t, err.Error(), "cannot read from socket")
	})

	t.Run("read returns empty when reconnect fails", func(t *testing.T) {
		dead := &fakeSocket{ready: []bool{false}}
		conn, _ := newFakeConnection(dead, nil)
		require.NoError(t, conn.Connect(context.Background()))

		assert.NotPanics(t, func() {
			assert.Empty(t, conn.Read())
		})
	})

	t.Run("write succeeds on the new socket after one reconnect", func(t *testing.T) {
		stale := &fakeSocket{ready: []bool{false}}
		fresh := &fakeSocket{}
		conn, _ := newFakeConnection(stale, fresh)
		require.NoError(t, conn.Connect(context.Background()))

		require.NoError(t, conn.Write([]byte("hello")))

		assert.Empty(t, stale.sends)
		assert.Equal(t, [][]byte{[]byte("hello")}, fresh.sends)
		assert.Equal(t, 1, stale.shutdowns)
		assert.Equal(t, 1, stale.closes)
		assert.Zero(t, fresh.closes)

		require.NoError(t, conn.Write([]byte("again")))
		assert.Equal(t, 1, stale.closes, "stale socket is not released twice")
	})

	t.Run("poll error counts as not ready", func(t *testing.T) {
		broken := &fakeSocket{ready: []bool{false}, pollErr: errors.New("bad file descriptor")}
		fresh := &fakeSocket{recvData: []byte("OK")}
		conn, _ := newFakeConnection(broken, fresh)
		require.NoError(t, conn.Connect(context.Background()))

		assert.Equal(t, []byte("OK"), conn.Read())
		assert.Equal(t, 1, broken.closes)
	})
}

func TestConnection_Close(t *testing.T) {
	sock := &fakeSocket{}
	conn, dialer := newFakeConnection(sock, &fakeSocket{})
	require.NoError(t, conn.Connect(context.Background()))

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Equal(t, 1, sock.shutdowns)
	assert.Equal(t, 1, sock.closes)
	assert.False(t, conn.IsConnected())

	t.Run("write and read after close fail", func(t *testing.T) {
		assert.ErrorIs(t, conn.Write([]byte("x")), ErrClosed)
		assert.Empty(t, conn.Read())

		_, err := conn.ReadErr()
		assert.ErrorIs(t, err, ErrClosed)
		assert.Equal(t, 1, dialer.dials(), "closed connection does not reconnect")
	})

	t.Run("connect reopens", func(t *testing.T) {
		require.NoError(t, conn.Connect(context.Background()))
		assert.NoError(t, conn.Write([]byte("x")))
	})
}

func TestConnection_Scenario(t *testing.T) {
	t.Run("hello is sent in one call", func(t *testing.T) {
		sock := &fakeSocket{}
		conn, _ := newFakeConnection(sock)
		require.NoError(t, conn.Connect(context.Background()))

		require.NoError(t, conn.Write([]byte("hello")))
		assert.Equal(t, [][]byte{[]byte("hello")}, sock.sends)
	})

	t.Run("always readable device answers OK", func(t *testing.T) {
		sock := &fakeSocket{recvData: []byte("OK\n")}
		conn, _ := newFakeConnection(sock)
		require.NoError(t, conn.Connect(context.Background()))

		assert.Equal(t, []byte("OK\n"), conn.Read())
		assert.Equal(t, []byte("OK\n"), conn.Read())
	})
}

func TestConnection_Resolver(t *testing.T) {
	newResolver := func(addrs []string, lookups *int) *addrcache.CachingResolver {
		return addrcache.NewCachingResolver(
			addrcache.NewMemoryCacher[[]string](cache.NoExpiration, time.Minute),
			time.Minute,
			func(ctx context.Context, host string) ([]string, error) {
				*lookups++
				return addrs, nil
			},
		)
	}

	t.Run("dials the first address of the family", func(t *testing.T) {
		lookups := 0
		dialer := &fakeDialer{sockets: []*fakeSocket{{}}}

		config := DefaultConfig()
		config.Dialer = dialer
		config.Resolver = newResolver([]string{"fe80::1", "10.0.0.9", "10.0.0.10"}, &lookups)

		conn, err := New("printer.local", 9100, config)
		require.NoError(t, err)
		require.NoError(t, conn.Connect(context.Background()))

		assert.Equal(t, []string{"10.0.0.9:9100"}, dialer.addresses)
		assert.Equal(t, 1, lookups)
	})

	t.Run("tries the next address and forgets stale entries", func(t *testing.T) {
		lookups := 0
		dialer := &fakeDialer{sockets: []*fakeSocket{nil, nil, {}}}

		config := DefaultConfig()
		config.Dialer = dialer
		config.Resolver = newResolver([]string{"10.0.0.9", "10.0.0.10"}, &lookups)

		conn, err := New("printer.local", 9100, config)
		require.NoError(t, err)

		err = conn.Connect(context.Background())
		require.Error(t, err)
		assert.Equal(t, []string{"10.0.0.9:9100", "10.0.0.10:9100"}, dialer.addresses)

		require.NoError(t, conn.Connect(context.Background()))
		assert.Equal(t, 2, lookups, "failed dial drops the cached resolution")
	})

	t.Run("no address of the family", func(t *testing.T) {
		lookups := 0
		dialer := &fakeDialer{}

		config := DefaultConfig()
		config.Dialer = dialer
		config.Resolver = newResolver([]string{"fe80::1"}, &lookups)

		conn, err := New("printer.local", 9100, config)
		require.NoError(t, err)

		err = conn.Connect(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no ipv4 address")
		assert.Zero(t, dialer.dials())
	})
}

func TestConnection_Metrics(t *testing.T) {
	sock := &fakeSocket{recvData: []byte("OK")}
	dialer := &fakeDialer{sockets: []*fakeSocket{sock}}

	config := DefaultConfig()
	config.Dialer = dialer
	conn, err := New("10.77.0.1", 9100, config)
	require.NoError(t, err)

	require.NoError(t, conn.Connect(context.Background()))
	require.NoError(t, conn.Write([]byte("hello")))
	conn.Read()

	var buf strings.Builder
	WriteMetrics(&buf)
	out := buf.String()

	assert.Contains(t, out, `netconn_connects_total{endpoint="10.77.0.1:9100"} 1`)
	assert.Contains(t, out, `netconn_bytes_written_total{endpoint="10.77.0.1:9100"} 5`)
	assert.Contains(t, out, `netconn_bytes_read_total{endpoint="10.77.0.1:9100"} 2`)
}

func TestConnectionError_Message(t *testing.T) {
	err := &ConnectionError{
		Op:      "write",
		Message: "cannot write to socket",
		Host:    "10.0.0.1",
		Port:    9100,
		Network: "tcp4",
		Err:     ErrNotReady,
	}

	assert.Equal(t, `cannot write to socket (host="10.0.0.1", port=9100, network="tcp4"): socket not ready`, err.Error())
	assert.ErrorIs(t, err, ErrNotReady)
}
