package core

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/encodeous/sospf/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"
)

type testRouter struct {
	*SospfRouter
	s    *state.State
	done chan struct{}
}

func startRouter(t *testing.T, addr netip.Addr) *testRouter {
	cfg := state.LocalCfg{
		Addr:        addr,
		Port:        0,
		Bind:        "127.0.0.1",
		ProcessAddr: "127.0.0.1",
	}
	s, err := New(cfg, slog.LevelDebug, io.Discard)
	require.NoError(t, err)
	tr := &testRouter{
		SospfRouter: Get[*SospfRouter](s),
		s:           s,
		done:        make(chan struct{}),
	}
	go func() {
		defer close(tr.done)
		_ = MainLoop(s)
	}()
	t.Cleanup(tr.stop)
	return tr
}

func (tr *testRouter) stop() {
	tr.s.Cancel(errors.New("test finished"))
	<-tr.done
}

func (tr *testRouter) hasNeighbour(addr netip.Addr) bool {
	neighs, err := tr.Neighbours()
	if err != nil {
		return false
	}
	for _, n := range neighs {
		if n == addr {
			return true
		}
	}
	return false
}

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

func TestRouter_AttachStartDetect(t *testing.T) {
	ra, rb, rc := startRouter(t, A), startRouter(t, B), startRouter(t, C)

	port, err := ra.Attach(rb.Self(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, port)
	_, err = rb.Attach(rc.Self(), 2)
	require.NoError(t, err)

	neighs, err := ra.Neighbours()
	require.NoError(t, err)
	assert.Empty(t, neighs, "attach does not run the handshake")

	require.NoError(t, ra.Start())
	require.NoError(t, rb.Start())

	require.Eventually(t, func() bool {
		path, err := ra.Detect(C)
		return err == nil && path.Cost() == 3
	}, waitFor, tick)
	path, err := ra.Detect(C)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1 ->(1) 10.0.0.2 ->(2) 10.0.0.3", path.String())

	assert.True(t, rc.hasNeighbour(B), "C learned the link from the HELLO")
	require.Eventually(t, func() bool {
		_, err := rc.Detect(A)
		return err == nil
	}, waitFor, tick)

	routes, err := ra.Routes()
	require.NoError(t, err)
	assert.Contains(t, routes, "10.0.0.3 via 10.0.0.2 port 0 cost 3")

	entry, err := ra.Lookup(C)
	require.NoError(t, err)
	assert.Equal(t, B, entry.Nh)
}

func TestRouter_StartTwice(t *testing.T) {
	ra := startRouter(t, A)
	require.NoError(t, ra.Start())
	err := ra.Start()
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.EqualError(t, err, "already started")
}

func TestRouter_ConnectRequiresStart(t *testing.T) {
	ra, rb := startRouter(t, A), startRouter(t, B)
	_, err := ra.Connect(rb.Self(), 1)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.EqualError(t, err, "must start first")
	_, err = ra.Neighbours()
	assert.ErrorIs(t, err, ErrNoNeighbours, "a failed connect does not attach")
}

func TestRouter_Connect(t *testing.T) {
	ra, rb := startRouter(t, A), startRouter(t, B)
	require.NoError(t, ra.Start())

	port, err := ra.Connect(rb.Self(), 4)
	require.NoError(t, err)
	assert.Equal(t, 0, port)
	assert.True(t, ra.hasNeighbour(B), "connect returns once the link is TWO_WAY")
	require.Eventually(t, func() bool {
		return rb.hasNeighbour(A)
	}, waitFor, tick)

	require.Eventually(t, func() bool {
		path, err := rb.Detect(A)
		return err == nil && path.Cost() == 4
	}, waitFor, tick)

	ports, err := ra.Ports()
	require.NoError(t, err)
	assert.Contains(t, ports, "0: 10.0.0.2 (127.0.0.1:")
	assert.Contains(t, ports, "weight 4 TWO_WAY")
	assert.Contains(t, ports, "1: -")

	_, err = ra.Connect(rb.Self(), 4)
	assert.ErrorIs(t, err, ErrLinkExists)
}

func TestRouter_ConnectFailureRollsBack(t *testing.T) {
	ra := startRouter(t, A)
	require.NoError(t, ra.Start())

	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	dead := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	_, err = ra.Connect(state.RouterDesc{Addr: B, ProcessAddr: dead.IP.String(), ProcessPort: uint16(dead.Port)}, 1)
	assert.Error(t, err)
	_, err = ra.Neighbours()
	assert.ErrorIs(t, err, ErrNoNeighbours, "the link created by connect is removed again")
}

func TestRouter_FailedHelloFreesResponderPort(t *testing.T) {
	rb, rc := startRouter(t, B), startRouter(t, C)

	// each initiator names the wrong simulated address, so B never gets a confirmation
	for i := range state.MaxPorts {
		r := startRouter(t, simAddr(10+i))
		require.NoError(t, r.Start())
		wrong := rb.Self()
		wrong.Addr = simAddr(100 + i)
		_, err := r.Connect(wrong, 1)
		require.ErrorIs(t, err, ErrUnexpectedReply)
	}
	require.Eventually(t, func() bool {
		_, err := rb.Neighbours()
		return errors.Is(err, ErrNoNeighbours)
	}, waitFor, tick, "B dropped every link whose handshake failed")

	require.NoError(t, rc.Start())
	_, err := rc.Connect(rb.Self(), 1)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return rb.hasNeighbour(C)
	}, waitFor, tick)
}

func TestRouter_HandshakeDedup(t *testing.T) {
	ra, rb := startRouter(t, A), startRouter(t, B)
	ra.pending.Set(B, struct{}{}, state.HandshakeDedupTTL)
	err := ra.handshake(ra.env.Context, rb.Self(), 1)
	assert.ErrorIs(t, err, ErrHandshakePending)
	assert.False(t, ra.hasNeighbour(B))
}

func TestRouter_Disconnect(t *testing.T) {
	ra, rb, rc := startRouter(t, A), startRouter(t, B), startRouter(t, C)
	require.NoError(t, ra.Start())
	_, err := ra.Connect(rb.Self(), 1)
	require.NoError(t, err)
	_, err = ra.Connect(rc.Self(), 1)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, err := rc.Detect(B)
		return err == nil
	}, waitFor, tick)

	assert.ErrorIs(t, ra.Disconnect(3), ErrInvalidPort)
	assert.ErrorIs(t, ra.Disconnect(-1), ErrInvalidPort)

	require.NoError(t, ra.Disconnect(0))
	neighs, err := ra.Neighbours()
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{C}, neighs)

	lsd, err := ra.Lsd()
	require.NoError(t, err)
	for _, line := range strings.Split(lsd, "\n") {
		if strings.HasPrefix(line, "10.0.0.1(") {
			assert.NotContains(t, line, "10.0.0.2,", "the self LSA no longer links to B")
			assert.Contains(t, line, "10.0.0.3,")
		}
	}

	// B acknowledged the teardown, so it has already dropped the link
	_, err = rb.Neighbours()
	assert.ErrorIs(t, err, ErrNoNeighbours)

	// C eventually sees A's new LSA and can no longer reach B
	require.Eventually(t, func() bool {
		_, err := rc.Detect(B)
		return errors.Is(err, ErrNotFound)
	}, waitFor, tick)
}

func TestRouter_DisconnectUnreachable(t *testing.T) {
	ra, rb := startRouter(t, A), startRouter(t, B)
	require.NoError(t, ra.Start())
	_, err := ra.Connect(rb.Self(), 1)
	require.NoError(t, err)

	rb.stop()
	assert.NoError(t, ra.Disconnect(0), "a missing teardown acknowledgement is not an error")
	_, err = ra.Neighbours()
	assert.ErrorIs(t, err, ErrNoNeighbours)
}

func TestRouter_Quit(t *testing.T) {
	ra, rb := startRouter(t, A), startRouter(t, B)
	require.NoError(t, ra.Start())
	_, err := ra.Connect(rb.Self(), 1)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return rb.hasNeighbour(A)
	}, waitFor, tick)

	require.NoError(t, ra.Quit())
	select {
	case <-ra.done:
	case <-time.After(waitFor):
		t.Fatal("router did not stop after quit")
	}
	require.Eventually(t, func() bool {
		_, err := rb.Neighbours()
		return errors.Is(err, ErrNoNeighbours)
	}, waitFor, tick)
}

func TestRouter_SurvivesGarbage(t *testing.T) {
	ra, rb := startRouter(t, A), startRouter(t, B)

	for _, junk := range [][]byte{
		{0, 0, 0, 0},
		{0xff, 0xff, 0xff, 0xff},
		{0, 0, 0, 3, 0xff, 0xff, 0xff},
		[]byte("GET / HTTP/1.1\r\n\r\n"),
	} {
		conn, err := net.Dial("tcp", ra.Self().Endpoint())
		require.NoError(t, err)
		_, err = conn.Write(junk)
		require.NoError(t, err)
		require.NoError(t, conn.Close())
	}

	require.NoError(t, ra.Start())
	_, err := ra.Connect(rb.Self(), 1)
	assert.NoError(t, err)
}

func TestRouter_Trace(t *testing.T) {
	ra, rb := startRouter(t, A), startRouter(t, B)
	events := make(chan any, 1024)
	unsubscribe := ra.Subscribe(events)
	defer unsubscribe()

	require.NoError(t, ra.Start())
	_, err := ra.Connect(rb.Self(), 1)
	require.NoError(t, err)

	timeout := time.After(waitFor)
	for {
		select {
		case ev := <-events:
			te := ev.(TraceEvent)
			assert.Equal(t, A, te.Router)
			if te.Event == NeighbourTwoWay {
				return
			}
		case <-timeout:
			t.Fatal("no NeighbourTwoWay event")
		}
	}
}

func TestNew_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	_, err = New(state.LocalCfg{
		Addr:        A,
		Port:        uint16(port),
		Bind:        "127.0.0.1",
		ProcessAddr: "127.0.0.1",
	}, slog.LevelDebug, io.Discard)
	assert.Error(t, err)
}
