package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/encodeous/sospf/perf"
	"github.com/encodeous/sospf/protocol"
	"github.com/encodeous/sospf/state"
	"github.com/google/uuid"
)

var ErrUnexpectedReply = errors.New("unexpected reply")

// Transport owns the listener and every connection of the router. Each connection carries one exchange.
type Transport struct {
	env      *state.Env
	self     state.RouterDesc
	listener net.Listener
	wg       sync.WaitGroup
}

func (t *Transport) Init(s *state.State) error {
	t.env = s.Env
	bind := net.JoinHostPort(s.Bind, strconv.Itoa(int(s.Port)))
	lc := net.ListenConfig{}
	ln, err := lc.Listen(s.Context, "tcp", bind)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", bind, err)
	}
	t.listener = ln
	t.self = state.RouterDesc{
		Addr:        s.Addr,
		ProcessAddr: s.ProcessAddr,
		ProcessPort: uint16(ln.Addr().(*net.TCPAddr).Port),
	}
	s.Log.Info("listening", "bind", ln.Addr().String(), "self", t.self)

	t.wg.Add(1)
	go t.acceptLoop()
	return nil
}

func (t *Transport) Cleanup(s *state.State) error {
	err := t.listener.Close()
	t.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Self describes this router as its neighbours see it
func (t *Transport) Self() state.RouterDesc {
	return t.self
}

func (t *Transport) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || t.env.Context.Err() != nil {
				return
			}
			t.env.Log.Warn("accept failed", "err", err)
			continue
		}
		t.wg.Add(1)
		go t.handle(conn)
	}
}

func (t *Transport) handle(conn net.Conn) {
	defer t.wg.Done()
	defer conn.Close()
	stop := context.AfterFunc(t.env.Context, func() {
		_ = conn.Close()
	})
	defer stop()

	log := t.env.Log.With("conn", uuid.NewString(), "remote", conn.RemoteAddr().String())
	_ = conn.SetDeadline(time.Now().Add(state.ReadTimeout))

	msg := protocol.Message{}
	if err := protocol.ReadMsg(conn, &msg); err != nil {
		log.Debug("failed to read message", "err", err)
		return
	}
	perf.RecvMessages.Add(1)
	from, err := senderDesc(&msg, conn.RemoteAddr())
	if err != nil {
		log.Debug("invalid sender", "kind", msg.Kind, "err", err)
		return
	}

	switch msg.Kind {
	case protocol.Hello:
		err = t.handleHello(conn, from, &msg)
	case protocol.LinkStateUpdate:
		err = t.handleLinkStateUpdate(from, &msg)
	case protocol.Teardown:
		err = t.handleTeardown(conn, from)
	}
	if err != nil {
		log.Debug("exchange failed", "kind", msg.Kind, "from", from.Addr, "err", err)
	}
}

func (t *Transport) handleHello(conn net.Conn, from state.RouterDesc, hello *protocol.Message) (err error) {
	var created bool
	res, err := t.env.DispatchWait(func(s *state.State) (any, error) {
		link, c, err := HelloReceived(s.RouterState, Get[*SospfRouter](s), from, hello.SrcWeight)
		if err != nil {
			return nil, err
		}
		created = c
		return link.Weight, nil
	})
	if err != nil {
		return fmt.Errorf("refused HELLO: %w", err)
	}
	if created {
		defer func() {
			if err != nil {
				t.abandonHello(from)
			}
		}()
	}
	if err := t.write(conn, t.message(protocol.Hello, from, res.(uint32))); err != nil {
		return fmt.Errorf("failed to reply HELLO: %w", err)
	}

	confirm := protocol.Message{}
	if err := protocol.ReadMsg(conn, &confirm); err != nil {
		return fmt.Errorf("no HELLO confirmation: %w", err)
	}
	perf.RecvMessages.Add(1)
	if confirm.Kind != protocol.Hello || confirm.SrcAddr != hello.SrcAddr {
		return fmt.Errorf("%w: %s from %s", ErrUnexpectedReply, confirm.Kind, confirm.SrcAddr)
	}
	_, err = t.env.DispatchWait(func(s *state.State) (any, error) {
		HandshakeComplete(s.RouterState, Get[*SospfRouter](s), from.Addr)
		return nil, nil
	})
	return err
}

// abandonHello frees the port a failed exchange took on our side
func (t *Transport) abandonHello(from state.RouterDesc) {
	_, _ = t.env.DispatchWait(func(s *state.State) (any, error) {
		return AbandonHello(s.RouterState, Get[*SospfRouter](s), from.Addr), nil
	})
}

func (t *Transport) handleLinkStateUpdate(from state.RouterDesc, msg *protocol.Message) error {
	lsas := make([]state.LSA, 0, len(msg.Lsas))
	for _, w := range msg.Lsas {
		lsa, err := lsaFromWire(w)
		if err != nil {
			return err
		}
		lsas = append(lsas, lsa)
	}
	t.env.Dispatch(func(s *state.State) error {
		HandleLinkStateUpdate(s.RouterState, Get[*SospfRouter](s), from.Addr, lsas)
		return nil
	})
	return nil
}

func (t *Transport) handleTeardown(conn net.Conn, from state.RouterDesc) error {
	_, err := t.env.DispatchWait(func(s *state.State) (any, error) {
		HandleTeardown(s.RouterState, Get[*SospfRouter](s), from.Addr)
		return nil, nil
	})
	if err != nil {
		return err
	}
	return t.write(conn, t.message(protocol.Teardown, from, 0))
}

func (t *Transport) message(kind protocol.Kind, to state.RouterDesc, weight uint32) *protocol.Message {
	return &protocol.Message{
		Kind:           kind,
		SrcProcessAddr: t.self.ProcessAddr,
		SrcProcessPort: t.self.ProcessPort,
		SrcWeight:      weight,
		SrcAddr:        t.self.Addr.String(),
		NeighbourId:    t.self.Addr.String(),
		DstAddr:        to.Addr.String(),
	}
}

func (t *Transport) write(conn net.Conn, msg *protocol.Message) error {
	if err := protocol.WriteMsg(conn, msg); err != nil {
		return err
	}
	perf.SentMessages.Add(1)
	return nil
}

func (t *Transport) dial(ctx context.Context, to state.RouterDesc) (net.Conn, error) {
	d := net.Dialer{Timeout: state.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", to.Endpoint())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", to, err)
	}
	return conn, nil
}

// Handshake runs the initiator side of the HELLO exchange with to. It blocks until the link is TWO_WAY or the exchange fails.
func (t *Transport) Handshake(ctx context.Context, to state.RouterDesc, weight uint32) error {
	conn, err := t.dial(ctx, to)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()
	_ = conn.SetDeadline(time.Now().Add(state.HandshakeTimeout))

	hello := t.message(protocol.Hello, to, weight)
	if err := t.write(conn, hello); err != nil {
		return fmt.Errorf("failed to send HELLO to %s: %w", to, err)
	}
	_, err = t.env.DispatchWait(func(s *state.State) (any, error) {
		return nil, HelloSent(s.RouterState, Get[*SospfRouter](s), to, weight)
	})
	if err != nil {
		return err
	}

	reply := protocol.Message{}
	if err := protocol.ReadMsg(conn, &reply); err != nil {
		return fmt.Errorf("no HELLO reply from %s: %w", to, err)
	}
	perf.RecvMessages.Add(1)
	if reply.Kind != protocol.Hello || reply.SrcAddr != to.Addr.String() {
		return fmt.Errorf("%w: %s from %s, expected HELLO from %s", ErrUnexpectedReply, reply.Kind, reply.SrcAddr, to.Addr)
	}
	if err := t.write(conn, hello); err != nil {
		return fmt.Errorf("failed to confirm HELLO to %s: %w", to, err)
	}
	_, err = t.env.DispatchWait(func(s *state.State) (any, error) {
		HandshakeComplete(s.RouterState, Get[*SospfRouter](s), to.Addr)
		return nil, nil
	})
	return err
}

// Teardown tells to that we dropped our link to it. If awaitAck is set, it waits up to TeardownTimeout for the acknowledgement.
func (t *Transport) Teardown(ctx context.Context, to state.RouterDesc, awaitAck bool) error {
	conn, err := t.dial(ctx, to)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()
	_ = conn.SetDeadline(time.Now().Add(state.TeardownTimeout))

	if err := t.write(conn, t.message(protocol.Teardown, to, 0)); err != nil {
		return fmt.Errorf("failed to send TEARDOWN to %s: %w", to, err)
	}
	if !awaitAck {
		return nil
	}
	ack := protocol.Message{}
	if err := protocol.ReadMsg(conn, &ack); err != nil {
		return fmt.Errorf("no TEARDOWN acknowledgement from %s: %w", to, err)
	}
	perf.RecvMessages.Add(1)
	if ack.Kind != protocol.Teardown {
		return fmt.Errorf("%w: %s from %s", ErrUnexpectedReply, ack.Kind, ack.SrcAddr)
	}
	return nil
}

func (t *Transport) send(ctx context.Context, to state.RouterDesc, msg *protocol.Message) error {
	conn, err := t.dial(ctx, to)
	if err != nil {
		return err
	}
	defer conn.Close()
	_ = conn.SetWriteDeadline(time.Now().Add(state.DialTimeout))
	return t.write(conn, msg)
}

// SendAsync delivers msg to on its own connection in the background, retrying a bounded number of times.
// It must only be called from the dispatch goroutine.
func (t *Transport) SendAsync(to state.RouterDesc, msg *protocol.Message) {
	ctx := t.env.Context
	if ctx.Err() != nil {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		b := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(state.SendRetryDelay), state.SendRetries), ctx)
		err := backoff.Retry(func() error {
			return t.send(ctx, to, msg)
		}, b)
		if err != nil {
			perf.FailedSends.Add(1)
			t.env.Log.LogAttrs(ctx, slog.LevelDebug, "send failed",
				slog.String("kind", msg.Kind.String()),
				slog.String("to", to.String()),
				slog.Any("err", err))
		}
	}()
}

// SendLinkStateUpdate sends one LINK_STATE_UPDATE carrying lsas
func (t *Transport) SendLinkStateUpdate(to state.RouterDesc, lsas []state.LSA) {
	msg := t.message(protocol.LinkStateUpdate, to, 0)
	msg.Lsas = lsasToWire(lsas)
	t.SendAsync(to, msg)
}
