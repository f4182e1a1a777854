package core

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/encodeous/sospf/perf"
	"github.com/encodeous/sospf/state"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

var ErrHandshakePending = errors.New("handshake already in progress")

// SospfRouter is the control plane of a router. Its exported methods are called by the operator and may be
// called from any goroutine, the Router interface methods are only called from the dispatch goroutine.
type SospfRouter struct {
	*state.State
	env     *state.Env
	io      *Transport
	trace   *SospfTrace
	pending *ttlcache.Cache[netip.Addr, struct{}]
	table   *ForwardTable
}

func (r *SospfRouter) Init(s *state.State) error {
	s.Log.Debug("init router")
	r.State = s
	r.env = s.Env
	r.io = Get[*Transport](s)
	r.trace = Get[*SospfTrace](s)
	r.pending = ttlcache.New[netip.Addr, struct{}](
		ttlcache.WithTTL[netip.Addr, struct{}](state.HandshakeDedupTTL),
		ttlcache.WithDisableTouchOnHit[netip.Addr, struct{}](),
	)
	s.RouterState = state.NewRouterState(r.io.Self())

	s.Log.Debug("schedule router tasks")
	s.Env.RepeatTask(sospfGc, state.GcDelay)
	return nil
}

func (r *SospfRouter) Cleanup(s *state.State) error {
	r.pending.DeleteAll()
	return nil
}

func sospfGc(s *state.State) error {
	r := Get[*SospfRouter](s)
	r.pending.DeleteExpired()
	s.Lsdb.PruneEvicted()
	for _, link := range s.Links() {
		if link.Local.Addr != s.Id.Addr {
			return fmt.Errorf("link %s is not owned by %s", link, s.Id.Addr)
		}
	}
	return nil
}

func (r *SospfRouter) SendLsaUpdate(to state.RouterDesc, lsas []state.LSA) {
	r.io.SendLinkStateUpdate(to, lsas)
}

func (r *SospfRouter) Log(event RouterEvent, desc string, args ...any) {
	switch event {
	case LsaAccepted:
		perf.LsaAccepted.Add(1)
	case LsaStale:
		perf.LsaStale.Add(1)
	}
	r.trace.Publish(TraceEvent{
		Router: r.Id.Addr,
		Event:  event,
		Desc:   desc,
		Args:   args,
	})
	msg := fmt.Sprintf("%s %s", event.String(), desc)
	switch {
	case event >= InconsistentState:
		r.env.Log.Warn(msg, args...)
	case event == NeighbourTwoWay || event == NeighbourRemoved:
		r.env.Log.Info(msg, args...)
	default:
		r.env.Log.Debug(msg, args...)
	}
}

func (r *SospfRouter) handshake(ctx context.Context, to state.RouterDesc, weight uint32) error {
	if _, found := r.pending.GetOrSet(to.Addr, struct{}{}); found {
		return fmt.Errorf("%w: %s", ErrHandshakePending, to.Addr)
	}
	defer r.pending.Delete(to.Addr)
	return r.io.Handshake(ctx, to, weight)
}

func dispatchValue[T any](e *state.Env, fun func(s *state.State) (T, error)) (T, error) {
	res, err := e.DispatchWait(func(s *state.State) (any, error) {
		return fun(s)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// Attach adds a link to the first free port without contacting the neighbour
func (r *SospfRouter) Attach(remote state.RouterDesc, weight int64) (int, error) {
	return dispatchValue(r.env, func(s *state.State) (int, error) {
		return AttachLink(s.RouterState, r, remote, weight)
	})
}

// Start runs the handshake on every attached link that is not TWO_WAY yet, at most once per router
func (r *SospfRouter) Start() error {
	links, err := dispatchValue(r.env, func(s *state.State) ([]state.Link, error) {
		if s.ProtocolStarted {
			return nil, ErrAlreadyStarted
		}
		s.ProtocolStarted = true
		out := make([]state.Link, 0)
		for _, l := range s.Links() {
			if l.Status != state.TwoWay {
				out = append(out, *l)
			}
		}
		return out, nil
	})
	if err != nil {
		return err
	}

	errs := make([]error, len(links))
	g, ctx := errgroup.WithContext(r.env.Context)
	for i, link := range links {
		g.Go(func() error {
			err := r.handshake(ctx, link.Remote, link.Weight)
			if err != nil && !errors.Is(err, ErrHandshakePending) {
				errs[i] = fmt.Errorf("handshake with %s: %w", link.Remote.Addr, err)
				r.env.Log.Warn("handshake failed", "neighbour", link.Remote, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return multierr.Combine(errs...)
}

// Connect attaches a link and runs the handshake on it. If the handshake fails, the link is removed again.
func (r *SospfRouter) Connect(remote state.RouterDesc, weight int64) (int, error) {
	port, err := dispatchValue(r.env, func(s *state.State) (int, error) {
		if !s.ProtocolStarted {
			return -1, ErrNotStarted
		}
		return AttachLink(s.RouterState, r, remote, weight)
	})
	if err != nil {
		return -1, err
	}

	err = r.handshake(r.env.Context, remote, uint32(weight))
	if err == nil {
		return port, nil
	}
	_, rerr := r.env.DispatchWait(func(s *state.State) (any, error) {
		idx, link := s.GetLink(remote.Addr)
		if link == nil {
			return nil, nil
		}
		if link.Status == state.TwoWay {
			// the neighbour completed a handshake of its own in the meantime
			err = nil
			return nil, nil
		}
		s.RemovePort(idx)
		return nil, nil
	})
	if err = multierr.Append(err, rerr); err != nil {
		return -1, err
	}
	return port, nil
}

// Disconnect removes the link at port, notifies the neighbour and floods the new self LSA to the remaining links
func (r *SospfRouter) Disconnect(port int) error {
	link, err := dispatchValue(r.env, func(s *state.State) (*state.Link, error) {
		link, _, err := DisconnectPort(s.RouterState, r, port)
		return link, err
	})
	if err != nil {
		return err
	}

	if err := r.io.Teardown(r.env.Context, link.Remote, true); err != nil {
		r.env.Log.Warn("neighbour did not acknowledge teardown", "neighbour", link.Remote, "err", err)
	}

	_, err = r.env.DispatchWait(func(s *state.State) (any, error) {
		FloodLsa(s.RouterState, r, s.Lsdb.Self())
		return nil, nil
	})
	return err
}

// Detect computes the shortest path from this router to dst
func (r *SospfRouter) Detect(dst netip.Addr) (Path, error) {
	return dispatchValue(r.env, func(s *state.State) (Path, error) {
		return ShortestPath(s.Lsdb.Snapshot(), s.Id.Addr, dst)
	})
}

// Neighbours lists the simulated addresses of all TWO_WAY neighbours
func (r *SospfRouter) Neighbours() ([]netip.Addr, error) {
	return dispatchValue(r.env, func(s *state.State) ([]netip.Addr, error) {
		return Neighbours(s.RouterState)
	})
}

// Quit notifies every TWO_WAY neighbour without waiting for acknowledgements, then stops the router
func (r *SospfRouter) Quit() error {
	links, err := dispatchValue(r.env, func(s *state.State) ([]state.RouterDesc, error) {
		out := make([]state.RouterDesc, 0)
		for _, l := range s.TwoWayLinks() {
			out = append(out, l.Remote)
		}
		return out, nil
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(r.env.Context, state.DialTimeout)
	defer cancel()
	g := errgroup.Group{}
	for _, remote := range links {
		g.Go(func() error {
			return r.io.Teardown(ctx, remote, false)
		})
	}
	if err := g.Wait(); err != nil {
		r.env.Log.Debug("failed to notify neighbour on quit", "err", err)
	}
	r.env.Cancel(errors.New("quit"))
	return nil
}

// Lsd dumps the link-state database
func (r *SospfRouter) Lsd() (string, error) {
	return dispatchValue(r.env, func(s *state.State) (string, error) {
		return s.Lsdb.String(), nil
	})
}

// Routes renders the forward table, rebuilding it if the database changed since it was last built
func (r *SospfRouter) Routes() (string, error) {
	return dispatchValue(r.env, func(s *state.State) (string, error) {
		return r.forwardTable(s).String(), nil
	})
}

// Lookup finds the forward table entry for dst
func (r *SospfRouter) Lookup(dst netip.Addr) (RouteTableEntry, error) {
	return dispatchValue(r.env, func(s *state.State) (RouteTableEntry, error) {
		entry, ok := r.forwardTable(s).Lookup(dst)
		if !ok {
			return RouteTableEntry{}, fmt.Errorf("%w: %s", ErrNotFound, dst)
		}
		return entry, nil
	})
}

func (r *SospfRouter) forwardTable(s *state.State) *ForwardTable {
	if r.table == nil || r.table.version != s.Lsdb.Version() {
		r.table = BuildForwardTable(s.RouterState)
	}
	return r.table
}

// Ports renders the port table
func (r *SospfRouter) Ports() (string, error) {
	return dispatchValue(r.env, func(s *state.State) (string, error) {
		sb := strings.Builder{}
		for i, l := range s.Ports {
			if l == nil {
				sb.WriteString(fmt.Sprintf("%d: -\n", i))
				continue
			}
			sb.WriteString(fmt.Sprintf("%d: %s\n", i, l))
		}
		return sb.String(), nil
	})
}

// Self describes this router
func (r *SospfRouter) Self() state.RouterDesc {
	return r.io.Self()
}

// Subscribe registers ch for the trace events of this router
func (r *SospfRouter) Subscribe(ch chan any) func() {
	return r.trace.Subscribe(ch)
}
