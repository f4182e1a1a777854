package core

import (
	"net/netip"
	"sync/atomic"

	"github.com/dustin/go-broadcast"
	"github.com/encodeous/sospf/state"
)

// TraceEvent is published for every protocol event of a router
type TraceEvent struct {
	Router netip.Addr
	Event  RouterEvent
	Desc   string
	Args   []any
}

// SospfTrace fans protocol events out to any number of subscribers. Slow subscribers miss events rather than stall the router.
type SospfTrace struct {
	broadcast.Broadcaster
	closed atomic.Bool
}

func (n *SospfTrace) Init(s *state.State) error {
	n.Broadcaster = broadcast.NewBroadcaster(1024)
	return nil
}

func (n *SospfTrace) Cleanup(s *state.State) error {
	n.closed.Store(true)
	return n.Broadcaster.Close()
}

func (n *SospfTrace) Publish(ev TraceEvent) {
	n.Broadcaster.TrySubmit(ev)
}

// Subscribe registers ch for trace events, the returned function unregisters it
func (n *SospfTrace) Subscribe(ch chan any) func() {
	n.Broadcaster.Register(ch)
	return func() {
		// the broadcaster no longer reads registrations once closed
		if !n.closed.Load() {
			n.Broadcaster.Unregister(ch)
		}
	}
}
