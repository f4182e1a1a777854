//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/encodeous/sospf/core"
	"github.com/encodeous/sospf/state"
)

type Signal chan bool

func NewSignal() Signal {
	return make(chan bool)
}
func (s Signal) Trigger() {
	select {
	case <-s:
	default:
		close(s)
	}
}
func (s Signal) Triggered() bool {
	select {
	case <-s:
		return true
	default:
		return false
	}
}
func (s Signal) Wait() {
	<-s
}

// Node is one router of a LoopbackHarness
type Node struct {
	*core.SospfRouter
	State *state.State
	Done  Signal
}

// LoopbackHarness runs several routers in this process, talking to each other over 127.0.0.1
type LoopbackHarness struct {
	Nodes   map[netip.Addr]*Node
	Verbose bool
	wg      sync.WaitGroup
}

func (h *LoopbackHarness) NewNode(addr string) (*Node, error) {
	if h.Nodes == nil {
		h.Nodes = make(map[netip.Addr]*Node)
	}
	sim, err := state.AddrValidator(addr)
	if err != nil {
		return nil, err
	}
	var out io.Writer = io.Discard
	if h.Verbose {
		out = os.Stderr
	}
	s, err := core.New(state.LocalCfg{
		Addr:        sim,
		Port:        0,
		Bind:        "127.0.0.1",
		ProcessAddr: "127.0.0.1",
	}, slog.LevelDebug, out)
	if err != nil {
		return nil, err
	}
	node := &Node{
		SospfRouter: core.Get[*core.SospfRouter](s),
		State:       s,
		Done:        NewSignal(),
	}
	h.Nodes[sim] = node

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer node.Done.Trigger()
		labels := pprof.Labels("sospf router", sim.String())
		pprof.Do(context.Background(), labels, func(_ context.Context) {
			_ = core.MainLoop(s)
		})
	}()
	return node, nil
}

func (h *LoopbackHarness) N(addr string) *Node {
	return h.Nodes[netip.MustParseAddr(addr)]
}

// Stop stops every router and waits for them to finish cleaning up
func (h *LoopbackHarness) Stop() {
	for _, node := range h.Nodes {
		node.State.Cancel(errors.New("harness stopped"))
	}
	h.wg.Wait()
}

// Lsds returns the database dump of every running router
func (h *LoopbackHarness) Lsds() (map[netip.Addr]string, error) {
	out := make(map[netip.Addr]string)
	for addr, node := range h.Nodes {
		if node.Done.Triggered() {
			continue
		}
		lsd, err := node.Lsd()
		if err != nil {
			return nil, err
		}
		out[addr] = lsd
	}
	return out, nil
}

// Converged reports whether every running router holds the same database
func (h *LoopbackHarness) Converged() bool {
	lsds, err := h.Lsds()
	if err != nil {
		return false
	}
	ref := ""
	for _, lsd := range lsds {
		if ref == "" {
			ref = lsd
		} else if lsd != ref {
			return false
		}
	}
	return true
}

// WaitFor polls cond until it holds or timeout elapses
func WaitFor(timeout time.Duration, cond func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("condition not met after %s", timeout)
}
