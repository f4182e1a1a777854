package core

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"github.com/encodeous/sospf/perf"
	"github.com/encodeous/sospf/state"
	"github.com/google/btree"
)

var ErrNotFound = errors.New("NOT_FOUND")

type Hop struct {
	Addr   netip.Addr
	Weight uint32 // weight of the edge used to reach this hop
	Cost   uint64 // cumulative cost from the source
}

type Path []Hop

func (p Path) Cost() uint64 {
	if len(p) == 0 {
		return 0
	}
	return p[len(p)-1].Cost
}

// String renders the path as "a ->(w1) b ->(w2) c"
func (p Path) String() string {
	sb := strings.Builder{}
	for i, hop := range p {
		if i != 0 {
			sb.WriteString(fmt.Sprintf(" ->(%d) ", hop.Weight))
		}
		sb.WriteString(hop.Addr.String())
	}
	return sb.String()
}

type frontierItem struct {
	dist uint64
	addr netip.Addr
}

// frontier items are ordered by distance, then address, so ties resolve the same way on every run
func frontierLess(a, b frontierItem) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.addr.Less(b.addr)
}

type spfResult struct {
	dist    map[netip.Addr]uint64
	prev    map[netip.Addr]netip.Addr
	via     map[netip.Addr]uint32
	settled map[netip.Addr]bool
	order   []netip.Addr // nodes in the order they were settled
}

func dijkstra(topo state.Topology, src netip.Addr) spfResult {
	perf.SpfRuns.Add(1)
	res := spfResult{
		dist:    make(map[netip.Addr]uint64),
		prev:    make(map[netip.Addr]netip.Addr),
		via:     make(map[netip.Addr]uint32),
		settled: make(map[netip.Addr]bool),
	}
	if !topo.HasNode(src) {
		return res
	}
	frontier := btree.NewG[frontierItem](2, frontierLess)
	res.dist[src] = 0
	frontier.ReplaceOrInsert(frontierItem{0, src})

	for frontier.Len() > 0 {
		cur, _ := frontier.DeleteMin()
		res.settled[cur.addr] = true
		res.order = append(res.order, cur.addr)

		for _, edge := range topo.Edges[cur.addr] {
			if res.settled[edge.LinkId] {
				continue
			}
			nd := cur.dist + uint64(edge.Weight)
			old, seen := res.dist[edge.LinkId]
			if seen && nd >= old {
				continue
			}
			if seen {
				frontier.Delete(frontierItem{old, edge.LinkId})
			}
			res.dist[edge.LinkId] = nd
			res.prev[edge.LinkId] = cur.addr
			res.via[edge.LinkId] = edge.Weight
			frontier.ReplaceOrInsert(frontierItem{nd, edge.LinkId})
		}
	}
	return res
}

// ShortestPath runs Dijkstra's algorithm from src and returns the path to dst, or ErrNotFound
func ShortestPath(topo state.Topology, src, dst netip.Addr) (Path, error) {
	res := dijkstra(topo, src)
	if !res.settled[dst] {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, dst)
	}
	path := make(Path, 0)
	for cur := dst; ; {
		path = append(path, Hop{
			Addr:   cur,
			Weight: res.via[cur],
			Cost:   res.dist[cur],
		})
		if cur == src {
			break
		}
		cur = res.prev[cur]
	}
	slices.Reverse(path)
	return path, nil
}

type TreeEntry struct {
	Dst      netip.Addr
	FirstHop netip.Addr
	Cost     uint64
}

// ShortestPathTree returns the cost and first hop of every node reachable from src, ordered by settle order
func ShortestPathTree(topo state.Topology, src netip.Addr) []TreeEntry {
	res := dijkstra(topo, src)
	out := make([]TreeEntry, 0, len(res.order))
	firstHop := make(map[netip.Addr]netip.Addr)
	for _, node := range res.order {
		nh := node
		if node != src {
			if p := res.prev[node]; p != src {
				nh = firstHop[p]
			}
		}
		firstHop[node] = nh
		out = append(out, TreeEntry{
			Dst:      node,
			FirstHop: nh,
			Cost:     res.dist[node],
		})
	}
	return out
}
