package state

import (
	"net/netip"
	"slices"
	"strings"

	"github.com/jellydator/ttlcache/v3"
)

// LinkStateDatabase holds the latest accepted LSA for every originator.
// It is not safe for concurrent use, it lives in State and is only touched from the dispatch goroutine.
type LinkStateDatabase struct {
	self    RouterDesc
	store   map[netip.Addr]LSA
	version uint64
	// sequence numbers of recently removed entries, copies at or below them are still in flight
	evicted *ttlcache.Cache[netip.Addr, int32]
}

func NewLinkStateDatabase(self RouterDesc) *LinkStateDatabase {
	db := &LinkStateDatabase{
		self:  self,
		store: make(map[netip.Addr]LSA),
		evicted: ttlcache.New[netip.Addr, int32](
			ttlcache.WithTTL[netip.Addr, int32](EvictionTTL),
			ttlcache.WithDisableTouchOnHit[netip.Addr, int32](),
		),
	}
	db.Self()
	return db
}

func bootstrapLSA(self RouterDesc) LSA {
	return LSA{
		Origin: self.Addr,
		Seqno:  InitialSeqno,
		Links: []LinkDescription{{
			LinkId:  self.Addr,
			PortNum: SentinelPort,
			Weight:  0,
		}},
	}
}

// Accept stores lsa if there is no entry for its originator, or the stored entry has a strictly smaller sequence number.
// After Remove, copies that are not newer than the removed entry are rejected until EvictionTTL passes.
func (db *LinkStateDatabase) Accept(lsa LSA) bool {
	cur, ok := db.store[lsa.Origin]
	if ok && cur.Seqno >= lsa.Seqno {
		return false
	}
	if !ok {
		if item := db.evicted.Get(lsa.Origin); item != nil {
			if lsa.Seqno <= item.Value() {
				return false
			}
			db.evicted.Delete(lsa.Origin)
		}
	}
	db.store[lsa.Origin] = lsa.Clone()
	db.version++
	return true
}

func (db *LinkStateDatabase) Self() LSA {
	lsa, ok := db.store[db.self.Addr]
	if !ok {
		lsa = bootstrapLSA(db.self)
		db.store[db.self.Addr] = lsa
		db.version++
	}
	return lsa.Clone()
}

// RegenerateSelf rebuilds the self LSA from the TWO_WAY links and increments its sequence number.
func (db *LinkStateDatabase) RegenerateSelf(links []*Link) LSA {
	return db.BumpSelf(db.Self().Seqno, links)
}

// BumpSelf regenerates the self LSA with a sequence number one above after.
func (db *LinkStateDatabase) BumpSelf(after int32, links []*Link) LSA {
	lsa := LSA{
		Origin: db.self.Addr,
		Seqno:  after + 1,
		Links:  make([]LinkDescription, 0, len(links)),
	}
	for _, l := range links {
		if l == nil || l.Status != TwoWay {
			continue
		}
		lsa.Links = append(lsa.Links, l.Describe())
	}
	db.store[db.self.Addr] = lsa
	db.version++
	return lsa.Clone()
}

// Remove evicts the entry of origin and remembers its sequence number for EvictionTTL
func (db *LinkStateDatabase) Remove(origin netip.Addr) bool {
	if origin == db.self.Addr {
		return false
	}
	cur, ok := db.store[origin]
	if ok {
		delete(db.store, origin)
		db.evicted.Set(origin, cur.Seqno, ttlcache.DefaultTTL)
		db.version++
	}
	return ok
}

// Forget drops the eviction record of origin, so its next LSA is accepted whatever its sequence number
func (db *LinkStateDatabase) Forget(origin netip.Addr) {
	db.evicted.Delete(origin)
}

// PruneEvicted drops expired eviction records
func (db *LinkStateDatabase) PruneEvicted() {
	db.evicted.DeleteExpired()
}

func (db *LinkStateDatabase) Get(origin netip.Addr) (LSA, bool) {
	lsa, ok := db.store[origin]
	return lsa.Clone(), ok
}

// Version changes every time the database is modified
func (db *LinkStateDatabase) Version() uint64 {
	return db.version
}

func (db *LinkStateDatabase) Len() int {
	return len(db.store)
}

// Entries returns every stored LSA ordered by originator
func (db *LinkStateDatabase) Entries() []LSA {
	out := make([]LSA, 0, len(db.store))
	for _, lsa := range db.store {
		out = append(out, lsa.Clone())
	}
	slices.SortFunc(out, func(a, b LSA) int {
		return a.Origin.Compare(b.Origin)
	})
	return out
}

func (db *LinkStateDatabase) Snapshot() Topology {
	topo := Topology{
		Edges: make(map[netip.Addr][]LinkDescription, len(db.store)),
	}
	for origin := range db.store {
		topo.Nodes = append(topo.Nodes, origin)
	}
	slices.SortFunc(topo.Nodes, netip.Addr.Compare)
	for origin, lsa := range db.store {
		edges := make([]LinkDescription, 0, len(lsa.Links))
		for _, ld := range lsa.Links {
			if ld.PortNum == SentinelPort {
				continue
			}
			if _, ok := db.store[ld.LinkId]; !ok {
				continue
			}
			edges = append(edges, ld)
		}
		topo.Edges[origin] = edges
	}
	return topo
}

func (db *LinkStateDatabase) String() string {
	sb := strings.Builder{}
	for _, lsa := range db.Entries() {
		sb.WriteString(lsa.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
