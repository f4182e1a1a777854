package state

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
)

// LinkDescription is a directed edge as advertised inside an LSA
type LinkDescription struct {
	LinkId  netip.Addr
	PortNum int32
	Weight  uint32
}

func (ld LinkDescription) String() string {
	return fmt.Sprintf("%s,%d,%d", ld.LinkId, ld.PortNum, ld.Weight)
}

// LSA is one router's view of its own TWO_WAY links at the time it was generated
type LSA struct {
	Origin netip.Addr
	Seqno  int32
	Links  []LinkDescription
}

func (l LSA) Clone() LSA {
	l.Links = slices.Clone(l.Links)
	return l
}

func (l LSA) HasLink(id netip.Addr) bool {
	return slices.ContainsFunc(l.Links, func(ld LinkDescription) bool {
		return ld.LinkId == id
	})
}

func (l LSA) String() string {
	links := make([]string, 0, len(l.Links))
	for _, ld := range l.Links {
		links = append(links, ld.String())
	}
	return fmt.Sprintf("%s(%d): [%s]", l.Origin, l.Seqno, strings.Join(links, " "))
}
