package protocol

import (
	"fmt"
)

type Kind uint8

const (
	Hello           Kind = 0
	LinkStateUpdate Kind = 1
	Teardown        Kind = 2
)

func (k Kind) String() string {
	switch k {
	case Hello:
		return "HELLO"
	case LinkStateUpdate:
		return "LINK_STATE_UPDATE"
	case Teardown:
		return "TEARDOWN"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

const MaxPacketSize = 64 * 1024

// Message is the one message sent on every connection. Simulated addresses are carried as strings.
type Message struct {
	Kind           Kind
	SrcProcessAddr string
	SrcProcessPort uint16
	SrcWeight      uint32 // only set on HELLO
	SrcAddr        string
	NeighbourId    string
	DstAddr        string
	Lsas           []Lsa // only set on LINK_STATE_UPDATE
}

type Lsa struct {
	Origin string
	Seqno  int32
	Links  []LinkDesc
}

type LinkDesc struct {
	LinkId  string
	PortNum int32
	Weight  uint32
}
