package protocol

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// field numbers of Message
const (
	fieldKind           protowire.Number = 1
	fieldSrcProcessAddr protowire.Number = 2
	fieldSrcProcessPort protowire.Number = 3
	fieldSrcWeight      protowire.Number = 4
	fieldSrcAddr        protowire.Number = 5
	fieldNeighbourId    protowire.Number = 6
	fieldDstAddr        protowire.Number = 7
	fieldLsa            protowire.Number = 8
)

// field numbers of Lsa
const (
	fieldLsaOrigin protowire.Number = 1
	fieldLsaSeqno  protowire.Number = 2
	fieldLsaLink   protowire.Number = 3
)

// field numbers of LinkDesc
const (
	fieldLinkId      protowire.Number = 1
	fieldLinkPortNum protowire.Number = 2
	fieldLinkWeight  protowire.Number = 3
)

var ErrUnknownKind = errors.New("unknown message kind")

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSint32(b []byte, num protowire.Number, v int32) []byte {
	return appendVarint(b, num, protowire.EncodeZigZag(int64(v)))
}

func appendMessage(b []byte, num protowire.Number, inner []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

func (ld LinkDesc) marshal(b []byte) []byte {
	b = appendString(b, fieldLinkId, ld.LinkId)
	b = appendSint32(b, fieldLinkPortNum, ld.PortNum)
	b = appendVarint(b, fieldLinkWeight, uint64(ld.Weight))
	return b
}

func (l Lsa) marshal(b []byte) []byte {
	b = appendString(b, fieldLsaOrigin, l.Origin)
	b = appendSint32(b, fieldLsaSeqno, l.Seqno)
	for _, ld := range l.Links {
		b = appendMessage(b, fieldLsaLink, ld.marshal(nil))
	}
	return b
}

// Marshal encodes m in the protobuf wire format
func Marshal(m *Message) ([]byte, error) {
	if m.Kind > Teardown {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, m.Kind)
	}
	b := make([]byte, 0, 64)
	// kind is always written so an empty HELLO still has a non-empty encoding
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Kind))
	b = appendString(b, fieldSrcProcessAddr, m.SrcProcessAddr)
	b = appendVarint(b, fieldSrcProcessPort, uint64(m.SrcProcessPort))
	b = appendVarint(b, fieldSrcWeight, uint64(m.SrcWeight))
	b = appendString(b, fieldSrcAddr, m.SrcAddr)
	b = appendString(b, fieldNeighbourId, m.NeighbourId)
	b = appendString(b, fieldDstAddr, m.DstAddr)
	for _, lsa := range m.Lsas {
		b = appendMessage(b, fieldLsa, lsa.marshal(nil))
	}
	return b, nil
}

// fieldFunc consumes the value of one field, returning the number of bytes read, or a negative protowire error code
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) int

func consumeFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n = fn(num, typ, b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

var errWireType = errors.New("unexpected wire type")

func consumeVarint(num protowire.Number, typ protowire.Type, b []byte, out func(uint64)) int {
	if typ != protowire.VarintType {
		return protowire.ConsumeFieldValue(num, typ, b)
	}
	v, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		out(v)
	}
	return n
}

func consumeString(num protowire.Number, typ protowire.Type, b []byte, out *string) int {
	if typ != protowire.BytesType {
		return protowire.ConsumeFieldValue(num, typ, b)
	}
	v, n := protowire.ConsumeString(b)
	if n >= 0 {
		*out = v
	}
	return n
}

func consumeMessage(typ protowire.Type, b []byte, out func([]byte) error) (int, error) {
	if typ != protowire.BytesType {
		return 0, errWireType
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}
	return n, out(v)
}

func boundedUint32(v uint64) uint32 {
	return uint32(min(v, math.MaxUint32))
}

func unmarshalLinkDesc(b []byte) (LinkDesc, error) {
	var ld LinkDesc
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case fieldLinkId:
			return consumeString(num, typ, b, &ld.LinkId)
		case fieldLinkPortNum:
			return consumeVarint(num, typ, b, func(v uint64) { ld.PortNum = int32(protowire.DecodeZigZag(v)) })
		case fieldLinkWeight:
			return consumeVarint(num, typ, b, func(v uint64) { ld.Weight = boundedUint32(v) })
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return ld, err
}

func unmarshalLsa(b []byte) (Lsa, error) {
	var lsa Lsa
	var inner error
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case fieldLsaOrigin:
			return consumeString(num, typ, b, &lsa.Origin)
		case fieldLsaSeqno:
			return consumeVarint(num, typ, b, func(v uint64) { lsa.Seqno = int32(protowire.DecodeZigZag(v)) })
		case fieldLsaLink:
			n, err := consumeMessage(typ, b, func(v []byte) error {
				ld, err := unmarshalLinkDesc(v)
				lsa.Links = append(lsa.Links, ld)
				return err
			})
			if err != nil {
				inner = err
				return len(b)
			}
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	if err == nil {
		err = inner
	}
	return lsa, err
}

// Unmarshal decodes a message produced by Marshal. Unknown fields are skipped.
func Unmarshal(b []byte, m *Message) error {
	*m = Message{}
	var inner error
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case fieldKind:
			return consumeVarint(num, typ, b, func(v uint64) { m.Kind = Kind(min(v, math.MaxUint8)) })
		case fieldSrcProcessAddr:
			return consumeString(num, typ, b, &m.SrcProcessAddr)
		case fieldSrcProcessPort:
			return consumeVarint(num, typ, b, func(v uint64) { m.SrcProcessPort = uint16(min(v, math.MaxUint16)) })
		case fieldSrcWeight:
			return consumeVarint(num, typ, b, func(v uint64) { m.SrcWeight = boundedUint32(v) })
		case fieldSrcAddr:
			return consumeString(num, typ, b, &m.SrcAddr)
		case fieldNeighbourId:
			return consumeString(num, typ, b, &m.NeighbourId)
		case fieldDstAddr:
			return consumeString(num, typ, b, &m.DstAddr)
		case fieldLsa:
			n, err := consumeMessage(typ, b, func(v []byte) error {
				lsa, err := unmarshalLsa(v)
				m.Lsas = append(m.Lsas, lsa)
				return err
			})
			if err != nil {
				inner = err
				return len(b)
			}
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	if err == nil {
		err = inner
	}
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if m.Kind > Teardown {
		return fmt.Errorf("%w: %d", ErrUnknownKind, m.Kind)
	}
	return nil
}
