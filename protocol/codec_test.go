package protocol

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestLinkStateUpdateRoundTrip(t *testing.T) {
	msg := &Message{
		Kind:           LinkStateUpdate,
		SrcProcessAddr: "127.0.0.1",
		SrcProcessPort: 50001,
		SrcAddr:        "192.168.1.1",
		NeighbourId:    "192.168.1.1",
		DstAddr:        "192.168.1.2",
		Lsas: []Lsa{
			{
				Origin: "192.168.1.1",
				Seqno:  math.MinInt32 + 2,
				Links: []LinkDesc{
					{LinkId: "192.168.1.2", PortNum: 50002, Weight: 3},
					{LinkId: "192.168.1.1", PortNum: -1, Weight: 0},
				},
			},
			{Origin: "192.168.1.3", Seqno: 7},
		},
	}
	buf := &bytes.Buffer{}
	require.NoError(t, WriteMsg(buf, msg))

	var got Message
	require.NoError(t, ReadMsg(buf, &got))
	if diff := cmp.Diff(*msg, got); diff != "" {
		t.Fatalf("message mismatch (-want +got):\n%s", diff)
	}
	assert.Zero(t, buf.Len())
}

func TestHelloKeepsZeroKind(t *testing.T) {
	out, err := Marshal(&Message{Kind: Hello})
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	var got Message
	require.NoError(t, Unmarshal(out, &got))
	assert.Equal(t, Hello, got.Kind)
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	out, err := Marshal(&Message{Kind: Teardown, SrcAddr: "10.0.0.1"})
	require.NoError(t, err)
	out = protowire.AppendTag(out, 99, protowire.BytesType)
	out = protowire.AppendString(out, "from the future")
	out = protowire.AppendTag(out, 100, protowire.VarintType)
	out = protowire.AppendVarint(out, 42)

	var got Message
	require.NoError(t, Unmarshal(out, &got))
	assert.Equal(t, Teardown, got.Kind)
	assert.Equal(t, "10.0.0.1", got.SrcAddr)
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var got Message
	assert.Error(t, Unmarshal([]byte{0xff, 0xff, 0xff}, &got))

	out := protowire.AppendTag(nil, fieldKind, protowire.VarintType)
	out = protowire.AppendVarint(out, 9)
	assert.ErrorIs(t, Unmarshal(out, &got), ErrUnknownKind)

	truncated, err := Marshal(&Message{Kind: Hello, SrcAddr: "10.0.0.1"})
	require.NoError(t, err)
	assert.Error(t, Unmarshal(truncated[:len(truncated)-2], &got))
}

func TestMarshalRejectsUnknownKind(t *testing.T) {
	_, err := Marshal(&Message{Kind: Kind(7)})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestReadMsgRejectsBadLength(t *testing.T) {
	var got Message
	buf := &bytes.Buffer{}
	require.NoError(t, binary.Write(buf, binary.BigEndian, uint32(0)))
	assert.ErrorIs(t, ReadMsg(buf, &got), ErrPacketSize)

	buf.Reset()
	require.NoError(t, binary.Write(buf, binary.BigEndian, uint32(MaxPacketSize+1)))
	assert.ErrorIs(t, ReadMsg(buf, &got), ErrPacketSize)

	buf.Reset()
	require.NoError(t, binary.Write(buf, binary.BigEndian, uint32(10)))
	buf.Write([]byte{1, 2})
	assert.Error(t, ReadMsg(buf, &got))
}
