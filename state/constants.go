package state

import (
	"math"
	"time"
)

const (
	// MaxPorts is the number of links a router can hold at once.
	MaxPorts = 4
	// SentinelPort marks the link a router's bootstrap LSA holds to itself.
	SentinelPort = int32(-1)
	// InitialSeqno is the sequence number of an LSA that has never been regenerated.
	InitialSeqno = int32(math.MinInt32)
	MaxWeight    = math.MaxUint16
)

var (
	DialTimeout        = time.Second * 3
	HandshakeTimeout   = time.Second * 5
	TeardownTimeout    = time.Second * 3
	ReadTimeout        = time.Second * 10
	SendRetries        = uint64(2)
	SendRetryDelay     = time.Millisecond * 100
	HandshakeDedupTTL  = HandshakeTimeout
	EvictionTTL        = time.Second * 30
	GcDelay            = time.Second * 5
	SlowDispatchWarn   = time.Millisecond * 50
	DispatchBufferSize = 128

	// default port
	DefaultPort = 50001
	DefaultBind = "0.0.0.0"
)
