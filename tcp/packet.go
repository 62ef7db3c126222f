// Package tcp reconstructs per-connection TCP state from a packet trace
// and derives loss-recovery behavior: fast-recovery phases, connection
// interruptions, retransmission timeouts, and segment reordering events
// with quantitative extent and delay.
//
// It is structured as a model that consumes packets in arrival order and
// maintains state and statistics about each direction of a connection.
package tcp

import (
	"fmt"

	"github.com/google/gopacket/layers"

	"github.com/lennart-schulte/tcpdump-analyzer/headers"
)

// SackBlock is a half-open range [Left, Right) of sequence numbers
// reported by a SACK option.
type SackBlock struct {
	Left  uint32
	Right uint32
}

func (sb SackBlock) String() string {
	return fmt.Sprintf("[%d,%d)", sb.Left, sb.Right)
}

// Options holds the parsed TCP options the model cares about.
type Options struct {
	WScale int8 // window scale shift count, -1 if absent
	TSVal  uint32
	TSEcr  uint32

	// SackBlocks are in wire order.  The scoreboard keeps its own copy.
	SackBlocks []SackBlock
	Sack       bool
	DSack      bool
}

// Packet is the per-packet view the model consumes.  It is immutable
// once decoded.
type Packet struct {
	Ts float64 // capture time in seconds

	SrcIP, DstIP     [4]byte
	SrcPort, DstPort layers.TCPPort

	Seq, Ack uint32
	Win      uint16
	DataLen  uint32 // TCP payload bytes

	Flags headers.Flags
	Opts  Options
}

// CarriesData reports whether the packet has TCP payload.
func (p *Packet) CarriesData() bool {
	return p.DataLen > 0
}
