package tcp

import (
	"fmt"
	"net"

	"github.com/google/gopacket/layers"
)

// Rexmit records one retransmitted segment, keyed by its original
// sequence number in Conn.Rexmit.  Entries persist for the lifetime of
// the connection and are only mutated, never removed.
type Rexmit struct {
	Len        uint32  // segment length
	TSVal      uint32  // TSval of the retransmission
	Acked      bool    // covered by cumulative ACK or SACK
	RTO        bool    // sent on timeout rather than fast retransmit
	HoleTs     float64 // first-seen time of the SACK hole the segment fell in, or -1
	Flightsize int64   // flightsize at the time of the retransmit, or -1
	Reordered  bool    // reordering was already detected for this segment
}

// Hole is a past gap in the SACK scoreboard, retained to compute the
// reordering delay.  It is removed once Right falls at or below the
// cumulative ACK; Ts never changes.
type Hole struct {
	Left  uint32
	Right uint32
	Ts    float64 // first seen
}

// DisorderPhase is one span from the first SACK block after a clean
// scoreboard until the scoreboard drained with a cumulative ACK advance.
type DisorderPhase struct {
	Start       float64
	End         float64
	FRets       int64 // fast retransmits within the phase
	RTOs        int64 // timeout (re-)retransmits within the phase
	Spurious    bool  // every fast retransmit in the phase was spurious
	SpurRexmits int64 // spurious retransmits attributed to the phase
}

// Reordering extent reasons.
const (
	ReasonSackHole = "sackHole"
	ReasonRexmit   = "rexmit"
)

// ReorderExtent is one reordering event found via a closed SACK hole or
// a retransmission proven spurious by timestamps.
type ReorderExtent struct {
	Ts       float64
	AbsBytes int64   // distance to the highest SACKed byte
	Rel      float64 // AbsBytes/flightsize, or -1 when flightsize is unknown
	Reason   string  // ReasonSackHole or ReasonRexmit
	Delay    float64 // time since the hole was first seen, or -1
	HoleTs   float64 // first-seen time of the hole, or -1
}

// DReorderExtent is one reordering event found via DSACK plus timestamps.
type DReorderExtent struct {
	Ts       float64
	AbsBytes int64
	Rel      float64
	Delay    float64
	HoleTs   float64
}

// WindowSample records a change of the scaled receive window.
type WindowSample struct {
	Ts  float64
	Win int64
}

// Conn holds all mutable state for one direction of a connection.  The
// reverse direction is reachable through half, resolved lazily by the
// connection table once the first packet of the reverse direction has
// been seen.
type Conn struct {
	SrcIP, DstIP     [4]byte
	SrcPort, DstPort layers.TCPPort

	half *Conn

	ConStart float64 // timestamp of start of connection
	LastTs   float64 // timestamp of last processed segment

	RcvWScale  int8   // wscale value in SYN, -1 if absent
	FirstTSVal uint32 // first timestamp value seen

	All   int64  // count of segments with payload
	Bytes int64  // count of payload bytes
	MSS   uint32 // highest seen payload length

	SackSegs  int64 // count of segments carrying SACK
	DsackSegs int64 // count of segments carrying DSACK
	TsOpt     bool  // seen any timestamp option
	SYN       bool
	RST       bool
	FIN       bool

	Acked  uint32 // cumulative ACK
	Sacked uint32 // highest SACKed sequence number

	High    uint32 // highest sequence number sent in this direction
	HighLen uint32 // size of last newly sent data

	Rexmit    map[uint32]*Rexmit // retransmissions by original sequence number
	Sblocks   []SackBlock        // SACK scoreboard, sorted by Left, disjoint
	ReorHoles []Hole             // past SACK holes, for reordering delay

	Reorder       int64 // reorderings due to closed SACK holes
	ReorderRexmit int64 // reordered segments (rexmits, tested with TSval)
	Dreorder      int64 // DSACKs accounting for reordering

	ReorExtents  []ReorderExtent
	DreorExtents []DReorderExtent

	Disorder           float64 // start of the active disorder phase, 0 if none
	RecoveryPoint      uint32
	Flightsize         int64
	DisorderFRet       int64
	DisorderRTO        int64
	DisorderSpurRexmit int64
	DisorderPhases     []DisorderPhase

	InterrRexmits  int64  // retransmits during the current interruption
	InterrRTOTSVal uint32 // TSval of the first RTO during the interruption
	Interruptions  []Interruption

	RcvWin []WindowSample

	RTT  *RTTSampler
	Tput *TputSampler
}

// newConn seeds a connection from its first packet.
func newConn(p *Packet, tputInterval float64) *Conn {
	c := &Conn{
		SrcIP:     p.SrcIP,
		DstIP:     p.DstIP,
		SrcPort:   p.SrcPort,
		DstPort:   p.DstPort,
		ConStart:  p.Ts,
		LastTs:    p.Ts,
		RcvWScale: p.Opts.WScale,
		Acked:     p.Ack,
		Rexmit:    make(map[uint32]*Rexmit),
		RTT:       NewRTTSampler(),
		Tput:      NewTputSampler(tputInterval),
	}
	if p.Opts.Sack {
		c.SackSegs = 1
		for _, sb := range p.Opts.SackBlocks {
			if sb.Left > c.Sacked {
				c.Sacked = sb.Left
			}
			if sb.Right > c.Sacked {
				c.Sacked = sb.Right
			}
		}
	}
	if p.Opts.DSack {
		c.DsackSegs = 1
	}
	if p.Opts.TSVal != 0 {
		c.TsOpt = true
		c.FirstTSVal = p.Opts.TSVal
	}
	if p.CarriesData() {
		c.All = 1
		c.Bytes = int64(p.DataLen)
		c.High = p.Seq
		c.HighLen = p.DataLen
		c.MSS = p.DataLen
		c.RTT.AddPacket(p)
	}
	for _, sb := range p.Opts.SackBlocks {
		c.Sblocks = append(c.Sblocks, sb)
		c.Disorder = p.Ts
	}
	if p.Flags.SYN() {
		c.SYN = true
	}
	return c
}

// Half returns the reverse-direction connection, or nil if none has
// been observed.
func (c *Conn) Half() *Conn {
	return c.half
}

func (c *Conn) String() string {
	return fmt.Sprintf("%s:%d - %s:%d", net.IP(c.SrcIP[:]), c.SrcPort, net.IP(c.DstIP[:]), c.DstPort)
}

// latchFlags records per-connection flag state from a packet.  This
// runs before ACK processing: the interruption detector must see a RST
// or FIN carried by the current packet.
func (c *Conn) latchFlags(p *Packet) {
	if p.Flags.RST() {
		c.RST = true
	}
	if p.Flags.FIN() {
		c.FIN = true
	}
	if p.Flags.SYN() {
		c.SYN = true
	}
	if p.Opts.TSVal != 0 {
		c.TsOpt = true
	}
}
