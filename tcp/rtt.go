package tcp

import "sort"

// RTTSample is one raw RTT observation, stamped with the ACK time.
type RTTSample struct {
	Ts  float64
	RTT float64
}

// RTTSampler records send timestamps of new data by sequence number and
// emits one RTT sample per segment when the segment is acknowledged,
// cumulatively or by SACK.  Retransmitted segments are dropped before
// they can produce a sample (Karn's principle).
type RTTSampler struct {
	pktSent map[uint32]float64

	Samples []RTTSample
}

func NewRTTSampler() *RTTSampler {
	return &RTTSampler{pktSent: make(map[uint32]float64)}
}

// AddPacket records the send time of a new data segment.
func (s *RTTSampler) AddPacket(p *Packet) {
	s.pktSent[p.Seq] = p.Ts
}

// Rexmit forgets a segment that was retransmitted.
func (s *RTTSampler) Rexmit(p *Packet) {
	delete(s.pktSent, p.Seq)
}

// CheckAck emits samples for tracked segments covered by the ACK.  con
// is the reverse-direction connection the ACK arrived on: its scoreboard
// and cumulative/SACKed state describe which of our sends are covered.
func (s *RTTSampler) CheckAck(con *Conn, p *Packet) {
	conAcked := maxU32(con.Acked, p.Ack)
	limit := maxU32(conAcked, con.Sacked)

	for _, seq := range s.sortedSeqs() {
		if seq > limit {
			break
		}

		sacked := false
		for _, b := range con.Sblocks {
			if b.Left > seq {
				break
			}
			if seq >= b.Left && seq < b.Right {
				sacked = true
				break
			}
		}
		if !sacked && seq >= p.Ack {
			// Not covered by the scoreboard nor the cumulative ACK.
			break
		}
		s.Samples = append(s.Samples, RTTSample{Ts: p.Ts, RTT: p.Ts - s.pktSent[seq]})
		delete(s.pktSent, seq)
	}
}

func (s *RTTSampler) sortedSeqs() []uint32 {
	seqs := make([]uint32, 0, len(s.pktSent))
	for seq := range s.pktSent {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}
