package tcp

import (
	"log"
	"os"
	"sort"
	"time"

	"github.com/m-lab/go/logx"

	"github.com/lennart-schulte/tcpdump-analyzer/metrics"
)

var (
	sparseLogger = log.New(os.Stdout, "sparse: ", log.LstdFlags|log.Lshortfile)
	sparseWarn   = logx.NewLogEvery(sparseLogger, 50*time.Millisecond)
)

// Reorder detects segment reordering from four kinds of wire evidence:
// SACK holes closed by cumulative ACKs (DetectionSack), DSACK blocks
// paired with timestamps (DetectionDsack), cumulative ACKs covering
// retransmitted segments whose echoed timestamp predates the
// retransmission (DetectionRetrans), and SACK holes closed by
// scoreboard merges (ReorderSACK).
//
// All detectors are no-ops while the reverse direction of the
// connection is unknown: without it there is no retransmission table to
// test against.
type Reorder struct {
	enable bool
}

func NewReorder() *Reorder {
	return &Reorder{enable: true}
}

// SackHoleTs returns the first-seen timestamp of the stored SACK hole
// containing seq, or -1 when seq falls in no stored hole.
func SackHoleTs(c *Conn, seq uint32) float64 {
	for _, h := range c.ReorHoles {
		if seq >= h.Left && seq < h.Right {
			return h.Ts
		}
	}
	return -1
}

// addReorExtent appends one reordering extent.  A zero offset is not an
// event.  The relative extent needs the flightsize captured at disorder
// entry; the reordering delay needs the hole's first-seen time.  Either
// may be missing, in which case the field is -1 and a warning is
// counted.
func (r *Reorder) addReorExtent(con *Conn, ts float64, seq uint32, offset int64, reason string) {
	if offset == 0 {
		return
	}

	rel := -1.0
	if con.Flightsize > 0 {
		rel = float64(offset) / float64(con.Flightsize)
	} else {
		sparseWarn.Printf("rel. reordering: no flightsize %d", seq)
		metrics.WarningCount.WithLabelValues("tcp", "no_flightsize").Inc()
	}

	holeTs := SackHoleTs(con, seq)
	delay := -1.0
	if holeTs > -1 {
		delay = ts - holeTs
	} else {
		sparseWarn.Printf("reor delay failed %d", seq)
		metrics.WarningCount.WithLabelValues("tcp", "no_hole_ts").Inc()
	}

	con.ReorExtents = append(con.ReorExtents, ReorderExtent{
		Ts:       ts,
		AbsBytes: offset,
		Rel:      rel,
		Reason:   reason,
		Delay:    delay,
		HoleTs:   holeTs,
	})
	metrics.ReorderEventCount.WithLabelValues(reason).Inc()
}

// DetectionSack checks whether a cumulative ACK advance closes SACK
// holes that were never retransmitted.  It must run before the
// scoreboard is updated and before the cumulative ACK advances.
//
// Holes now being covered are: the gap between the old ACK and the
// first block (if the ACK reaches it), every gap between consecutive
// blocks whose right neighbor starts at or below the ACK, and the gap
// between the last block and the highest sent byte when the ACK reaches
// it.  Each hole is walked left to right over the known retransmits; a
// position with no retransmit entry means the whole remaining hole
// arrived late rather than lost.
func (r *Reorder) DetectionSack(con *Conn, p *Packet) {
	if !r.enable {
		return
	}
	half := con.half
	if half == nil {
		return
	}
	if len(con.Sblocks) == 0 || p.Ack <= con.Acked {
		return
	}

	var holes []Hole
	if p.Ack >= con.Sblocks[0].Left && con.Acked < con.Sblocks[0].Left {
		holes = append(holes, Hole{Left: con.Acked, Right: con.Sblocks[0].Left})
	}
	for i := 0; i+1 < len(con.Sblocks); i++ {
		if con.Sblocks[i+1].Left <= p.Ack {
			holes = append(holes, Hole{Left: con.Sblocks[i].Right, Right: con.Sblocks[i+1].Left})
		}
	}
	if p.Ack == half.High && half.High > con.Sblocks[len(con.Sblocks)-1].Right {
		holes = append(holes, Hole{Left: con.Sblocks[len(con.Sblocks)-1].Right, Right: half.High})
	}

	for _, hole := range holes {
		for hole.Left < hole.Right && con.DisorderRTO == 0 {
			e := half.Rexmit[hole.Left]
			if e == nil {
				// First segment in the hole was never retransmitted:
				// the whole hole is reordered.
				offset := int64(con.Sacked) - int64(hole.Left)
				r.addReorExtent(con, p.Ts, hole.Left, offset, ReasonSackHole)
				con.Reorder++
				break
			}
			// First segment was retransmitted; skip it and check the
			// rest of the hole.
			hole.Left += e.Len
		}
	}
}

// DetectionDsack finds reordering beyond one RTT: a DSACK for a
// retransmitted segment whose original copy also arrived.  Needs
// timestamps on the connection to rule out duplication by the network.
// The spurious retransmit is attributed to the disorder phase whose
// time window contains the hole timestamp.
func (r *Reorder) DetectionDsack(con *Conn, p *Packet) {
	if !r.enable {
		return
	}
	half := con.half
	if half == nil {
		return
	}
	if !p.Opts.DSack || !con.TsOpt || len(p.Opts.SackBlocks) == 0 {
		return
	}

	dsack := p.Opts.SackBlocks[0]
	e := half.Rexmit[dsack.Left]
	if e == nil {
		return
	}
	// Only normal recovery counts, and only if the reordering was not
	// detected previously through another signal.
	if e.RTO || e.Reordered {
		return
	}
	con.Dreorder++

	abs := int64(maxU32(con.Acked, con.Sacked)) - int64(dsack.Right)
	rel := -1.0
	if e.Flightsize > 0 {
		rel = float64(abs) / float64(e.Flightsize)
	} else {
		sparseWarn.Printf("DSACK rel. reordering: no flightsize %d", dsack.Left)
		metrics.WarningCount.WithLabelValues("tcp", "no_flightsize").Inc()
	}
	delay := -1.0
	if e.HoleTs > -1 {
		delay = p.Ts - e.HoleTs
	} else {
		sparseWarn.Printf("DSACK reor delay failed %d", dsack.Left)
		metrics.WarningCount.WithLabelValues("tcp", "no_hole_ts").Inc()
	}

	con.DreorExtents = append(con.DreorExtents, DReorderExtent{
		Ts:       p.Ts,
		AbsBytes: abs,
		Rel:      rel,
		Delay:    delay,
		HoleTs:   e.HoleTs,
	})
	metrics.ReorderEventCount.WithLabelValues("dsack").Inc()

	// Update the disorder phase this retransmit belonged to.
	for i := range con.DisorderPhases {
		d := &con.DisorderPhases[i]
		if e.HoleTs >= d.Start && e.HoleTs <= d.End {
			d.SpurRexmits++
			if d.SpurRexmits == d.FRets {
				d.Spurious = true
			}
		}
	}
}

// DetectionRetrans checks retransmitted segments newly covered by the
// cumulative ACK.  If the echoed timestamp is older than the
// retransmission's own timestamp, the original segment arrived, not the
// retransmit: the original was reordered, not lost.
func (r *Reorder) DetectionRetrans(con *Conn, p *Packet) {
	if !r.enable {
		return
	}
	half := con.half
	if half == nil {
		return
	}
	if p.Ack <= con.Acked || p.Opts.TSEcr == 0 || con.Disorder == 0 || con.DisorderRTO != 0 {
		return
	}

	for _, rseq := range sortedRexmitSeqs(half) {
		if rseq < con.Acked || rseq >= p.Ack {
			continue
		}
		e := half.Rexmit[rseq]
		if p.Opts.TSEcr < e.TSVal && !e.Acked {
			offset := int64(maxU32(p.Ack, con.Sacked)) - int64(rseq)
			r.addReorExtent(con, p.Ts, rseq, offset, ReasonRexmit)
			con.ReorderRexmit++
			con.DisorderSpurRexmit++
			e.Reordered = true
		}
		e.Acked = true
	}
}

// ReorderSACK is the hole-closure check invoked from scoreboard merges.
// saveHole is the left edge of a hole just closed by a SACK block, or 0
// when the merge closed no hole.
func (r *Reorder) ReorderSACK(saveHole, newlySacked uint32, con *Conn, p *Packet) {
	if !r.enable {
		return
	}
	half := con.half
	if half == nil {
		return
	}
	if saveHole == 0 || saveHole >= con.Sacked || con.DisorderRTO != 0 {
		return
	}

	maxAcked := maxU32(con.Sacked, newlySacked)
	e := half.Rexmit[saveHole]
	if e == nil {
		// The hole was never retransmitted, so the segment was late,
		// not lost.
		offset := int64(maxAcked) - int64(saveHole)
		r.addReorExtent(con, p.Ts, saveHole, offset, ReasonSackHole)
		con.Reorder++
		return
	}
	// The SACK covers a retransmission.
	if p.Opts.TSEcr < e.TSVal && !e.Acked {
		con.ReorderRexmit++
		con.DisorderSpurRexmit++
		offset := int64(maxAcked) - int64(saveHole)
		r.addReorExtent(con, p.Ts, saveHole, offset, ReasonRexmit)
		e.Reordered = true
	}
	e.Acked = true
}

// SackRetrans marks retransmissions as ACKed by SACK.
func (r *Reorder) SackRetrans(newlyAcked []uint32, half *Conn) {
	if half == nil {
		return
	}
	for _, seq := range newlyAcked {
		if e := half.Rexmit[seq]; e != nil {
			e.Acked = true
		}
	}
}

// MaintainSackHoles updates the stored hole list used for reordering
// delay: holes below the ACK are dropped, and any scoreboard gap not
// yet covered by a stored hole is recorded with the current time.
// Runs on dataless ACKs, after the scoreboard has been updated.
func (r *Reorder) MaintainSackHoles(con *Conn, p *Packet) {
	if !r.enable {
		return
	}

	keep := con.ReorHoles[:0]
	for _, h := range con.ReorHoles {
		if h.Right > p.Ack {
			keep = append(keep, h)
		}
	}
	con.ReorHoles = keep

	for i := range con.Sblocks {
		var hole Hole
		if i == 0 {
			hole = Hole{Left: p.Ack, Right: con.Sblocks[i].Left}
		} else {
			hole = Hole{Left: con.Sblocks[i-1].Right, Right: con.Sblocks[i].Left}
		}
		exists := false
		for _, h := range con.ReorHoles {
			if hole.Left >= h.Left && hole.Right <= h.Right {
				exists = true
				break
			}
		}
		if !exists {
			hole.Ts = p.Ts
			con.ReorHoles = append(con.ReorHoles, hole)
		}
	}
}

// UpdateFlightsize refreshes the recovery point and flightsize once the
// ACK passes the old recovery point while the scoreboard still has
// blocks.
func (r *Reorder) UpdateFlightsize(con *Conn, p *Packet) {
	if !r.enable {
		return
	}
	half := con.half
	if half == nil {
		return
	}
	if len(con.Sblocks) > 0 && p.Ack > con.RecoveryPoint && half.High > 0 {
		con.RecoveryPoint = half.High + con.HighLen
		con.Flightsize = int64(con.RecoveryPoint) - int64(p.Ack)
	}
}

// sortedRexmitSeqs returns the retransmit table keys in ascending
// order, so that replaying a trace emits events in a stable order.
func sortedRexmitSeqs(c *Conn) []uint32 {
	seqs := make([]uint32, 0, len(c.Rexmit))
	for seq := range c.Rexmit {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}
