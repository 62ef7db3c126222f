package tcp

import "log"

// Config carries the process-wide analysis settings.  They are set once
// at construction and passed in rather than held as package state.
type Config struct {
	// TimeLimit restricts analysis to the first TimeLimit seconds of
	// each connection.  0 analyzes the whole trace.
	TimeLimit float64
	// Netradar selects connections by the well-known measurement ports
	// instead of by transmitted data.
	Netradar bool
	// Interval is the throughput sampling interval in seconds.
	Interval float64
	// ConInterrTime separates connection interruptions from normal ACK
	// inter-arrival times, in seconds.
	ConInterrTime float64
	// Debug enables per-event trace logging.
	Debug bool
}

// DefaultConInterrTime is the default minimum reported interruption in
// seconds.
const DefaultConInterrTime = 0.1

// Analyzer is the top-level per-packet dispatcher.  It owns the
// connection table and routes each packet through the detection
// engines.  Packets must be offered in arrival order; processing is
// strictly sequential, so replaying a trace yields identical output.
type Analyzer struct {
	cfg Config

	table     *Table
	reorder   *Reorder
	recovery  *Recovery
	interrupt *InterruptionDetector
}

func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{
		cfg:       cfg,
		table:     NewTable(),
		reorder:   NewReorder(),
		recovery:  &Recovery{enable: true, debug: cfg.Debug},
		interrupt: NewInterruptionDetector(),
	}
}

// Config returns the analyzer configuration.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// Conns returns the analyzed connections in order of first appearance.
func (a *Analyzer) Conns() []*Conn {
	return a.table.Conns()
}

// Process consumes one packet.  The first packet of a 4-tuple creates
// and seeds the connection; later packets are checked against the exit
// conditions and then routed to data or ACK handling, followed by the
// general per-packet update.
func (a *Analyzer) Process(p *Packet) {
	con := a.table.Find(p)
	if con == nil {
		con = newConn(p, a.cfg.Interval)
		a.table.Add(con)
		return
	}
	if con.half == nil {
		con.half = a.table.FindHalf(con)
	}

	// A dataless ACK below the cumulative ACK arrived out of order;
	// drop it.
	if !p.CarriesData() && p.Ack < con.Acked {
		return
	}

	// Past the per-connection time limit only the pending disorder
	// phase may still be closed.
	if a.cfg.TimeLimit > 0 && p.Ts > con.ConStart+a.cfg.TimeLimit {
		if p.CarriesData() {
			if con.half != nil {
				a.recovery.CheckEnd(con.half, p)
			}
		} else {
			a.recovery.CheckEnd(con, p)
		}
		return
	}

	if p.Opts.Sack {
		con.SackSegs++
	}
	if p.Opts.DSack {
		con.DsackSegs++
	}
	con.latchFlags(p)

	if p.CarriesData() {
		a.processData(con, p)
	} else {
		a.processAck(con, p)
	}
	a.processGeneral(con, p)
}

// updateAckState runs the detection that applies to the ACK and SACK
// fields of any packet: hole closures by the cumulative ACK, DSACK
// evidence, the scoreboard merge, and newly covered retransmissions.
// The order is significant; see the individual detectors.
func (a *Analyzer) updateAckState(con *Conn, p *Packet) {
	if con.half != nil {
		a.reorder.DetectionSack(con, p)
		a.reorder.DetectionDsack(con, p)
	}
	a.updateSackScoreboard(con, p)
	a.reorder.DetectionRetrans(con, p)
}

func (a *Analyzer) processData(con *Conn, p *Packet) {
	con.All++
	con.Bytes += int64(p.DataLen)
	if p.DataLen > con.MSS {
		con.MSS = p.DataLen
	}

	// Data segments can piggyback ACK and SACK state.
	a.updateAckState(con, p)

	a.trackRetransmits(con, p)
}

func (a *Analyzer) processAck(con *Conn, p *Packet) {
	// Receive window samples, once a window scale is known.
	if con.RcvWScale >= 0 {
		w := int64(p.Win) << uint(con.RcvWScale)
		if n := len(con.RcvWin); n == 0 || con.RcvWin[n-1].Win != w {
			con.RcvWin = append(con.RcvWin, WindowSample{Ts: p.Ts, Win: w})
		}
	}

	a.updateAckState(con, p)
	a.reorder.MaintainSackHoles(con, p)
	a.interrupt.Detect(con, p)
	a.reorder.UpdateFlightsize(con, p)

	if con.half != nil {
		con.half.RTT.CheckAck(con, p)
	}
	con.Tput.Check(con, p)
}

// processGeneral finishes every packet: it closes a drained disorder
// phase, then advances last_ts and the cumulative ACK.  It must run
// last; the detectors depend on the pre-packet values.
func (a *Analyzer) processGeneral(con *Conn, p *Packet) {
	a.recovery.CheckEnd(con, p)
	con.LastTs = p.Ts
	if p.Ack > con.Acked {
		con.Acked = p.Ack
	}
}

// trackRetransmits maintains the retransmission table and the recovery
// counters on the reverse half.  A data segment at or below the highest
// sent sequence is a retransmission; whether it counts as fast
// retransmit or RTO depends on the reverse half's recovery state.
func (a *Analyzer) trackRetransmits(con *Conn, p *Packet) {
	if p.Seq > con.High {
		con.High = p.Seq
		con.HighLen = p.DataLen
		con.RTT.AddPacket(p)
		return
	}

	// Retransmits never produce RTT samples.
	con.RTT.Rexmit(p)

	half := con.half
	if e, ok := con.Rexmit[p.Seq]; ok {
		// Second retransmission of the same segment: a timeout.
		a.debugf("RTO (2nd rexmit) %f seq=%d", p.Ts, p.Seq)
		e.RTO = true
		if half != nil {
			if half.Disorder > 0 {
				half.DisorderRTO++
			} else {
				half.InterrRexmits++
			}
		}
		return
	}

	holeTs := -1.0
	fs := int64(-1)
	if half != nil {
		holeTs = SackHoleTs(half, p.Seq)
		fs = half.Flightsize
	}
	rto := false
	if half != nil && (half.InterrRexmits > 0 || half.DisorderRTO > 0) {
		rto = true
	}
	// If only one or two segments are SACKed and then the timer
	// expires, the retransmit starts at or above the SACKed range.
	if half != nil && half.Sacked > 0 && p.Seq >= half.Sacked {
		rto = true
	}
	e := &Rexmit{
		Len:        p.DataLen,
		TSVal:      p.Opts.TSVal,
		RTO:        rto,
		HoleTs:     holeTs,
		Flightsize: fs,
	}
	con.Rexmit[p.Seq] = e

	if half == nil {
		return
	}
	if half.Disorder > 0 {
		if half.DisorderRTO == 0 {
			half.DisorderFRet++
		} else {
			half.DisorderRTO++
		}
	} else {
		// Not in disorder: this is a retransmission timeout.
		half.InterrRexmits++
		if half.InterrRTOTSVal == 0 {
			half.InterrRTOTSVal = p.Opts.TSVal
		}
		e.RTO = true
		a.debugf("RTO (timeout) %f seq=%d", p.Ts, p.Seq)
	}
}

func (a *Analyzer) debugf(format string, args ...interface{}) {
	if a.cfg.Debug {
		log.Printf(format, args...)
	}
}
