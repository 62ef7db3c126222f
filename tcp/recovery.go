package tcp

import "log"

// Recovery tracks entry into and exit from disorder phases.  A phase
// begins when a SACK block shows up on a previously clean scoreboard
// outside an active RTO, and ends when the scoreboard drains while the
// cumulative ACK advances.
type Recovery struct {
	enable bool
	debug  bool
}

func NewRecovery() *Recovery {
	return &Recovery{enable: true}
}

// CheckStart runs after new blocks were inserted into an empty
// scoreboard.  The recovery point and flightsize are captured at entry
// and stay fixed for the phase (apart from the ACK-path refresh in
// Reorder.UpdateFlightsize).
func (rec *Recovery) CheckStart(con *Conn, p *Packet, newlySacked uint32) {
	if !rec.enable {
		return
	}
	if len(con.Sblocks) == 0 {
		return
	}
	if con.InterrRexmits != 0 {
		// In RTO; not a disorder start.
		return
	}
	con.Disorder = p.Ts
	if con.half != nil && con.half.High > 0 {
		con.RecoveryPoint = con.half.High + con.half.HighLen
		con.Flightsize = int64(con.RecoveryPoint) - int64(p.Ack)
	}
	if rec.debug {
		log.Printf("disorder begin (new SACK blocks) %v %f %d %d",
			p.Opts.SackBlocks, p.Ts, con.RecoveryPoint, con.Flightsize)
	}
}

// CheckEnd closes the active disorder phase once the scoreboard is
// empty and the cumulative ACK advanced.  The empty scoreboard alone is
// not sufficient for RTOs, hence the ACK check.
func (rec *Recovery) CheckEnd(con *Conn, p *Packet) {
	if !rec.enable {
		return
	}
	if len(con.Sblocks) != 0 || con.Disorder == 0 {
		return
	}
	if p.Ack <= con.Acked {
		return
	}

	con.DisorderPhases = append(con.DisorderPhases, DisorderPhase{
		Start:       con.Disorder,
		End:         p.Ts,
		FRets:       con.DisorderFRet,
		RTOs:        con.DisorderRTO,
		Spurious:    con.DisorderSpurRexmit == con.DisorderFRet,
		SpurRexmits: con.DisorderSpurRexmit,
	})

	con.Disorder = 0
	con.DisorderFRet = 0
	con.DisorderRTO = 0
	con.DisorderSpurRexmit = 0
	con.Sacked = 0
	con.Flightsize = 0
	con.RecoveryPoint = 0

	if rec.debug {
		log.Printf("disorder end %f", p.Ts)
	}
}
