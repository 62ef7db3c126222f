package tcp

// Interruption records the gap since the last processed segment on
// every dataless ACK.  The reporter later filters out the ordinary
// ACK inter-arrival gaps below the configured threshold.
type Interruption struct {
	Start    float64
	End      float64
	RTOs     int64 // retransmits observed during the gap
	Spurious bool  // the ACK proved the timeout unnecessary
}

// InterruptionDetector appends candidate interruption intervals.
type InterruptionDetector struct {
	enable bool
}

func NewInterruptionDetector() *InterruptionDetector {
	return &InterruptionDetector{enable: true}
}

// Detect runs on every ACK without data.  Connections that saw a RST or
// FIN are closing down; their ACK gaps are not interruptions.  An
// interruption is spurious when the ACK echoes a timestamp older than
// the first RTO sent during the gap.
func (d *InterruptionDetector) Detect(con *Conn, p *Packet) {
	if !d.enable {
		return
	}
	if con.RST || con.FIN {
		return
	}
	spurious := con.InterrRTOTSVal != 0 && p.Opts.TSEcr < con.InterrRTOTSVal
	con.Interruptions = append(con.Interruptions, Interruption{
		Start:    con.LastTs,
		End:      p.Ts,
		RTOs:     con.InterrRexmits,
		Spurious: spurious,
	})
	con.InterrRexmits = 0
	con.InterrRTOTSVal = 0
}
