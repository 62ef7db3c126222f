package tcp

// TputSample is one fixed-width throughput bucket: bytes newly
// acknowledged toward this direction and bytes newly sent by the
// reverse direction.
type TputSample struct {
	Start      float64
	End        float64
	AckedBytes int64
	SentBytes  int64
}

// DefaultTputInterval is the default throughput sampling interval in
// seconds.
const DefaultTputInterval = 0.050

// TputSampler emits fixed-interval samples of newly acknowledged bytes
// (cumulative plus SACKed within the interval) and newly sent bytes
// (tracked through the reverse half's high sequence).
type TputSampler struct {
	interval  float64
	startTime float64 // start of the current interval
	startAck  uint32  // highest counted byte at the start of the interval
	highSent  uint32  // half's high sequence at the start of the interval

	Samples []TputSample
}

func NewTputSampler(interval float64) *TputSampler {
	if interval <= 0 {
		interval = DefaultTputInterval
	}
	return &TputSampler{interval: interval}
}

// Check advances the sampler with the current packet.  When the packet
// falls beyond the current interval, the finished interval is emitted,
// followed by zero-filled intervals until the packet time is covered.
func (t *TputSampler) Check(con *Conn, p *Packet) {
	if t.startTime == 0 {
		t.startTime = p.Ts
		t.startAck = maxU32(con.Acked, p.Ack)
		if con.half != nil {
			t.highSent = con.half.High
		}
	}
	if p.Ts-t.startTime <= t.interval {
		return
	}

	// Bytes newly acknowledged: cumulative ACK advance plus the SACKed
	// ranges above it.  maxAcked tracks the highest byte counted so the
	// next interval starts past it.
	maxAcked := con.Acked
	var acked int64
	if con.Acked > t.startAck {
		acked = int64(con.Acked - t.startAck)
	}
	var sacked int64
	for _, b := range con.Sblocks {
		if b.Right <= t.startAck {
			continue
		}
		left := b.Left
		if t.startAck > left {
			left = t.startAck
		}
		sacked += int64(b.Right - left)
		if b.Right > maxAcked {
			maxAcked = b.Right
		}
	}
	t.startAck = maxAcked

	var sent int64
	if con.half != nil {
		if con.half.High > t.highSent {
			sent = int64(con.half.High - t.highSent)
		}
		t.highSent = con.half.High
	}

	t.add(acked+sacked, sent)
	for p.Ts-t.startTime > t.interval {
		t.add(0, 0)
	}
}

func (t *TputSampler) add(acked, sent int64) {
	next := t.startTime + t.interval
	t.Samples = append(t.Samples, TputSample{
		Start:      t.startTime,
		End:        next,
		AckedBytes: acked,
		SentBytes:  sent,
	})
	t.startTime = next
}
