package report_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/gopacket/layers"

	"github.com/lennart-schulte/tcpdump-analyzer/headers"
	"github.com/lennart-schulte/tcpdump-analyzer/report"
	"github.com/lennart-schulte/tcpdump-analyzer/tcp"
)

var (
	senderIP   = [4]byte{10, 0, 0, 1}
	receiverIP = [4]byte{192, 168, 17, 36}
)

func data(ts float64, sport layers.TCPPort, seq, length, tsval uint32) *tcp.Packet {
	return &tcp.Packet{
		Ts: ts, SrcIP: senderIP, DstIP: receiverIP, SrcPort: sport, DstPort: 52801,
		Seq: seq, Ack: 1, Win: 4096, DataLen: length, Flags: headers.Flags(0x18),
		Opts: tcp.Options{WScale: -1, TSVal: tsval, TSEcr: 1},
	}
}

func ack(ts float64, dport layers.TCPPort, ackNo, tsval, tsecr uint32, blocks ...tcp.SackBlock) *tcp.Packet {
	p := &tcp.Packet{
		Ts: ts, SrcIP: receiverIP, DstIP: senderIP, SrcPort: 52801, DstPort: dport,
		Seq: 1, Ack: ackNo, Win: 4096, Flags: headers.Flags(0x10),
		Opts: tcp.Options{WScale: -1, TSVal: tsval, TSEcr: tsecr},
	}
	if len(blocks) > 0 {
		p.Opts.SackBlocks = blocks
		p.Opts.Sack = true
	}
	return p
}

// fastRetransmitTrace is the S2 exchange: ten segments, three dup ACKs
// with growing SACKs, a fast retransmit, and the recovering ACK.
func fastRetransmitTrace(sport layers.TCPPort) []*tcp.Packet {
	var pkts []*tcp.Packet
	for i := 0; i < 10; i++ {
		pkts = append(pkts, data(float64(i)*0.01, sport, uint32(i*100), 100, uint32(10+i)))
	}
	return append(pkts,
		ack(0.20, sport, 100, 500, 11, tcp.SackBlock{Left: 200, Right: 300}),
		ack(0.21, sport, 100, 501, 12, tcp.SackBlock{Left: 200, Right: 400}),
		ack(0.22, sport, 100, 502, 13, tcp.SackBlock{Left: 200, Right: 500}),
		data(0.25, sport, 100, 100, 250),
		ack(0.30, sport, 500, 503, 250),
	)
}

func analyze(pkts []*tcp.Packet, cfg tcp.Config) *tcp.Analyzer {
	a := tcp.NewAnalyzer(cfg)
	for _, p := range pkts {
		a.Process(p)
	}
	return a
}

func TestBuild(t *testing.T) {
	cfg := tcp.Config{ConInterrTime: tcp.DefaultConInterrTime}
	a := analyze(fastRetransmitTrace(443), cfg)

	rows := report.Build(a.Conns(), cfg)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1 (the data direction's half carried no data)", len(rows))
	}
	row := rows[0]

	if row.SrcIP != "192.168.17.36" || row.DstIP != "10.0.0.1" {
		t.Errorf("endpoints = %s -> %s", row.SrcIP, row.DstIP)
	}
	if row.SrcPort != 52801 || row.DstPort != 443 {
		t.Errorf("ports = %d -> %d", row.SrcPort, row.DstPort)
	}
	if row.ID == "" {
		t.Error("missing row id")
	}

	// Duration and goodput come from the data-sending half.
	wantDuration := 0.25 // last data packet
	if row.Duration != wantDuration {
		t.Errorf("duration = %f, want %f", row.Duration, wantDuration)
	}
	if row.Packets != 11 || row.Bytes != 1100 {
		t.Errorf("packets/bytes = %d/%d, want 11/1100", row.Packets, row.Bytes)
	}
	wantGoodput := float64(1100*8) / (wantDuration * 1024)
	if row.Goodput != wantGoodput {
		t.Errorf("goodput = %f, want %f", row.Goodput, wantGoodput)
	}
	// No long interruptions: the corrected goodput equals the raw one.
	if row.GoodputInterr != row.Goodput {
		t.Errorf("goodput without interruptions = %f, want %f", row.GoodputInterr, row.Goodput)
	}
	if row.Interruptions.Number != 0 {
		t.Errorf("interruptions = %+v, want none over the threshold", row.Interruptions)
	}

	if !row.Options.Sack || !row.Options.Timestamps || row.Options.Dsack {
		t.Errorf("options = %+v", row.Options)
	}

	if row.FastRecovery.Number != 1 || row.FastRecovery.TotalFrets != 1 {
		t.Errorf("fast recovery = %+v, want one phase with one fret", row.FastRecovery)
	}
	// The phase runs from the first SACK to the recovering ACK; the
	// difference is taken in float64, as the report computes it.
	phaseStart, phaseEnd := 0.20, 0.30
	if row.FastRecovery.Infos[0].Duration != phaseEnd-phaseStart {
		t.Errorf("phase duration = %f", row.FastRecovery.Infos[0].Duration)
	}
	if row.Reorder.SackHoles != 0 || row.Reorder.Rexmit != 0 || row.Reorder.WoRexmit != 0 {
		t.Errorf("reorder = %+v, want none", row.Reorder)
	}
	if len(row.RTT) == 0 {
		t.Error("missing rtt samples")
	}
}

func TestBuildNetradarFilter(t *testing.T) {
	cfg := tcp.Config{Netradar: true, ConInterrTime: tcp.DefaultConInterrTime}

	a := analyze(fastRetransmitTrace(443), cfg)
	if rows := report.Build(a.Conns(), cfg); len(rows) != 0 {
		t.Errorf("rows = %d, want 0 for a non-netradar port", len(rows))
	}

	a = analyze(fastRetransmitTrace(6007), cfg)
	rows := report.Build(a.Conns(), cfg)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1 for port 6007", len(rows))
	}
	if rows[0].DstPort != 6007 {
		t.Errorf("dst port = %d, want 6007", rows[0].DstPort)
	}
}

func TestBuildSkipsOneSided(t *testing.T) {
	cfg := tcp.Config{}
	var pkts []*tcp.Packet
	for i := 0; i < 5; i++ {
		pkts = append(pkts, data(float64(i)*0.01, 443, uint32(i*100), 100, uint32(10+i)))
	}
	a := analyze(pkts, cfg)
	if rows := report.Build(a.Conns(), cfg); len(rows) != 0 {
		t.Errorf("rows = %d, want 0 for a one-sided trace", len(rows))
	}
}

func TestBuildSkipsZeroDuration(t *testing.T) {
	cfg := tcp.Config{}
	pkts := []*tcp.Packet{
		data(0, 443, 0, 100, 10),
		ack(0.1, 443, 100, 500, 10),
		ack(0.2, 443, 100, 501, 10), // resolves the ACK direction's half
	}
	a := analyze(pkts, cfg)
	if rows := report.Build(a.Conns(), cfg); len(rows) != 0 {
		t.Errorf("rows = %d, want 0 for a zero-duration half", len(rows))
	}
}

func TestBuildLongInterruption(t *testing.T) {
	cfg := tcp.Config{ConInterrTime: tcp.DefaultConInterrTime}
	pkts := []*tcp.Packet{
		data(0, 443, 0, 100, 10),
		ack(0.01, 443, 100, 500, 10),
		data(1.0, 443, 0, 100, 1000), // RTO
		ack(1.2, 443, 100, 600, 1000),
		data(1.3, 443, 100, 100, 1100),
	}
	a := analyze(pkts, cfg)
	rows := report.Build(a.Conns(), cfg)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	in := rows[0].Interruptions
	if in.Number != 1 || in.WithRTO != 1 || in.Spurious != 0 {
		t.Errorf("interruptions = %+v, want one with RTO", in)
	}
	if in.Infos[0].Duration != 1.2-0.01 {
		t.Errorf("interruption duration = %f", in.Infos[0].Duration)
	}
	if rows[0].GoodputInterr <= rows[0].Goodput {
		t.Errorf("goodput without interruptions = %f, want > %f",
			rows[0].GoodputInterr, rows[0].Goodput)
	}
}

func TestWriteText(t *testing.T) {
	cfg := tcp.Config{ConInterrTime: tcp.DefaultConInterrTime}
	a := analyze(fastRetransmitTrace(443), cfg)
	rows := report.Build(a.Conns(), cfg)

	var buf bytes.Buffer
	report.WriteText(&buf, rows)
	out := buf.String()
	for _, want := range []string{
		"192.168.17.36:52801 - 10.0.0.1:443",
		"11 pkts in 0.25 s",
		"Options: SACK = 1, DSACK = 0, TS = 1",
		"Fast Recovery time: 0.10 s ( 1 phases",
		"Reorder: W/o retransmit = 0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	cfg := tcp.Config{ConInterrTime: tcp.DefaultConInterrTime}
	a := analyze(fastRetransmitTrace(443), cfg)
	rows := report.Build(a.Conns(), cfg)

	var buf bytes.Buffer
	if err := report.WriteJSON(&buf, rows); err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		SrcIP        string `json:"srcIp"`
		Goodput      float64
		FastRecovery struct {
			TotalFrets int64 `json:"totalFrets"`
		} `json:"fastRecovery"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.SrcIP != "192.168.17.36" {
		t.Errorf("srcIp = %q", decoded.SrcIP)
	}
	if decoded.FastRecovery.TotalFrets != 1 {
		t.Errorf("totalFrets = %d, want 1", decoded.FastRecovery.TotalFrets)
	}
}
