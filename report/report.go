// Package report turns analyzed connections into per-connection
// records, and renders them as human-readable text or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/xid"

	"github.com/lennart-schulte/tcpdump-analyzer/metrics"
	"github.com/lennart-schulte/tcpdump-analyzer/schema"
	"github.com/lennart-schulte/tcpdump-analyzer/tcp"
)

// Netradar server ports used to select measurement connections.
var netradarPorts = map[uint16]bool{6007: true, 6078: true}

const kilo = 1024

// Build assembles one row per qualifying connection: the connection
// must have a reverse-direction half, and either the half transmitted
// data or, under netradar selection, the destination port is one of the
// measurement ports.  Connections without a half or without a positive
// duration are skipped with a warning.
func Build(conns []*tcp.Conn, cfg tcp.Config) []schema.ReorderRow {
	rows := make([]schema.ReorderRow, 0, len(conns))
	for _, con := range conns {
		half := con.Half()
		if half == nil {
			log.Printf("no two way connection (%s)", con)
			metrics.WarningCount.WithLabelValues("report", "no_half").Inc()
			continue
		}

		if cfg.Netradar {
			if !netradarPorts[uint16(con.DstPort)] {
				continue
			}
		} else if half.All == 0 {
			continue
		}

		gtime := cfg.TimeLimit
		if gtime <= 0 {
			gtime = half.LastTs - half.ConStart
		}
		if gtime <= 0 {
			log.Printf("no duration (%s)", con)
			metrics.WarningCount.WithLabelValues("report", "no_duration").Inc()
			continue
		}
		metrics.ConnectionDuration.WithLabelValues("reported").Observe(gtime)

		row := schema.ReorderRow{
			ID:       xid.New().String(),
			Date:     civil.DateOf(time.Unix(0, int64(con.ConStart*1e9)).UTC()),
			SrcIP:    net.IP(con.SrcIP[:]).String(),
			DstIP:    net.IP(con.DstIP[:]).String(),
			SrcPort:  uint16(con.SrcPort),
			DstPort:  uint16(con.DstPort),
			Start:    con.ConStart,
			Duration: gtime,
			Packets:  half.All,
			Bytes:    half.Bytes,
			MSS:      int64(half.MSS),
			Goodput:  float64(half.Bytes*8) / (gtime * kilo), // kbit/s
			Options: schema.OptionFlags{
				Sack:       con.SackSegs > 0,
				Dsack:      con.DsackSegs > 0,
				Timestamps: con.TsOpt,
			},
		}

		row.Interruptions = buildInterruptions(con, cfg.ConInterrTime)
		row.GoodputInterr = row.Goodput * gtime / (gtime - row.Interruptions.Time)
		row.FastRecovery = buildRecovery(con)
		row.Reorder = buildReorder(con)

		for _, s := range half.RTT.Samples {
			row.RTT = append(row.RTT, schema.RTTSampleInfo{Ts: s.Ts, RTT: s.RTT})
		}
		for _, s := range con.Tput.Samples {
			row.Throughput = append(row.Throughput, schema.TputSampleInfo{
				Start: s.Start, End: s.End, Acked: s.AckedBytes, Sent: s.SentBytes,
			})
		}

		rows = append(rows, row)
	}
	return rows
}

func buildInterruptions(con *tcp.Conn, minInterr float64) schema.InterruptionSummary {
	sum := schema.InterruptionSummary{MinInterruption: minInterr}
	for _, entry := range con.Interruptions {
		duration := entry.End - entry.Start
		if duration <= minInterr {
			continue
		}
		sum.Infos = append(sum.Infos, schema.InterruptionInfo{
			Start:    entry.Start,
			Duration: duration,
			RTOs:     entry.RTOs,
			Spurious: entry.Spurious,
		})
		sum.Time += duration
		sum.Number++
		if entry.RTOs > 0 {
			sum.WithRTO++
		}
		if entry.Spurious {
			sum.Spurious++
		}
	}
	return sum
}

func buildRecovery(con *tcp.Conn) schema.RecoverySummary {
	sum := schema.RecoverySummary{}
	for _, entry := range con.DisorderPhases {
		if entry.FRets == 0 {
			// A disorder phase without a retransmit is reordering that
			// resolved on its own.
			continue
		}
		duration := entry.End - entry.Start
		sum.Time += duration
		sum.TotalFrets += entry.FRets
		if entry.RTOs > 0 {
			sum.WithRTO++
		}
		if entry.Spurious {
			sum.Spurious++
		}
		sum.Number++
		sum.Infos = append(sum.Infos, schema.RecoveryPhaseInfo{
			Start:    entry.Start,
			Duration: duration,
			Rexmits:  entry.FRets,
			RTOs:     entry.RTOs,
			Spurious: entry.Spurious,
		})
	}
	return sum
}

func buildReorder(con *tcp.Conn) schema.ReorderSummary {
	sum := schema.ReorderSummary{
		SackHoles: con.Reorder,
		Rexmit:    con.ReorderRexmit,
		DsackTS:   con.Dreorder,
	}
	for _, entry := range con.DisorderPhases {
		if entry.FRets == 0 {
			sum.WoRexmit++
		}
	}
	for _, reor := range con.ReorExtents {
		sum.Extents = append(sum.Extents, schema.ReorderExtentInfo{
			Ts:        reor.Ts,
			ExtentAbs: reor.AbsBytes,
			ExtentRel: reor.Rel,
			Reason:    reor.Reason,
			ReorDelay: reor.Delay,
		})
	}
	for _, d := range con.DreorExtents {
		sum.DsackExt = append(sum.DsackExt, schema.DsackExtentInfo{
			Ts:        d.Ts,
			ExtentAbs: d.AbsBytes,
			ExtentRel: d.Rel,
			ReorDelay: d.Delay,
		})
	}
	return sum
}

// WriteText renders the rows in the human-readable form.
func WriteText(w io.Writer, rows []schema.ReorderRow) {
	for _, row := range rows {
		fmt.Fprintf(w, "%s:%d - %s:%d --> %d pkts in %0.2f s, MSS = %d, %0.2f kbit/s\n",
			row.SrcIP, row.SrcPort, row.DstIP, row.DstPort,
			row.Packets, row.Duration, row.MSS, row.Goodput)
		fmt.Fprintf(w, "Options: SACK = %s, DSACK = %s, TS = %s\n",
			flag01(row.Options.Sack), flag01(row.Options.Dsack), flag01(row.Options.Timestamps))
		fmt.Fprintf(w, "Connection Interruption time: %0.2f s ( %d interruptions, %d with RTOs, %d spurious ) --> %0.2f kbit/s\n",
			row.Interruptions.Time, row.Interruptions.Number, row.Interruptions.WithRTO,
			row.Interruptions.Spurious, row.GoodputInterr)
		fmt.Fprintf(w, "Fast Recovery time: %0.2f s ( %d phases, %d spurious, %d with RTOs, %d total frets )\n",
			row.FastRecovery.Time, row.FastRecovery.Number, row.FastRecovery.Spurious,
			row.FastRecovery.WithRTO, row.FastRecovery.TotalFrets)
		fmt.Fprintf(w, "Reorder: W/o retransmit = %d , Closed SACK holes = %d , Rexmits (TSval tested) = %d , DSACK+TS = %d\n",
			row.Reorder.WoRexmit, row.Reorder.SackHoles, row.Reorder.Rexmit, row.Reorder.DsackTS)
		fmt.Fprintln(w)
	}
}

// WriteJSON renders each row as an indented JSON document, one after
// the other, like the original standalone mode.
func WriteJSON(w io.Writer, rows []schema.ReorderRow) error {
	for _, row := range rows {
		enc, err := json.MarshalIndent(row, "", "    ")
		if err != nil {
			return err
		}
		if _, err := w.Write(append(enc, '\n')); err != nil {
			return err
		}
	}
	return nil
}

func flag01(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
