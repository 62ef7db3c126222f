// Package schema defines the row types produced by the analyzer, with
// BigQuery-compatible field tags.
package schema

import (
	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/m-lab/go/cloud/bqx"
)

// OptionFlags summarizes which TCP options the connection used.
type OptionFlags struct {
	Sack       bool `bigquery:"sack" json:"sack"`
	Dsack      bool `bigquery:"dsack" json:"dsack"`
	Timestamps bool `bigquery:"ts" json:"ts"`
}

// InterruptionInfo is one reported connection interruption.
type InterruptionInfo struct {
	Start    float64 `bigquery:"start" json:"start"`
	Duration float64 `bigquery:"duration" json:"duration"`
	RTOs     int64   `bigquery:"rtos" json:"rtos"`
	Spurious bool    `bigquery:"spurious" json:"spurious"`
}

// InterruptionSummary aggregates the interruptions longer than the
// configured minimum.
type InterruptionSummary struct {
	MinInterruption float64            `bigquery:"min_interruption" json:"minInterruption"`
	Time            float64            `bigquery:"time" json:"time"`
	Number          int64              `bigquery:"number" json:"number"`
	WithRTO         int64              `bigquery:"with_rto" json:"withRto"`
	Spurious        int64              `bigquery:"spurious" json:"spurious"`
	Infos           []InterruptionInfo `bigquery:"infos" json:"infos"`
}

// RecoveryPhaseInfo is one fast-recovery phase that performed
// retransmissions.
type RecoveryPhaseInfo struct {
	Start    float64 `bigquery:"start" json:"start"`
	Duration float64 `bigquery:"duration" json:"duration"`
	Rexmits  int64   `bigquery:"rexmits" json:"rexmits"`
	RTOs     int64   `bigquery:"rtos" json:"rtos"`
	Spurious bool    `bigquery:"spurious" json:"spurious"`
}

// RecoverySummary aggregates the fast-recovery phases.
type RecoverySummary struct {
	Time       float64             `bigquery:"time" json:"time"`
	Number     int64               `bigquery:"number" json:"number"`
	Spurious   int64               `bigquery:"spurious" json:"spurious"`
	WithRTO    int64               `bigquery:"with_rto" json:"withRto"`
	TotalFrets int64               `bigquery:"total_frets" json:"totalFrets"`
	Infos      []RecoveryPhaseInfo `bigquery:"infos" json:"infos"`
}

// ReorderExtentInfo is one reordering event with its quantitative
// extent and delay.  ExtentRel and ReorDelay are -1 when the flightsize
// or hole timestamp context was missing.
type ReorderExtentInfo struct {
	Ts        float64 `bigquery:"ts" json:"ts"`
	ExtentAbs int64   `bigquery:"extent_abs" json:"extentAbs"`
	ExtentRel float64 `bigquery:"extent_rel" json:"extentRel"`
	Reason    string  `bigquery:"reason" json:"reason"`
	ReorDelay float64 `bigquery:"reor_delay" json:"reorDelay"`
}

// DsackExtentInfo is one reordering event detected through DSACK plus
// timestamps.
type DsackExtentInfo struct {
	Ts        float64 `bigquery:"ts" json:"ts"`
	ExtentAbs int64   `bigquery:"extent_abs" json:"extentAbs"`
	ExtentRel float64 `bigquery:"extent_rel" json:"extentRel"`
	ReorDelay float64 `bigquery:"reor_delay" json:"reorDelay"`
}

// ReorderSummary aggregates the reordering findings of one connection.
type ReorderSummary struct {
	WoRexmit  int64               `bigquery:"wo_rexmit" json:"woRexmit"`
	SackHoles int64               `bigquery:"sack_holes" json:"sackHoles"`
	Rexmit    int64               `bigquery:"rexmit" json:"rexmit"`
	DsackTS   int64               `bigquery:"dsack_ts" json:"dsackts"`
	Extents   []ReorderExtentInfo `bigquery:"extents" json:"extents"`
	DsackExt  []DsackExtentInfo   `bigquery:"dextents" json:"dextents"`
}

// RTTSampleInfo is one raw RTT observation.
type RTTSampleInfo struct {
	Ts  float64 `bigquery:"ts" json:"ts"`
	RTT float64 `bigquery:"rtt" json:"rtt"`
}

// TputSampleInfo is one fixed-width throughput bucket.
type TputSampleInfo struct {
	Start float64 `bigquery:"start" json:"start"`
	End   float64 `bigquery:"end" json:"end"`
	Acked int64   `bigquery:"acked_bytes" json:"ackedBytes"`
	Sent  int64   `bigquery:"sent_bytes" json:"sentBytes"`
}

// ReorderRow describes a single analyzed connection.
type ReorderRow struct {
	ID   string     `bigquery:"id" json:"id"`
	Date civil.Date `bigquery:"date" json:"date"`

	SrcIP   string `bigquery:"src_ip" json:"srcIp"`
	DstIP   string `bigquery:"dst_ip" json:"dstIp"`
	SrcPort uint16 `bigquery:"src_port" json:"srcPort"`
	DstPort uint16 `bigquery:"dst_port" json:"dstPort"`

	Start    float64 `bigquery:"start" json:"start"`
	Duration float64 `bigquery:"duration" json:"duration"`

	Packets int64 `bigquery:"packets" json:"packets"`
	Bytes   int64 `bigquery:"bytes" json:"bytes"`
	MSS     int64 `bigquery:"mss" json:"mss"`

	Goodput       float64 `bigquery:"goodput" json:"goodput"`
	GoodputInterr float64 `bigquery:"goodput_interr" json:"goodputInterr"`

	Options       OptionFlags         `bigquery:"options" json:"options"`
	Interruptions InterruptionSummary `bigquery:"interruptions" json:"interruptions"`
	FastRecovery  RecoverySummary     `bigquery:"fast_recovery" json:"fastRecovery"`
	Reorder       ReorderSummary      `bigquery:"reorder" json:"reorder"`

	RTT        []RTTSampleInfo  `bigquery:"rtt" json:"rtt"`
	Throughput []TputSampleInfo `bigquery:"throughput" json:"throughput"`
}

// Schema returns the BigQuery schema for ReorderRow.
func (row *ReorderRow) Schema() (bigquery.Schema, error) {
	sch, err := bigquery.InferSchema(row)
	if err != nil {
		return bigquery.Schema{}, err
	}
	return bqx.RemoveRequired(sch), nil
}
