// Package tcpip extracts IPv4/TCP packets from a capture and feeds them
// to the TCP connection model.
package tcpip

import (
	"io"
	"log"
	"os"
	"time"
	"unsafe"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/m-lab/go/logx"

	"github.com/lennart-schulte/tcpdump-analyzer/capture"
	"github.com/lennart-schulte/tcpdump-analyzer/headers"
	"github.com/lennart-schulte/tcpdump-analyzer/metrics"
	"github.com/lennart-schulte/tcpdump-analyzer/tcp"
)

var (
	sparseLogger = log.New(os.Stdout, "sparse: ", log.LstdFlags|log.Lshortfile)
	sparse20     = logx.NewLogEvery(sparseLogger, 50*time.Millisecond)
)

// Decode fills a tcp.Packet from a captured Ethernet frame.  Non-IPv4
// and non-TCP frames are rejected with the matching sentinel error.
// Option decoding is forgiving: a malformed option ends the option walk
// but keeps the packet.
func Decode(ci *gopacket.CaptureInfo, data []byte, p *tcp.Packet) error {
	if len(data) < headers.EthernetHeaderSize {
		return headers.ErrTruncatedEthernetHeader
	}
	eth := (*headers.EthernetHeader)(unsafe.Pointer(&data[0]))
	switch eth.EtherType() {
	case layers.EthernetTypeIPv4:
	case layers.EthernetTypeIPv6:
		return headers.ErrNotIPv4
	default:
		return headers.ErrUnknownEtherType
	}

	if len(data) < headers.EthernetHeaderSize+headers.IPv4HeaderSize {
		return headers.ErrTruncatedIPHeader
	}
	ip := (*headers.IPv4Header)(unsafe.Pointer(&data[headers.EthernetHeaderSize]))
	if ip.Version() != 4 || ip.HeaderLength() < headers.IPv4HeaderSize ||
		headers.EthernetHeaderSize+ip.HeaderLength() > len(data) {
		return headers.ErrTruncatedIPHeader
	}
	if ip.NextProtocol() != layers.IPProtocolTCP {
		return headers.ErrNotTCP
	}
	ipPayload := data[headers.EthernetHeaderSize+ip.HeaderLength():]

	tcpHdr, err := headers.WrapTCP(ipPayload)
	if err != nil {
		return err
	}

	*p = tcp.Packet{
		Ts:      float64(ci.Timestamp.UnixNano()) / 1e9,
		SrcIP:   ip.SrcIP(),
		DstIP:   ip.DstIP(),
		SrcPort: tcpHdr.SrcPort(),
		DstPort: tcpHdr.DstPort(),
		Seq:     tcpHdr.SeqNum(),
		Ack:     tcpHdr.AckNum(),
		Win:     tcpHdr.Window(),
		Flags:   tcpHdr.Flags,
	}
	if dataLen := ip.PayloadLength() - tcpHdr.DataOffset(); dataLen > 0 {
		p.DataLen = uint32(dataLen)
	}

	decodeOptions(ipPayload[headers.TCPHeaderSize:tcpHdr.DataOffset()], p)
	return nil
}

// decodeOptions walks the TCP options and fills the packet's option
// view: window scale (SYN only), timestamps, SACK blocks and the DSACK
// indication.
func decodeOptions(optData []byte, p *tcp.Packet) {
	p.Opts.WScale = -1
	for len(optData) > 0 {
		var opt headers.TCPOption
		var err error
		optData, opt, err = headers.NextOption(optData)
		if err != nil {
			// A malformed option is skipped; nothing after it can be
			// trusted, so stop here.
			sparse20.Printf("bad TCP option: %v", err)
			metrics.ErrorCount.WithLabelValues("tcpip", "bad_option").Inc()
			return
		}
		if opt.Kind == layers.TCPOptionKindEndList {
			return
		}
		switch opt.Kind {
		case layers.TCPOptionKindWindowScale:
			if p.Flags.SYN() {
				if ws, err := opt.GetWS(); err == nil {
					p.Opts.WScale = int8(ws)
				}
			}
		case layers.TCPOptionKindTimestamps:
			if tsval, tsecr, err := opt.GetTimestamps(); err == nil {
				p.Opts.TSVal = tsval
				p.Opts.TSEcr = tsecr
			}
		case layers.TCPOptionKindSACK:
			n, err := opt.NumSackBlocks()
			if err != nil {
				metrics.ErrorCount.WithLabelValues("tcpip", "bad_sack").Inc()
				continue
			}
			for i := 0; i < n; i++ {
				left, right, _ := opt.SackBlock(i)
				p.Opts.SackBlocks = append(p.Opts.SackBlocks, tcp.SackBlock{Left: left, Right: right})
			}
			if len(p.Opts.SackBlocks) > 0 {
				p.Opts.Sack = true
				p.Opts.DSack = isDSack(p.Ack, p.Opts.SackBlocks)
			}
		}
	}
}

// isDSack reports whether the first SACK block is a duplicate-SACK:
// its right edge is at or below the cumulative ACK, or its range is
// contained in a later block of the same option.
func isDSack(ack uint32, blocks []tcp.SackBlock) bool {
	first := blocks[0]
	if ack >= first.Right {
		return true
	}
	if ack <= first.Left {
		for _, b := range blocks[1:] {
			if first.Left >= b.Left && first.Right <= b.Right {
				return true
			}
		}
	}
	return false
}

// Summary describes one processed capture.
type Summary struct {
	Packets   int // IPv4/TCP packets fed to the model
	Skipped   int // frames that were not IPv4/TCP or failed to decode
	StartTime float64
	LastTime  float64

	Analyzer *tcp.Analyzer
}

// Duration returns the time covered by the processed packets.
func (s *Summary) Duration() float64 {
	return s.LastTime - s.StartTime
}

// ProcessPackets runs the full capture through a fresh analyzer.  Frame
// decode failures are local: the frame is skipped and counted, and
// processing continues.  Only an unreadable capture is fatal.
func ProcessPackets(data []byte, cfg tcp.Config) (Summary, error) {
	summary := Summary{Analyzer: tcp.NewAnalyzer(cfg)}

	src, err := capture.FromBytes(data)
	if err != nil {
		return summary, err
	}

	var p tcp.Packet
	for {
		frame, ci, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			metrics.WarningCount.WithLabelValues("tcpip", "read_error").Inc()
			return summary, err
		}
		if err := Decode(&ci, frame, &p); err != nil {
			summary.Skipped++
			metrics.ErrorCount.WithLabelValues("tcpip", "undecodable_frame").Inc()
			sparse20.Printf("skipping frame %d: %v", summary.Packets+summary.Skipped, err)
			continue
		}
		if summary.Packets == 0 {
			summary.StartTime = p.Ts
		}
		summary.LastTime = p.Ts
		summary.Analyzer.Process(&p)
		summary.Packets++
	}

	metrics.PacketCount.WithLabelValues("ipv4").Observe(float64(summary.Packets))
	return summary, nil
}
