package headers

import (
	"fmt"
	"unsafe"

	"github.com/google/gopacket/layers"
)

var (
	ErrNotTCP             = fmt.Errorf("not a TCP packet")
	ErrTruncatedTCPHeader = fmt.Errorf("truncated TCP header")
	ErrBadOption          = fmt.Errorf("bad option")
)

/******************************************************************************
 * TCP Header
******************************************************************************/

// TCPHeader is the fixed-size part of the TCP header, in wire format.
type TCPHeader struct {
	srcPort, dstPort BE16  // Source and destination port
	seqNum           BE32  // Sequence number
	ackNum           BE32  // Acknowledgement number
	dataOffset       uint8 // DataOffset: upper 4 bits
	Flags                  // Flags
	window           BE16  // Window
	checksum         BE16  // Checksum
	urgent           BE16  // Urgent pointer
}

var TCPHeaderSize = int(unsafe.Sizeof(TCPHeader{}))

// Flags is the TCP flags byte with accessors for the individual bits.
type Flags uint8

func (f Flags) FIN() bool {
	return (f & 0x01) != 0
}

func (f Flags) SYN() bool {
	return (f & 0x02) != 0
}

func (f Flags) RST() bool {
	return (f & 0x04) != 0
}

func (f Flags) PSH() bool {
	return (f & 0x08) != 0
}

func (f Flags) ACK() bool {
	return (f & 0x10) != 0
}

func (f Flags) URG() bool {
	return (f & 0x20) != 0
}

func (f Flags) ECE() bool {
	return (f & 0x40) != 0
}

func (f Flags) CWR() bool {
	return (f & 0x80) != 0
}

func (h *TCPHeader) SrcPort() layers.TCPPort {
	return layers.TCPPort(h.srcPort.Uint16())
}

func (h *TCPHeader) DstPort() layers.TCPPort {
	return layers.TCPPort(h.dstPort.Uint16())
}

func (h *TCPHeader) SeqNum() uint32 {
	return h.seqNum.Uint32()
}

func (h *TCPHeader) AckNum() uint32 {
	return h.ackNum.Uint32()
}

func (h *TCPHeader) Window() uint16 {
	return h.window.Uint16()
}

// DataOffset returns the header length in bytes, including options.
func (h *TCPHeader) DataOffset() int {
	return 4 * int(h.dataOffset>>4)
}

// WrapTCP overlays a TCPHeader on data, after bounds checks.
func WrapTCP(data []byte) (*TCPHeader, error) {
	if len(data) < TCPHeaderSize {
		return nil, ErrTruncatedTCPHeader
	}
	tcp := (*TCPHeader)(unsafe.Pointer(&data[0]))
	if tcp.DataOffset() < TCPHeaderSize || tcp.DataOffset() > len(data) {
		return nil, ErrTruncatedTCPHeader
	}
	return tcp, nil
}

/******************************************************************************
 * TCP options
******************************************************************************/

// TCPOption holds a copy of a single decoded TCP option.
type TCPOption struct {
	Kind layers.TCPOptionKind // Kind of option
	Len  uint8                // Length of entire option including kind and length.
	data [38]byte             // Overlay of actual binary option fields, not likely to be full 38 bytes.
}

// USE WITH CAUTION:  This accesses an unsafe pointer.
func (o *TCPOption) getUint32(i int) uint32 {
	be := (*[10]BE32)(unsafe.Pointer(&o.data[0]))[i]
	return be.Uint32()
}

// USE WITH CAUTION:  This accesses an unsafe pointer.
func (o *TCPOption) getUint16(i int) uint16 {
	be := (*[20]BE16)(unsafe.Pointer(&o.data[0]))[i]
	return be.Uint16()
}

// GetMSS returns the MSS value of an MSS option.
func (o *TCPOption) GetMSS() (uint16, error) {
	if o.Kind != layers.TCPOptionKindMSS || o.Len != 4 {
		return 0, ErrBadOption
	}
	return o.getUint16(0), nil
}

// GetWS returns the shift count of a window scale option.
func (o *TCPOption) GetWS() (uint8, error) {
	if o.Kind != layers.TCPOptionKindWindowScale || o.Len != 3 {
		return 0, ErrBadOption
	}
	return o.data[0], nil
}

// GetTimestamps returns the TSval and TSecr fields of a timestamp option.
func (o *TCPOption) GetTimestamps() (uint32, uint32, error) {
	if o.Kind != layers.TCPOptionKindTimestamps || o.Len != 10 {
		return 0, 0, ErrBadOption
	}
	return o.getUint32(0), o.getUint32(1), nil
}

// NumSackBlocks returns the number of SACK blocks in a SACK option.
func (o *TCPOption) NumSackBlocks() (int, error) {
	if o.Kind != layers.TCPOptionKindSACK || (o.Len-2)%8 != 0 {
		return 0, ErrBadOption
	}
	return int(o.Len-2) / 8, nil
}

// SackBlock returns the left and right edges of the i-th SACK block.
func (o *TCPOption) SackBlock(i int) (left, right uint32, err error) {
	if n, err := o.NumSackBlocks(); err != nil || i >= n {
		return 0, 0, ErrBadOption
	}
	return o.getUint32(2 * i), o.getUint32(2*i + 1), nil
}

// NextOption decodes the next option from data, returning the remaining
// data.  It skips Nop options, and returns an EndList option when there
// are no more options.  This makes a copy of the option data.
func NextOption(data []byte) ([]byte, TCPOption, error) {
	// For loop to handle Nop options.
	for len(data) > 0 && data[0] == byte(layers.TCPOptionKindNop) {
		data = data[1:]
	}
	if len(data) == 0 {
		return nil, TCPOption{
			Kind: layers.TCPOptionKindEndList,
			Len:  1,
		}, nil
	}

	overlay := (*TCPOption)(unsafe.Pointer(&data[0]))
	switch overlay.Kind {
	// This won't be a nop, because we already handled those above.
	case layers.TCPOptionKindEndList:
		return nil, TCPOption{Kind: layers.TCPOptionKindEndList, Len: 1}, nil
	default:
		if len(data) < 2 {
			return nil, TCPOption{}, ErrTruncatedTCPHeader
		}
		if int(overlay.Len) > len(data) {
			return nil, TCPOption{}, ErrTruncatedTCPHeader
		}
		if overlay.Len < 2 || overlay.Len > 40 {
			return nil, TCPOption{}, ErrBadOption
		}
		opt := TCPOption{Kind: overlay.Kind, Len: overlay.Len}
		copy(opt.data[:], overlay.data[:overlay.Len-2])
		return data[overlay.Len:], opt, nil
	}
}
