// Package headers contains code to efficiently decode Ethernet, IPv4 and
// TCP packet headers from a PCAP data stream.
package headers

import (
	"fmt"
	"unsafe"

	"github.com/google/gopacket/layers"
)

var (
	ErrUnknownEtherType        = fmt.Errorf("unknown Ethernet type")
	ErrTruncatedEthernetHeader = fmt.Errorf("truncated Ethernet header")

	ErrNoIPLayer         = fmt.Errorf("no IP layer")
	ErrNotIPv4           = fmt.Errorf("not an IPv4 packet")
	ErrTruncatedIPHeader = fmt.Errorf("truncated IP header")
)

//=============================================================================

// These provide byte swapping from BigEndian to LittleEndian.
// Much much faster than binary.BigEndian.UintNN.
// NOTE: If this code is used on a BigEndian machine, the unit tests will fail.

// BE16 is a 16-bit big-endian value.
type BE16 [2]byte

// Uint16 returns the 16-bit value in LitteEndian.
func (b BE16) Uint16() uint16 {
	swap := [2]byte{b[1], b[0]}
	return *(*uint16)(unsafe.Pointer(&swap))
}

// BE32 is a 32-bit big-endian value.
type BE32 [4]byte

// Uint32 returns the 32-bit value in LitteEndian.
func (b BE32) Uint32() uint32 {
	swap := [4]byte{b[3], b[2], b[1], b[0]}
	return *(*uint32)(unsafe.Pointer(&swap))
}

/*******************************************************************************
							Ethernet Header handling
*******************************************************************************/

// EthernetHeader struct for the Ethernet Header, in wire format.
type EthernetHeader struct {
	SrcMAC, DstMAC [6]byte
	etherType      BE16 // BigEndian
}

// EtherType returns the EtherType field of the packet.
func (e *EthernetHeader) EtherType() layers.EthernetType {
	return layers.EthernetType(e.etherType.Uint16())
}

var EthernetHeaderSize = int(unsafe.Sizeof(EthernetHeader{}))

/******************************************************************************
 * 								IP Header handling
******************************************************************************/

// IPv4Header struct for IPv4 header, in wire format.
type IPv4Header struct {
	versionIHL    uint8             // Version (4 bits) + Internet header length (4 bits)
	typeOfService uint8             // Type of service
	length        BE16              // Total length
	id            BE16              // Identification
	flagsFragOff  BE16              // Flags (3 bits) + Fragment offset (13 bits)
	hopLimit      uint8             // Time to live
	protocol      layers.IPProtocol // Protocol of next following bytes, after the options
	checksum      BE16              // Header checksum
	srcIP         [4]byte           // Source address
	dstIP         [4]byte           // Destination address
}

var IPv4HeaderSize = int(unsafe.Sizeof(IPv4Header{}))

func (h *IPv4Header) Version() uint8 {
	return (h.versionIHL >> 4)
}

// HeaderLength returns the header length in bytes, including options.
func (h *IPv4Header) HeaderLength() int {
	return int(h.versionIHL&0x0f) << 2
}

// PayloadLength returns the length of the bytes following the IP header.
func (h *IPv4Header) PayloadLength() int {
	return int(h.length.Uint16()) - h.HeaderLength()
}

// SrcIP returns the source IP address of the packet.
func (h *IPv4Header) SrcIP() [4]byte {
	return h.srcIP
}

// DstIP returns the destination IP address of the packet.
func (h *IPv4Header) DstIP() [4]byte {
	return h.dstIP
}

// NextProtocol returns the next protocol in the stack.
func (h *IPv4Header) NextProtocol() layers.IPProtocol {
	return h.protocol
}

func (h *IPv4Header) HopLimit() uint8 {
	return h.hopLimit
}
