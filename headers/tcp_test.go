package headers_test

import (
	"encoding/binary"
	"testing"

	"github.com/google/gopacket/layers"

	"github.com/lennart-schulte/tcpdump-analyzer/headers"
)

func TestBESwaps(t *testing.T) {
	if got := (headers.BE16{0x12, 0x34}).Uint16(); got != 0x1234 {
		t.Errorf("BE16 = %x, want 1234", got)
	}
	if got := (headers.BE32{0x12, 0x34, 0x56, 0x78}).Uint32(); got != 0x12345678 {
		t.Errorf("BE32 = %x, want 12345678", got)
	}
}

func TestFlags(t *testing.T) {
	f := headers.Flags(0x12) // SYN|ACK
	if !f.SYN() || !f.ACK() || f.FIN() || f.RST() || f.PSH() || f.URG() {
		t.Errorf("flags %x decoded wrong", uint8(f))
	}
}

func TestWrapTCP(t *testing.T) {
	hdr := make([]byte, 20)
	binary.BigEndian.PutUint16(hdr[0:], 443)
	binary.BigEndian.PutUint16(hdr[2:], 52801)
	binary.BigEndian.PutUint32(hdr[4:], 12345)
	binary.BigEndian.PutUint32(hdr[8:], 67890)
	hdr[12] = 5 << 4 // data offset 20 bytes
	hdr[13] = 0x10   // ACK
	binary.BigEndian.PutUint16(hdr[14:], 8192)

	tcp, err := headers.WrapTCP(hdr)
	if err != nil {
		t.Fatal(err)
	}
	if tcp.SrcPort() != 443 || tcp.DstPort() != 52801 {
		t.Errorf("ports = %d/%d", tcp.SrcPort(), tcp.DstPort())
	}
	if tcp.SeqNum() != 12345 || tcp.AckNum() != 67890 {
		t.Errorf("seq/ack = %d/%d", tcp.SeqNum(), tcp.AckNum())
	}
	if tcp.Window() != 8192 || tcp.DataOffset() != 20 || !tcp.ACK() {
		t.Errorf("win/offset/flags = %d/%d/%x", tcp.Window(), tcp.DataOffset(), uint8(tcp.Flags))
	}

	if _, err := headers.WrapTCP(hdr[:19]); err != headers.ErrTruncatedTCPHeader {
		t.Errorf("short header: err = %v", err)
	}
	hdr[12] = 15 << 4 // claims 60-byte header in 20 bytes of data
	if _, err := headers.WrapTCP(hdr); err != headers.ErrTruncatedTCPHeader {
		t.Errorf("bad offset: err = %v", err)
	}
}

func TestNextOption(t *testing.T) {
	// nop, nop, timestamps(77, 88), sack[100,200)[300,400), end
	data := []byte{1, 1, 8, 10}
	ts := make([]byte, 8)
	binary.BigEndian.PutUint32(ts, 77)
	binary.BigEndian.PutUint32(ts[4:], 88)
	data = append(data, ts...)
	data = append(data, 5, 18)
	sack := make([]byte, 16)
	binary.BigEndian.PutUint32(sack[0:], 100)
	binary.BigEndian.PutUint32(sack[4:], 200)
	binary.BigEndian.PutUint32(sack[8:], 300)
	binary.BigEndian.PutUint32(sack[12:], 400)
	data = append(data, sack...)
	data = append(data, 0)

	rest, opt, err := headers.NextOption(data)
	if err != nil {
		t.Fatal(err)
	}
	if opt.Kind != layers.TCPOptionKindTimestamps {
		t.Fatalf("kind = %d, want timestamps", opt.Kind)
	}
	tsval, tsecr, err := opt.GetTimestamps()
	if err != nil || tsval != 77 || tsecr != 88 {
		t.Errorf("timestamps = %d/%d (%v), want 77/88", tsval, tsecr, err)
	}

	rest, opt, err = headers.NextOption(rest)
	if err != nil {
		t.Fatal(err)
	}
	if opt.Kind != layers.TCPOptionKindSACK {
		t.Fatalf("kind = %d, want sack", opt.Kind)
	}
	if n, err := opt.NumSackBlocks(); err != nil || n != 2 {
		t.Fatalf("sack blocks = %d (%v), want 2", n, err)
	}
	if l, r, _ := opt.SackBlock(0); l != 100 || r != 200 {
		t.Errorf("block 0 = [%d,%d), want [100,200)", l, r)
	}
	if l, r, _ := opt.SackBlock(1); l != 300 || r != 400 {
		t.Errorf("block 1 = [%d,%d), want [300,400)", l, r)
	}
	if _, _, err := opt.SackBlock(2); err == nil {
		t.Error("out of range sack block did not error")
	}

	_, opt, err = headers.NextOption(rest)
	if err != nil || opt.Kind != layers.TCPOptionKindEndList {
		t.Errorf("end = %d (%v), want end of list", opt.Kind, err)
	}
}

func TestNextOptionMalformed(t *testing.T) {
	// Length runs past the available data.
	if _, _, err := headers.NextOption([]byte{8, 10, 1, 2}); err != headers.ErrTruncatedTCPHeader {
		t.Errorf("err = %v, want truncated", err)
	}
	// Length smaller than the minimum.
	if _, _, err := headers.NextOption([]byte{8, 1, 0, 0}); err != headers.ErrBadOption {
		t.Errorf("err = %v, want bad option", err)
	}
	// A lone kind byte with no length.
	if _, _, err := headers.NextOption([]byte{8}); err != headers.ErrTruncatedTCPHeader {
		t.Errorf("err = %v, want truncated", err)
	}
	// The wrong accessor for an option kind.
	_, opt, err := headers.NextOption([]byte{3, 3, 7})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := opt.GetTimestamps(); err != headers.ErrBadOption {
		t.Errorf("err = %v, want bad option", err)
	}
	if ws, err := opt.GetWS(); err != nil || ws != 7 {
		t.Errorf("ws = %d (%v), want 7", ws, err)
	}
}
