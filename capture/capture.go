// Package capture reads link-layer frames from a pcap file.  Input may
// be raw, gzip-compressed, or zstd-compressed; the format is sniffed
// from the leading magic bytes.
package capture

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
	"github.com/valyala/gozstd"
)

var (
	ErrTruncatedPcap = fmt.Errorf("truncated pcap file")
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Source iterates over the frames of one capture.
type Source struct {
	pcap *pcapgo.Reader
}

// FromBytes opens a capture held in memory, decompressing it first when
// necessary.
func FromBytes(data []byte) (*Source, error) {
	if len(data) < 4 {
		return nil, ErrTruncatedPcap
	}
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		data, err = ioutil.ReadAll(gz)
		if err != nil {
			return nil, err
		}
	case bytes.HasPrefix(data, zstdMagic):
		var err error
		data, err = gozstd.Decompress(nil, data)
		if err != nil {
			return nil, err
		}
	}

	pcap, err := pcapgo.NewReader(bytes.NewReader(data))
	if err != nil {
		log.Print(err)
		return nil, err
	}
	return &Source{pcap: pcap}, nil
}

// FromFile opens a capture file.
func FromFile(name string) (*Source, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return FromBytes(data)
}

// Next returns the next frame and its capture metadata.  It returns
// io.EOF at the end of the capture.
func (s *Source) Next() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := s.pcap.ReadPacketData()
	if err != nil && err != io.EOF {
		if err == io.ErrUnexpectedEOF {
			// A trace cut off mid-packet still ends the iteration.
			return nil, ci, io.EOF
		}
		return nil, ci, err
	}
	return data, ci, err
}
