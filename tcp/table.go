package tcp

import "github.com/google/gopacket/layers"

type flowKey struct {
	src, dst     [4]byte
	sport, dport layers.TCPPort
}

// Table maps 4-tuples to connections.  Insertion order is preserved so
// that reports are deterministic for a given trace.
type Table struct {
	conns []*Conn
	index map[flowKey]*Conn
}

func NewTable() *Table {
	return &Table{index: make(map[flowKey]*Conn)}
}

// Find returns the connection matching the packet's 4-tuple, or nil.
func (t *Table) Find(p *Packet) *Conn {
	return t.index[flowKey{p.SrcIP, p.DstIP, p.SrcPort, p.DstPort}]
}

// FindHalf returns the reverse-direction connection for c, or nil.
func (t *Table) FindHalf(c *Conn) *Conn {
	return t.index[flowKey{c.DstIP, c.SrcIP, c.DstPort, c.SrcPort}]
}

// Add registers a new connection.
func (t *Table) Add(c *Conn) {
	t.conns = append(t.conns, c)
	t.index[flowKey{c.SrcIP, c.DstIP, c.SrcPort, c.DstPort}] = c
}

// Conns returns all connections in insertion order.
func (t *Table) Conns() []*Conn {
	return t.conns
}
