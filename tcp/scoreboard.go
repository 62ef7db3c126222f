package tcp

// updateSackScoreboard merges the SACK blocks carried by p into the
// connection's scoreboard.  Reordering detection for holes closed by
// the merge is interleaved with the structural updates: each move emits
// ReorderSACK (hole-closure check) and SackRetrans (ACK bookkeeping for
// retransmitted segments) before the next new block is considered.
func (a *Analyzer) updateSackScoreboard(con *Conn, p *Packet) {
	ack := p.Ack

	// The highest newly SACKed byte, 0 when the packet carries no blocks.
	var newlySacked uint32
	for _, nb := range p.Opts.SackBlocks {
		if nb.Left > newlySacked {
			newlySacked = nb.Left
		}
		if nb.Right > newlySacked {
			newlySacked = nb.Right
		}
	}

	// Purge blocks below the cumulative ACK.
	keep := con.Sblocks[:0]
	for _, sb := range con.Sblocks {
		if sb.Right > ack {
			keep = append(keep, sb)
		}
	}
	con.Sblocks = keep

	if len(con.Sblocks) > 0 {
		for _, nb := range p.Opts.SackBlocks {
			a.mergeBlock(con, p, nb, newlySacked)
		}
	} else {
		for _, nb := range p.Opts.SackBlocks {
			if nb.Left <= maxU32(ack, con.Acked) {
				continue
			}
			insertSorted(con, nb)
		}
		if len(con.Sblocks) > 0 {
			// There haven't been any SACK blocks, now there are new
			// incoming: possible start of disorder.
			a.recovery.CheckStart(con, p, newlySacked)
		}
	}

	if newlySacked > con.Sacked {
		con.Sacked = newlySacked
	}

	coalesce(con)
}

// mergeBlock folds one new SACK block into a non-empty scoreboard.
// Existing blocks are scanned in sorted order and the first matching
// classification wins.
func (a *Analyzer) mergeBlock(con *Conn, p *Packet, nb SackBlock, newlySacked uint32) {
	if nb.Right <= p.Ack {
		// DSACK reflection of already ACKed data.
		return
	}
	for i := range con.Sblocks {
		sb := &con.Sblocks[i]

		if nb.Left >= sb.Left && nb.Right <= sb.Right {
			// Already known.
			return
		}

		var saveHole uint32
		var newlyAcked []uint32
		switch {
		case nb.Left == sb.Left && nb.Right > sb.Right:
			// Extends upward.  The old right edge was a hole boundary
			// unless this was the last block.
			if i < len(con.Sblocks)-1 {
				saveHole = sb.Right
			}
			newlyAcked = []uint32{sb.Right}
			sb.Right = nb.Right
		case nb.Left < sb.Left && nb.Right == sb.Right:
			// Extends downward.
			saveHole = nb.Left
			newlyAcked = []uint32{nb.Left}
			sb.Left = nb.Left
		case nb.Left < sb.Left && nb.Right > sb.Right:
			// Extends both ways (ACK loss?).  No hole-closure signal.
			newlyAcked = []uint32{nb.Left, sb.Right}
			sb.Left = nb.Left
			sb.Right = nb.Right
		default:
			continue
		}
		a.reorder.ReorderSACK(saveHole, newlySacked, con, p)
		a.reorder.SackRetrans(newlyAcked, con.half)
		return
	}

	// No existing block matched: insert.  An insert below an existing
	// block closes the hole at its left edge.
	for j := range con.Sblocks {
		if con.Sblocks[j].Left >= nb.Right {
			con.Sblocks = append(con.Sblocks, SackBlock{})
			copy(con.Sblocks[j+1:], con.Sblocks[j:])
			con.Sblocks[j] = nb
			a.reorder.ReorderSACK(nb.Left, newlySacked, con, p)
			a.reorder.SackRetrans([]uint32{nb.Left}, con.half)
			return
		}
	}
	if con.Sblocks[len(con.Sblocks)-1].Right <= nb.Left {
		// Starts after the last block: append, no hole signal.
		con.Sblocks = append(con.Sblocks, nb)
	}
}

func insertSorted(con *Conn, nb SackBlock) {
	for j := range con.Sblocks {
		if con.Sblocks[j].Left >= nb.Left {
			con.Sblocks = append(con.Sblocks, SackBlock{})
			copy(con.Sblocks[j+1:], con.Sblocks[j:])
			con.Sblocks[j] = nb
			return
		}
	}
	con.Sblocks = append(con.Sblocks, nb)
}

// coalesce combines adjacent and overlapping scoreboard blocks until
// none overlap.  The scan restarts after each merge since indices have
// changed.
func coalesce(con *Conn) {
	for {
		merged := false
		for i := 0; i+1 < len(con.Sblocks); i++ {
			first, second := con.Sblocks[i], con.Sblocks[i+1]
			switch {
			case first.Left <= second.Left && first.Right >= second.Right:
				// First includes second.
				con.Sblocks = append(con.Sblocks[:i+1], con.Sblocks[i+2:]...)
			case first.Left >= second.Left && first.Right <= second.Right:
				// Second includes first.
				con.Sblocks = append(con.Sblocks[:i], con.Sblocks[i+1:]...)
			case first.Right >= second.Left:
				// Touching or overlapping edges: combine.
				con.Sblocks[i].Right = second.Right
				con.Sblocks = append(con.Sblocks[:i+1], con.Sblocks[i+2:]...)
			default:
				continue
			}
			merged = true
			break
		}
		if !merged {
			return
		}
	}
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
