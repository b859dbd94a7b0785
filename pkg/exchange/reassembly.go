package exchange

import (
	"time"

	"github.com/verdantfs/verdant/pkg/types"
)

// pendingReassembly buffers the fragments of one in-flight block.
type pendingReassembly struct {
	hash      types.Hash
	fragments [][]byte
	received  int
	buffered  int
	started   time.Time
	lastFrag  time.Time
}

// reassemblyConfig bounds the fragment buffers.
type reassemblyConfig struct {
	// stallTimeout cancels a reassembly that has not seen a fragment within
	// the window; totalTimeout is the worst-case completion bound.
	stallTimeout time.Duration
	totalTimeout time.Duration
	// maxPending and maxBufferedBytes are global caps across all
	// reassemblies. Under pressure new reassemblies are rejected; in-flight
	// ones are never evicted, since they are closer to completion.
	maxPending       int
	maxBufferedBytes int
}

// reassemblyTable is owned by the exchange event loop; no locking.
type reassemblyTable struct {
	cfg      reassemblyConfig
	pending  map[types.Hash]*pendingReassembly
	buffered int
}

func newReassemblyTable(cfg reassemblyConfig) *reassemblyTable {
	return &reassemblyTable{cfg: cfg, pending: make(map[types.Hash]*pendingReassembly)}
}

// accept buffers one fragment. It returns the complete block bytes once all
// fragments are present, or nil while the reassembly is still in flight.
// ok is false when the fragment was rejected (caps reached, or inconsistent
// with what is already buffered).
func (t *reassemblyTable) accept(hash types.Hash, index, total uint32, data []byte, now time.Time) (block []byte, ok bool) {
	if total == 0 || index >= total {
		return nil, false
	}

	p, exists := t.pending[hash]
	if exists {
		if int(total) != len(p.fragments) {
			return nil, false
		}
		if p.fragments[index] != nil {
			// Duplicate fragment; harmless.
			p.lastFrag = now
			return nil, true
		}
	}
	if t.buffered+len(data) > t.cfg.maxBufferedBytes {
		return nil, false
	}
	if !exists {
		// All caps are checked before the entry exists, so a rejected first
		// fragment never occupies a pending slot.
		if len(t.pending) >= t.cfg.maxPending {
			return nil, false
		}
		p = &pendingReassembly{
			hash:      hash,
			fragments: make([][]byte, total),
			started:   now,
		}
		t.pending[hash] = p
	}

	p.fragments[index] = data
	p.received++
	p.buffered += len(data)
	t.buffered += len(data)
	p.lastFrag = now

	if p.received < len(p.fragments) {
		return nil, true
	}

	t.release(hash)
	out := make([]byte, 0, p.buffered)
	for _, frag := range p.fragments {
		out = append(out, frag...)
	}
	return out, true
}

// release drops a reassembly and frees its budget.
func (t *reassemblyTable) release(hash types.Hash) {
	if p, exists := t.pending[hash]; exists {
		t.buffered -= p.buffered
		delete(t.pending, hash)
	}
}

// sweep cancels reassemblies that stalled or exceeded the total bound and
// returns their hashes.
func (t *reassemblyTable) sweep(now time.Time) []types.Hash {
	var expired []types.Hash
	for hash, p := range t.pending {
		if now.Sub(p.lastFrag) > t.cfg.stallTimeout || now.Sub(p.started) > t.cfg.totalTimeout {
			expired = append(expired, hash)
		}
	}
	for _, hash := range expired {
		t.release(hash)
	}
	return expired
}
