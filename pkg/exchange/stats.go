package exchange

import "sync/atomic"

// Stats holds monotonic counters for observability. They never feed back
// into exchange behavior.
type Stats struct {
	RequestsSent          atomic.Uint64
	RequestsReceived      atomic.Uint64
	RequestsRelayed       atomic.Uint64
	ResponsesSent         atomic.Uint64
	ResponsesReceived     atomic.Uint64
	FragmentsSent         atomic.Uint64
	FragmentsReceived     atomic.Uint64
	ReassembliesCompleted atomic.Uint64
	ReassembliesRejected  atomic.Uint64
	ReassembliesExpired   atomic.Uint64
	CorruptResponses      atomic.Uint64
	RequestTimeouts       atomic.Uint64
	FallbackHits          atomic.Uint64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	RequestsSent          uint64
	RequestsReceived      uint64
	RequestsRelayed       uint64
	ResponsesSent         uint64
	ResponsesReceived     uint64
	FragmentsSent         uint64
	FragmentsReceived     uint64
	ReassembliesCompleted uint64
	ReassembliesRejected  uint64
	ReassembliesExpired   uint64
	CorruptResponses      uint64
	RequestTimeouts       uint64
	FallbackHits          uint64
}

// Snapshot reads all counters.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		RequestsSent:          s.RequestsSent.Load(),
		RequestsReceived:      s.RequestsReceived.Load(),
		RequestsRelayed:       s.RequestsRelayed.Load(),
		ResponsesSent:         s.ResponsesSent.Load(),
		ResponsesReceived:     s.ResponsesReceived.Load(),
		FragmentsSent:         s.FragmentsSent.Load(),
		FragmentsReceived:     s.FragmentsReceived.Load(),
		ReassembliesCompleted: s.ReassembliesCompleted.Load(),
		ReassembliesRejected:  s.ReassembliesRejected.Load(),
		ReassembliesExpired:   s.ReassembliesExpired.Load(),
		CorruptResponses:      s.CorruptResponses.Load(),
		RequestTimeouts:       s.RequestTimeouts.Load(),
		FallbackHits:          s.FallbackHits.Load(),
	}
}
