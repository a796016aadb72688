package packet

import (
	"sort"
	"sync"

	"github.com/opd-ai/audiorx/rtptime"
)

// SortedQueue is a bounded per-session packet queue ordered by
// (media timestamp, sequence).
//
// The network context inserts, the audio context pops; both sides go
// through a short internal critical section and never block each other
// for longer than one operation. Overflow evicts the oldest packet so
// the producer is never blocked.
type SortedQueue struct {
	mu     sync.Mutex
	pkts   []*Packet
	cap    int
	closed bool

	latestEnd rtptime.MediaTS
	hasLatest bool

	dropped    uint64
	duplicates uint64
}

// NewSortedQueue creates a queue bounded to capacity packets.
func NewSortedQueue(capacity int) *SortedQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &SortedQueue{
		pkts: make([]*Packet, 0, capacity),
		cap:  capacity,
	}
}

// Insert adds a packet in timestamp order.
//
// Exact duplicates (same sequence and timestamp) are dropped silently.
// When the queue is full the oldest packet is evicted and counted as a
// loss. Insert takes over one reference to pkt: on duplicate drop or
// closed queue the reference is released here.
func (q *SortedQueue) Insert(pkt *Packet) error {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()
		pkt.Release()
		return ErrQueueClosed
	}

	// Binary search for the first entry ordered after pkt.
	i := sort.Search(len(q.pkts), func(i int) bool {
		d := rtptime.Diff(q.pkts[i].Timestamp, pkt.Timestamp)
		if d != 0 {
			return d > 0
		}
		return rtptime.SeqDiff(q.pkts[i].Seq, pkt.Seq) > 0
	})

	if i > 0 && q.pkts[i-1].Seq == pkt.Seq && q.pkts[i-1].Timestamp == pkt.Timestamp {
		q.duplicates++
		q.mu.Unlock()
		pkt.Release()
		return nil
	}

	q.pkts = append(q.pkts, nil)
	copy(q.pkts[i+1:], q.pkts[i:])
	q.pkts[i] = pkt

	if !q.hasLatest || rtptime.After(pkt.End(), q.latestEnd) {
		q.latestEnd = pkt.End()
		q.hasLatest = true
	}

	var evicted *Packet
	if len(q.pkts) > q.cap {
		evicted = q.pkts[0]
		copy(q.pkts, q.pkts[1:])
		q.pkts = q.pkts[:len(q.pkts)-1]
		q.dropped++
	}
	q.mu.Unlock()

	if evicted != nil {
		evicted.Release()
	}
	return nil
}

// PopFront removes and returns the earliest packet, or nil when the
// queue is empty. The caller owns the returned reference.
func (q *SortedQueue) PopFront() (*Packet, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}
	if len(q.pkts) == 0 {
		return nil, nil
	}
	pkt := q.pkts[0]
	copy(q.pkts, q.pkts[1:])
	q.pkts[len(q.pkts)-1] = nil
	q.pkts = q.pkts[:len(q.pkts)-1]
	return pkt, nil
}

// PeekFront returns the earliest packet without removing it. The queue
// keeps its reference; the caller must not release it.
func (q *SortedQueue) PeekFront() *Packet {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.pkts) == 0 {
		return nil
	}
	return q.pkts[0]
}

// LatestEnd returns the largest end timestamp ever inserted. The second
// result is false until the first insert.
func (q *SortedQueue) LatestEnd() (rtptime.MediaTS, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, false
	}
	return q.latestEnd, q.hasLatest
}

// Len returns the number of queued packets.
func (q *SortedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pkts)
}

// Dropped returns the number of packets evicted on overflow.
func (q *SortedQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Duplicates returns the number of duplicate inserts dropped.
func (q *SortedQueue) Duplicates() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.duplicates
}

// Close releases all queued packets and fails subsequent operations
// with ErrQueueClosed. Called when the owning session is destroyed.
func (q *SortedQueue) Close() {
	q.mu.Lock()
	pkts := q.pkts
	q.pkts = nil
	q.closed = true
	q.mu.Unlock()

	for _, pkt := range pkts {
		pkt.Release()
	}
}
