// Package recvqueue implements the per-socket inbound queue: stream
// sockets accumulate a contiguous byte buffer, datagram sockets hold a
// list of discrete messages each tagged with its sender endpoint, and
// both sides apply low/high watermark flow control.
package recvqueue

import (
	"container/list"
	"sync"

	"github.com/vireo-io/ntf/internal/endpoint"
)

// Mode selects stream (contiguous byte accumulation) or datagram
// (discrete message list) semantics.
type Mode int

const (
	ModeStream Mode = iota
	ModeDatagram
)

// message is one datagram-mode inbound packet.
type message struct {
	data   []byte
	source endpoint.Endpoint
}

// Event reports a flow-control or readiness transition the caller must
// deliver to the socket's strand after the call that produced it
// returns.
type Event struct {
	ReceiveReady       bool
	FlowControlApplied bool
	FlowControlRelaxed bool
}

// Queue buffers inbound bytes or messages up to a high watermark, and
// reports when consumers should be notified of available data.
// Every method takes the queue's mutex, so it is safe for concurrent use.
type Queue struct {
	mu sync.Mutex

	mode Mode

	// stream mode
	buf []byte

	// datagram mode
	messages list.List // of *message

	size          int
	lowWatermark  int
	highWatermark int
	minTransfer   int
	maxTransfer   int

	readyDelivered bool // receive-ready latches until a Take call
	flowApplied    bool // true while above high watermark (readiness disarmed)

	recvShut bool
}

// NewQueue creates an empty receive queue.
func NewQueue(mode Mode, lowWatermark, highWatermark, minTransfer, maxTransfer int) *Queue {
	return &Queue{
		mode:          mode,
		lowWatermark:  lowWatermark,
		highWatermark: highWatermark,
		minTransfer:   minTransfer,
		maxTransfer:   maxTransfer,
	}
}

// Feed appends bytes received from the kernel (stream mode) or a
// single datagram with its source (datagram mode — data is the whole
// message). It returns the flow-control/readiness events the caller
// must now deliver.
func (q *Queue) Feed(data []byte, source endpoint.Endpoint) Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.recvShut {
		return Event{}
	}

	switch q.mode {
	case ModeStream:
		q.buf = append(q.buf, data...)
	case ModeDatagram:
		q.messages.PushBack(&message{data: data, source: source})
	}
	q.size += len(data)

	var ev Event
	if !q.readyDelivered && q.size > 0 && q.size >= q.lowWatermark {
		q.readyDelivered = true
		ev.ReceiveReady = true
	}
	if !q.flowApplied && q.highWatermark > 0 && q.size > q.highWatermark {
		q.flowApplied = true
		ev.FlowControlApplied = true
	}
	return ev
}

// Take removes between min and max bytes (stream mode; bounded by the
// data actually available) or exactly one whole message (datagram mode
// — min/max are ignored, a message is never fragmented). It returns
// the data, the source endpoint (zero value for stream mode), whether
// any data was returned, and the flow-control event (if any) the
// caller must deliver.
func (q *Queue) Take(min, max int) (data []byte, source endpoint.Endpoint, ok bool, ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch q.mode {
	case ModeStream:
		if q.size < min && !(q.recvShut && q.size > 0) {
			return nil, endpoint.Endpoint{}, false, Event{}
		}
		n := max
		if n <= 0 || n > len(q.buf) {
			n = len(q.buf)
		}
		if n == 0 {
			return nil, endpoint.Endpoint{}, false, Event{}
		}
		data = q.buf[:n]
		q.buf = q.buf[n:]
		q.size -= n
	case ModeDatagram:
		front := q.messages.Front()
		if front == nil {
			return nil, endpoint.Endpoint{}, false, Event{}
		}
		m := front.Value.(*message)
		q.messages.Remove(front)
		data = m.data
		source = m.source
		q.size -= len(data)
	}

	q.readyDelivered = false
	if q.flowApplied && q.size <= q.lowWatermark {
		q.flowApplied = false
		ev.FlowControlRelaxed = true
	}
	return data, source, true, ev
}

// ShutRecv marks the queue as half-closed for receive: no further
// bytes are accepted via Feed, but data already queued remains
// deliverable via Take until fully drained.
func (q *Queue) ShutRecv() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recvShut = true
}

// Drained reports whether the queue is both empty and half-closed for
// receive — the point at which spec.md §4.3 considers it fully
// drained.
func (q *Queue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.recvShut && q.size == 0
}

// Size returns the current aggregate buffered byte count.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}
