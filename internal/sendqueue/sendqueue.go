// Package sendqueue implements the per-socket outbound queue: entries
// are enqueued with watermark bookkeeping, drained in contiguous
// batches bounded by scatter-limit and byte-count caps, and
// acknowledged as the kernel reports bytes written.
package sendqueue

import (
	"sync"
	"time"

	"github.com/vireo-io/ntf/internal/buffer"
	"github.com/vireo-io/ntf/internal/endpoint"
)

// Options supplements a queued entry with the fields ntsa_sendoptions.h
// carries: relative send priority, a zero-copy hint, a best-effort
// deadline, and an opaque correlation token handed back on completion.
type Options struct {
	Priority int
	ZeroCopy bool
	Deadline *time.Time
	Token    uint64
}

// CompletionContext is passed to an entry's callback once it has been
// fully acknowledged, canceled, or failed.
type CompletionContext struct {
	ID          uint64
	EnqueueTime time.Time
	Latency     time.Duration
	Err         error
}

// Callback is invoked exactly once per entry, on the owning strand.
type Callback func(CompletionContext)

// Entry is one queued send operation.
type Entry struct {
	ID          uint64
	Data        buffer.Buffer
	Destination *endpoint.Endpoint
	Options     Options
	EnqueueTime time.Time
	Deadline    *time.Time
	Callback    Callback

	// batchable is computed eagerly at Enqueue time: true for
	// contiguous buffer variants with no destination, or whose
	// destination matches the running batch's head entry.
	batchable bool

	remaining int // bytes not yet acknowledged, starts at Data.Len()
}

// Limits bounds a single Drain call.
type Limits struct {
	MaxBuffers int
	MaxBytes   int
}

// Queue is a FIFO of Entry, tracking aggregate size against low/high
// watermarks. Every method takes the queue's mutex, so producers may
// enqueue from any goroutine while the socket's strand drains it.
type Queue struct {
	mu sync.Mutex

	entries []*Entry
	size    int
	nextID  uint64

	lowWatermark  int
	highWatermark int

	// armedHigh is true once a high-watermark event has fired and not
	// yet been relaxed by a subsequent drop to/below the low mark; it
	// prevents firing High repeatedly while already above the mark.
	armedHigh bool
}

// NewQueue creates an empty send queue with the given watermarks.
func NewQueue(lowWatermark, highWatermark int) *Queue {
	return &Queue{lowWatermark: lowWatermark, highWatermark: highWatermark}
}

// EnqueueResult reports the watermark event (if any) Enqueue's caller
// must deliver after the call returns — never synchronously while the
// queue mutex is held.
type EnqueueResult struct {
	ID               uint64
	HighWatermarkHit bool
}

// Enqueue appends a new entry and returns its assigned id and whether
// the high watermark was just crossed.
func (q *Queue) Enqueue(data buffer.Buffer, dest *endpoint.Endpoint, opts Options, cb Callback) EnqueueResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	e := &Entry{
		ID:          q.nextID,
		Data:        data,
		Destination: dest,
		Options:     opts,
		EnqueueTime: now(),
		Deadline:    opts.Deadline,
		Callback:    cb,
		remaining:   data.Len(),
	}
	e.batchable = computeBatchable(data, dest, q.entries)

	q.entries = append(q.entries, e)
	q.size += e.remaining

	res := EnqueueResult{ID: e.ID}
	if !q.armedHigh && q.size > 0 && q.size >= q.highWatermark {
		q.armedHigh = true
		res.HighWatermarkHit = true
	}
	return res
}

func computeBatchable(data buffer.Buffer, dest *endpoint.Endpoint, existing []*Entry) bool {
	if data.Kind() == buffer.KindString {
		return false
	}
	if !data.Contiguous() {
		return false
	}
	if dest == nil {
		return true
	}
	if len(existing) == 0 {
		return true
	}
	head := existing[0]
	return head.Destination != nil && *head.Destination == *dest
}

// Drain returns the next contiguous batch of buffers: the head entry
// plus any leading run of batchable entries, subject to limits. It
// does not remove entries or update size; call Acknowledge once the
// kernel reports how many bytes were actually written.
func (q *Queue) Drain(limits Limits) (segments [][]byte, totalBytes int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	nowT := now()
	buffers := 0
	for i, e := range q.entries {
		if e.Deadline != nil && e.Deadline.Before(nowT) {
			break // expired entries are failed-in-place on next drain attempt, handled by caller via FailExpired
		}
		if i > 0 && !e.batchable {
			break
		}
		segs := e.Data.Segments()
		for _, s := range segs {
			remainingBudget := limits.MaxBytes - totalBytes
			if limits.MaxBytes > 0 && remainingBudget <= 0 {
				return segments, totalBytes
			}
			if limits.MaxBuffers > 0 && buffers >= limits.MaxBuffers {
				return segments, totalBytes
			}
			if limits.MaxBytes > 0 && len(s) > remainingBudget {
				s = s[:remainingBudget]
			}
			segments = append(segments, s)
			totalBytes += len(s)
			buffers++
		}
	}
	return segments, totalBytes
}

// AckResult reports watermark/completion events Acknowledge's caller
// must deliver after the call returns.
type AckResult struct {
	Completions     []CompletionContext
	LowWatermarkHit bool
}

// Acknowledge pops nBytes from the head of the queue, completing any
// entry whose remaining bytes are fully consumed, and fires the low
// watermark event (re-arming the high side) if size drops to or below
// the low mark having previously been above it.
func (q *Queue) Acknowledge(nBytes int) AckResult {
	q.mu.Lock()

	wasAboveLow := q.size > q.lowWatermark
	var res AckResult
	var fire []*Entry
	nowT := now()

	remaining := nBytes
	for remaining > 0 && len(q.entries) > 0 {
		e := q.entries[0]
		if remaining >= e.remaining {
			remaining -= e.remaining
			q.size -= e.remaining
			e.remaining = 0
			q.entries = q.entries[1:]
			res.Completions = append(res.Completions, CompletionContext{
				ID:          e.ID,
				EnqueueTime: e.EnqueueTime,
				Latency:     nowT.Sub(e.EnqueueTime),
			})
			fire = append(fire, e)
		} else {
			e.Data = e.Data.Consume(remaining)
			e.remaining -= remaining
			q.size -= remaining
			remaining = 0
		}
	}

	if wasAboveLow && q.size <= q.lowWatermark {
		res.LowWatermarkHit = true
		q.armedHigh = false
	}
	q.mu.Unlock()

	for i, e := range fire {
		if e.Callback != nil {
			e.Callback(res.Completions[i])
		}
	}
	return res
}

// FailExpired scans the head of the queue for entries whose deadline
// has passed and removes them, returning completion contexts carrying
// a caller-supplied timeout error. Entries are only checked at the
// head since Drain stops at the first expired entry.
func (q *Queue) FailExpired(timeoutErr error) []CompletionContext {
	q.mu.Lock()

	var completions []CompletionContext
	var fire []*Entry
	nowT := now()
	for len(q.entries) > 0 {
		e := q.entries[0]
		if e.Deadline == nil || !e.Deadline.Before(nowT) {
			break
		}
		q.size -= e.remaining
		q.entries = q.entries[1:]
		completions = append(completions, CompletionContext{
			ID:          e.ID,
			EnqueueTime: e.EnqueueTime,
			Latency:     nowT.Sub(e.EnqueueTime),
			Err:         timeoutErr,
		})
		fire = append(fire, e)
	}
	q.mu.Unlock()

	for i, e := range fire {
		if e.Callback != nil {
			e.Callback(completions[i])
		}
	}
	return completions
}

// FailAll removes every queued entry, returning completion contexts
// carrying err. The session calls it when a write fails or the session
// fails; a shutdown request alone leaves queued entries in place.
func (q *Queue) FailAll(err error) []CompletionContext {
	q.mu.Lock()

	completions := make([]CompletionContext, 0, len(q.entries))
	fire := q.entries
	nowT := now()
	for _, e := range q.entries {
		completions = append(completions, CompletionContext{
			ID:          e.ID,
			EnqueueTime: e.EnqueueTime,
			Latency:     nowT.Sub(e.EnqueueTime),
			Err:         err,
		})
	}
	q.entries = nil
	q.size = 0
	q.armedHigh = false
	q.mu.Unlock()

	for i, e := range fire {
		if e.Callback != nil {
			e.Callback(completions[i])
		}
	}
	return completions
}

// Size returns the current aggregate unacknowledged byte count.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// now is a seam for deterministic tests; production code always uses
// wall-clock time.
var now = time.Now
