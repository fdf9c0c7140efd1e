package sendqueue

import (
	"errors"
	"testing"
	"time"

	"github.com/vireo-io/ntf/internal/buffer"
	"github.com/vireo-io/ntf/internal/endpoint"
)

func TestEnqueueAssignsMonotonicIDs(t *testing.T) {
	q := NewQueue(0, 1<<20)
	r1 := q.Enqueue(buffer.NewBlob([]byte("a")), nil, Options{}, nil)
	r2 := q.Enqueue(buffer.NewBlob([]byte("b")), nil, Options{}, nil)
	if r2.ID <= r1.ID {
		t.Fatalf("expected monotonic ids, got %d then %d", r1.ID, r2.ID)
	}
}

func TestHighWatermarkLatchedOnce(t *testing.T) {
	q := NewQueue(0, 10)
	r1 := q.Enqueue(buffer.NewBlob(make([]byte, 10)), nil, Options{}, nil)
	if !r1.HighWatermarkHit {
		t.Fatal("expected high watermark hit on first crossing")
	}
	r2 := q.Enqueue(buffer.NewBlob(make([]byte, 5)), nil, Options{}, nil)
	if r2.HighWatermarkHit {
		t.Fatal("high watermark should not re-fire while already armed")
	}
}

func TestHighWatermarkZeroArmsOnFirstEnqueue(t *testing.T) {
	q := NewQueue(0, 0)
	r := q.Enqueue(buffer.NewBlob([]byte("x")), nil, Options{}, nil)
	if !r.HighWatermarkHit {
		t.Fatal("expected high watermark hit on first non-empty enqueue when high_watermark == 0")
	}
}

func TestDrainReturnsBatchableRun(t *testing.T) {
	q := NewQueue(0, 1<<20)
	q.Enqueue(buffer.NewBlob([]byte("foo")), nil, Options{}, nil)
	q.Enqueue(buffer.NewBlob([]byte("bar")), nil, Options{}, nil)
	q.Enqueue(buffer.NewString("baz"), nil, Options{}, nil) // strings are unbatchable

	segs, total := q.Drain(Limits{})
	if total != 6 {
		t.Fatalf("Drain() total = %d, want 6 (stops before unbatchable string entry)", total)
	}
	if len(segs) != 2 {
		t.Fatalf("Drain() returned %d segments, want 2", len(segs))
	}
}

func TestDrainRespectsMaxBuffers(t *testing.T) {
	q := NewQueue(0, 1<<20)
	q.Enqueue(buffer.NewBlob([]byte("a")), nil, Options{}, nil)
	q.Enqueue(buffer.NewBlob([]byte("b")), nil, Options{}, nil)
	q.Enqueue(buffer.NewBlob([]byte("c")), nil, Options{}, nil)

	segs, total := q.Drain(Limits{MaxBuffers: 2})
	if len(segs) != 2 || total != 2 {
		t.Fatalf("Drain() = segs=%d total=%d, want 2/2", len(segs), total)
	}
}

func TestDrainRespectsMaxBytes(t *testing.T) {
	q := NewQueue(0, 1<<20)
	q.Enqueue(buffer.NewBlob([]byte("hello")), nil, Options{}, nil)

	_, total := q.Drain(Limits{MaxBytes: 3})
	if total != 3 {
		t.Fatalf("Drain() total = %d, want 3", total)
	}
}

func TestDifferentDestinationBreaksBatch(t *testing.T) {
	q := NewQueue(0, 1<<20)
	a := endpoint.NewIPv4Endpoint(1, 1, 1, 1, 1)
	b := endpoint.NewIPv4Endpoint(2, 2, 2, 2, 2)
	q.Enqueue(buffer.NewBlob([]byte("to-a")), &a, Options{}, nil)
	q.Enqueue(buffer.NewBlob([]byte("to-b")), &b, Options{}, nil)

	_, total := q.Drain(Limits{})
	if total != 4 {
		t.Fatalf("Drain() total = %d, want 4 (only the head entry, different destination)", total)
	}
}

func TestAcknowledgeCompletesEntryAndFiresLowWatermark(t *testing.T) {
	q := NewQueue(2, 10)
	var completed []CompletionContext
	q.Enqueue(buffer.NewBlob(make([]byte, 10)), nil, Options{}, func(c CompletionContext) {
		completed = append(completed, c)
	})

	res := q.Acknowledge(10)
	if len(res.Completions) != 1 {
		t.Fatalf("Acknowledge() completions = %d, want 1", len(res.Completions))
	}
	if !res.LowWatermarkHit {
		t.Fatal("expected low watermark hit after draining to zero")
	}
	if q.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", q.Size())
	}
}

func TestAcknowledgePartialDoesNotComplete(t *testing.T) {
	q := NewQueue(0, 1<<20)
	q.Enqueue(buffer.NewBlob(make([]byte, 10)), nil, Options{}, nil)

	res := q.Acknowledge(4)
	if len(res.Completions) != 0 {
		t.Fatal("partial acknowledge should not complete the entry")
	}
	if q.Size() != 6 {
		t.Fatalf("Size() = %d, want 6", q.Size())
	}
}

func TestPartialAcknowledgeAdvancesEntryForNextDrain(t *testing.T) {
	q := NewQueue(0, 1<<20)
	original := make([]byte, 1<<20) // 1MB, larger than any single drain chunk below
	for i := range original {
		original[i] = byte(i)
	}
	q.Enqueue(buffer.NewBlob(original), nil, Options{}, nil)

	const chunk = 256 * 1024
	var got []byte
	for len(got) < len(original) {
		segs, total := q.Drain(Limits{MaxBytes: chunk})
		if total == 0 {
			t.Fatalf("Drain() returned 0 bytes with %d still outstanding", len(original)-len(got))
		}
		for _, s := range segs {
			got = append(got, s...)
		}
		q.Acknowledge(total)
	}

	if len(got) != len(original) {
		t.Fatalf("drained %d bytes total, want %d", len(got), len(original))
	}
	for i := range original {
		if got[i] != original[i] {
			t.Fatalf("byte %d = %d, want %d (drained bytes are not the original in order, exactly once)", i, got[i], original[i])
		}
	}
}

func TestFailAllCancelsEveryEntry(t *testing.T) {
	q := NewQueue(0, 1<<20)
	q.Enqueue(buffer.NewBlob([]byte("a")), nil, Options{}, nil)
	q.Enqueue(buffer.NewBlob([]byte("b")), nil, Options{}, nil)

	errCanceled := errors.New("canceled")
	completions := q.FailAll(errCanceled)
	if len(completions) != 2 {
		t.Fatalf("FailAll() completions = %d, want 2", len(completions))
	}
	for _, c := range completions {
		if c.Err != errCanceled {
			t.Fatalf("completion error = %v, want %v", c.Err, errCanceled)
		}
	}
	if q.Len() != 0 || q.Size() != 0 {
		t.Fatal("queue should be empty after FailAll")
	}
}

func TestFailExpiredOnlyRemovesPastDeadline(t *testing.T) {
	q := NewQueue(0, 1<<20)
	past := time.Now().Add(-time.Second)
	future := time.Now().Add(time.Hour)

	q.Enqueue(buffer.NewBlob([]byte("expired")), nil, Options{Deadline: &past}, nil)
	q.Enqueue(buffer.NewBlob([]byte("ok")), nil, Options{Deadline: &future}, nil)

	completions := q.FailExpired(errors.New("timeout"))
	if len(completions) != 1 {
		t.Fatalf("FailExpired() completions = %d, want 1", len(completions))
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 remaining", q.Len())
	}
}
