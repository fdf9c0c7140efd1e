package detach

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestAcquireReportsAttached(t *testing.T) {
	c := NewCoordinator()
	if !c.Acquire() {
		t.Fatal("Acquire() on a fresh coordinator should report attached")
	}
	c.Release()
}

func TestAcquireAfterDetachRequestedReportsFalse(t *testing.T) {
	c := NewCoordinator()
	c.RequestDetach()
	if c.Acquire() {
		t.Fatal("Acquire() after RequestDetach() should report false")
	}
	c.Release()
}

func TestRequestDetachIsIdempotent(t *testing.T) {
	c := NewCoordinator()
	if !c.RequestDetach() {
		t.Fatal("first RequestDetach() should succeed")
	}
	if c.RequestDetach() {
		t.Fatal("second RequestDetach() should report false")
	}
}

func TestReleaseFiresOnlyWhenDetachingAndRefsZero(t *testing.T) {
	c := NewCoordinator()
	c.Acquire()
	c.Acquire()
	c.RequestDetach()

	if c.Release() {
		t.Fatal("Release() with one outstanding ref should not fire completion")
	}
	if !c.Release() {
		t.Fatal("Release() with refs reaching zero while detaching should fire completion")
	}
}

func TestReleaseDoesNotFireWhenStillAttached(t *testing.T) {
	c := NewCoordinator()
	c.Acquire()
	if c.Release() {
		t.Fatal("Release() while still attached should never fire completion")
	}
}

func TestMarkDetachedTransitionsState(t *testing.T) {
	c := NewCoordinator()
	c.Acquire()
	c.RequestDetach()
	c.Release()
	c.MarkDetached()
	if c.State() != StateDetached {
		t.Fatalf("State() = %v, want StateDetached", c.State())
	}
}

func TestCompletionFiresExactlyOnceUnderConcurrency(t *testing.T) {
	c := NewCoordinator()
	const workers = 50
	var wg sync.WaitGroup
	var fires int32

	// All workers acquire before detach is requested, simulating
	// concurrent driver threads mid-callback on the socket.
	for i := 0; i < workers; i++ {
		c.Acquire()
	}

	c.RequestDetach()

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Release() {
				atomic.AddInt32(&fires, 1)
			}
		}()
	}
	wg.Wait()

	if fires != 1 {
		t.Fatalf("completion fired %d times, want exactly 1", fires)
	}
	if c.Refs() != 0 {
		t.Fatalf("Refs() = %d, want 0", c.Refs())
	}
}
