package session

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/vireo-io/ntf/internal/buffer"
	"github.com/vireo-io/ntf/internal/endpoint"
	"github.com/vireo-io/ntf/internal/recvqueue"
	"github.com/vireo-io/ntf/internal/sendqueue"
	"github.com/vireo-io/ntf/internal/shutdown"
)

// tempErr simulates EAGAIN/EWOULDBLOCK via the Temporary() contract
// isWouldBlock checks for.
type tempErr struct{}

func (tempErr) Error() string   { return "temporary" }
func (tempErr) Temporary() bool { return true }

// fakeConn is an in-memory Syscalls double: reads come from a
// preloaded queue of (data, err) steps, writes append to out.
type fakeConn struct {
	mu    sync.Mutex
	steps []readStep
	out   []byte
}

type readStep struct {
	data []byte
	err  error
}

func (f *fakeConn) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.steps) == 0 {
		return 0, tempErr{}
	}
	step := f.steps[0]
	f.steps = f.steps[1:]
	n := copy(p, step.data)
	return n, step.err
}

func (f *fakeConn) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, p...)
	return len(p), nil
}

func (f *fakeConn) FD() int { return 42 }

func newTestSession(conn *fakeConn, cb Callbacks) *Session {
	return New(conn, endpoint.Endpoint{}, endpoint.Endpoint{}, Options{
		SendHighWatermark: 1 << 20,
		RecvMode:          recvqueue.ModeStream,
		RecvLow:           1,
		RecvHigh:          1 << 20,
	}, cb)
}

func TestOnReadableFeedsRecvQueueAndFiresCallback(t *testing.T) {
	conn := &fakeConn{steps: []readStep{{data: []byte("hello")}}}
	var got recvqueue.Event
	var fired bool
	s := newTestSession(conn, Callbacks{
		OnReceive: func(ev recvqueue.Event) { got = ev; fired = true },
	})

	s.OnReadable()

	if !fired {
		t.Fatal("OnReceive was never called")
	}
	if !got.ReceiveReady {
		t.Fatal("expected ReceiveReady on first data")
	}
	data, _, ok, _ := s.recv.Take(0, 0)
	if !ok || string(data) != "hello" {
		t.Fatalf("recv queue contents = %q, ok=%v, want %q", data, ok, "hello")
	}
}

func TestOnReadableEOFTriggersRecvShutdown(t *testing.T) {
	conn := &fakeConn{steps: []readStep{{err: io.EOF}}}
	var res shutdown.Result
	var fired bool
	s := newTestSession(conn, Callbacks{
		OnShutdown: func(r shutdown.Result) { res = r; fired = true },
	})

	s.OnReadable()

	if !fired {
		t.Fatal("OnShutdown was never called")
	}
	if !res.RecvNewlyShut {
		t.Fatal("expected RecvNewlyShut after EOF")
	}
	if s.shut.State() != shutdown.StateRecvShut && s.shut.State() != shutdown.StateBothShut {
		t.Fatalf("State() = %v, want recv_shut or both_shut", s.shut.State())
	}
}

func TestOnReadableErrorFailsSession(t *testing.T) {
	boom := errors.New("connection reset")
	conn := &fakeConn{steps: []readStep{{err: boom}}}
	var gotErr error
	var shutRes shutdown.Result
	s := newTestSession(conn, Callbacks{
		OnError:    func(err error) { gotErr = err },
		OnShutdown: func(r shutdown.Result) { shutRes = r },
	})

	s.OnReadable()

	if gotErr != boom {
		t.Fatalf("OnError got %v, want %v", gotErr, boom)
	}
	if !shutRes.BothShut {
		t.Fatal("expected BothShut after a fatal read error")
	}
	if s.LastError() != boom {
		t.Fatalf("LastError() = %v, want %v", s.LastError(), boom)
	}
}

func TestSendThenOnWritableDrainsAndAcknowledges(t *testing.T) {
	conn := &fakeConn{}
	s := newTestSession(conn, Callbacks{})

	var completed sendqueue.CompletionContext
	var fired bool
	if err := s.Send(buffer.NewBlob([]byte("payload")), nil, sendqueue.Options{}, func(c sendqueue.CompletionContext) {
		completed = c
		fired = true
	}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if !s.WantWrite() {
		t.Fatal("expected WantWrite() true after Send()")
	}

	s.OnWritable()

	if string(conn.out) != "payload" {
		t.Fatalf("conn.out = %q, want %q", conn.out, "payload")
	}
	if !fired {
		t.Fatal("send completion callback never fired")
	}
	if completed.Err != nil {
		t.Fatalf("completion error = %v, want nil", completed.Err)
	}
	if s.WantWrite() {
		t.Fatal("expected WantWrite() false after queue drains")
	}
}

func TestSendAfterDetachReturnsErrClosed(t *testing.T) {
	conn := &fakeConn{}
	s := newTestSession(conn, Callbacks{})

	done := make(chan struct{})
	s.Detach(func() { close(done) })
	<-done

	if err := s.Send(buffer.NewBlob([]byte("x")), nil, sendqueue.Options{}, nil); err != ErrClosed {
		t.Fatalf("Send() after Detach() = %v, want ErrClosed", err)
	}
}

func TestDetachFiresExactlyOnceUnderConcurrentEvents(t *testing.T) {
	conn := &fakeConn{}
	s := newTestSession(conn, Callbacks{})

	var fires int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.OnReadable()
		}()
	}

	detachDone := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Detach(func() {
			atomic.AddInt32(&fires, 1)
			close(detachDone)
		})
	}()

	wg.Wait()
	<-detachDone

	if fires != 1 {
		t.Fatalf("detach completion fired %d times, want 1", fires)
	}
}

func TestShutdownRequestInvokesCallback(t *testing.T) {
	conn := &fakeConn{}
	var res shutdown.Result
	s := newTestSession(conn, Callbacks{
		OnShutdown: func(r shutdown.Result) { res = r },
	})

	got := s.Shutdown(shutdown.RequestShutSend)

	if !got.SendNewlyShut {
		t.Fatal("Shutdown() result should report SendNewlyShut")
	}
	if !res.SendNewlyShut {
		t.Fatal("OnShutdown callback should observe SendNewlyShut")
	}
}
