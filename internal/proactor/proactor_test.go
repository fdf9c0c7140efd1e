//go:build linux

package proactor

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestSendRecvCompletes(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair() error: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	p, err := NewProactor(32)
	if err != nil {
		t.Skipf("io_uring unavailable in this environment: %v", err)
	}
	defer p.Close()

	sendBuf := []byte("hello")
	recvBuf := make([]byte, 16)

	var sendDone, recvDone bool
	var recvResult Completion

	if err := p.SubmitSend(fds[1], sendBuf, 1, func(c Completion) {
		sendDone = true
	}); err != nil {
		t.Fatalf("SubmitSend() error: %v", err)
	}
	if err := p.SubmitRecv(fds[0], recvBuf, 2, func(c Completion) {
		recvDone = true
		recvResult = c
	}); err != nil {
		t.Fatalf("SubmitRecv() error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !(sendDone && recvDone) && time.Now().Before(deadline) {
		if err := p.Wait(100 * time.Millisecond); err != nil {
			t.Fatalf("Wait() error: %v", err)
		}
	}

	if !sendDone {
		t.Fatal("send completion never fired")
	}
	if !recvDone {
		t.Fatal("recv completion never fired")
	}
	if recvResult.Err != nil {
		t.Fatalf("recv completed with error: %v", recvResult.Err)
	}
	if int(recvResult.Result) != len(sendBuf) {
		t.Fatalf("recv Result = %d, want %d", recvResult.Result, len(sendBuf))
	}
	if string(recvBuf[:recvResult.Result]) != "hello" {
		t.Fatalf("recv buffer = %q, want %q", recvBuf[:recvResult.Result], "hello")
	}
}

func TestSendCompletionReportsOp(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair() error: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	p, err := NewProactor(32)
	if err != nil {
		t.Skipf("io_uring unavailable in this environment: %v", err)
	}
	defer p.Close()

	var sendOp, recvOp Op
	var sendDone, recvDone bool

	if err := p.SubmitSend(fds[1], []byte("hi"), 1, func(c Completion) {
		sendOp = c.Op
		sendDone = true
	}); err != nil {
		t.Fatalf("SubmitSend() error: %v", err)
	}
	if err := p.SubmitRecv(fds[0], make([]byte, 16), 2, func(c Completion) {
		recvOp = c.Op
		recvDone = true
	}); err != nil {
		t.Fatalf("SubmitRecv() error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !(sendDone && recvDone) && time.Now().Before(deadline) {
		if err := p.Wait(100 * time.Millisecond); err != nil {
			t.Fatalf("Wait() error: %v", err)
		}
	}

	if sendOp != OpSend {
		t.Fatalf("send completion Op = %v, want OpSend", sendOp)
	}
	if recvOp != OpRecv {
		t.Fatalf("recv completion Op = %v, want OpRecv", recvOp)
	}
}

func TestSendZCDeliversResultThenNotif(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair() error: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	p, err := NewProactor(32)
	if err != nil {
		t.Skipf("io_uring unavailable in this environment: %v", err)
	}
	defer p.Close()

	sendBuf := []byte("zero-copy payload")
	recvBuf := make([]byte, 32)

	var completions []Completion
	var recvDone bool

	if err := p.SubmitSendZC(fds[1], sendBuf, 1, func(c Completion) {
		completions = append(completions, c)
	}); err != nil {
		t.Fatalf("SubmitSendZC() error: %v", err)
	}
	if err := p.SubmitRecv(fds[0], recvBuf, 2, func(c Completion) {
		recvDone = true
	}); err != nil {
		t.Fatalf("SubmitRecv() error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !(recvDone && len(completions) >= 2) && time.Now().Before(deadline) {
		if err := p.Wait(100 * time.Millisecond); err != nil {
			t.Fatalf("Wait() error: %v", err)
		}
	}

	if len(completions) < 2 {
		t.Fatalf("got %d completions, want at least 2 (transfer result + release notif)", len(completions))
	}
	for _, c := range completions {
		if c.Op != OpSendZC {
			t.Fatalf("completion Op = %v, want OpSendZC", c.Op)
		}
	}
	if completions[0].Err != nil {
		t.Fatalf("first SendZC completion error: %v", completions[0].Err)
	}
	if !completions[len(completions)-1].Notif {
		t.Fatal("final SendZC completion should carry Notif, signaling the buffer is now releasable")
	}
}

func TestTimeoutCompletes(t *testing.T) {
	p, err := NewProactor(32)
	if err != nil {
		t.Skipf("io_uring unavailable in this environment: %v", err)
	}
	defer p.Close()

	var fired bool
	if err := p.SubmitTimeout(10*time.Millisecond, 1, func(c Completion) {
		fired = true
	}); err != nil {
		t.Fatalf("SubmitTimeout() error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !fired && time.Now().Before(deadline) {
		if err := p.Wait(100 * time.Millisecond); err != nil {
			t.Fatalf("Wait() error: %v", err)
		}
	}
	if !fired {
		t.Fatal("timeout completion never fired")
	}
}
