package ntf

import (
	"sync"
	"testing"
	"time"
)

func mustParseEndpoint(t *testing.T, text string) Endpoint {
	t.Helper()
	ep, err := ParseEndpoint(text)
	if err != nil {
		t.Fatalf("parse endpoint %q: %v", text, err)
	}
	return ep
}

// TestSchedulerLoopbackEcho exercises the full connect/send/receive/
// shutdown path end to end over a real loopback TCP connection: a
// Listener accepts one connection and echoes back whatever it reads,
// a Connect-ed client socket sends a payload and waits for the echo,
// then both sides shut down cleanly.
func TestSchedulerLoopbackEcho(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxThreads = 2
	sched, err := NewScheduler(cfg)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	if err := sched.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sched.Stop()

	sockOpts := DefaultSocketOptions()
	ropts := DefaultReactorOptions()

	var accepted sync.WaitGroup
	accepted.Add(1)

	listener, err := sched.Listen(TransportTCPv4, mustParseEndpoint(t, "127.0.0.1:0"), 0, sockOpts, ropts,
		func(sock *Socket, err error) {
			defer accepted.Done()
			if err != nil {
				t.Errorf("accept: %v", err)
				return
			}
			sock.OnEvent(func(ev Event) {
				if ev.Kind == EventReadQueueLowWatermark {
					for {
						data, _, ok := sock.Receive(1, 64*1024)
						if !ok {
							return
						}
						buf := make([]byte, len(data))
						copy(buf, data)
						if err := sock.Send(NewBlob(buf), nil, SendOptions{}, nil); err != nil {
							t.Errorf("echo send: %v", err)
							return
						}
					}
				}
			})
		})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	bound, err := listener.Addr()
	if err != nil {
		t.Fatalf("listener addr: %v", err)
	}

	received := make(chan []byte, 1)
	var gotConnect sync.WaitGroup
	gotConnect.Add(1)

	client, err := sched.Connect(TransportTCPv4, Endpoint{}, bound, sockOpts, ropts, func(ev Event) {
		switch ev.Kind {
		case EventConnectComplete:
			gotConnect.Done()
		case EventReadQueueLowWatermark:
			// handled via ClientSocket below
		}
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	waitOrTimeout(t, &gotConnect, 2*time.Second, "connect complete")

	client.OnEvent(func(ev Event) {
		if ev.Kind != EventReadQueueLowWatermark {
			return
		}
		data, _, ok := client.Receive(1, 64*1024)
		if !ok {
			return
		}
		buf := make([]byte, len(data))
		copy(buf, data)
		select {
		case received <- buf:
		default:
		}
	})

	payload := []byte("hello over the wire")
	if err := client.Send(NewBlob(payload), nil, SendOptions{}, nil); err != nil {
		t.Fatalf("client send: %v", err)
	}

	waitOrTimeout(t, &accepted, 2*time.Second, "accept")

	select {
	case got := <-received:
		if string(got) != string(payload) {
			t.Fatalf("echoed payload = %q, want %q", got, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed payload")
	}

	res := client.Shutdown(ShutdownBoth)
	if !res.BothShut && !res.Completed {
		t.Fatalf("shutdown result = %+v, want both halves shut or completed", res)
	}
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration, what string) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}
