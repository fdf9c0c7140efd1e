package shutdown

import "testing"

func TestOpenToSendShut(t *testing.T) {
	c := NewCoordinator(true)
	res := c.Request(RequestShutSend, OriginSource)
	if !res.SendNewlyShut {
		t.Fatal("expected SendNewlyShut")
	}
	if c.State() != StateSendShut {
		t.Fatalf("State() = %v, want StateSendShut", c.State())
	}
}

func TestSendThenRecvReachesBothShut(t *testing.T) {
	c := NewCoordinator(true)
	c.Request(RequestShutSend, OriginSource)
	res := c.Request(RequestShutRecv, OriginDestination)

	if !res.RecvNewlyShut || !res.BothShut || !res.Completed {
		t.Fatalf("expected recv newly shut, both shut, and completed; got %+v", res)
	}
	if c.State() != StateBothShut {
		t.Fatalf("State() = %v, want StateBothShut", c.State())
	}
}

func TestShutBothDirectly(t *testing.T) {
	c := NewCoordinator(true)
	res := c.Request(RequestShutBoth, OriginSource)
	if !res.SendNewlyShut || !res.RecvNewlyShut || !res.BothShut || !res.Completed {
		t.Fatalf("expected full shutdown in one call, got %+v", res)
	}
}

func TestIdempotentRequestsReportNoNewlyShut(t *testing.T) {
	c := NewCoordinator(true)
	c.Request(RequestShutSend, OriginSource)
	res := c.Request(RequestShutSend, OriginSource)
	if res.SendNewlyShut {
		t.Fatal("repeated shutdown request should not report newly-shut again")
	}
}

func TestCompletedOnlyReportedOnce(t *testing.T) {
	c := NewCoordinator(true)
	c.Request(RequestShutBoth, OriginSource)
	res := c.Request(RequestShutBoth, OriginSource)
	if res.Completed {
		t.Fatal("Completed should only be true the transition that reaches both_shut")
	}
}

func TestKeepHalfOpenFalseAutoPromotesOnRemoteRecvShut(t *testing.T) {
	c := NewCoordinator(false)
	res := c.Request(RequestShutRecv, OriginDestination)
	if !res.RecvNewlyShut || !res.SendNewlyShut {
		t.Fatalf("expected auto-promotion to full shutdown, got %+v", res)
	}
	if c.State() != StateBothShut {
		t.Fatalf("State() = %v, want StateBothShut after auto-promotion", c.State())
	}
}

func TestKeepHalfOpenTrueStaysHalfOpen(t *testing.T) {
	c := NewCoordinator(true)
	res := c.Request(RequestShutRecv, OriginDestination)
	if !res.RecvNewlyShut || res.SendNewlyShut {
		t.Fatalf("expected recv-only shutdown without auto-promotion, got %+v", res)
	}
	if c.State() != StateRecvShut {
		t.Fatalf("State() = %v, want StateRecvShut", c.State())
	}
}

func TestOriginRecordedOnFirstClose(t *testing.T) {
	c := NewCoordinator(true)
	c.Request(RequestShutSend, OriginSource)
	res := c.Request(RequestShutRecv, OriginDestination)
	if res.SendOrigin != OriginSource {
		t.Fatalf("SendOrigin = %v, want OriginSource", res.SendOrigin)
	}
	if res.RecvOrigin != OriginDestination {
		t.Fatalf("RecvOrigin = %v, want OriginDestination", res.RecvOrigin)
	}
}

func TestCloseRequiresBothShut(t *testing.T) {
	c := NewCoordinator(true)
	if c.Close() {
		t.Fatal("Close() should fail before reaching both_shut")
	}
	c.Request(RequestShutBoth, OriginSource)
	if !c.Close() {
		t.Fatal("Close() should succeed once both_shut")
	}
	if c.State() != StateClosed {
		t.Fatalf("State() = %v, want StateClosed", c.State())
	}
}

func TestStateNeverRegresses(t *testing.T) {
	c := NewCoordinator(true)
	c.Request(RequestShutBoth, OriginSource)
	c.Close()
	before := c.State()
	c.Request(RequestShutSend, OriginSource)
	if c.State() != before {
		t.Fatalf("state regressed from %v to %v", before, c.State())
	}
}
