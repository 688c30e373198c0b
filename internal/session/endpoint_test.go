package session

import (
	"testing"
	"time"

	"phonics-master/internal/domain"
	"phonics-master/internal/match"
)

func TestEndpointHoldsMessagesUntilHandler(t *testing.T) {
	e := NewEndpoint("ABC234", RoleHost, false, nil)
	defer e.Close()

	e.Deliver(match.Join{Name: "Bob"})
	e.Deliver(match.AnswerSubmitted{Round: 0, Slot: domain.Slot2, Answer: "cat"})

	got := make(chan match.Message, 4)
	e.OnReceive(func(msg match.Message) { got <- msg })

	first := receive(t, got)
	if _, ok := first.(match.Join); !ok {
		t.Fatalf("expected join first, got %#v", first)
	}
	second := receive(t, got)
	if _, ok := second.(match.AnswerSubmitted); !ok {
		t.Fatalf("expected submitAnswer second, got %#v", second)
	}
}

func TestEndpointStatus(t *testing.T) {
	e := NewEndpoint("ABC234", RoleGuest, true, nil)
	if !e.Status().Connected {
		t.Fatalf("expected connected endpoint")
	}
	e.Fail("host left")
	if st := e.Status(); st.Connected || st.Err != "host left" {
		t.Fatalf("unexpected status %+v", st)
	}
	e.SetConnected(true)
	if st := e.Status(); !st.Connected || st.Err != "" {
		t.Fatalf("reconnect must clear the error, got %+v", st)
	}
	e.Close()
	e.Close()
	if e.Status().Connected || !e.Closed() {
		t.Fatalf("closed endpoint must be disconnected")
	}
}

func receive(t *testing.T, ch <-chan match.Message) match.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message")
	}
	return nil
}
