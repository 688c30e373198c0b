package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"phonics-master/internal/domain"
	"phonics-master/internal/match"
	"phonics-master/internal/session"
)

func TestPollTransportSessionErrors(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	transport := NewPollTransport(newClient(mr), 10*time.Millisecond, time.Minute, nil)

	if _, err := transport.Join(ctx, "ABC234"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	host, err := transport.Host(ctx, "ABC234")
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	defer host.Leave(ctx)
	if !mr.Exists("phonics:session:ABC234") {
		t.Fatalf("expected redis session key to be set")
	}
	if _, err := transport.Host(ctx, "ABC234"); !errors.Is(err, domain.ErrAddressInUse) {
		t.Fatalf("expected address in use, got %v", err)
	}

	guest, err := transport.Join(ctx, "ABC234")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	defer guest.Leave(ctx)
	if _, err := transport.Join(ctx, "ABC234"); !errors.Is(err, domain.ErrAlreadyFull) {
		t.Fatalf("expected already full, got %v", err)
	}
}

func TestPollTransportRelaysBothWays(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	transport := NewPollTransport(newClient(mr), 10*time.Millisecond, time.Minute, nil)
	host, _ := transport.Host(ctx, "ABC234")
	defer host.Leave(ctx)

	if err := host.Send(ctx, match.DamageApplied{}); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected not connected before a guest joins, got %v", err)
	}

	guest, _ := transport.Join(ctx, "ABC234")
	defer guest.Leave(ctx)

	toHost := make(chan match.Message, 4)
	toGuest := make(chan match.Message, 4)
	host.OnReceive(func(msg match.Message) { toHost <- msg })
	guest.OnReceive(func(msg match.Message) { toGuest <- msg })

	if err := guest.Send(ctx, match.Join{Name: "Bob"}); err != nil {
		t.Fatalf("guest send: %v", err)
	}
	if msg := await(t, toHost); msg.(match.Join).Name != "Bob" {
		t.Fatalf("unexpected message %#v", msg)
	}

	waitConnected(t, host)
	if err := host.Send(ctx, match.RoundAdvanced{Round: 0, TotalQuestions: 5}); err != nil {
		t.Fatalf("host send: %v", err)
	}
	if msg := await(t, toGuest); msg.(match.RoundAdvanced).TotalQuestions != 5 {
		t.Fatalf("unexpected message %#v", msg)
	}
}

func TestPollTransportHostLeaveEndsSession(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	transport := NewPollTransport(newClient(mr), 10*time.Millisecond, time.Minute, nil)
	host, _ := transport.Host(ctx, "ABC234")
	guest, _ := transport.Join(ctx, "ABC234")
	defer guest.Leave(ctx)

	if err := host.Leave(ctx); err != nil {
		t.Fatalf("host leave: %v", err)
	}
	if mr.Exists("phonics:session:ABC234") {
		t.Fatalf("expected redis session key to be removed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for guest.Status().Err == "" {
		if time.Now().After(deadline) {
			t.Fatalf("guest never noticed the host leaving")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if guest.Status().Connected {
		t.Fatalf("guest must be disconnected")
	}
	if err := guest.Send(ctx, match.DamageApplied{}); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected not connected, got %v", err)
	}
}

func TestPollTransportHostKeepsSessionAlive(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	transport := NewPollTransport(newClient(mr), 10*time.Millisecond, time.Minute, nil)
	host, err := transport.Host(ctx, "ABC234")
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	defer host.Leave(ctx)

	mr.SetTTL("phonics:session:ABC234", 2*time.Second)
	deadline := time.Now().Add(2 * time.Second)
	for mr.TTL("phonics:session:ABC234") < 30*time.Second {
		if time.Now().After(deadline) {
			t.Fatalf("host never refreshed the session ttl, left %v", mr.TTL("phonics:session:ABC234"))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPollTransportHostNoticesExpiredSession(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	transport := NewPollTransport(newClient(mr), 10*time.Millisecond, time.Minute, nil)
	host, _ := transport.Host(ctx, "ABC234")
	guest, _ := transport.Join(ctx, "ABC234")
	defer guest.Leave(ctx)
	defer host.Leave(ctx)
	waitConnected(t, host)

	mr.Del("phonics:session:ABC234")
	deadline := time.Now().Add(2 * time.Second)
	for host.Status().Err == "" {
		if time.Now().After(deadline) {
			t.Fatalf("host never noticed the session vanish")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if st := host.Status(); st.Connected || st.Err != "session expired" {
		t.Fatalf("unexpected host status %+v", st)
	}
}

func waitConnected(t *testing.T, h session.Handle) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !h.Status().Connected {
		if time.Now().After(deadline) {
			t.Fatalf("handle never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func await(t *testing.T, ch <-chan match.Message) match.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message")
	}
	return nil
}
