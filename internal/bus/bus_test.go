package bus

import (
	"context"
	"testing"
	"time"
)

func TestSessionKey(t *testing.T) {
	msg := InboundMessage{Channel: "telegram", ChatID: "12345"}
	if got := msg.SessionKey(); got != "telegram:12345" {
		t.Errorf("SessionKey = %q, want telegram:12345", got)
	}
}

func TestNewMessageBus_MinimumBuffer(t *testing.T) {
	b := NewMessageBus(0)
	if cap(b.Inbound) != 1 || cap(b.Outbound) != 1 {
		t.Errorf("caps = %d/%d, want 1/1", cap(b.Inbound), cap(b.Outbound))
	}
}

func TestDispatchOutbound_RoutesToSubscriber(t *testing.T) {
	b := NewMessageBus(4)
	received := make(chan OutboundMessage, 1)
	b.SubscribeOutbound("telegram", func(msg OutboundMessage) {
		received <- msg
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.Outbound <- OutboundMessage{Channel: "telegram", ChatID: "1", Content: "hi"}

	select {
	case msg := <-received:
		if msg.Content != "hi" {
			t.Errorf("Content = %q, want hi", msg.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
}

func TestDispatchOutbound_DropsUnknownChannel(t *testing.T) {
	b := NewMessageBus(4)
	received := make(chan OutboundMessage, 2)
	b.SubscribeOutbound("api", func(msg OutboundMessage) {
		received <- msg
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.Outbound <- OutboundMessage{Channel: "missing", Content: "dropped"}
	b.Outbound <- OutboundMessage{Channel: "api", Content: "kept"}

	select {
	case msg := <-received:
		if msg.Content != "kept" {
			t.Errorf("Content = %q, want kept (the unsubscribed message dropped)", msg.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
}

func TestSubscribeOutbound_Replaces(t *testing.T) {
	b := NewMessageBus(4)
	received := make(chan string, 1)
	b.SubscribeOutbound("api", func(OutboundMessage) { received <- "first" })
	b.SubscribeOutbound("api", func(OutboundMessage) { received <- "second" })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.Outbound <- OutboundMessage{Channel: "api"}

	select {
	case got := <-received:
		if got != "second" {
			t.Errorf("handler = %q, want the replacement", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
}

func TestDispatchOutbound_StopsOnCancel(t *testing.T) {
	b := NewMessageBus(1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		b.DispatchOutbound(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("DispatchOutbound did not return after cancel")
	}
}
