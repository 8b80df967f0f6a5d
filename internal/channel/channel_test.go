package channel

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/lunafall/companion/internal/bus"
	"github.com/lunafall/companion/internal/config"
)

type mockBot struct {
	updates chan tgbotapi.Update
	sent    []tgbotapi.Chattable
	stopped bool
}

func newMockBot() *mockBot {
	return &mockBot{updates: make(chan tgbotapi.Update, 8)}
}

func (m *mockBot) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updates
}

func (m *mockBot) StopReceivingUpdates() { m.stopped = true }

func (m *mockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.sent = append(m.sent, c)
	return tgbotapi.Message{}, nil
}

func (m *mockBot) GetSelf() tgbotapi.User {
	return tgbotapi.User{UserName: "test_bot"}
}

func TestBaseChannel_Allowlist(t *testing.T) {
	b := bus.NewMessageBus(1)

	open := NewBaseChannel("test", b, nil)
	if !open.IsAllowed("anyone") {
		t.Error("empty allowlist should admit everyone")
	}

	restricted := NewBaseChannel("test", b, []string{"42", ""})
	if !restricted.IsAllowed("42") {
		t.Error("listed sender should be allowed")
	}
	if restricted.IsAllowed("43") {
		t.Error("unlisted sender should be rejected")
	}
	if restricted.IsAllowed("") {
		t.Error("empty sender id should be rejected")
	}
}

func TestNewTelegramChannel_RequiresToken(t *testing.T) {
	_, err := NewTelegramChannel(config.TelegramConfig{}, bus.NewMessageBus(1))
	if err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestTelegramHandleMessage(t *testing.T) {
	b := bus.NewMessageBus(8)
	ch, err := NewTelegramChannelWithFactory(config.TelegramConfig{Token: "test-token"}, b, nil)
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}

	ch.handleMessage(&tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: 42, UserName: "sam", FirstName: "Sam"},
		Chat:      &tgbotapi.Chat{ID: 100},
		Text:      "hello",
		Date:      int(time.Now().Unix()),
	})

	select {
	case msg := <-b.Inbound:
		if msg.Channel != "telegram" || msg.SenderID != "42" || msg.ChatID != "100" {
			t.Errorf("inbound = %+v", msg)
		}
		if msg.Content != "hello" {
			t.Errorf("Content = %q", msg.Content)
		}
		if msg.Metadata["username"] != "sam" {
			t.Errorf("metadata = %v", msg.Metadata)
		}
	default:
		t.Fatal("no inbound message published")
	}
}

func TestTelegramHandleMessage_CaptionFallback(t *testing.T) {
	b := bus.NewMessageBus(8)
	ch, _ := NewTelegramChannelWithFactory(config.TelegramConfig{Token: "test-token"}, b, nil)

	ch.handleMessage(&tgbotapi.Message{
		From:    &tgbotapi.User{ID: 42},
		Chat:    &tgbotapi.Chat{ID: 100},
		Caption: "photo caption",
	})

	select {
	case msg := <-b.Inbound:
		if msg.Content != "photo caption" {
			t.Errorf("Content = %q, want the caption", msg.Content)
		}
	default:
		t.Fatal("caption-only message should be published")
	}
}

func TestTelegramHandleMessage_Filtered(t *testing.T) {
	b := bus.NewMessageBus(8)
	ch, _ := NewTelegramChannelWithFactory(config.TelegramConfig{Token: "test-token", AllowFrom: []string{"42"}}, b, nil)

	// Unlisted sender.
	ch.handleMessage(&tgbotapi.Message{
		From: &tgbotapi.User{ID: 99},
		Chat: &tgbotapi.Chat{ID: 100},
		Text: "hello",
	})
	// Empty content.
	ch.handleMessage(&tgbotapi.Message{
		From: &tgbotapi.User{ID: 42},
		Chat: &tgbotapi.Chat{ID: 100},
	})

	select {
	case msg := <-b.Inbound:
		t.Fatalf("unexpected inbound message: %+v", msg)
	default:
	}
}

func TestTelegramSend_Chunks(t *testing.T) {
	b := bus.NewMessageBus(1)
	ch, _ := NewTelegramChannelWithFactory(config.TelegramConfig{Token: "test-token"}, b, nil)
	bot := newMockBot()
	ch.SetBot(bot)

	err := ch.Send(bus.OutboundMessage{ChatID: "100", Content: strings.Repeat("x", 4500)})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if len(bot.sent) != 2 {
		t.Fatalf("sent %d messages, want 2 chunks", len(bot.sent))
	}
	first, ok := bot.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("sent[0] is %T, want MessageConfig", bot.sent[0])
	}
	if len(first.Text) != 4000 {
		t.Errorf("first chunk len = %d, want 4000", len(first.Text))
	}
}

func TestTelegramSend_InvalidChatID(t *testing.T) {
	b := bus.NewMessageBus(1)
	ch, _ := NewTelegramChannelWithFactory(config.TelegramConfig{Token: "test-token"}, b, nil)
	ch.SetBot(newMockBot())

	if err := ch.Send(bus.OutboundMessage{ChatID: "not-a-number", Content: "hi"}); err == nil {
		t.Error("expected error for invalid chat id")
	}
}

func TestTelegramSend_WithoutBot(t *testing.T) {
	b := bus.NewMessageBus(1)
	ch, _ := NewTelegramChannelWithFactory(config.TelegramConfig{Token: "test-token"}, b, nil)

	if err := ch.Send(bus.OutboundMessage{ChatID: "100", Content: "hi"}); err == nil {
		t.Error("expected error when the bot is not initialized")
	}
}

// stubChannel records calls for manager tests.
type stubChannel struct {
	BaseChannel
	started bool
	stopped bool
	sent    []bus.OutboundMessage
}

func (s *stubChannel) Start(ctx context.Context) error { s.started = true; return nil }
func (s *stubChannel) Stop() error                     { s.stopped = true; return nil }
func (s *stubChannel) Send(msg bus.OutboundMessage) error {
	s.sent = append(s.sent, msg)
	return nil
}

func TestChannelManager_RegisterWiresOutbound(t *testing.T) {
	b := bus.NewMessageBus(4)
	m := &ChannelManager{channels: make(map[string]Channel), bus: b}
	stub := &stubChannel{BaseChannel: NewBaseChannel("stub", b, nil)}
	m.register(stub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.Outbound <- bus.OutboundMessage{Channel: "stub", Content: "hello"}

	deadline := time.After(2 * time.Second)
	for len(stub.sent) == 0 {
		select {
		case <-deadline:
			t.Fatal("outbound message never reached the channel")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	if stub.sent[0].Content != "hello" {
		t.Errorf("sent = %+v", stub.sent)
	}
}

func TestChannelManager_StartStopAll(t *testing.T) {
	b := bus.NewMessageBus(4)
	m := &ChannelManager{channels: make(map[string]Channel), bus: b}
	stub := &stubChannel{BaseChannel: NewBaseChannel("stub", b, nil)}
	m.register(stub)

	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error: %v", err)
	}
	if !stub.started {
		t.Error("channel should be started")
	}

	if err := m.StopAll(); err != nil {
		t.Fatalf("StopAll error: %v", err)
	}
	if !stub.stopped {
		t.Error("channel should be stopped")
	}

	names := m.EnabledChannels()
	if len(names) != 1 || names[0] != "stub" {
		t.Errorf("EnabledChannels = %v", names)
	}
}

func TestNewChannelManager_NoChannels(t *testing.T) {
	m, err := NewChannelManager(config.ChannelsConfig{}, config.GatewayConfig{}, bus.NewMessageBus(1), nil)
	if err != nil {
		t.Fatalf("NewChannelManager error: %v", err)
	}
	if len(m.EnabledChannels()) != 0 {
		t.Errorf("EnabledChannels = %v, want none", m.EnabledChannels())
	}
}
