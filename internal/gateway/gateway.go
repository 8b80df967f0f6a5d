package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lunafall/companion/internal/bus"
	"github.com/lunafall/companion/internal/channel"
	"github.com/lunafall/companion/internal/config"
	"github.com/lunafall/companion/internal/cron"
	"github.com/lunafall/companion/internal/llm"
	"github.com/lunafall/companion/internal/memory"
	"github.com/lunafall/companion/internal/modegate"
	"github.com/lunafall/companion/internal/persona"
	"github.com/lunafall/companion/internal/profile"
	"github.com/lunafall/companion/internal/session"
	"github.com/lunafall/companion/internal/settings"
	"github.com/lunafall/companion/internal/store"
)

const (
	maintenanceJobName = "memory-nightly-sweep"
	maintenanceTask    = "memory:sweep"
	reminderTask       = "reminder"
)

// ClientFactory creates the model client (allows mocking in tests).
type ClientFactory func(cfg *config.Config, s *settings.Settings) llm.Client

// Options for creating a Gateway
type Options struct {
	ClientFactory ClientFactory
	SignalChan    chan os.Signal // for testing signal handling
}

// Gateway owns the process: it wires the store, the session service, the
// channels and the maintenance scheduler, then pumps the message bus.
type Gateway struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	store      *store.Store
	svc        *session.Service
	channels   *channel.ChannelManager
	cron       *cron.Service
	signalChan chan os.Signal
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg}

	g.bus = bus.NewMessageBus(config.DefaultBufSize)

	st, err := store.Open(cfg.Store.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	g.store = st

	registry := profile.NewRegistry(st, cfg.Store.Key, cfg.Assistant.DefaultCharacterID)

	personas, err := persona.Load(cfg.Assistant.CharactersFile, cfg.Assistant.DefaultCharacterID)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load characters: %w", err)
	}

	tunables := settings.New()
	gate := modegate.New(registry, personas, cfg.Gate.UncensoredSecret,
		time.Duration(cfg.Gate.WindowMs)*time.Millisecond, cfg.Gate.MaxAttempts)
	lifecycle := memory.New(tunables)

	factory := opts.ClientFactory
	if factory == nil {
		factory = func(cfg *config.Config, s *settings.Settings) llm.Client {
			return llm.NewOpenAIClient(cfg, s)
		}
	}
	client := factory(cfg, tunables)

	g.svc = session.New(registry, personas, gate, lifecycle, client, cfg, tunables)
	if err := g.svc.RestoreSettingsOverrides("default"); err != nil {
		log.Printf("[gateway] restore settings overrides warning: %v", err)
	}

	chMgr, err := channel.NewChannelManager(cfg.Channels, cfg.Gateway, g.bus, g.svc)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	cronStorePath := filepath.Join(config.ConfigDir(), "data", "cron", "jobs.json")
	g.cron = cron.NewService(cronStorePath)
	g.cron.OnJob = g.runJob

	g.signalChan = opts.SignalChan
	return g, nil
}

// Service exposes the session service (for the CLI chat command).
func (g *Gateway) Service() *session.Service {
	return g.svc
}

func (g *Gateway) runJob(job cron.Job) (string, error) {
	switch job.Payload.Task {
	case maintenanceTask:
		n, err := g.svc.Maintain()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("swept %d accounts", n), nil
	case reminderTask:
		if job.Payload.Deliver && job.Payload.Channel != "" {
			g.bus.Outbound <- bus.OutboundMessage{
				Channel: job.Payload.Channel,
				ChatID:  job.Payload.To,
				Content: job.Payload.Message,
			}
		}
		return "delivered", nil
	}
	return "", fmt.Errorf("unknown task %q", job.Payload.Task)
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	if err := g.cron.Start(ctx); err != nil {
		log.Printf("[gateway] cron start warning: %v", err)
	}
	if err := g.cron.EnsureJob(maintenanceJobName, g.cfg.Maintenance.SweepCron, maintenanceTask); err != nil {
		log.Printf("[gateway] ensure maintenance job warning: %v", err)
	}

	go g.processLoop(ctx)

	log.Printf("[gateway] running on %s:%d", g.cfg.Gateway.Host, g.cfg.Gateway.Port)

	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

// processLoop serves bus-connected channels. Each inbound message runs one
// full session turn keyed by channel and chat id.
func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			log.Printf("[gateway] inbound from %s/%s: %s", msg.Channel, msg.SenderID, truncate(msg.Content, 80))

			result, err := g.svc.Chat(ctx, session.ChatRequest{
				AccountID: msg.SessionKey(),
				Message:   msg.Content,
			})
			reply := ""
			if err != nil {
				log.Printf("[gateway] session error: %v", err)
				reply = "Sorry, I couldn't process that message."
			} else {
				reply = result.Reply
			}

			if strings.TrimSpace(reply) != "" {
				g.bus.Outbound <- bus.OutboundMessage{
					Channel: msg.Channel,
					ChatID:  msg.ChatID,
					Content: reply,
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) Shutdown() error {
	g.cron.Stop()
	_ = g.channels.StopAll()
	if g.store != nil {
		if err := g.store.Close(); err != nil {
			log.Printf("[gateway] close store warning: %v", err)
		}
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
