package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chav-jf/speedy-green-flash/internal/channel"
	"github.com/chav-jf/speedy-green-flash/internal/config"
	logging "github.com/chav-jf/speedy-green-flash/internal/logging"
	"github.com/chav-jf/speedy-green-flash/internal/mode"
	"github.com/chav-jf/speedy-green-flash/internal/protocol"
	"github.com/chav-jf/speedy-green-flash/internal/session"
	"github.com/chav-jf/speedy-green-flash/internal/trigger"
	"github.com/chav-jf/speedy-green-flash/internal/tui"
	"github.com/chav-jf/speedy-green-flash/internal/utils"
)

// device holds what both device commands share.
type device struct {
	cfg     *config.Config
	log     *zap.Logger
	room    string
	adapter *channel.Adapter
}

func setupDevice(configDir, relayURL, room string, role protocol.Role) (*device, error) {
	boot, _, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	// The terminal belongs to the UI, so logs only go to files.
	log, err := logging.Init(boot.Logging, false)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := config.Init(configDir, log); err != nil {
		return nil, err
	}
	cfg := config.Conf

	if relayURL == "" {
		relayURL = cfg.Relay.URL
	}
	if room == "" {
		room = cfg.Relay.Room
	}
	room = utils.NormalizeRoomCode(room)
	if !utils.IsValidRoomCode(room) {
		return nil, fmt.Errorf("invalid room code %q, create one with POST /rooms on the relay", room)
	}

	log = log.With(
		zap.String("instance", uuid.NewString()),
		zap.String("role", string(role)),
		zap.String("room", room),
	)

	adapter := channel.NewAdapter(&channel.WebSocketDialer{
		URL:  relayURL,
		Room: room,
		Role: role,
	}, channel.Config{
		MaxAttempts:      cfg.Channel.MaxAttempts,
		RetryDelay:       cfg.Channel.RetryDelay,
		AttemptTimeout:   cfg.Channel.AttemptTimeout,
		OfflineThreshold: cfg.Channel.OfflineThreshold,
		AutoReconnect:    cfg.Channel.AutoReconnect,
	}, log)

	return &device{cfg: cfg, log: log, room: room, adapter: adapter}, nil
}

func runDisplay(ctx context.Context, configDir, relayURL, room string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := setupDevice(configDir, relayURL, room, protocol.RoleDisplay)
	if err != nil {
		return err
	}
	defer d.log.Sync()

	modes, err := mode.NewController(mode.NewFileStore(d.cfg.State.Path), d.log)
	if err != nil {
		return err
	}

	scfg := session.DefaultConfig()
	scfg.MinDelay = d.cfg.Test.MinDelay
	scfg.MaxDelay = d.cfg.Test.MaxDelay
	sess := session.New(d.adapter, modes, scfg, d.log)
	updates := tui.Subscribe(sess.OnChange)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	d.log.Info("Display started", zap.Bool("offline", modes.Offline()))
	p := tea.NewProgram(tui.NewDisplay(sess, updates, d.room), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	interrupted := ctx.Err() != nil

	cancel()
	<-done
	if err != nil && !interrupted {
		return err
	}
	return nil
}

func runTrigger(ctx context.Context, configDir, relayURL, room string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := setupDevice(configDir, relayURL, room, protocol.RoleTrigger)
	if err != nil {
		return err
	}
	defer d.log.Sync()

	cmd := trigger.NewCommand(d.adapter, d.cfg.Trigger.Cooldown, nil, d.log)
	d.adapter.Connect(ctx)
	defer d.adapter.Close()

	d.log.Info("Trigger started")
	reconnect := func() { d.adapter.Reconnect(ctx) }
	p := tea.NewProgram(tui.NewTrigger(cmd, d.adapter, reconnect, d.room), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
