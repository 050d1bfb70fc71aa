package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"tools.zach/dev/presencewatch/internal/activitylog"
	"tools.zach/dev/presencewatch/internal/config"
	"tools.zach/dev/presencewatch/internal/metrics"
	"tools.zach/dev/presencewatch/internal/monitor"
	"tools.zach/dev/presencewatch/internal/notify"
	"tools.zach/dev/presencewatch/internal/paths"
	"tools.zach/dev/presencewatch/internal/presence"
	"tools.zach/dev/presencewatch/internal/state"
	"tools.zach/dev/presencewatch/internal/xbl"
)

// ///////////////////////////////////////////////
// Config Builders
// ///////////////////////////////////////////////

// toggles extracts the notification toggles from cfg.
func toggles(cfg *config.Config) notify.Toggles {
	return notify.Toggles{
		Presence: cfg.Notify.Presence,
		Game:     cfg.Notify.Game,
		Status:   cfg.Notify.Status,
		Errors:   cfg.Notify.Errors,
	}
}

// buildPollerConfig maps the [api] and [identity] sections onto the client.
func buildPollerConfig(cfg *config.Config, dp DataPaths) xbl.Config {
	return xbl.Config{
		PresenceURL:   cfg.API.PresenceURL,
		ProfileURL:    cfg.API.ProfileURL,
		Gamertag:      cfg.Identity.Gamertag,
		XUID:          cfg.Identity.XUID,
		Authorization: cfg.API.Authorization,
		TokenFile:     dp.Resolve(cfg.API.TokenFile),
		Timeout:       cfg.APITimeout(),
		RetryMax:      cfg.API.RetryMax,
	}
}

// mqttDialer connects to an MQTT broker. Replaced in tests.
var mqttDialer = func(broker, clientID string) (notify.Publisher, error) {
	return notify.DialMQTT(broker, clientID)
}

// buildSinks creates every configured notification sink. A sink that fails
// to start is logged and skipped.
func buildSinks(cfg *config.Config) []notify.Sink {
	var sinks []notify.Sink
	n := cfg.Notify

	if n.Email.Enabled {
		sinks = append(sinks, notify.NewEmailSink(notify.EmailConfig{
			Host:     n.Email.SMTPHost,
			Port:     n.Email.SMTPPort,
			User:     n.Email.SMTPUser,
			Password: n.Email.SMTPPassword,
			StartTLS: n.Email.StartTLS,
			Sender:   n.Email.Sender,
			Receiver: n.Email.Receiver,
			Timeout:  cfg.EmailTimeout(),
		}))
	}

	if n.Webhook.URL != "" {
		sinks = append(sinks, notify.NewWebhookSink(n.Webhook.URL,
			cfg.WebhookTimeout(), cfg.API.RetryMax))
	}

	if n.MQTT.Broker != "" {
		clientID := n.MQTT.ClientID
		if clientID == "" {
			clientID = paths.BinaryName + "-" + paths.Slug(cfg.IdentityName())
		}
		pub, err := mqttDialer(n.MQTT.Broker, clientID)
		if err != nil {
			slog.Warn("MQTT sink disabled", "broker", n.MQTT.Broker, "error", err)
		} else {
			sinks = append(sinks, notify.NewMQTTSink(pub, cfg.MQTTTopic()))
		}
	}

	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	slog.Info("notification sinks", "sinks", fmt.Sprint(names))
	return sinks
}

// activityPath returns the CSV path, or "" when the activity log is off.
func activityPath(cfg *config.Config, dp DataPaths) string {
	if !cfg.ActivityLog.Enabled {
		return ""
	}
	if cfg.ActivityLog.File != "" {
		return dp.Resolve(cfg.ActivityLog.File)
	}
	return dp.Activity()
}

// buildEngine wires the polling loop for cfg.
func buildEngine(cfg *config.Config, dp DataPaths, poller monitor.Poller, dispatcher *notify.Dispatcher, m *metrics.Metrics) *monitor.Engine {
	e := &monitor.Engine{
		Poller:     poller,
		Normalizer: cfg.Normalizer(),
		Detector:   presence.Detector{OfflineInterrupt: cfg.OfflineInterrupt()},
		Store:      state.NewStore(dp.State(), cfg.IdentityName()),
		Notifier:   dispatcher,
		Metrics:    m,
		Settings: monitor.Settings{
			OnlineInterval:  cfg.OnlineInterval(),
			OfflineInterval: cfg.OfflineInterval(),
			PollTimeout:     cfg.APITimeout(),
			AliveInterval:   cfg.AliveInterval(),
			Toggles:         toggles(cfg),
		},
	}
	if p := activityPath(cfg, dp); p != "" {
		e.Activity = activitylog.New(p)
	}
	return e
}

// ///////////////////////////////////////////////
// Runtime Control
// ///////////////////////////////////////////////

// forwardControl turns control signals and config reloads into engine
// commands until ctx is done.
func forwardControl(ctx context.Context, sigs <-chan os.Signal, reloads <-chan struct{}, cfgPath string, step time.Duration, out chan<- monitor.Command) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			cmd, ok := commandFor(sig, step)
			if !ok {
				continue
			}
			slog.Info("signal received", "signal", sig.String(), "command", cmd.Kind)
			send(ctx, out, cmd)
		case <-reloads:
			cfg, err := config.LoadFile(cfgPath)
			if err != nil {
				slog.Warn("config reload failed, keeping current toggles", "error", err)
				continue
			}
			slog.Info("config reloaded")
			send(ctx, out, monitor.Command{Kind: monitor.SetToggles, Toggles: toggles(cfg)})
		}
	}
}

func send(ctx context.Context, out chan<- monitor.Command, cmd monitor.Command) {
	select {
	case out <- cmd:
	case <-ctx.Done():
	}
}
