// Package notify delivers budget alerts to an operator.
package notify

import (
	"context"
	"errors"

	"github.com/vthunder/distill/internal/config"
	"github.com/vthunder/distill/internal/logging"
)

// Notifier accepts a plain text message.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Console writes notifications to the log. It is used when no remote sink
// is configured.
type Console struct{}

func (Console) Notify(ctx context.Context, text string) error {
	logging.Info("notify", "%s", text)
	return nil
}

// Multi fans a message out to every sink and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds the sinks that have credentials, falling back to Console.
func FromConfig(cfg config.Notify) Notifier {
	var sinks Multi
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		sinks = append(sinks, NewTelegram(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordToken != "" && cfg.DiscordChannelID != "" {
		d, err := NewDiscord(cfg.DiscordToken, cfg.DiscordChannelID)
		if err != nil {
			logging.Warn("notify", "discord disabled: %v", err)
		} else {
			sinks = append(sinks, d)
		}
	}
	switch len(sinks) {
	case 0:
		return Console{}
	case 1:
		return sinks[0]
	}
	return sinks
}
