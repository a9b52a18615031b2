package presence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/undercity-games/presence-server/internal/core"
	"github.com/undercity-games/presence-server/internal/log"
)

// Bridge consumes push commands published by sibling services and
// hands them to the hub's delivery API. The payload is the same
// envelope the internal HTTP push endpoint accepts.
type Bridge struct {
	rdb     *redis.Client
	channel string
	hub     *core.Hub
	log     *zerolog.Logger
}

func NewBridge(rdb *redis.Client, channel string, hub *core.Hub, logger *zerolog.Logger) *Bridge {
	if channel == "" {
		channel = "presence:push"
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Bridge{rdb: rdb, channel: channel, hub: hub, log: logger}
}

// Run consumes until ctx is cancelled. Malformed or rejected payloads
// are logged and skipped; they never stop the bridge.
func (b *Bridge) Run(ctx context.Context) error {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	// Confirm the subscription before reporting ready.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.log.Info().Str("channel", b.channel).Msg("push bridge listening")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(msg.Payload)
		}
	}
}

func (b *Bridge) handle(payload string) {
	var cmd core.PushCommand
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		b.log.Warn().Err(err).Msg("push bridge: malformed payload")
		return
	}

	delivered, err := b.hub.Push(&cmd)
	if err != nil {
		b.log.Warn().Err(err).Msg("push bridge: rejected command")
		return
	}
	b.log.Debug().
		Str("target", cmd.Target).
		Str("type", cmd.Event.Type).
		Int("delivered", delivered).
		Msg("push bridge delivered")
}
