package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/undercity-games/presence-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "session token (mint one with `presenced token`)")
	channel := flag.String("channel", "global", "channel to chat in")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 10*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" {
		return fmt.Errorf("-token is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr+"?token="+url.QueryEscape(*token), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if *channel != "global" {
		if err := wsjson.Write(ctx, conn, proto.Frame{Type: proto.FrameSubscribe, Channel: *channel}); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}
	if err := wsjson.Write(ctx, conn, proto.Frame{Type: proto.FrameChat, Channel: *channel, Message: *text}); err != nil {
		return fmt.Errorf("chat: %w", err)
	}

	for {
		var ev proto.Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("event type=%s ts=%d\n", ev.Type, ev.Timestamp)

		switch ev.Type {
		case proto.EventError:
			return fmt.Errorf("server error event: %+v", ev.Data)
		case proto.EventChat:
			data, _ := ev.Data.(map[string]any)
			fmt.Printf("chat delivered: %+v\n", data)
			return nil
		}
	}
}
