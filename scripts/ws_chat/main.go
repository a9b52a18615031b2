package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/undercity-games/presence-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "session token (mint one with `presenced token`)")
	channel := flag.String("channel", "global", "channel to chat in")
	flag.Parse()

	if *token == "" {
		return fmt.Errorf("-token is required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
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

	fmt.Printf("Connected to %s in channel %s\n", *addr, *channel)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *channel)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var ev proto.Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		data, _ := ev.Data.(map[string]any)
		switch ev.Type {
		case proto.EventChat:
			author, _ := data["author"].(map[string]any)
			fmt.Printf("[%v] %v: %v\n", data["channel"], author["username"], data["message"])
		case proto.EventChatTyping:
			fmt.Printf("[%v] %v is typing...\n", data["channel"], data["username"])
		case proto.EventOnlineCount:
			fmt.Printf("online: %v\n", data["count"])
		case proto.EventFriendOnline:
			fmt.Printf("friend online: %v\n", data["username"])
		case proto.EventFriendOffline:
			fmt.Printf("friend offline: %v\n", data["username"])
		case proto.EventError:
			fmt.Printf("server error: %v (%v)\n", data["message"], data["code"])
		default:
			fmt.Printf("event=%s data=%v\n", ev.Type, ev.Data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, channel string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			if err := wsjson.Write(ctx, conn, proto.Frame{Type: proto.FrameChat, Channel: channel, Message: text}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
