package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/synctalk/relay/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "JWT issued by /api/auth/login")
	room := flag.String("room", "", "conversation id to join")
	flag.Parse()

	if *token == "" {
		return errors.New("-token is required")
	}
	if *room == "" {
		return errors.New("-room is required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(v interface{}) {
		if writeErr := wsjson.Write(ctx, conn, v); writeErr != nil {
			cancel()
			log.Printf("send: %v", writeErr)
		}
	}

	helloPayload, err := json.Marshal(proto.HelloData{Token: *token})
	if err != nil {
		return fmt.Errorf("marshal hello: %w", err)
	}
	send(proto.Inbound{Type: proto.InboundTypeHello, Data: helloPayload})

	joinPayload, err := json.Marshal(proto.RoomData{Room: *room})
	if err != nil {
		return fmt.Errorf("marshal join: %w", err)
	}
	send(proto.Inbound{Type: proto.InboundTypeJoin, Data: joinPayload})

	fmt.Printf("Connected to %s, conversation %s\n", *addr, *room)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *room)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
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

		if outbound.Type == proto.OutboundTypeError && outbound.Error != nil {
			fmt.Printf("error %s: %s\n", outbound.Error.Code, outbound.Error.Msg)
			continue
		}

		switch outbound.Event {
		case proto.EventNewMessage:
			raw, err := json.Marshal(outbound.Data)
			if err != nil {
				log.Printf("marshal outbound data: %v", err)
				continue
			}
			var evt proto.MessageData
			if err := json.Unmarshal(raw, &evt); err != nil {
				log.Printf("unmarshal newMessage: %v", err)
				continue
			}
			at := time.Unix(evt.TS, 0).Format("15:04:05")
			fmt.Printf("[%s %s] %s: %s\n", evt.Room, at, evt.Sender, evt.Text)
		case proto.EventJoined:
			fmt.Printf("joined conversation\n")
		case proto.EventLeft:
			fmt.Printf("left conversation\n")
		default:
			fmt.Printf("event=%s data=%v\n", outbound.Event, outbound.Data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, room string) {
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

			payload, err := json.Marshal(proto.SendData{Room: room, Text: text})
			if err != nil {
				log.Printf("marshal sendMessage: %v", err)
				return
			}
			if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeSend, Data: payload}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
