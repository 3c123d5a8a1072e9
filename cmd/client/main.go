package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	chatclient "github.com/omochice/realtime-chat/internal/client"
	clienttcp "github.com/omochice/realtime-chat/internal/client/tcp"
	clientws "github.com/omochice/realtime-chat/internal/client/ws"
	"github.com/omochice/realtime-chat/pkg/protocol"
	"github.com/samber/lo"
)

var (
	senderStyle = color.New(color.FgGreen, color.OpBold)
	noticeStyle = color.New(color.FgYellow)
	errorStyle  = color.New(color.FgRed)
)

func main() {
	serverAddr := flag.String("server", "ws://localhost:8080/ws", "WebSocket URL, or host:port with -transport tcp")
	transport := flag.String("transport", "ws", "Transport to use: ws or tcp")
	codecName := flag.String("codec", "json", "Frame codec for ws: json or proto")
	token := flag.String("token", "", "Session token (see cmd/token)")
	userID := flag.String("user", "", "Your user id, announced on join")
	chatID := flag.String("chat", "general", "Chat id to talk in")
	members := flag.String("members", "", "Comma separated member ids of the chat")
	logLevel := flag.String("log-level", "WARN", "Log level")
	flag.Parse()

	if *token == "" || *userID == "" {
		log.Fatal("Both -token and -user are required")
	}
	logger := logs.GetLoggerFromString(*logLevel)

	var c chatclient.Client
	switch *transport {
	case "ws":
		codec, err := protocol.CodecByName(*codecName)
		if err != nil {
			log.Fatal(err)
		}
		c = clientws.New(*serverAddr, *token, codec, logger)
	case "tcp":
		c = clienttcp.New(*serverAddr, *token, logger)
	default:
		log.Fatalf("Unknown transport %q", *transport)
	}

	if err := c.Connect(); err != nil {
		log.Fatalf("Failed to connect to server: %v", err)
	}
	defer c.Disconnect()
	log.Printf("Connected to %s as %s", *serverAddr, *userID)

	memberIDs := lo.Uniq(append(splitMembers(*members), *userID))
	if err := c.JoinChat(*userID, memberIDs); err != nil {
		log.Fatalf("Failed to join chat: %v", err)
	}

	go func() {
		for frame := range c.Frames() {
			render(frame)
		}
		fmt.Println(noticeStyle.Render("*** connection closed ***"))
	}()

	fmt.Println("Type your messages (/typing, /stop, or 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
input:
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var err error
		switch text {
		case "quit", "exit":
			break input
		case "/typing":
			err = c.StartTyping(*chatID, memberIDs)
		case "/stop":
			err = c.StopTyping(*chatID, memberIDs)
		default:
			err = c.SendMessage(*chatID, memberIDs, text)
		}
		if err != nil {
			log.Printf("Failed to send: %v", err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("Error reading input: %v", err)
	}

	if err := c.LeaveChat(*userID, memberIDs); err != nil {
		log.Printf("Failed to send leave message: %v", err)
	}
	log.Println("Disconnected from server")
}

func splitMembers(raw string) []string {
	parts := lo.Map(strings.Split(raw, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	return lo.Compact(parts)
}

func render(frame protocol.Frame) {
	switch frame.Event {
	case protocol.EventMessage:
		var event protocol.MessageEvent
		if json.Unmarshal(frame.Data, &event) == nil {
			name := lo.CoalesceOrEmpty(event.Message.Sender.Name, event.Message.Sender.ID)
			fmt.Printf("%s %s\n", senderStyle.Render("["+name+"]"), event.Message.Content)
		}
	case protocol.EventStartTyping, protocol.EventStopTyping:
		var ref protocol.ChatRef
		if json.Unmarshal(frame.Data, &ref) == nil {
			fmt.Println(noticeStyle.Render(fmt.Sprintf("*** %s in %s ***", frame.Event, ref.ChatID)))
		}
	case protocol.EventPresenceSnapshot:
		var online []string
		if json.Unmarshal(frame.Data, &online) == nil {
			fmt.Println(noticeStyle.Render("*** online: " + strings.Join(online, ", ") + " ***"))
		}
	case protocol.EventConnectError:
		var ce protocol.ConnectError
		_ = json.Unmarshal(frame.Data, &ce)
		fmt.Println(errorStyle.Render("connection refused: " + ce.Message))
	case protocol.EventMessageAlert:
	default:
		fmt.Println(noticeStyle.Render(fmt.Sprintf("*** %s %s ***", frame.Event, frame.Data)))
	}
}
