package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/dilemmaview/network"
	"github.com/wfunc/dilemmaview/view"
)

// commands maps console input to action names.
var commands = map[string]string{
	"join":     "join",
	"coop":     "cooperate",
	"c":        "cooperate",
	"defect":   "defect",
	"d":        "defect",
	"withdraw": "withdraw",
	"w":        "withdraw",
}

func send(c *websocket.Conn, msgID uint16, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.BinaryMessage, network.Encode(msgID, data))
}

func main() {
	host := flag.String("addr", "localhost:8080", "view server address")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *host, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			packet, err := network.Decode(message)
			if err != nil {
				log.Printf("Received invalid packet: %v", err)
				continue
			}
			switch packet.MsgID {
			case network.MsgTypeView:
				var vm view.ViewModel
				if err := json.Unmarshal(packet.Data, &vm); err != nil {
					log.Printf("Bad view: %v", err)
					continue
				}
				view.Render(os.Stdout, vm)
			case network.MsgTypeActionResult:
				var result network.ActionResult
				json.Unmarshal(packet.Data, &result)
				if result.Error != "" {
					log.Printf("<- %s failed: %s", result.Type, result.Error)
				} else {
					log.Printf("<- %s finalized", result.Type)
				}
			case network.MsgTypeHeartbeat:
			default:
				log.Printf("<- RECV (ID: %d): %s", packet.MsgID, string(packet.Data))
			}
		}
	}()

	// 保持连接
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.WriteMessage(websocket.BinaryMessage, network.Encode(network.MsgTypeHeartbeat, nil))
			}
		}
	}()

	log.Println("Commands: connect <address>, disconnect, join, coop, defect, withdraw")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case text, ok := <-lines:
			if !ok {
				return
			}
			fields := strings.Fields(text)
			if len(fields) == 0 {
				continue
			}
			switch {
			case fields[0] == "connect" && len(fields) == 2:
				err = send(c, network.MsgTypeSetIdentity, network.IdentityRequest{Address: fields[1]})
			case fields[0] == "disconnect":
				err = send(c, network.MsgTypeSetIdentity, network.IdentityRequest{})
			default:
				action, known := commands[fields[0]]
				if !known {
					log.Printf("Unknown command %q", fields[0])
					continue
				}
				err = send(c, network.MsgTypeAction, network.ActionRequest{Type: action})
			}
			if err != nil {
				log.Println("Write error:", err)
				return
			}
		}
	}
}
