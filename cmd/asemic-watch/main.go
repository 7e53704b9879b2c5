// Command asemic-watch connects to a running asemicd's WebSocket feed and
// prints each notification as it arrives.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"

	"github.com/gorilla/websocket"
)

func main() {
	controlAddr := flag.String("control", "127.0.0.1:7080", "asemicd control-plane address")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *controlAddr, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("asemic-watch: connecting to %s: %v", u.String(), err)
	}
	defer conn.Close()

	fmt.Printf("watching %s\n", u.String())

	for {
		var raw map[string]json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			log.Fatalf("asemic-watch: connection closed: %v", err)
		}

		var kind string
		_ = json.Unmarshal(raw["type"], &kind)

		switch kind {
		case "NewMessage":
			printPayload("message", raw["payload"])
		case "NoisePacket":
			printPayload("noise", raw["payload"])
		case "KeyUpdate":
			printPayload("keys", raw["payload"])
		case "StatsUpdate":
			printPayload("stats", raw["payload"])
		case "FullState":
			printPayload("connected, full state", raw["payload"])
		default:
			fmt.Printf("[%s] %s\n", kind, string(raw["payload"]))
		}
	}
}

func printPayload(label string, payload json.RawMessage) {
	fmt.Printf("[%s] %s\n", label, string(payload))
}
