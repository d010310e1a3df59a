// Package main runs a demo relay client: authenticates, subscribes, posts a
// location report over HTTP, and prints everything fanned out on the channel.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type envelope struct {
	Type    string         `json:"type"`
	Channel string         `json:"channel,omitempty"`
	Error   string         `json:"error,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	token := os.Getenv("RELAY_TOKEN")
	if token == "" {
		token = "org_demo:drv_demo" // static-mode shorthand
	}

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/relay"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(map[string]any{"type": "auth", "sessionToken": token}); err != nil {
		log.Fatal(err)
	}
	if err := c.WriteJSON(map[string]any{"type": "subscribe"}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m envelope
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("relay <- %s %v", m.Type, m.Payload)
		}
	}()

	// Post one location report; needs an active assignment seeded for the
	// driver, otherwise expect a 403.
	time.Sleep(300 * time.Millisecond)
	body := []byte(`{"vehicle_id":"veh_demo","latitude":51.50,"longitude":-0.10}`)
	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("http://localhost:%s/v1/locations", port), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	_ = resp.Body.Close()
	log.Printf("ingest -> %d %v", resp.StatusCode, out)

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
