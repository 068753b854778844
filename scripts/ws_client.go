// Package main runs a demo WebSocket client for the live positions stream.
// It pushes a couple of samples for a fake courier and prints what the server
// fans back out.
package main

import (
	"encoding/json"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type positionSample struct {
	CourierID  string  `json:"courierId"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	RecordedAt string  `json:"recordedAt"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/positions/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m json.RawMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s", string(m))
		}
	}()

	// Walk a courier a few meters north per sample.
	lat, lng := 52.5200, 13.4050
	for i := 0; i < 5; i++ {
		sample := positionSample{
			CourierID:  "courier-demo",
			Lat:        lat + float64(i)*0.0001,
			Lng:        lng,
			RecordedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := c.WriteJSON(sample); err != nil {
			log.Fatal(err)
		}
		time.Sleep(500 * time.Millisecond)
	}

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
