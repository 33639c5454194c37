package main

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	WSURL     = "ws://localhost:8080/ws"
	RoomCount = 50 // ⚠️ Start small. Every message fans out to the whole room.
	RoomSize  = 10 // Users per room
	MsgCount  = 20 // Messages per user
	ReadWait  = 5 * time.Second
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type roomMessage struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

var (
	sent     atomic.Int64
	received atomic.Int64
	receipts atomic.Int64
)

func main() {
	log.Printf("🔥 STARTING STRESS TEST: %d Rooms x %d Users, %d Messages each...", RoomCount, RoomSize, MsgCount)
	start := time.Now()
	var wg sync.WaitGroup

	for r := 0; r < RoomCount; r++ {
		room := fmt.Sprintf("room_%d", r)
		for u := 0; u < RoomSize; u++ {
			wg.Add(1)
			go func(user string) {
				defer wg.Done()
				runUser(room, user)
			}(fmt.Sprintf("u_%d_%d", r, u))
		}
	}

	wg.Wait()
	log.Printf("✅ LOAD TEST COMPLETE in %s: sent=%d received=%d readReceipts=%d",
		time.Since(start).Round(time.Millisecond), sent.Load(), received.Load(), receipts.Load())
}

func runUser(room, user string) {
	conn, _, err := websocket.DefaultDialer.Dial(WSURL, nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", user, err)
		return
	}
	defer conn.Close()

	if err := send(conn, "joinRoom", map[string]string{"username": user, "room": room}); err != nil {
		log.Printf("❌ Join Fail [%s]: %v", user, err)
		return
	}

	// Reader: acknowledge every message from somebody else
	var readerWg sync.WaitGroup
	readerWg.Add(1)
	go func() {
		defer readerWg.Done()
		readLoop(conn, room, user)
	}()

	// Spam Loop
	for i := 0; i < MsgCount; i++ {
		payload := map[string]string{
			"msg":   fmt.Sprintf("LoadTest Msg %d from %s", i, user),
			"msgId": fmt.Sprintf("%s-%d", user, i),
			"room":  room,
		}
		if err := send(conn, "sendMessage", payload); err != nil {
			log.Printf("❌ Send Fail [%s]: %v", user, err)
			break
		}
		sent.Add(1)
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}

	readerWg.Wait()
	log.Printf("✅ %s finished sending %d msgs", user, MsgCount)
}

// readLoop runs until the server has been quiet for ReadWait.
func readLoop(conn *websocket.Conn, room, user string) {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(ReadWait))
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		switch f.Event {
		case "message":
			received.Add(1)
			var msg roomMessage
			if err := json.Unmarshal(f.Data, &msg); err != nil || msg.User == user {
				continue
			}
			if err := send(conn, "readReceipt", map[string]string{"msgId": msg.ID, "room": room}); err != nil {
				return
			}
		case "messageRead":
			receipts.Add(1)
		case "error":
			log.Printf("⚠️ Server error [%s]: %s", user, f.Data)
		}
	}
}

var writeMu sync.Map // *websocket.Conn -> *sync.Mutex

// send serializes writes: gorilla allows one concurrent writer per connection.
func send(conn *websocket.Conn, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	mu, _ := writeMu.LoadOrStore(conn, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()
	return conn.WriteJSON(frame{Event: event, Data: data})
}
