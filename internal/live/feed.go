package live

import (
	"bytes"
	"encoding/json"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/Brownie44l1/asl-api/internal/model"
	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

type command struct {
	Command string `json:"command"`
}

type event struct {
	Event   string   `json:"event"`
	Reading *Reading `json:"reading,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Feed reads frames from a websocket. Binary messages are encoded images,
// text messages are JSON commands. Readings are written back to the client
// as they are made.
type Feed struct {
	Slot    *Slot
	Watcher *Watcher
	Log     logs.Log
	Now     func() time.Time
}

// Run blocks until the connection is closed. It is the only writer on conn.
func (f *Feed) Run(conn *websocket.Conn) {
	now := f.Now
	if now == nil {
		now = time.Now
	}
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.Log.Infof("Feed closed: %v", err)
			}
			return
		}
		var reply *event
		switch msgType {
		case websocket.BinaryMessage:
			reply = f.onFrame(data, now())
		case websocket.TextMessage:
			reply = f.onCommand(data)
		}
		if reply != nil {
			if err := conn.WriteJSON(reply); err != nil {
				f.Log.Infof("Feed write failed: %v", err)
				return
			}
		}
	}
}

func (f *Feed) onFrame(data []byte, at time.Time) *event {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		f.Log.Warnf("Skipping undecodable frame (%v bytes): %v", len(data), err)
		return &event{Event: "error", Error: "undecodable frame"}
	}
	f.Log.Debugf("Frame %v %v", format, img.Bounds().Size())
	snap := f.Slot.Store(model.FrameFromImage(img), at)
	if f.Watcher == nil {
		return nil
	}
	if r := f.Watcher.Offer(snap); r != nil {
		return &event{Event: "reading", Reading: r}
	}
	return nil
}

func (f *Feed) onCommand(data []byte) *event {
	msg := command{}
	if err := json.Unmarshal(data, &msg); err != nil {
		f.Log.Infof("Failed to decode feed command: %v", err)
		return nil
	}
	switch msg.Command {
	case "ping":
		return &event{Event: "pong"}
	case "latest":
		if f.Watcher != nil {
			if r, ok := f.Watcher.Latest(); ok {
				return &event{Event: "reading", Reading: r}
			}
		}
		return &event{Event: "error", Error: ErrNoFrame.Error()}
	default:
		f.Log.Infof("Unknown feed command '%v'", msg.Command)
	}
	return nil
}
