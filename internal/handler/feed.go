package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/event-feed/internal/model"
	"github.com/Shivanand-hulikatti/event-feed/internal/service"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait / 2
)

// FeedMessage is one frame of the live event feed.
type FeedMessage struct {
	Type   string        `json:"type"`
	Events []model.Event `json:"events,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Frame types.
const (
	FrameSnapshot = "snapshot"
	FrameError    = "error"
)

// FeedHandler streams the upcoming events over a WebSocket.
type FeedHandler struct {
	base context.Context
	feed *service.Feed
	upgr websocket.Upgrader
	log  *zap.Logger
}

// NewFeedHandler constructs a FeedHandler. Every feed connection ends when
// base is done, which is how the server closes hijacked connections on
// shutdown.
func NewFeedHandler(base context.Context, feed *service.Feed, log *zap.Logger) *FeedHandler {
	if base == nil {
		base = context.Background()
	}
	return &FeedHandler{
		base: base,
		feed: feed,
		upgr: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// Serve handles GET /events/feed
// Each frame carries the full upcoming list; a slow client skips straight
// to the latest one. An error frame is the last frame of a connection.
func (h *FeedHandler) Serve(w http.ResponseWriter, r *http.Request) {
	wc, err := h.upgr.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("feed upgrade failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithCancel(h.base)
	defer cancel()

	send := make(chan FeedMessage, 1)
	stop, err := h.feed.Subscribe(ctx, func(events []model.Event, err error) {
		msg := FeedMessage{Type: FrameSnapshot, Events: events}
		if err != nil {
			msg = FeedMessage{Type: FrameError, Error: err.Error()}
		}
		latest(send, msg)
	})
	if err != nil {
		wc.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = wc.WriteJSON(FeedMessage{Type: FrameError, Error: err.Error()})
		closeFrame(wc, websocket.CloseTryAgainLater, "store unavailable")
		wc.Close()
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.write(ctx, wc, send)
	}()
	if err := read(wc); err != nil {
		h.log.Debug("feed client read failed", zap.Error(err))
	}
	stop()
	close(send)
	<-done
}

// latest replaces any frame still queued in ch with msg. It has a single
// producer, the subscription callback.
func latest(ch chan FeedMessage, msg FeedMessage) {
	for {
		select {
		case ch <- msg:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// write owns every write to wc and closes it on return, which also ends
// the read loop.
func (h *FeedHandler) write(ctx context.Context, wc *websocket.Conn, send <-chan FeedMessage) {
	defer wc.Close()
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case msg, ok := <-send:
			if !ok {
				closeFrame(wc, websocket.CloseNormalClosure, "")
				return
			}
			wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wc.WriteJSON(msg); err != nil {
				h.log.Debug("feed write failed", zap.Error(err))
				return
			}
			if msg.Type == FrameError {
				closeFrame(wc, websocket.CloseTryAgainLater, "feed ended")
				return
			}
		case <-ctx.Done():
			closeFrame(wc, websocket.CloseGoingAway, "server shutting down")
			return
		case <-t.C:
			wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wc.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func closeFrame(wc *websocket.Conn, code int, text string) {
	wc.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = wc.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}

// read discards client frames until the connection goes away. A client
// that stops answering pings is dropped after pongWait.
func read(wc *websocket.Conn) error {
	wc.SetReadLimit(512)
	wc.SetReadDeadline(time.Now().Add(pongWait))
	wc.SetPongHandler(func(string) error {
		return wc.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := wc.NextReader(); err != nil {
			var cerr *websocket.CloseError
			if errors.As(err, &cerr) {
				return nil
			}
			return err
		}
	}
}
