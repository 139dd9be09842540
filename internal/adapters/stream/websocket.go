package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/legbook/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	closeGrace       = time.Second
)

// WSStream reads the options chain stream over a websocket connection.
// It implements ports.PriceStream. Reconnection is left to the caller.
type WSStream struct {
	url    string
	dialer *websocket.Dialer
	loc    *time.Location

	// OnClose is called once when the connection ends, for any reason.
	OnClose func()
}

// NewWSStream creates a stream for url. loc is the zone used to read the
// DDMMYY expiry embedded in option symbols (nil = time.Local).
func NewWSStream(url string, loc *time.Location) *WSStream {
	if loc == nil {
		loc = time.Local
	}
	return &WSStream{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			Proxy:            websocket.DefaultDialer.Proxy,
		},
		loc: loc,
	}
}

// Stream dials the websocket and pushes every prices message into out.
// Returns nil when ctx is cancelled or the server closes the connection cleanly.
func (s *WSStream) Stream(ctx context.Context, out chan<- domain.PriceUpdate) error {
	conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("stream.Stream: dial %s: status %s: %w", s.url, resp.Status, err)
		}
		return fmt.Errorf("stream.Stream: dial %s: %w", s.url, err)
	}
	slog.Info("market stream connected", "url", s.url)

	done := make(chan struct{})
	defer func() {
		close(done)
		conn.Close()
		if s.OnClose != nil {
			s.OnClose()
		}
	}()

	// Unblock ReadMessage on shutdown.
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(closeGrace))
			conn.Close()
		case <-done:
		}
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && (closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway) {
				slog.Warn("market stream closed by server", "code", closeErr.Code, "reason", closeErr.Text)
				return nil
			}
			return fmt.Errorf("stream.Stream: read: %w", err)
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		update, ok := decodePrices(data, s.loc)
		if !ok {
			continue
		}
		update.ReceivedAt = time.Now()

		select {
		case out <- update:
		case <-ctx.Done():
			return nil
		}
	}
}
