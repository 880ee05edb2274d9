package kalshi

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const wsAuthPath = "/trade-api/ws/v2"

// StreamEvent is one message off the exchange's WebSocket stream:
// exactly one of the three fields is populated, matching the exchange's
// "{orderbook_delta|ticker|fill}" union.
type StreamEvent struct {
	Type           string          `json:"type"`
	OrderbookDelta json.RawMessage `json:"orderbook_delta,omitempty"`
	Ticker         json.RawMessage `json:"ticker,omitempty"`
	Fill           json.RawMessage `json:"fill,omitempty"`
}

// Stream is a restartable, auto-reconnecting WebSocket client. On
// disconnect it reconnects with exponential backoff (2^attempt seconds,
// max 5 attempts) and re-subscribes from the recorded channel list. A
// disconnect that exceeds max attempts makes Run return a
// *ConnectionError and close Events.
type Stream struct {
	url         string
	accessKey   string
	privateKey  *rsa.PrivateKey
	channels    []string // recorded subscription list, re-issued on reconnect
	maxAttempts int

	events chan StreamEvent
	errs   chan error
}

// NewStream builds a Stream for the given WebSocket base URL (scheme
// ws/wss) and subscription channel list (e.g. "orderbook_delta",
// "ticker", "fill").
func NewStream(wsBaseURL, accessKey string, privateKey *rsa.PrivateKey, channels []string) *Stream {
	return &Stream{
		url:         wsBaseURL,
		accessKey:   accessKey,
		privateKey:  privateKey,
		channels:    channels,
		maxAttempts: 5,
		events:      make(chan StreamEvent, 256),
		errs:        make(chan error, 1),
	}
}

// Events returns the channel of decoded stream events. Closed when Run
// returns.
func (s *Stream) Events() <-chan StreamEvent { return s.events }

// Run connects, subscribes, and listens until ctx is cancelled or
// reconnection is exhausted. Run is blocking; call it in a goroutine.
func (s *Stream) Run(ctx context.Context) error {
	defer close(s.events)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := s.connect(ctx)
		if err != nil {
			attempt++
			if attempt > s.maxAttempts {
				return &ConnectionError{Err: err}
			}
			wait := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			slog.Warn("kalshi stream connect failed, backing off", "attempt", attempt, "wait", wait, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		attempt = 0 // reset after a successful connect
		err = s.listen(ctx, conn)
		conn.Close()
		if err == nil {
			return nil // clean shutdown via ctx
		}
		slog.Warn("kalshi stream disconnected, reconnecting", "error", err)
	}
}

func (s *Stream) connect(ctx context.Context) (*websocket.Conn, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	message := ts + "GET" + wsAuthPath
	digest := sha256sum(message)
	sig, err := signDigest(s.privateKey, digest)
	if err != nil {
		return nil, err
	}

	header := map[string][]string{
		"KALSHI-ACCESS-KEY":       {s.accessKey},
		"KALSHI-ACCESS-SIGNATURE": {sig},
		"KALSHI-ACCESS-TIMESTAMP": {ts},
	}

	u, err := url.Parse(s.url)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, err
	}

	for _, channel := range s.channels {
		sub := map[string]any{"cmd": "subscribe", "channel": channel}
		if err := conn.WriteJSON(sub); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return conn, nil
}

func (s *Stream) listen(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		var evt StreamEvent
		if err := conn.ReadJSON(&evt); err != nil {
			if strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			return err
		}

		select {
		case s.events <- evt:
		case <-ctx.Done():
			return nil
		}
	}
}
