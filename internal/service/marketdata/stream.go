package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"SwingScan/internal/domain/models"
	domrepo "SwingScan/internal/domain/repository"
	xlogger "SwingScan/pkg/logger"
	"SwingScan/pkg/util"

	"github.com/gorilla/websocket"
)

// Stream implements MarketStream over the exchange miniTicker websocket feed.
// It keeps live records' current price fresh between scan cycles.
type Stream struct {
	url            string
	reconnectDelay time.Duration
	log            *xlogger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	symbols   []string
	connected bool
}

// NewStream creates a new market stream.
func NewStream(wsURL string, reconnectDelay time.Duration, log *xlogger.Logger) domrepo.MarketStream {
	return &Stream{url: wsURL, reconnectDelay: reconnectDelay, log: log}
}

// Connect establishes the websocket connection.
func (s *Stream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	if s.log != nil {
		s.log.Info("market stream connected", xlogger.String("url", s.url))
	}
	return nil
}

// Subscribe subscribes to miniTicker updates for the given symbols.
func (s *Stream) Subscribe(ctx context.Context, symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || !s.connected {
		return fmt.Errorf("stream not connected")
	}
	s.symbols = symbols

	params := make([]string, len(symbols))
	for i, sym := range symbols {
		params[i] = strings.ToLower(sym) + "@miniTicker"
	}
	msg := map[string]interface{}{"method": "SUBSCRIBE", "params": params, "id": 1}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if s.log != nil {
		s.log.Info("market stream subscribed", xlogger.Int("symbols", len(symbols)))
	}
	return nil
}

type miniTicker struct {
	Symbol    string `json:"s"`
	Close     string `json:"c"`
	EventTime int64  `json:"E"` // ms
}

type streamFrame struct {
	Stream string     `json:"stream"`
	Data   miniTicker `json:"data"`
}

// Read streams price ticks and errors until ctx is done or the read fails.
func (s *Stream) Read(ctx context.Context) (<-chan *models.PriceTick, <-chan error) {
	ticks := make(chan *models.PriceTick, 1024)
	errs := make(chan error, 1)

	go func() {
		defer close(ticks)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			conn := s.current()
			if conn == nil {
				errs <- fmt.Errorf("stream conn nil")
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("stream read: %w", err)
				return
			}
			var f streamFrame
			if err := json.Unmarshal(b, &f); err != nil || f.Data.Symbol == "" {
				// subscription acks and unknown frames
				continue
			}
			price := util.ParseFloat(f.Data.Close)
			if price <= 0 {
				continue
			}
			tick := &models.PriceTick{
				Symbol:    f.Data.Symbol,
				Price:     price,
				Timestamp: f.Data.EventTime / 1000,
			}
			select {
			case ticks <- tick:
			default:
				// drop on backpressure
			}
		}
	}()

	return ticks, errs
}

// Reconnect closes and re-establishes the connection and subscription.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	time.Sleep(s.reconnectDelay)
	if err := s.Connect(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	symbols := s.symbols
	s.mu.Unlock()
	return s.Subscribe(ctx, symbols)
}

// Close closes the connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// IsConnected reports connection state.
func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Stream) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}
