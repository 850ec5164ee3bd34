package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/dutch-better/internal/models"
)

// PriceStream maintains a live view of market prices over the exchange
// stream API. It keeps the best back/lay per runner for subscribed markets
// so the pre-off favourite check can avoid a REST round trip.
type PriceStream struct {
	conn            *websocket.Conn
	sessionToken    string
	appKey          string
	streamURL       string
	isConnected     bool
	lastMessageTime time.Time
	books           map[string]map[uint64]*models.RunnerPrice
	mu              sync.RWMutex
	logger          *logrus.Logger
}

// StreamMessage represents a message from the exchange stream API
type StreamMessage struct {
	Op            string         `json:"op"`
	ID            int            `json:"id,omitempty"`
	StatusCode    string         `json:"statusCode,omitempty"`
	ErrorCode     string         `json:"errorCode,omitempty"`
	ConnectionID  string         `json:"connectionId,omitempty"`
	MarketChanges []MarketChange `json:"mc,omitempty"`
}

// MarketChange represents a market change in a stream message
type MarketChange struct {
	MarketID  string         `json:"id"`
	FullImage bool           `json:"img"`
	Runners   []RunnerChange `json:"rc"`
}

// RunnerChange represents a runner change in a stream message
type RunnerChange struct {
	SelectionID uint64      `json:"id"`
	BackPrices  [][]float64 `json:"batb,omitempty"`
	LayPrices   [][]float64 `json:"batl,omitempty"`
}

// NewPriceStream creates a price stream client
func NewPriceStream(sessionToken, appKey, streamURL string, logger *logrus.Logger) *PriceStream {
	return &PriceStream{
		sessionToken: sessionToken,
		appKey:       appKey,
		streamURL:    streamURL,
		books:        make(map[string]map[uint64]*models.RunnerPrice),
		logger:       logger,
	}
}

// Connect establishes the stream connection and authenticates
func (s *PriceStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isConnected {
		return fmt.Errorf("already connected")
	}

	wsURL := fmt.Sprintf("wss://%s/stream", s.streamURL)
	s.logger.WithField("url", wsURL).Info("Connecting to price stream")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to stream: %w", err)
	}

	s.conn = conn
	s.isConnected = true
	s.lastMessageTime = time.Now()

	authMsg := map[string]interface{}{
		"op":      "authentication",
		"session": s.sessionToken,
		"appKey":  s.appKey,
	}
	if err := conn.WriteJSON(authMsg); err != nil {
		s.isConnected = false
		conn.Close()
		return fmt.Errorf("failed to authenticate stream: %w", err)
	}

	go s.readMessages()

	return nil
}

// SubscribeToMarkets subscribes to price changes for the given markets
func (s *PriceStream) SubscribeToMarkets(ctx context.Context, marketIDs []string) error {
	subMsg := map[string]interface{}{
		"op": "marketSubscription",
		"marketFilter": map[string]interface{}{
			"marketIds": marketIDs,
		},
		"marketDataFilter": map[string]interface{}{
			"fields":       []string{"EX_BEST_OFFERS"},
			"ladderLevels": 1,
		},
		"conflateMs":  1000,
		"heartbeatMs": 5000,
	}

	s.logger.WithField("markets", len(marketIDs)).Info("Subscribing to market stream")
	return s.sendMessage(subMsg)
}

// LatestPrices returns the streamed prices for a market sorted ascending by
// back price. ok is false when the stream has no usable data for the market.
func (s *PriceStream) LatestPrices(marketID string) ([]models.RunnerPrice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, ok := s.books[marketID]
	if !ok || len(book) < 2 {
		return nil, false
	}

	prices := make([]models.RunnerPrice, 0, len(book))
	for _, price := range book {
		if price.BackPrice >= minValidPrice {
			prices = append(prices, *price)
		}
	}
	if len(prices) < 2 {
		return nil, false
	}

	// Insertion sort keeps this allocation-free for small fields
	for i := 1; i < len(prices); i++ {
		for j := i; j > 0 && prices[j].BackPrice < prices[j-1].BackPrice; j-- {
			prices[j], prices[j-1] = prices[j-1], prices[j]
		}
	}

	return prices, true
}

// readMessages reads stream messages until the connection drops
func (s *PriceStream) readMessages() {
	defer s.Close()

	for {
		var raw json.RawMessage
		if err := s.conn.ReadJSON(&raw); err != nil {
			s.logger.WithError(err).Warn("Price stream read failed")
			s.mu.Lock()
			s.isConnected = false
			s.mu.Unlock()
			return
		}

		var msg StreamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.WithError(err).Debug("Unparseable stream message")
			continue
		}

		s.mu.Lock()
		s.lastMessageTime = time.Now()
		if msg.Op == "mcm" {
			s.applyChanges(msg.MarketChanges)
		}
		s.mu.Unlock()
	}
}

// applyChanges folds market changes into the book. Callers hold the lock.
func (s *PriceStream) applyChanges(changes []MarketChange) {
	for _, mc := range changes {
		book, ok := s.books[mc.MarketID]
		if !ok || mc.FullImage {
			book = make(map[uint64]*models.RunnerPrice)
			s.books[mc.MarketID] = book
		}
		for _, rc := range mc.Runners {
			price, ok := book[rc.SelectionID]
			if !ok {
				price = &models.RunnerPrice{SelectionID: rc.SelectionID}
				book[rc.SelectionID] = price
			}
			// batb/batl levels are [level, price, size]; level 0 is best
			for _, lvl := range rc.BackPrices {
				if len(lvl) >= 3 && lvl[0] == 0 {
					price.BackPrice = lvl[1]
				}
			}
			for _, lvl := range rc.LayPrices {
				if len(lvl) >= 3 && lvl[0] == 0 {
					price.LayPrice = lvl[1]
				}
			}
		}
	}
}

// sendMessage sends a JSON message over the stream
func (s *PriceStream) sendMessage(msg interface{}) error {
	s.mu.RLock()
	if !s.isConnected || s.conn == nil {
		s.mu.RUnlock()
		return fmt.Errorf("not connected")
	}
	conn := s.conn
	s.mu.RUnlock()

	return conn.WriteJSON(msg)
}

// IsConnected returns whether the stream is connected
func (s *PriceStream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isConnected
}

// LastMessageTime returns the time of the last received message
func (s *PriceStream) LastMessageTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastMessageTime
}

// Close closes the stream connection
func (s *PriceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	s.isConnected = false
	return s.conn.Close()
}
