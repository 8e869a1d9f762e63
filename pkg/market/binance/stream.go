// Package binance is a minimal streaming client for the Binance public
// combined websocket. It only covers the streams the feed provider needs:
// aggregate trades and best bid/ask.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const DefaultStreamURL = "wss://stream.binance.com:9443/stream"

// AggTrade is one aggregated trade from the <symbol>@aggTrade stream.
type AggTrade struct {
	Symbol     string
	Price      float64
	Quantity   float64
	BuyerMaker bool
	TradeTime  int64
}

// BookTicker is a best bid/ask update from the <symbol>@bookTicker stream.
type BookTicker struct {
	Symbol   string
	BidPrice float64
	BidQty   float64
	AskPrice float64
	AskQty   float64
}

// Message is one parsed combined-stream frame; exactly one field is set.
type Message struct {
	Trade  *AggTrade
	Ticker *BookTicker
}

// StreamClient dials the combined stream endpoint.
type StreamClient struct {
	log       *zap.Logger
	streamURL string
	dialer    *websocket.Dialer
}

func NewStreamClient(log *zap.Logger, streamURL string) *StreamClient {
	if streamURL == "" {
		streamURL = DefaultStreamURL
	}
	return &StreamClient{
		log:       log,
		streamURL: streamURL,
		dialer:    websocket.DefaultDialer,
	}
}

// SubscribeCombined opens one connection carrying aggTrade and bookTicker
// for every symbol. The returned stop function closes the connection and
// the channel; it is safe to call more than once.
func (c *StreamClient) SubscribeCombined(ctx context.Context, symbols []string) (<-chan Message, func(), error) {
	streams := make([]string, 0, len(symbols)*2)
	for _, s := range symbols {
		lower := strings.ToLower(s)
		streams = append(streams, lower+"@aggTrade", lower+"@bookTicker")
	}
	u := fmt.Sprintf("%s?streams=%s", c.streamURL, strings.Join(streams, "/"))

	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial binance combined stream: %w", err)
	}

	out := make(chan Message, 256)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		})
	}

	go func() {
		defer close(out)
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, raw, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				c.log.Warn("binance stream read error", zap.Error(err))
				return
			}

			msg, err := parseCombined(raw)
			if err != nil {
				c.log.Warn("binance stream parse error", zap.Error(err))
				continue
			}
			if msg.Trade == nil && msg.Ticker == nil {
				continue
			}
			select {
			case out <- msg:
			default:
				// Consumer stalled; drop rather than block the reader.
			}
		}
	}()

	return out, stop, nil
}

type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

func parseCombined(raw []byte) (Message, error) {
	var frame combinedFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Message{}, fmt.Errorf("combined frame: %w", err)
	}
	switch {
	case strings.HasSuffix(frame.Stream, "@aggTrade"):
		trade, err := parseAggTrade(frame.Data)
		if err != nil {
			return Message{}, err
		}
		return Message{Trade: &trade}, nil
	case strings.HasSuffix(frame.Stream, "@bookTicker"):
		ticker, err := parseBookTicker(frame.Data)
		if err != nil {
			return Message{}, err
		}
		return Message{Ticker: &ticker}, nil
	}
	return Message{}, nil
}

func parseAggTrade(data []byte) (AggTrade, error) {
	var m struct {
		Symbol     string `json:"s"`
		Price      string `json:"p"`
		Quantity   string `json:"q"`
		BuyerMaker bool   `json:"m"`
		TradeTime  int64  `json:"T"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return AggTrade{}, fmt.Errorf("aggTrade: %w", err)
	}
	return AggTrade{
		Symbol:     m.Symbol,
		Price:      mustFloat(m.Price),
		Quantity:   mustFloat(m.Quantity),
		BuyerMaker: m.BuyerMaker,
		TradeTime:  m.TradeTime,
	}, nil
}

func parseBookTicker(data []byte) (BookTicker, error) {
	var m struct {
		Symbol   string `json:"s"`
		BidPrice string `json:"b"`
		BidQty   string `json:"B"`
		AskPrice string `json:"a"`
		AskQty   string `json:"A"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return BookTicker{}, fmt.Errorf("bookTicker: %w", err)
	}
	return BookTicker{
		Symbol:   m.Symbol,
		BidPrice: mustFloat(m.BidPrice),
		BidQty:   mustFloat(m.BidQty),
		AskPrice: mustFloat(m.AskPrice),
		AskQty:   mustFloat(m.AskQty),
	}, nil
}

func mustFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
