// Package binance connects to Binance spot market data: the aggTrade
// websocket stream for live ingestion and the REST API for backfill.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"auction_go/internal/domain"
	"auction_go/internal/event"
	"auction_go/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	maxRetries   = 10
	pingInterval = 3 * time.Minute
	readTimeout  = 60 * time.Second
	exchangeName = "BINANCE"
)

// aggTradeMessage is one combined-stream frame.
type aggTradeMessage struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType    string `json:"e"`
		Symbol       string `json:"s"`
		AggTradeID   int64  `json:"a"`
		Price        string `json:"p"`
		Quantity     string `json:"q"`
		TradeTime    int64  `json:"T"`
		IsBuyerMaker bool   `json:"m"`
	} `json:"data"`
}

// StreamWorker handles the Binance aggTrade WebSocket connection
type StreamWorker struct {
	baseURL   string
	symbols   []string
	inbox     chan<- event.Event
	metrics   *infra.Metrics
	logger    *slog.Logger
	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewStreamWorker creates a worker for the given symbols. baseURL is the
// combined stream endpoint, e.g. wss://stream.binance.com:9443/stream.
func NewStreamWorker(baseURL string, symbols []string, inbox chan<- event.Event, metrics *infra.Metrics, logger *slog.Logger) *StreamWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamWorker{
		baseURL: baseURL,
		symbols: symbols,
		inbox:   inbox,
		metrics: metrics,
		logger:  logger.With(slog.String("exchange", exchangeName)),
	}
}

// StreamURL builds the combined aggTrade stream URL.
func StreamURL(baseURL string, symbols []string) string {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = strings.ToLower(s) + "@aggTrade"
	}
	return baseURL + "?streams=" + strings.Join(streams, "/")
}

// Connect starts the WebSocket connection
func (w *StreamWorker) Connect(ctx context.Context) error {
	if len(w.symbols) == 0 {
		return fmt.Errorf("binance stream: no symbols")
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

// IsConnected reports whether a connection is currently open.
func (w *StreamWorker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

func (w *StreamWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			w.logger.Warn("Binance connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			delay := infra.CalculateBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		} else {
			retryCount = 0
			w.readLoop(ctx)
			w.logger.Warn("Binance stream dropped; trades until reconnect are missing")
		}
	}
}

func (w *StreamWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := make(http.Header)
	header.Add("User-Agent", infra.DefaultUserAgent)

	conn, _, err := dialer.DialContext(ctx, StreamURL(w.baseURL, w.symbols), header)
	if err != nil {
		return domain.NewNetworkError("dial", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()
	if w.metrics != nil {
		w.metrics.IncrementConnections()
	}

	w.logger.Info("Binance Connected", slog.Int("subs", len(w.symbols)))
	return nil
}

func (w *StreamWorker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *StreamWorker) readLoop(ctx context.Context) {
	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go w.pingLoop(pingCtx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			w.closeConnection()
			return
		}
		ev, ok := ParseAggTrade(msg)
		if !ok {
			continue
		}
		select {
		case w.inbox <- ev:
		case <-ctx.Done():
			event.ReleaseTradeEvent(ev)
			return
		}
	}
}

func (w *StreamWorker) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.threadSafeWrite(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ParseAggTrade decodes one combined-stream frame into a pooled TradeEvent.
// Binance flags buyer-is-maker: the aggressor was then the seller.
func ParseAggTrade(msg []byte) (*event.TradeEvent, bool) {
	var m aggTradeMessage
	if json.Unmarshal(msg, &m) != nil || m.Data.EventType != "aggTrade" {
		return nil, false
	}
	price, err := strconv.ParseFloat(m.Data.Price, 64)
	if err != nil || price <= 0 {
		return nil, false
	}
	qty, err := strconv.ParseFloat(m.Data.Quantity, 64)
	if err != nil || qty <= 0 || m.Data.TradeTime == 0 {
		return nil, false
	}

	side := domain.SideBuy
	if m.Data.IsBuyerMaker {
		side = domain.SideSell
	}
	return event.AcquireTrade(domain.Trade{
		Symbol: strings.ToUpper(m.Data.Symbol),
		Time:   time.UnixMilli(m.Data.TradeTime).UTC(),
		Price:  price,
		Size:   qty,
		Side:   side,
	}, exchangeName), true
}

func (w *StreamWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
		if w.metrics != nil {
			w.metrics.DecrementConnections()
		}
	}
	w.connected = false
}

// Disconnect stops the worker and waits for its goroutine.
func (w *StreamWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}

var _ domain.ExchangeWorker = (*StreamWorker)(nil)
