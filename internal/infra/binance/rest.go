package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"auction_go/internal/domain"
	"auction_go/internal/infra"

	"github.com/go-resty/resty/v2"
)

const (
	klinesLimit    = 1000
	aggTradesLimit = 1000
)

var intervalNames = map[time.Duration]string{
	time.Minute:      "1m",
	3 * time.Minute:  "3m",
	5 * time.Minute:  "5m",
	15 * time.Minute: "15m",
	30 * time.Minute: "30m",
	time.Hour:        "1h",
	2 * time.Hour:    "2h",
	4 * time.Hour:    "4h",
	6 * time.Hour:    "6h",
	8 * time.Hour:    "8h",
	12 * time.Hour:   "12h",
	24 * time.Hour:   "1d",
}

// IntervalName maps a candle interval to the Binance kline code.
func IntervalName(d time.Duration) (string, error) {
	name, ok := intervalNames[d]
	if !ok {
		return "", fmt.Errorf("unsupported kline interval %v", d)
	}
	return name, nil
}

// RESTClient handles Binance spot REST market data
type RESTClient struct {
	client *resty.Client
}

// NewRESTClient creates a client against baseURL (e.g. https://api.binance.com).
func NewRESTClient(baseURL string) *RESTClient {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", infra.DefaultUserAgent)
	client.SetRetryCount(3)
	client.SetRetryWaitTime(500 * time.Millisecond)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
	})
	return &RESTClient{client: client}
}

func (c *RESTClient) get(ctx context.Context, op, path string, params map[string]string) ([]byte, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return nil, domain.NewNetworkError(op, err)
	}
	if resp.IsError() {
		err := fmt.Errorf("status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
		if resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500 {
			return nil, domain.NewNetworkError(op, err)
		}
		return nil, domain.NewFatalNetworkError(op, err)
	}
	return resp.Body(), nil
}

// Klines fetches closed candles with start in [start, end). Candles that
// would close after end are left out. Taker buy volume gives the aggressor
// split.
func (c *RESTClient) Klines(ctx context.Context, symbol string, interval time.Duration, start, end time.Time) ([]domain.Candle, error) {
	name, err := IntervalName(interval)
	if err != nil {
		return nil, err
	}

	var out []domain.Candle
	cursor := start
	for cursor.Before(end) {
		body, err := c.get(ctx, "klines", "/api/v3/klines", map[string]string{
			"symbol":    strings.ToUpper(symbol),
			"interval":  name,
			"startTime": strconv.FormatInt(cursor.UnixMilli(), 10),
			"endTime":   strconv.FormatInt(end.UnixMilli()-1, 10),
			"limit":     strconv.Itoa(klinesLimit),
		})
		if err != nil {
			return nil, err
		}
		page, err := parseKlines(symbol, interval, body)
		if err != nil {
			return nil, domain.NewFatalNetworkError("klines decode", err)
		}
		if len(page) == 0 {
			break
		}
		for _, k := range page {
			if k.End().After(end) {
				continue
			}
			out = append(out, k)
		}
		next := page[len(page)-1].End()
		if !next.After(cursor) || len(page) < klinesLimit {
			break
		}
		cursor = next
	}
	return out, nil
}

func parseKlines(symbol string, interval time.Duration, body []byte) ([]domain.Candle, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, err
	}
	out := make([]domain.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 10 {
			return nil, fmt.Errorf("kline row has %d fields", len(row))
		}
		var openMs int64
		if err := json.Unmarshal(row[0], &openMs); err != nil {
			return nil, fmt.Errorf("open time: %w", err)
		}
		var f [6]float64 // open high low close volume takerBuy
		for i, idx := range []int{1, 2, 3, 4, 5, 9} {
			v, err := decimalString(row[idx])
			if err != nil {
				return nil, err
			}
			f[i] = v
		}
		c := domain.Candle{
			Symbol:   strings.ToUpper(symbol),
			Start:    time.UnixMilli(openMs).UTC(),
			Interval: interval,
			Open:     f[0],
			High:     f[1],
			Low:      f[2],
			Close:    f[3],
			Volume:   f[4],
		}
		if f[5] >= 0 && f[5] <= f[4] {
			c.BuyVolume = f[5]
			c.SellVolume = f[4] - f[5]
		}
		out = append(out, c)
	}
	return out, nil
}

type aggTradeRow struct {
	ID           int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

// AggTrades fetches aggregated trades with time in [start, end). The venue
// caps a time-ranged query at one hour, so the range is walked in hour
// windows and full pages continue from the last trade time.
func (c *RESTClient) AggTrades(ctx context.Context, symbol string, start, end time.Time) ([]domain.Trade, error) {
	var out []domain.Trade
	lastID := int64(-1)

	for windowStart := start; windowStart.Before(end); {
		windowEnd := windowStart.Add(time.Hour)
		if windowEnd.After(end) {
			windowEnd = end
		}

		cursor := windowStart
		for {
			body, err := c.get(ctx, "aggTrades", "/api/v3/aggTrades", map[string]string{
				"symbol":    strings.ToUpper(symbol),
				"startTime": strconv.FormatInt(cursor.UnixMilli(), 10),
				"endTime":   strconv.FormatInt(windowEnd.UnixMilli()-1, 10),
				"limit":     strconv.Itoa(aggTradesLimit),
			})
			if err != nil {
				return nil, err
			}
			var rows []aggTradeRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return nil, domain.NewFatalNetworkError("aggTrades decode", err)
			}

			for _, r := range rows {
				if r.ID <= lastID {
					continue
				}
				tr, ok := r.trade(symbol)
				if !ok || !tr.Time.Before(end) {
					continue
				}
				out = append(out, tr)
				lastID = r.ID
			}

			if len(rows) < aggTradesLimit {
				break
			}
			next := time.UnixMilli(rows[len(rows)-1].TradeTime)
			if !next.After(cursor) {
				// a single millisecond holds more than a page; move past it
				next = cursor.Add(time.Millisecond)
			}
			cursor = next
		}
		windowStart = windowEnd
	}
	return out, nil
}

func (r aggTradeRow) trade(symbol string) (domain.Trade, bool) {
	price, err := strconv.ParseFloat(r.Price, 64)
	if err != nil {
		return domain.Trade{}, false
	}
	qty, err := strconv.ParseFloat(r.Quantity, 64)
	if err != nil {
		return domain.Trade{}, false
	}
	side := domain.SideBuy
	if r.IsBuyerMaker {
		side = domain.SideSell
	}
	return domain.Trade{
		Symbol: strings.ToUpper(symbol),
		Time:   time.UnixMilli(r.TradeTime).UTC(),
		Price:  price,
		Size:   qty,
		Side:   side,
	}, true
}

func decimalString(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("expected string number: %w", err)
	}
	return strconv.ParseFloat(s, 64)
}
