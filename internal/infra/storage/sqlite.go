package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"auction_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// TradeRecord is the persisted form of a trade. Times are unix nanoseconds so
// range scans compare integers.
type TradeRecord struct {
	ID       uint    `gorm:"primaryKey"`
	Symbol   string  `gorm:"index:idx_trades_symbol_ts,priority:1"`
	TsNanos  int64   `gorm:"index:idx_trades_symbol_ts,priority:2"`
	Price    float64 `gorm:"not null"`
	Size     float64 `gorm:"not null"`
	Side     string
	Inferred bool
}

// CandleRecord is a closed candle. (symbol, start) is unique and never updated.
type CandleRecord struct {
	Symbol      string `gorm:"primaryKey"`
	StartNanos  int64  `gorm:"primaryKey"`
	IntervalSec int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	BuyVolume   float64
	SellVolume  float64
}

// SignalRecord keeps emitted signals for inspection.
type SignalRecord struct {
	ID              string `gorm:"primaryKey"`
	Symbol          string `gorm:"index"`
	TsNanos         int64  `gorm:"index"`
	Type            string
	EntryPrice      float64
	StopLoss        float64
	TakeProfit      float64
	AggressionScore float64
	MarketState     string
	Reason          string
	CreatedAt       time.Time
}

// SQLiteStore is the persistent TimeSeries store (pure Go SQLite via gorm).
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) the database at path. An empty path
// resolves to the per-user config directory.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		p, err := getDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return newSQLiteStore(db)
}

func newSQLiteStore(db *gorm.DB) (*SQLiteStore, error) {
	if err := db.AutoMigrate(&TradeRecord{}, &CandleRecord{}, &SignalRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "AuctionGo", "data", "auction.db"), nil
}

// Close releases the underlying connection.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Market data
// ======================================================================================

// AppendTrade stores a single trade.
func (s *SQLiteStore) AppendTrade(ctx context.Context, t domain.Trade) error {
	rec := toTradeRecord(t)
	return s.db.WithContext(ctx).Create(&rec).Error
}

// AppendTrades stores trades in batches.
func (s *SQLiteStore) AppendTrades(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	recs := make([]TradeRecord, len(trades))
	for i, t := range trades {
		recs[i] = toTradeRecord(t)
	}
	return s.db.WithContext(ctx).CreateInBatches(recs, 500).Error
}

// SaveCandle stores a closed candle. A candle already stored for the same
// bucket is kept as is: closed candles are never revised.
func (s *SQLiteStore) SaveCandle(ctx context.Context, c domain.Candle) error {
	rec := toCandleRecord(c)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
}

// SaveCandles stores closed candles in batches with the same no-revision rule.
func (s *SQLiteStore) SaveCandles(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	recs := make([]CandleRecord, len(candles))
	for i, c := range candles {
		recs[i] = toCandleRecord(c)
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(recs, 500).Error
}

// GetCandles returns candles with start in [start, end), oldest first.
func (s *SQLiteStore) GetCandles(ctx context.Context, symbol string, start, end time.Time) ([]domain.Candle, error) {
	var recs []CandleRecord
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND start_nanos >= ? AND start_nanos < ?", symbol, start.UnixNano(), end.UnixNano()).
		Order("start_nanos ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Candle, len(recs))
	for i, r := range recs {
		out[i] = r.toDomain()
	}
	return out, nil
}

// GetTrades returns trades with time in [start, end), oldest first.
func (s *SQLiteStore) GetTrades(ctx context.Context, symbol string, start, end time.Time) ([]domain.Trade, error) {
	var recs []TradeRecord
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND ts_nanos >= ? AND ts_nanos < ?", symbol, start.UnixNano(), end.UnixNano()).
		Order("ts_nanos ASC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Trade, len(recs))
	for i, r := range recs {
		out[i] = r.toDomain()
	}
	return out, nil
}

// ======================================================================================
// Signals
// ======================================================================================

// OnSignal records an emitted signal. Re-recording the same id is a no-op.
func (s *SQLiteStore) OnSignal(ctx context.Context, sig domain.Signal) error {
	rec := SignalRecord{
		ID:              sig.ID,
		Symbol:          sig.Symbol,
		TsNanos:         sig.Time.UnixNano(),
		Type:            string(sig.Type),
		EntryPrice:      sig.EntryPrice,
		StopLoss:        sig.StopLoss,
		TakeProfit:      sig.TakeProfit,
		AggressionScore: sig.AggressionScore,
		MarketState:     string(sig.MarketState),
		Reason:          sig.Reason,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
}

// GetSignals returns the most recent signals for a symbol, oldest first.
func (s *SQLiteStore) GetSignals(ctx context.Context, symbol string, limit int) ([]domain.Signal, error) {
	if limit <= 0 {
		limit = 100
	}
	var recs []SignalRecord
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("ts_nanos DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Signal, len(recs))
	for i, r := range recs {
		out[len(recs)-1-i] = domain.Signal{
			ID:              r.ID,
			Symbol:          r.Symbol,
			Time:            time.Unix(0, r.TsNanos).UTC(),
			Type:            domain.SignalType(r.Type),
			EntryPrice:      r.EntryPrice,
			StopLoss:        r.StopLoss,
			TakeProfit:      r.TakeProfit,
			AggressionScore: r.AggressionScore,
			MarketState:     domain.Regime(r.MarketState),
			Reason:          r.Reason,
		}
	}
	return out, nil
}

func toTradeRecord(t domain.Trade) TradeRecord {
	return TradeRecord{
		Symbol:   t.Symbol,
		TsNanos:  t.Time.UnixNano(),
		Price:    t.Price,
		Size:     t.Size,
		Side:     string(t.Side),
		Inferred: t.Inferred,
	}
}

func (r TradeRecord) toDomain() domain.Trade {
	side := domain.Side(r.Side)
	if side == "" {
		side = domain.SideUnknown
	}
	return domain.Trade{
		Symbol:   r.Symbol,
		Time:     time.Unix(0, r.TsNanos).UTC(),
		Price:    r.Price,
		Size:     r.Size,
		Side:     side,
		Inferred: r.Inferred,
	}
}

func toCandleRecord(c domain.Candle) CandleRecord {
	return CandleRecord{
		Symbol:      c.Symbol,
		StartNanos:  c.Start.UnixNano(),
		IntervalSec: int64(c.Interval / time.Second),
		Open:        c.Open,
		High:        c.High,
		Low:         c.Low,
		Close:       c.Close,
		Volume:      c.Volume,
		BuyVolume:   c.BuyVolume,
		SellVolume:  c.SellVolume,
	}
}

func (r CandleRecord) toDomain() domain.Candle {
	return domain.Candle{
		Symbol:     r.Symbol,
		Start:      time.Unix(0, r.StartNanos).UTC(),
		Interval:   time.Duration(r.IntervalSec) * time.Second,
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.Volume,
		BuyVolume:  r.BuyVolume,
		SellVolume: r.SellVolume,
	}
}
