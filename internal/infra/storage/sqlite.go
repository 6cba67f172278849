package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"crypto_backtest/internal/domain"
	"crypto_backtest/internal/infra"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const insertBatchSize = 500

// barRecord is one row of the on-disk bar schema. NaN values are stored as NULL.
type barRecord struct {
	Symbol         string   `gorm:"primaryKey"`
	Date           uint64   `gorm:"primaryKey;autoIncrement:false"`
	Open           *float64 `gorm:"column:open"`
	High           *float64 `gorm:"column:high"`
	Low            *float64 `gorm:"column:low"`
	Close          *float64 `gorm:"column:close"`
	PrevClose      *float64 `gorm:"column:prev_close"`
	Volume         *float64 `gorm:"column:volume"`
	TotalTurnover  *float64 `gorm:"column:total_turnover"`
	Settlement     *float64 `gorm:"column:settlement"`
	PrevSettlement *float64 `gorm:"column:prev_settlement"`
	OpenInterest   *float64 `gorm:"column:open_interest"`
}

func (barRecord) TableName() string { return "bars" }

// BarStore is the persistent bar container of one asset class: one sqlite
// file, one ordered record sequence per symbol. Writers must be serialized
// by the caller.
type BarStore struct {
	class   domain.AssetClass
	path    string
	log     *slog.Logger
	metrics *infra.Metrics

	mu sync.Mutex
	db *gorm.DB
}

// NewBarStore returns a store for path. The file is opened lazily.
func NewBarStore(class domain.AssetClass, path string, log *slog.Logger, metrics *infra.Metrics) *BarStore {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &BarStore{class: class, path: path, log: log, metrics: metrics}
}

// AssetClass returns the asset class served by the store.
func (s *BarStore) AssetClass() domain.AssetClass { return s.class }

// Path returns the container file.
func (s *BarStore) Path() string { return s.path }

// open connects to the container. With create unset a missing file is
// reported as fs.ErrNotExist instead of being created.
func (s *BarStore) open(create bool) (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	if _, err := os.Stat(s.path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || !create {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
			return nil, domain.NewStorageError("mkdir", s.path, err)
		}
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(s.path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, domain.NewStorageError("open", s.path, err)
	}

	if err := db.AutoMigrate(&barRecord{}); err != nil {
		return nil, domain.NewStorageError("migrate", s.path, err)
	}

	s.db = db
	return db, nil
}

// GetBars returns the ordered sequence of symbol. It never fails: unknown
// symbols, a missing container and read errors all yield an empty sequence.
func (s *BarStore) GetBars(symbol string) []domain.Bar {
	bars, err := s.load(symbol)
	if err != nil {
		s.degraded("get_bars", symbol, err)
		return []domain.Bar{}
	}
	return bars
}

func (s *BarStore) load(symbol string) ([]domain.Bar, error) {
	db, err := s.open(false)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.Bar{}, nil
	}
	if err != nil {
		return nil, err
	}

	var rows []barRecord
	if err := db.Where("symbol = ?", symbol).Order("date ASC").Find(&rows).Error; err != nil {
		return nil, domain.NewStorageError("read", s.path, err)
	}

	bars := make([]domain.Bar, len(rows))
	for i := range rows {
		bars[i] = rows[i].toBar()
	}
	return bars, nil
}

// StoreBars replaces the whole sequence of symbol. An empty sequence leaves
// the symbol absent. Write errors are returned to the caller.
func (s *BarStore) StoreBars(symbol string, bars []domain.Bar) error {
	if symbol == "" {
		return fmt.Errorf("%w: empty symbol", domain.ErrInvalidArgument)
	}
	if !domain.SortedByDate(bars) {
		return fmt.Errorf("%w: %s", domain.ErrUnsortedBars, symbol)
	}

	db, err := s.open(true)
	if err != nil {
		return err
	}

	rows := make([]barRecord, len(bars))
	for i, b := range bars {
		rows[i] = newBarRecord(symbol, b)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("symbol = ?", symbol).Delete(&barRecord{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, insertBatchSize).Error
	})
	if err != nil {
		return domain.NewStorageError("write", s.path, err)
	}
	return nil
}

// DeleteSymbol removes the sequence of symbol.
func (s *BarStore) DeleteSymbol(symbol string) error {
	return s.StoreBars(symbol, nil)
}

// GetDateRange returns the first and last stored dates of symbol.
func (s *BarStore) GetDateRange(symbol string) (first, last domain.Date, ok bool) {
	db, err := s.open(false)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.degraded("get_date_range", symbol, err)
		}
		return 0, 0, false
	}

	var r struct {
		First *uint64
		Last  *uint64
	}
	err = db.Model(&barRecord{}).
		Select("MIN(date) AS first, MAX(date) AS last").
		Where("symbol = ?", symbol).
		Scan(&r).Error
	if err != nil {
		s.degraded("get_date_range", symbol, err)
		return 0, 0, false
	}
	if r.First == nil || r.Last == nil {
		return 0, 0, false
	}
	return domain.Date(*r.First), domain.Date(*r.Last), true
}

// Symbols lists the stored symbols in order.
func (s *BarStore) Symbols() []string {
	db, err := s.open(false)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.degraded("symbols", "", err)
		}
		return nil
	}

	var symbols []string
	if err := db.Model(&barRecord{}).Distinct("symbol").Order("symbol ASC").Pluck("symbol", &symbols).Error; err != nil {
		s.degraded("symbols", "", err)
		return nil
	}
	return symbols
}

// Close releases the underlying connection.
func (s *BarStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.db = nil
	return sqlDB.Close()
}

func (s *BarStore) degraded(op, symbol string, err error) {
	s.metrics.RecordStorageDegraded()
	s.log.Warn("Bar store read degraded to empty result",
		slog.String("op", op),
		slog.String("symbol", symbol),
		slog.String("asset_class", s.class.String()),
		slog.Any("error", fmt.Errorf("%w: %w", domain.ErrStorageDegraded, err)))
}

func newBarRecord(symbol string, b domain.Bar) barRecord {
	return barRecord{
		Symbol:         symbol,
		Date:           uint64(b.Date),
		Open:           nullable(b.Open),
		High:           nullable(b.High),
		Low:            nullable(b.Low),
		Close:          nullable(b.Close),
		PrevClose:      nullable(b.PrevClose),
		Volume:         nullable(b.Volume),
		TotalTurnover:  nullable(b.TotalTurnover),
		Settlement:     nullable(b.Settlement),
		PrevSettlement: nullable(b.PrevSettlement),
		OpenInterest:   nullable(b.OpenInterest),
	}
}

func (r *barRecord) toBar() domain.Bar {
	return domain.Bar{
		Date:           domain.Date(r.Date),
		Open:           orNaN(r.Open),
		High:           orNaN(r.High),
		Low:            orNaN(r.Low),
		Close:          orNaN(r.Close),
		PrevClose:      orNaN(r.PrevClose),
		Volume:         orNaN(r.Volume),
		TotalTurnover:  orNaN(r.TotalTurnover),
		Settlement:     orNaN(r.Settlement),
		PrevSettlement: orNaN(r.PrevSettlement),
		OpenInterest:   orNaN(r.OpenInterest),
	}
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
