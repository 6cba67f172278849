package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"crypto_backtest/internal/domain"
	"crypto_backtest/internal/infra"
)

// FileName returns the container file of an asset class inside a bundle directory.
func FileName(class domain.AssetClass) string {
	switch class {
	case domain.CryptoFuture:
		return "crypto_futures.db"
	default:
		return "crypto_spot.db"
	}
}

// Stores holds one BarStore per asset class.
type Stores struct {
	dir    string
	byType map[domain.AssetClass]*BarStore
}

// Open prepares the stores of every asset class under dir. Files are opened lazily.
func Open(dir string, log *slog.Logger, metrics *infra.Metrics) *Stores {
	s := &Stores{dir: dir, byType: make(map[domain.AssetClass]*BarStore, len(domain.AssetClasses))}
	for _, class := range domain.AssetClasses {
		s.byType[class] = NewBarStore(class, filepath.Join(dir, FileName(class)), log, metrics)
	}
	return s
}

// Dir returns the bundle directory.
func (s *Stores) Dir() string { return s.dir }

// For returns the store of class.
func (s *Stores) For(class domain.AssetClass) (*BarStore, error) {
	store, ok := s.byType[class]
	if !ok {
		return nil, fmt.Errorf("%w: no bar store for asset class %s", domain.ErrNotSupported, class)
	}
	return store, nil
}

// Close closes every store.
func (s *Stores) Close() error {
	var errs []error
	for _, class := range domain.AssetClasses {
		if err := s.byType[class].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ByClass exposes the stores through the domain interface.
func (s *Stores) ByClass() map[domain.AssetClass]domain.BarStore {
	out := make(map[domain.AssetClass]domain.BarStore, len(s.byType))
	for class, store := range s.byType {
		out[class] = store
	}
	return out
}
