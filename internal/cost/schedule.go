package cost

import (
	"fmt"
	"log/slog"

	"crypto_backtest/internal/domain"
	"crypto_backtest/internal/infra"
)

// Schedule maps each asset class to its cost model.
type Schedule struct {
	models map[domain.AssetClass]*Model
}

// NewSchedule builds a schedule. Every asset class must have a model.
func NewSchedule(models map[domain.AssetClass]*Model) (*Schedule, error) {
	s := &Schedule{models: make(map[domain.AssetClass]*Model, len(models))}
	for _, class := range domain.AssetClasses {
		m, ok := models[class]
		if !ok || m == nil {
			return nil, fmt.Errorf("%w: no cost model for %s", domain.ErrInvalidArgument, class)
		}
		s.models[class] = m
	}
	return s, nil
}

// DefaultSchedule charges 0.1% on spot and 0.04% on futures with no minimum.
func DefaultSchedule() *Schedule {
	s, _ := NewSchedule(map[domain.AssetClass]*Model{
		domain.CryptoSpot:   MustModel("0.001", "0"),
		domain.CryptoFuture: MustModel("0.0004", "0"),
	})
	return s
}

// FromConfig builds the schedule of the cost section.
func FromConfig(cfg *infra.Config, log *slog.Logger, metrics *infra.Metrics) (*Schedule, error) {
	spot, err := NewModel(cfg.Cost.Spot.CommissionRate, cfg.Cost.Spot.MinCommission)
	if err != nil {
		return nil, fmt.Errorf("crypto_spot cost: %w", err)
	}
	future, err := NewModel(cfg.Cost.Future.CommissionRate, cfg.Cost.Future.MinCommission)
	if err != nil {
		return nil, fmt.Errorf("crypto_future cost: %w", err)
	}
	return NewSchedule(map[domain.AssetClass]*Model{
		domain.CryptoSpot:   spot.WithObserver(log, metrics),
		domain.CryptoFuture: future.WithObserver(log, metrics),
	})
}

// For returns the model of class.
func (s *Schedule) For(class domain.AssetClass) (*Model, error) {
	m, ok := s.models[class]
	if !ok {
		return nil, fmt.Errorf("%w: no cost model for %s", domain.ErrNotSupported, class)
	}
	return m, nil
}
