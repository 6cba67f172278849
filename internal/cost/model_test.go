package cost

import (
	"errors"
	"testing"

	"crypto_backtest/internal/domain"
	"crypto_backtest/internal/infra"

	"github.com/shopspring/decimal"
)

type fixedPrices map[string]decimal.Decimal

func (p fixedPrices) LastPrice(symbol string) (decimal.Decimal, bool) {
	v, ok := p[symbol]
	return v, ok
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCostFromNotional_Floor(t *testing.T) {
	m := MustModel("0.001", "5")

	tests := []struct {
		notional string
		want     string
	}{
		{"0", "5"},
		{"100", "5"},
		{"4999", "5"},
		{"5000", "5"},
		{"5001", "5.001"},
		{"123456.78", "123.45678"},
		{"-20000", "20"},
	}
	for _, tt := range tests {
		t.Run(tt.notional, func(t *testing.T) {
			got := m.CostFromNotional(d(tt.notional))
			if !got.Equal(d(tt.want)) {
				t.Errorf("CostFromNotional(%s) = %s, want %s", tt.notional, got, tt.want)
			}
		})
	}
}

func TestCostFromNotional_Property(t *testing.T) {
	m := MustModel("0.001", "5")
	for v := int64(0); v <= 20000; v += 37 {
		notional := decimal.NewFromInt(v)
		want := decimal.Max(notional.Mul(d("0.001")), d("5"))
		if got := m.CostFromNotional(notional); !got.Equal(want) {
			t.Fatalf("v=%d: got %s want %s", v, got, want)
		}
	}
}

func TestTradeCommissionAndTax(t *testing.T) {
	m := MustModel("0.001", "1")

	if got := m.TradeCommission(d("100"), d("10")); !got.Equal(d("1")) {
		t.Errorf("commission = %s, want 1", got)
	}
	if got := m.TradeCommission(d("100"), d("11")); !got.Equal(d("1.1")) {
		t.Errorf("commission = %s, want 1.1", got)
	}
	if !m.TradeTax(d("100"), d("11")).IsZero() {
		t.Error("crypto trades pay no tax")
	}
}

func TestNewModel_RejectsNegative(t *testing.T) {
	if _, err := NewModel(d("-0.001"), d("0")); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
	if _, err := NewModel(d("0.001"), d("-1")); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestOrderCost(t *testing.T) {
	metrics := &infra.Metrics{}
	m := MustModel("0.001", "0").WithObserver(nil, metrics)
	prices := fixedPrices{"BTCUSDT": d("200")}

	t.Run("frozen price", func(t *testing.T) {
		o := domain.NewOrder("BTCUSDT", d("2"), domain.MarketOrder(), d("150"), 20240101)
		est, err := m.OrderCost(o, prices, false)
		if err != nil {
			t.Fatal(err)
		}
		if !est.Price.Equal(d("150")) || !est.Cost.Equal(d("0.3")) || est.LowConfidence {
			t.Errorf("unexpected estimate %+v", est)
		}
	})

	t.Run("limit price", func(t *testing.T) {
		o := domain.NewOrder("BTCUSDT", d("-2"), domain.LimitOrder(d("210")), decimal.Zero, 20240101)
		est, _ := m.OrderCost(o, prices, false)
		if !est.Price.Equal(d("210")) || !est.Cost.Equal(d("0.42")) {
			t.Errorf("unexpected estimate %+v", est)
		}
	})

	t.Run("last price", func(t *testing.T) {
		o := domain.NewOrder("BTCUSDT", d("1"), domain.MarketOrder(), decimal.Zero, 20240101)
		est, _ := m.OrderCost(o, prices, false)
		if !est.Price.Equal(d("200")) {
			t.Errorf("unexpected estimate %+v", est)
		}
	})

	t.Run("no price without opt-in", func(t *testing.T) {
		o := domain.NewOrder("ETHUSDT", d("1"), domain.MarketOrder(), decimal.Zero, 20240101)
		if _, err := m.OrderCost(o, prices, false); !errors.Is(err, domain.ErrNoMarketData) {
			t.Errorf("Expected ErrNoMarketData, got %v", err)
		}
		if metrics.Snapshot().SentinelPrices != 0 {
			t.Error("no sentinel without opt-in")
		}
	})

	t.Run("sentinel with opt-in", func(t *testing.T) {
		o := domain.NewOrder("ETHUSDT", d("1000"), domain.MarketOrder(), decimal.Zero, 20240101)
		est, err := m.OrderCost(o, prices, true)
		if err != nil {
			t.Fatal(err)
		}
		if !est.LowConfidence || !est.Price.Equal(SentinelPrice) || !est.Cost.Equal(d("1")) {
			t.Errorf("unexpected estimate %+v", est)
		}
		if metrics.Snapshot().SentinelPrices != 1 {
			t.Error("sentinel fallback must be counted")
		}
	})
}

func TestSchedule(t *testing.T) {
	s := DefaultSchedule()

	spot, err := s.For(domain.CryptoSpot)
	if err != nil || !spot.Rate().Equal(d("0.001")) {
		t.Errorf("spot model = %v, %v", spot, err)
	}
	fut, _ := s.For(domain.CryptoFuture)
	if !fut.Rate().Equal(d("0.0004")) || !fut.MinCommission().IsZero() {
		t.Errorf("future model rate %s", fut.Rate())
	}

	if _, err := NewSchedule(map[domain.AssetClass]*Model{domain.CryptoSpot: spot}); err == nil {
		t.Error("Expected error for missing futures model")
	}

	cfg := infra.DefaultConfig()
	cfg.Cost.Spot.MinCommission = d("1")
	fromCfg, err := FromConfig(cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	m, _ := fromCfg.For(domain.CryptoSpot)
	if !m.MinCommission().Equal(d("1")) {
		t.Errorf("min commission = %s", m.MinCommission())
	}
}
