package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AssetClass selects the bar store and cost schedule of an instrument.
type AssetClass int

const (
	CryptoSpot AssetClass = iota + 1
	CryptoFuture
)

// AssetClasses lists every supported class in store order.
var AssetClasses = []AssetClass{CryptoSpot, CryptoFuture}

// String returns the representation used in config and catalog files.
func (a AssetClass) String() string {
	switch a {
	case CryptoSpot:
		return "CryptoSpot"
	case CryptoFuture:
		return "CryptoFuture"
	default:
		return "Unknown"
	}
}

// ParseAssetClass accepts "CryptoSpot"/"spot" and "CryptoFuture"/"future".
func ParseAssetClass(s string) (AssetClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cryptospot", "spot", "crypto_spot":
		return CryptoSpot, nil
	case "cryptofuture", "future", "futures", "crypto_future", "crypto_futures":
		return CryptoFuture, nil
	}
	return 0, fmt.Errorf("%w: unknown asset class %q", ErrInvalidArgument, s)
}

// MarshalText implements encoding.TextMarshaler.
func (a AssetClass) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AssetClass) UnmarshalText(text []byte) error {
	v, err := ParseAssetClass(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Instrument is the static metadata of a tradable symbol. Never mutated after catalog load.
type Instrument struct {
	ID                 string          `yaml:"id"`
	Symbol             string          `yaml:"symbol"`
	AssetClass         AssetClass      `yaml:"type"`
	Exchange           string          `yaml:"exchange"`
	ListedDate         Date            `yaml:"listed_date"`
	DelistedDate       *Date           `yaml:"delisted_date,omitempty"`
	RoundLot           int64           `yaml:"round_lot"`
	QtyStep            decimal.Decimal `yaml:"qty_step"`
	TickSize           decimal.Decimal `yaml:"tick_size"`
	QuoteCurrency      string          `yaml:"quote_currency"`
	UnderlyingSymbol   string          `yaml:"underlying_symbol"`
	ContractMultiplier int64           `yaml:"contract_multiplier"`
}

// Increment is the minimum tradable quantity step: QtyStep when set, else RoundLot.
func (i *Instrument) Increment() decimal.Decimal {
	if i.QtyStep.IsPositive() {
		return i.QtyStep
	}
	if i.RoundLot > 0 {
		return decimal.NewFromInt(i.RoundLot)
	}
	return decimal.NewFromInt(1)
}

// IsCrypto reports whether the instrument belongs to a crypto asset class.
func (i *Instrument) IsCrypto() bool {
	return i.AssetClass == CryptoSpot || i.AssetClass == CryptoFuture
}

// IsListed reports whether d falls inside the listing window.
func (i *Instrument) IsListed(d Date) bool {
	if i.ListedDate != 0 && d < i.ListedDate {
		return false
	}
	if i.DelistedDate != nil && d >= *i.DelistedDate {
		return false
	}
	return true
}
