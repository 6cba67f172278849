// Package catalog holds the static instrument metadata loaded once at startup.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"crypto_backtest/internal/domain"

	"gopkg.in/yaml.v3"
)

// Catalog maps symbols and IDs to instruments. It is read-only after New.
type Catalog struct {
	byKey   map[string]*domain.Instrument
	byClass map[domain.AssetClass][]*domain.Instrument
}

// New indexes instruments by ID and symbol. Duplicate keys are rejected.
func New(instruments []domain.Instrument) (*Catalog, error) {
	c := &Catalog{
		byKey:   make(map[string]*domain.Instrument, len(instruments)*2),
		byClass: make(map[domain.AssetClass][]*domain.Instrument),
	}

	for i := range instruments {
		ins := instruments[i]
		if ins.Symbol == "" {
			return nil, fmt.Errorf("%w: instrument %d has no symbol", domain.ErrInvalidArgument, i)
		}
		if ins.ID == "" {
			ins.ID = ins.Symbol
		}
		if ins.AssetClass == 0 {
			return nil, fmt.Errorf("%w: instrument %s has no asset class", domain.ErrInvalidArgument, ins.Symbol)
		}
		if ins.RoundLot <= 0 {
			ins.RoundLot = 1
		}
		if ins.ContractMultiplier <= 0 {
			ins.ContractMultiplier = 1
		}

		p := &ins
		for _, key := range keys(p) {
			if _, ok := c.byKey[key]; ok {
				return nil, fmt.Errorf("%w: duplicate instrument key %q", domain.ErrInvalidArgument, key)
			}
			c.byKey[key] = p
		}
		c.byClass[p.AssetClass] = append(c.byClass[p.AssetClass], p)
	}

	for _, list := range c.byClass {
		sort.Slice(list, func(i, j int) bool { return list[i].Symbol < list[j].Symbol })
	}
	return c, nil
}

func keys(ins *domain.Instrument) []string {
	if ins.ID == ins.Symbol {
		return []string{ins.ID}
	}
	return []string{ins.ID, ins.Symbol}
}

// Lookup finds an instrument by ID or symbol.
func (c *Catalog) Lookup(idOrSymbol string) (*domain.Instrument, bool) {
	ins, ok := c.byKey[idOrSymbol]
	if !ok {
		ins, ok = c.byKey[strings.ToUpper(idOrSymbol)]
	}
	if !ok {
		return nil, false
	}
	cp := *ins
	return &cp, true
}

// All returns the instruments of one asset class sorted by symbol.
func (c *Catalog) All(class domain.AssetClass) []domain.Instrument {
	list := c.byClass[class]
	out := make([]domain.Instrument, len(list))
	for i, ins := range list {
		out[i] = *ins
	}
	return out
}

// Len returns the number of instruments.
func (c *Catalog) Len() int {
	n := 0
	for _, list := range c.byClass {
		n += len(list)
	}
	return n
}

type catalogFile struct {
	Instruments []domain.Instrument `yaml:"instruments"`
}

// LoadFile decodes a YAML instrument file produced by the data-refresh tooling.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Decode(data)
}

// Decode parses YAML instrument data.
func Decode(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(f.Instruments)
}
