// Package seed loads initial providers and consumer deposits from a YAML
// file and applies them through the regular ledger operations.
package seed

import (
	"context"
	"fmt"
	"os"

	"github.com/lagrangedao/go-compute-market/internal/ledger"
	"github.com/lagrangedao/go-compute-market/wallet"
	"golang.org/x/xerrors"
	"gopkg.in/errgo.v2/errors"
	"gopkg.in/yaml.v2"
)

const CurrentVersion = "1.0"

// ErrInvalidSeed is the cause of every validation failure.
var ErrInvalidSeed = errors.New("invalid seed file")

type File struct {
	Version   string     `yaml:"version"`
	Providers []Provider `yaml:"providers"`
	Consumers []Deposit  `yaml:"consumers"`
}

type Provider struct {
	Address      string `yaml:"address"`
	Resources    uint64 `yaml:"resources"`
	PricePerUnit uint64 `yaml:"price_per_unit"`
}

type Deposit struct {
	Address string `yaml:"address"`
	Amount  uint64 `yaml:"amount"`
}

type Result struct {
	Providers int
	Deposits  int
	Deposited ledger.Sum
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed unable to read file, %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, errors.Because(err, ErrInvalidSeed, "failed unable to parse YAML file")
	}
	if f.Version == "" {
		f.Version = CurrentVersion
	}
	if f.Version != CurrentVersion {
		return nil, errors.Because(nil, ErrInvalidSeed, "not support seed version: "+f.Version)
	}
	for i := range f.Providers {
		f.Providers[i].Address = wallet.NormalizeAddress(f.Providers[i].Address)
	}
	for i := range f.Consumers {
		f.Consumers[i].Address = wallet.NormalizeAddress(f.Consumers[i].Address)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks that every entry names an address and that no provider
// is listed twice. A consumer may be listed more than once; its deposits add up.
func (f *File) Validate() error {
	if len(f.Providers) == 0 && len(f.Consumers) == 0 {
		return errors.Because(nil, ErrInvalidSeed, "at least one provider or consumer must be defined")
	}
	seen := make(map[string]bool, len(f.Providers))
	for i, p := range f.Providers {
		if p.Address == "" {
			return errors.Because(nil, ErrInvalidSeed, fmt.Sprintf("provider #%d has no address", i+1))
		}
		if seen[p.Address] {
			return errors.Because(nil, ErrInvalidSeed, "duplicate provider "+p.Address)
		}
		seen[p.Address] = true
	}
	for i, c := range f.Consumers {
		if c.Address == "" {
			return errors.Because(nil, ErrInvalidSeed, fmt.Sprintf("consumer #%d has no address", i+1))
		}
	}
	return nil
}

// Apply registers the providers, then adds the deposits, stopping at the
// first rejected operation. Entries applied before the failure stay applied.
func (f *File) Apply(ctx context.Context, l *ledger.Ledger) (Result, error) {
	var res Result
	for _, p := range f.Providers {
		if err := l.RegisterProvider(ctx, p.Address, p.Resources, p.PricePerUnit); err != nil {
			return res, xerrors.Errorf("registering provider %s: %w", p.Address, err)
		}
		res.Providers++
	}
	for _, c := range f.Consumers {
		if err := l.AddFunds(ctx, c.Address, c.Amount); err != nil {
			return res, xerrors.Errorf("adding funds for %s: %w", c.Address, err)
		}
		res.Deposits++
		res.Deposited = res.Deposited.Add(c.Amount)
	}
	return res, nil
}
