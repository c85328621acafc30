package ledger

import (
	"context"
	"math/bits"
)

// Tx is the view of the ledger state inside one store transaction.
// Lookups report a missing record with ok == false, never with an error.
type Tx interface {
	Provider(address string) (Provider, bool, error)
	PutProvider(p Provider) error
	Consumer(address string) (Consumer, bool, error)
	PutConsumer(c Consumer) error
	Job(id uint64) (Job, bool, error)
	PutJob(job Job) error

	LastJobID() (uint64, error)
	SetLastJobID(id uint64) error
	Totals() (Totals, error)
	SetTotals(t Totals) error

	Providers() ([]Provider, error)
	Consumers() ([]Consumer, error)
	Jobs() ([]Job, error)
}

// Store persists the ledger state. Update applies every write made by fn
// atomically, or none of them when fn returns an error; that error is
// returned unchanged.
type Store interface {
	View(ctx context.Context, fn func(tx Tx) error) error
	Update(ctx context.Context, fn func(tx Tx) error) error
	Reset(ctx context.Context) error
	Close() error
}

func addUint64(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

func mulUint64(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}
