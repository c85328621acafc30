package ledger

import (
	"context"
	"sync"
)

type memoryState struct {
	providers map[string]Provider
	consumers map[string]Consumer
	jobs      map[uint64]Job
	lastJobID uint64
	totals    Totals
}

func newMemoryState() *memoryState {
	return &memoryState{
		providers: make(map[string]Provider),
		consumers: make(map[string]Consumer),
		jobs:      make(map[uint64]Job),
	}
}

// MemoryStore keeps the ledger in process memory. Writes are staged per
// transaction and applied only when the transaction function succeeds.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memoryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

func (s *MemoryStore) View(_ context.Context, fn func(tx Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memoryTx{base: s.state})
}

func (s *MemoryStore) Update(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{base: s.state, staged: newOverlay()}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = newMemoryState()
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

type memoryTx struct {
	base   *memoryState
	staged *overlay // nil in read-only transactions
}

func (tx *memoryTx) commit() {
	for k, v := range tx.staged.providers {
		tx.base.providers[k] = v
	}
	for k, v := range tx.staged.consumers {
		tx.base.consumers[k] = v
	}
	for k, v := range tx.staged.jobs {
		tx.base.jobs[k] = v
	}
	if tx.staged.lastJobID != nil {
		tx.base.lastJobID = *tx.staged.lastJobID
	}
	if tx.staged.totals != nil {
		tx.base.totals = *tx.staged.totals
	}
}

func (tx *memoryTx) Provider(address string) (Provider, bool, error) {
	if tx.staged != nil {
		if p, ok := tx.staged.providers[address]; ok {
			return p, true, nil
		}
	}
	p, ok := tx.base.providers[address]
	return p, ok, nil
}

func (tx *memoryTx) PutProvider(p Provider) error {
	if tx.staged == nil {
		return ErrReadOnly
	}
	tx.staged.providers[p.Address] = p
	return nil
}

func (tx *memoryTx) Consumer(address string) (Consumer, bool, error) {
	if tx.staged != nil {
		if c, ok := tx.staged.consumers[address]; ok {
			return c, true, nil
		}
	}
	c, ok := tx.base.consumers[address]
	return c, ok, nil
}

func (tx *memoryTx) PutConsumer(c Consumer) error {
	if tx.staged == nil {
		return ErrReadOnly
	}
	tx.staged.consumers[c.Address] = c
	return nil
}

func (tx *memoryTx) Job(id uint64) (Job, bool, error) {
	if tx.staged != nil {
		if j, ok := tx.staged.jobs[id]; ok {
			return j, true, nil
		}
	}
	j, ok := tx.base.jobs[id]
	return j, ok, nil
}

func (tx *memoryTx) PutJob(job Job) error {
	if tx.staged == nil {
		return ErrReadOnly
	}
	tx.staged.jobs[job.ID] = job
	return nil
}

func (tx *memoryTx) LastJobID() (uint64, error) {
	if tx.staged != nil && tx.staged.lastJobID != nil {
		return *tx.staged.lastJobID, nil
	}
	return tx.base.lastJobID, nil
}

func (tx *memoryTx) SetLastJobID(id uint64) error {
	if tx.staged == nil {
		return ErrReadOnly
	}
	tx.staged.setLastJobID(id)
	return nil
}

func (tx *memoryTx) Totals() (Totals, error) {
	if tx.staged != nil && tx.staged.totals != nil {
		return *tx.staged.totals, nil
	}
	return tx.base.totals, nil
}

func (tx *memoryTx) SetTotals(t Totals) error {
	if tx.staged == nil {
		return ErrReadOnly
	}
	tx.staged.setTotals(t)
	return nil
}

func (tx *memoryTx) Providers() ([]Provider, error) {
	base := make([]Provider, 0, len(tx.base.providers))
	for _, p := range tx.base.providers {
		base = append(base, p)
	}
	if tx.staged == nil {
		return base, nil
	}
	return tx.staged.mergeProviders(base), nil
}

func (tx *memoryTx) Consumers() ([]Consumer, error) {
	base := make([]Consumer, 0, len(tx.base.consumers))
	for _, c := range tx.base.consumers {
		base = append(base, c)
	}
	if tx.staged == nil {
		return base, nil
	}
	return tx.staged.mergeConsumers(base), nil
}

func (tx *memoryTx) Jobs() ([]Job, error) {
	base := make([]Job, 0, len(tx.base.jobs))
	for _, j := range tx.base.jobs {
		base = append(base, j)
	}
	if tx.staged == nil {
		return base, nil
	}
	return tx.staged.mergeJobs(base), nil
}
