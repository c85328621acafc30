// Package ledger implements the compute marketplace state machine: providers
// offering priced capacity, consumers funding balances, and jobs moving
// resources and funds between them.
//
// Every operation is a single critical section over the whole state and is
// applied through one Store transaction. Business rejections are returned as
// the *MarketError sentinels in errors.go.
package ledger

import (
	"context"
	"sort"
	"sync"
)

type Ledger struct {
	mu        sync.Mutex
	store     Store
	listeners []Listener
}

type Option func(*Ledger)

func WithListener(listener Listener) Option {
	return func(l *Ledger) {
		l.listeners = append(l.listeners, listener)
	}
}

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{store: store}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Subscribe registers a listener for events of later operations.
func (l *Ledger) Subscribe(listener Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, listener)
}

func (l *Ledger) RegisterProvider(ctx context.Context, caller string, resources, pricePerUnit uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.store.Update(ctx, func(tx Tx) error {
		_, exists, err := tx.Provider(caller)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyExists
		}
		return tx.PutProvider(Provider{
			Address:      caller,
			Resources:    resources,
			PricePerUnit: pricePerUnit,
		})
	})
	if err != nil {
		return err
	}

	l.emit(Event{Type: EventProviderRegistered, Caller: caller, Resources: resources, Amount: pricePerUnit})
	return nil
}

// UpdateProvider overwrites capacity and price. Resources committed to active
// jobs are not taken into account.
func (l *Ledger) UpdateProvider(ctx context.Context, caller string, resources, pricePerUnit uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.store.Update(ctx, func(tx Tx) error {
		p, exists, err := tx.Provider(caller)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		p.Resources = resources
		p.PricePerUnit = pricePerUnit
		return tx.PutProvider(p)
	})
	if err != nil {
		return err
	}

	l.emit(Event{Type: EventProviderUpdated, Caller: caller, Resources: resources, Amount: pricePerUnit})
	return nil
}

func (l *Ledger) AddFunds(ctx context.Context, caller string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.store.Update(ctx, func(tx Tx) error {
		c, err := consumerOrDefault(tx, caller)
		if err != nil {
			return err
		}
		totals, err := tx.Totals()
		if err != nil {
			return err
		}

		var ok bool
		if c.Balance, ok = addUint64(c.Balance, amount); !ok {
			return ErrInvalidAmount
		}
		totals.Deposited = totals.Deposited.Add(amount)

		if err := tx.PutConsumer(c); err != nil {
			return err
		}
		return tx.SetTotals(totals)
	})
	if err != nil {
		return err
	}

	l.emit(Event{Type: EventFundsAdded, Caller: caller, Amount: amount})
	return nil
}

// RequestCompute reserves resources from provider for caller and charges
// resources × price up front. Checks run in a fixed order: provider
// existence, capacity, then balance. A cost beyond uint64 exceeds any
// balance.
func (l *Ledger) RequestCompute(ctx context.Context, caller, provider string, resources uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var job Job
	err := l.store.Update(ctx, func(tx Tx) error {
		p, exists, err := tx.Provider(provider)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}

		if p.Resources < resources {
			return ErrInvalidAmount
		}
		totalCost, ok := mulUint64(resources, p.PricePerUnit)
		if !ok {
			return ErrInsufficientBalance
		}

		c, err := consumerOrDefault(tx, caller)
		if err != nil {
			return err
		}
		if c.Balance < totalCost {
			return ErrInsufficientBalance
		}

		lastJobID, err := tx.LastJobID()
		if err != nil {
			return err
		}
		job = Job{
			ID:        lastJobID + 1,
			Consumer:  caller,
			Provider:  provider,
			Resources: resources,
			TotalCost: totalCost,
			Status:    JobActive,
		}
		p.Resources -= resources
		c.Balance -= totalCost

		if err := tx.PutJob(job); err != nil {
			return err
		}
		if err := tx.SetLastJobID(job.ID); err != nil {
			return err
		}
		if err := tx.PutProvider(p); err != nil {
			return err
		}
		return tx.PutConsumer(c)
	})
	if err != nil {
		return 0, err
	}

	l.emit(Event{
		Type:         EventJobRequested,
		Caller:       caller,
		Counterparty: provider,
		JobID:        job.ID,
		Resources:    job.Resources,
		Amount:       job.TotalCost,
	})
	return job.ID, nil
}

// CompleteJob closes an active job. Only the job's provider may complete it,
// and only once; both violations are reported as ErrUnauthorized.
func (l *Ledger) CompleteJob(ctx context.Context, caller string, jobID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var job Job
	err := l.store.Update(ctx, func(tx Tx) error {
		var (
			exists bool
			err    error
		)
		job, exists, err = tx.Job(jobID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		if job.Provider != caller {
			return ErrUnauthorized
		}
		if job.Status != JobActive {
			return ErrUnauthorized
		}

		p, exists, err := tx.Provider(caller)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}

		var ok bool
		if p.Resources, ok = addUint64(p.Resources, job.Resources); !ok {
			return ErrInvalidAmount
		}
		if p.Earnings, ok = addUint64(p.Earnings, job.TotalCost); !ok {
			return ErrInvalidAmount
		}
		job.Status = JobCompleted

		if err := tx.PutJob(job); err != nil {
			return err
		}
		return tx.PutProvider(p)
	})
	if err != nil {
		return err
	}

	l.emit(Event{
		Type:         EventJobCompleted,
		Caller:       caller,
		Counterparty: job.Consumer,
		JobID:        job.ID,
		Resources:    job.Resources,
		Amount:       job.TotalCost,
	})
	return nil
}

// WithdrawEarnings pays out everything the provider has earned so far.
// There are no partial withdrawals.
func (l *Ledger) WithdrawEarnings(ctx context.Context, caller string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var earnings uint64
	err := l.store.Update(ctx, func(tx Tx) error {
		p, exists, err := tx.Provider(caller)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		if p.Earnings == 0 {
			return ErrInvalidAmount
		}
		totals, err := tx.Totals()
		if err != nil {
			return err
		}

		earnings = p.Earnings
		p.Earnings = 0
		totals.Withdrawn = totals.Withdrawn.Add(earnings)

		if err := tx.PutProvider(p); err != nil {
			return err
		}
		return tx.SetTotals(totals)
	})
	if err != nil {
		return 0, err
	}

	l.emit(Event{Type: EventEarningsWithdrawn, Caller: caller, Amount: earnings})
	return earnings, nil
}

func (l *Ledger) GetProvider(ctx context.Context, address string) (Provider, error) {
	var p Provider
	err := l.store.View(ctx, func(tx Tx) error {
		var (
			exists bool
			err    error
		)
		p, exists, err = tx.Provider(address)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return nil
	})
	return p, err
}

func (l *Ledger) GetConsumer(ctx context.Context, address string) (Consumer, error) {
	var c Consumer
	err := l.store.View(ctx, func(tx Tx) error {
		var (
			exists bool
			err    error
		)
		c, exists, err = tx.Consumer(address)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return nil
	})
	return c, err
}

func (l *Ledger) GetJob(ctx context.Context, id uint64) (Job, error) {
	var j Job
	err := l.store.View(ctx, func(tx Tx) error {
		var (
			exists bool
			err    error
		)
		j, exists, err = tx.Job(id)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return nil
	})
	return j, err
}

// ListProviders returns all providers ordered by address.
func (l *Ledger) ListProviders(ctx context.Context) ([]Provider, error) {
	var providers []Provider
	err := l.store.View(ctx, func(tx Tx) error {
		var err error
		providers, err = tx.Providers()
		return err
	})
	if err != nil {
		return nil, err
	}
	sortProviders(providers)
	return providers, nil
}

// ListJobs returns the jobs matching filter ordered by id.
func (l *Ledger) ListJobs(ctx context.Context, filter JobFilter) ([]Job, error) {
	var jobs []Job
	err := l.store.View(ctx, func(tx Tx) error {
		all, err := tx.Jobs()
		if err != nil {
			return err
		}
		for _, j := range all {
			if filter.Match(j) {
				jobs = append(jobs, j)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortJobs(jobs)
	return jobs, nil
}

func (l *Ledger) LastJobID(ctx context.Context) (uint64, error) {
	var id uint64
	err := l.store.View(ctx, func(tx Tx) error {
		var err error
		id, err = tx.LastJobID()
		return err
	})
	return id, err
}

// Snapshot returns a consistent copy of the whole ledger state.
func (l *Ledger) Snapshot(ctx context.Context) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var snap Snapshot
	err := l.store.View(ctx, func(tx Tx) error {
		var err error
		if snap.LastJobID, err = tx.LastJobID(); err != nil {
			return err
		}
		if snap.Totals, err = tx.Totals(); err != nil {
			return err
		}
		if snap.Providers, err = tx.Providers(); err != nil {
			return err
		}
		if snap.Consumers, err = tx.Consumers(); err != nil {
			return err
		}
		snap.Jobs, err = tx.Jobs()
		return err
	})
	if err != nil {
		return Snapshot{}, err
	}
	sortProviders(snap.Providers)
	sort.Slice(snap.Consumers, func(i, j int) bool { return snap.Consumers[i].Address < snap.Consumers[j].Address })
	sortJobs(snap.Jobs)
	return snap, nil
}

// Reset drops every provider, consumer and job and restarts job ids at 1.
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Reset(ctx)
}

func (l *Ledger) emit(e Event) {
	for _, listener := range l.listeners {
		listener.OnEvent(e)
	}
}

func consumerOrDefault(tx Tx, address string) (Consumer, error) {
	c, exists, err := tx.Consumer(address)
	if err != nil {
		return Consumer{}, err
	}
	if !exists {
		c = Consumer{Address: address}
	}
	return c, nil
}

func sortProviders(providers []Provider) {
	sort.Slice(providers, func(i, j int) bool { return providers[i].Address < providers[j].Address })
}

func sortJobs(jobs []Job) {
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
}
