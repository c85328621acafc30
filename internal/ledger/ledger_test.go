package ledger

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

func newLevelDBTestStore(t *testing.T) Store {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	require.NoError(t, err)
	s := NewLevelDBStore(db)
	t.Cleanup(func() { s.Close() })
	return s
}

func forEachStore(t *testing.T, fn func(t *testing.T, l *Ledger)) {
	factories := []struct {
		name string
		open func(t *testing.T) Store
	}{
		{"memory", func(*testing.T) Store { return NewMemoryStore() }},
		{"leveldb", newLevelDBTestStore},
	}
	for _, f := range factories {
		f := f
		t.Run(f.name, func(t *testing.T) {
			fn(t, New(f.open(t)))
		})
	}
}

func TestComputeSharingScenario(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()

		require.NoError(t, l.RegisterProvider(ctx, "provider1", 1000, 10))
		require.NoError(t, l.AddFunds(ctx, "consumer1", 1000))

		jobID, err := l.RequestCompute(ctx, "consumer1", "provider1", 50)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), jobID)

		job, err := l.GetJob(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, Job{ID: 1, Consumer: "consumer1", Provider: "provider1", Resources: 50, TotalCost: 500, Status: JobActive}, job)

		p, err := l.GetProvider(ctx, "provider1")
		require.NoError(t, err)
		assert.Equal(t, uint64(950), p.Resources)
		c, err := l.GetConsumer(ctx, "consumer1")
		require.NoError(t, err)
		assert.Equal(t, uint64(500), c.Balance)

		require.NoError(t, l.CompleteJob(ctx, "provider1", jobID))
		job, err = l.GetJob(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, JobCompleted, job.Status)
		p, err = l.GetProvider(ctx, "provider1")
		require.NoError(t, err)
		assert.Equal(t, uint64(1000), p.Resources)
		assert.Equal(t, uint64(500), p.Earnings)

		amount, err := l.WithdrawEarnings(ctx, "provider1")
		require.NoError(t, err)
		assert.Equal(t, uint64(500), amount)
		p, err = l.GetProvider(ctx, "provider1")
		require.NoError(t, err)
		assert.Zero(t, p.Earnings)

		report, err := l.CheckInvariants(ctx)
		require.NoError(t, err)
		assert.False(t, report.Broken, report.String())
	})
}

func TestRegisterProviderTwice(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		require.NoError(t, l.RegisterProvider(ctx, "provider1", 1000, 10))
		before, err := l.Snapshot(ctx)
		require.NoError(t, err)

		err = l.RegisterProvider(ctx, "provider1", 5, 5)
		assert.ErrorIs(t, err, ErrAlreadyExists)

		after, err := l.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

func TestUpdateProvider(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		assert.ErrorIs(t, l.UpdateProvider(ctx, "provider1", 1, 1), ErrNotFound)

		require.NoError(t, l.RegisterProvider(ctx, "provider1", 1000, 10))
		require.NoError(t, l.AddFunds(ctx, "consumer1", 1000))
		jobID, err := l.RequestCompute(ctx, "consumer1", "provider1", 10)
		require.NoError(t, err)
		require.NoError(t, l.CompleteJob(ctx, "provider1", jobID))

		require.NoError(t, l.UpdateProvider(ctx, "provider1", 1500, 15))
		p, err := l.GetProvider(ctx, "provider1")
		require.NoError(t, err)
		assert.Equal(t, Provider{Address: "provider1", Resources: 1500, PricePerUnit: 15, Earnings: 100}, p)
	})
}

func TestUpdateProviderBelowAllocation(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		require.NoError(t, l.RegisterProvider(ctx, "provider1", 100, 1))
		require.NoError(t, l.AddFunds(ctx, "consumer1", 100))
		jobID, err := l.RequestCompute(ctx, "consumer1", "provider1", 80)
		require.NoError(t, err)

		require.NoError(t, l.UpdateProvider(ctx, "provider1", 0, 1))
		require.NoError(t, l.CompleteJob(ctx, "provider1", jobID))

		p, err := l.GetProvider(ctx, "provider1")
		require.NoError(t, err)
		assert.Equal(t, uint64(80), p.Resources)
	})
}

func TestAddFundsCreatesConsumer(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		_, err := l.GetConsumer(ctx, "consumer1")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, l.AddFunds(ctx, "consumer1", 1000))
		require.NoError(t, l.AddFunds(ctx, "consumer1", 0))
		require.NoError(t, l.AddFunds(ctx, "consumer1", 250))

		c, err := l.GetConsumer(ctx, "consumer1")
		require.NoError(t, err)
		assert.Equal(t, uint64(1250), c.Balance)
	})
}

func TestRequestComputeErrorOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()

		_, err := l.RequestCompute(ctx, "consumer1", "nobody", 1)
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, l.RegisterProvider(ctx, "provider1", 100, 10))

		// capacity is checked before the (empty) balance
		_, err = l.RequestCompute(ctx, "consumer1", "provider1", 101)
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = l.RequestCompute(ctx, "consumer1", "provider1", 50)
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		require.NoError(t, l.AddFunds(ctx, "consumer1", 499))
		_, err = l.RequestCompute(ctx, "consumer1", "provider1", 50)
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		require.NoError(t, l.AddFunds(ctx, "consumer1", 1))
		jobID, err := l.RequestCompute(ctx, "consumer1", "provider1", 50)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), jobID)
	})
}

func TestRequestComputeOverflow(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		require.NoError(t, l.RegisterProvider(ctx, "provider1", 10, math.MaxUint64))
		require.NoError(t, l.AddFunds(ctx, "consumer1", math.MaxUint64))

		_, err := l.RequestCompute(ctx, "consumer1", "provider1", 2)
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		_, err = l.RequestCompute(ctx, "consumer1", "provider1", 11)
		assert.ErrorIs(t, err, ErrInvalidAmount)

		assert.ErrorIs(t, l.AddFunds(ctx, "consumer1", 1), ErrInvalidAmount)
		c, err := l.GetConsumer(ctx, "consumer1")
		require.NoError(t, err)
		assert.Equal(t, uint64(math.MaxUint64), c.Balance)
	})
}

func TestAddFundsPastDepositedTotal(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		require.NoError(t, l.RegisterProvider(ctx, "provider1", 1, math.MaxUint64-1))
		require.NoError(t, l.AddFunds(ctx, "consumerA", math.MaxUint64))
		jobID, err := l.RequestCompute(ctx, "consumerA", "provider1", 1)
		require.NoError(t, err)
		require.NoError(t, l.CompleteJob(ctx, "provider1", jobID))
		amount, err := l.WithdrawEarnings(ctx, "provider1")
		require.NoError(t, err)
		assert.Equal(t, uint64(math.MaxUint64-1), amount)

		require.NoError(t, l.AddFunds(ctx, "consumerB", 1))
		c, err := l.GetConsumer(ctx, "consumerB")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), c.Balance)

		snap, err := l.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, Sum{Hi: 1}, snap.Totals.Deposited)
		assert.Equal(t, SumOf(math.MaxUint64-1), snap.Totals.Withdrawn)

		report, err := l.CheckInvariants(ctx)
		require.NoError(t, err)
		assert.False(t, report.Broken, report.String())
	})
}

func TestSum(t *testing.T) {
	s := SumOf(math.MaxUint64).Add(2)
	assert.Equal(t, Sum{Hi: 1, Lo: 1}, s)
	assert.Equal(t, "18446744073709551617", s.String())
	assert.Equal(t, "42", SumOf(42).String())
}

func TestRequestComputeWithoutFundsAtZeroPrice(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		require.NoError(t, l.RegisterProvider(ctx, "provider1", 10, 0))

		jobID, err := l.RequestCompute(ctx, "consumer1", "provider1", 10)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), jobID)

		c, err := l.GetConsumer(ctx, "consumer1")
		require.NoError(t, err)
		assert.Zero(t, c.Balance)
	})
}

func TestJobIDsIgnoreFailedRequests(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		require.NoError(t, l.RegisterProvider(ctx, "provider1", 1000, 1))
		require.NoError(t, l.AddFunds(ctx, "consumer1", 100))

		var ids []uint64
		for i := 0; i < 3; i++ {
			_, err := l.RequestCompute(ctx, "consumer1", "missing", 1)
			require.ErrorIs(t, err, ErrNotFound)
			_, err = l.RequestCompute(ctx, "consumer1", "provider1", 5000)
			require.ErrorIs(t, err, ErrInvalidAmount)

			id, err := l.RequestCompute(ctx, "consumer1", "provider1", 1)
			require.NoError(t, err)
			ids = append(ids, id)
		}
		assert.Equal(t, []uint64{1, 2, 3}, ids)

		last, err := l.LastJobID(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), last)
	})
}

func TestPriceChangeKeepsJobCost(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		require.NoError(t, l.RegisterProvider(ctx, "provider1", 1000, 10))
		require.NoError(t, l.AddFunds(ctx, "consumer1", 1000))
		jobID, err := l.RequestCompute(ctx, "consumer1", "provider1", 50)
		require.NoError(t, err)

		require.NoError(t, l.UpdateProvider(ctx, "provider1", 950, 99))
		require.NoError(t, l.CompleteJob(ctx, "provider1", jobID))

		p, err := l.GetProvider(ctx, "provider1")
		require.NoError(t, err)
		assert.Equal(t, uint64(500), p.Earnings)
		assert.Equal(t, uint64(1000), p.Resources)
	})
}

func TestCompleteJobAuthorization(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		assert.ErrorIs(t, l.CompleteJob(ctx, "provider1", 1), ErrNotFound)

		require.NoError(t, l.RegisterProvider(ctx, "provider1", 1000, 10))
		require.NoError(t, l.AddFunds(ctx, "consumer1", 1000))
		jobID, err := l.RequestCompute(ctx, "consumer1", "provider1", 50)
		require.NoError(t, err)

		assert.ErrorIs(t, l.CompleteJob(ctx, "consumer1", jobID), ErrUnauthorized)
		assert.ErrorIs(t, l.CompleteJob(ctx, "provider2", jobID), ErrUnauthorized)

		require.NoError(t, l.CompleteJob(ctx, "provider1", jobID))
		assert.ErrorIs(t, l.CompleteJob(ctx, "provider1", jobID), ErrUnauthorized)

		p, err := l.GetProvider(ctx, "provider1")
		require.NoError(t, err)
		assert.Equal(t, uint64(1000), p.Resources)
		assert.Equal(t, uint64(500), p.Earnings)
	})
}

func TestWithdrawEarningsTwice(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		_, err := l.WithdrawEarnings(ctx, "provider1")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, l.RegisterProvider(ctx, "provider1", 10, 7))
		_, err = l.WithdrawEarnings(ctx, "provider1")
		assert.ErrorIs(t, err, ErrInvalidAmount)

		require.NoError(t, l.AddFunds(ctx, "consumer1", 70))
		jobID, err := l.RequestCompute(ctx, "consumer1", "provider1", 10)
		require.NoError(t, err)
		require.NoError(t, l.CompleteJob(ctx, "provider1", jobID))

		amount, err := l.WithdrawEarnings(ctx, "provider1")
		require.NoError(t, err)
		assert.Equal(t, uint64(70), amount)

		_, err = l.WithdrawEarnings(ctx, "provider1")
		assert.ErrorIs(t, err, ErrInvalidAmount)

		snap, err := l.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, Totals{Deposited: SumOf(70), Withdrawn: SumOf(70)}, snap.Totals)
	})
}

func TestListings(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		require.NoError(t, l.RegisterProvider(ctx, "p-b", 100, 1))
		require.NoError(t, l.RegisterProvider(ctx, "p-a", 100, 2))
		require.NoError(t, l.AddFunds(ctx, "c-1", 1000))
		require.NoError(t, l.AddFunds(ctx, "c-2", 1000))

		for _, req := range []struct{ consumer, provider string }{
			{"c-1", "p-a"}, {"c-2", "p-b"}, {"c-1", "p-b"}, {"c-2", "p-a"},
		} {
			_, err := l.RequestCompute(ctx, req.consumer, req.provider, 1)
			require.NoError(t, err)
		}
		require.NoError(t, l.CompleteJob(ctx, "p-b", 2))

		providers, err := l.ListProviders(ctx)
		require.NoError(t, err)
		require.Len(t, providers, 2)
		assert.Equal(t, "p-a", providers[0].Address)
		assert.Equal(t, "p-b", providers[1].Address)

		jobs, err := l.ListJobs(ctx, JobFilter{})
		require.NoError(t, err)
		require.Len(t, jobs, 4)
		for i, j := range jobs {
			assert.Equal(t, uint64(i+1), j.ID)
		}

		jobs, err = l.ListJobs(ctx, JobFilter{Provider: "p-b"})
		require.NoError(t, err)
		assert.Equal(t, []uint64{2, 3}, jobIDs(jobs))

		jobs, err = l.ListJobs(ctx, JobFilter{Consumer: "c-2", Status: JobActive})
		require.NoError(t, err)
		assert.Equal(t, []uint64{4}, jobIDs(jobs))
	})
}

func TestEventsFollowCommits(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		var events []Event
		l.Subscribe(ListenerFunc(func(e Event) { events = append(events, e) }))

		require.NoError(t, l.RegisterProvider(ctx, "provider1", 1000, 10))
		assert.Error(t, l.RegisterProvider(ctx, "provider1", 1000, 10))
		require.NoError(t, l.AddFunds(ctx, "consumer1", 1000))
		jobID, err := l.RequestCompute(ctx, "consumer1", "provider1", 50)
		require.NoError(t, err)
		require.NoError(t, l.CompleteJob(ctx, "provider1", jobID))
		_, err = l.WithdrawEarnings(ctx, "provider1")
		require.NoError(t, err)

		require.Len(t, events, 5)
		assert.Equal(t, EventProviderRegistered, events[0].Type)
		assert.Equal(t, Event{Type: EventFundsAdded, Caller: "consumer1", Amount: 1000}, events[1])
		assert.Equal(t, Event{Type: EventJobRequested, Caller: "consumer1", Counterparty: "provider1", JobID: 1, Resources: 50, Amount: 500}, events[2])
		assert.Equal(t, Event{Type: EventJobCompleted, Caller: "provider1", Counterparty: "consumer1", JobID: 1, Resources: 50, Amount: 500}, events[3])
		assert.Equal(t, Event{Type: EventEarningsWithdrawn, Caller: "provider1", Amount: 500}, events[4])
	})
}

func TestReset(t *testing.T) {
	forEachStore(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		require.NoError(t, l.RegisterProvider(ctx, "provider1", 1000, 10))
		require.NoError(t, l.AddFunds(ctx, "consumer1", 1000))
		_, err := l.RequestCompute(ctx, "consumer1", "provider1", 1)
		require.NoError(t, err)

		require.NoError(t, l.Reset(ctx))

		snap, err := l.Snapshot(ctx)
		require.NoError(t, err)
		assert.Empty(t, snap.Providers)
		assert.Empty(t, snap.Consumers)
		assert.Empty(t, snap.Jobs)
		assert.Zero(t, snap.LastJobID)

		require.NoError(t, l.RegisterProvider(ctx, "provider1", 1000, 10))
		require.NoError(t, l.AddFunds(ctx, "consumer1", 1000))
		jobID, err := l.RequestCompute(ctx, "consumer1", "provider1", 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), jobID)
	})
}

func jobIDs(jobs []Job) []uint64 {
	ids := make([]uint64, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	return ids
}
