package ledger

import (
	"context"
	"testing"

	"pgregory.net/rapid"
)

var (
	propertyProviders = []string{"provider-a", "provider-b", "provider-c"}
	propertyConsumers = []string{"consumer-a", "consumer-b"}
)

// TestLedgerProperties drives random operation sequences and checks after
// every step that the audit stays clean and job ids advance by exactly one
// per successful request.
func TestLedgerProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		l := New(NewMemoryStore())
		var lastJobID uint64

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 5).Draw(t, "op") {
			case 0:
				caller := rapid.SampledFrom(propertyProviders).Draw(t, "provider")
				l.RegisterProvider(ctx, caller,
					rapid.Uint64Range(0, 1000).Draw(t, "resources"),
					rapid.Uint64Range(0, 50).Draw(t, "price"))
			case 1:
				caller := rapid.SampledFrom(propertyProviders).Draw(t, "provider")
				l.UpdateProvider(ctx, caller,
					rapid.Uint64Range(0, 1000).Draw(t, "resources"),
					rapid.Uint64Range(0, 50).Draw(t, "price"))
			case 2:
				caller := rapid.SampledFrom(propertyConsumers).Draw(t, "consumer")
				if err := l.AddFunds(ctx, caller, rapid.Uint64Range(0, 10_000).Draw(t, "amount")); err != nil {
					t.Fatalf("adding funds: %v", err)
				}
			case 3:
				caller := rapid.SampledFrom(propertyConsumers).Draw(t, "consumer")
				provider := rapid.SampledFrom(propertyProviders).Draw(t, "provider")
				before, _ := l.GetConsumer(ctx, caller)
				id, err := l.RequestCompute(ctx, caller, provider, rapid.Uint64Range(0, 200).Draw(t, "resources"))
				if err != nil {
					after, _ := l.GetConsumer(ctx, caller)
					if after.Balance != before.Balance {
						t.Fatalf("rejected request changed balance %d -> %d", before.Balance, after.Balance)
					}
					continue
				}
				if id != lastJobID+1 {
					t.Fatalf("job id %d after %d", id, lastJobID)
				}
				lastJobID = id
			case 4:
				if lastJobID == 0 {
					continue
				}
				id := rapid.Uint64Range(1, lastJobID).Draw(t, "job")
				caller := rapid.SampledFrom(propertyProviders).Draw(t, "provider")
				job, err := l.GetJob(ctx, id)
				if err != nil {
					t.Fatalf("job %d missing: %v", id, err)
				}
				err = l.CompleteJob(ctx, caller, id)
				wantOK := job.Provider == caller && job.Status == JobActive
				if wantOK != (err == nil) {
					t.Fatalf("completing job %+v as %s: %v", job, caller, err)
				}
			case 5:
				caller := rapid.SampledFrom(propertyProviders).Draw(t, "provider")
				before, getErr := l.GetProvider(ctx, caller)
				amount, err := l.WithdrawEarnings(ctx, caller)
				if err == nil && (getErr != nil || amount != before.Earnings) {
					t.Fatalf("withdrew %d, provider had %+v", amount, before)
				}
			}

			report, err := l.CheckInvariants(ctx)
			if err != nil {
				t.Fatalf("auditing: %v", err)
			}
			if report.Broken {
				t.Fatalf("invariant broken after step %d:\n%s", i, report)
			}
			if got, _ := l.LastJobID(ctx); got != lastJobID {
				t.Fatalf("last job id %d, want %d", got, lastJobID)
			}
		}
	})
}
