package ledger

import (
	"context"
	"fmt"
	"math/bits"
	"strings"
)

// Report is the outcome of an invariant audit.
type Report struct {
	Broken   bool     `json:"broken"`
	Messages []string `json:"messages,omitempty"`
}

func (r *Report) fail(route, format string, args ...interface{}) {
	r.Broken = true
	r.Messages = append(r.Messages, route+": "+fmt.Sprintf(format, args...))
}

func (r Report) String() string {
	if !r.Broken {
		return "all ledger invariants hold"
	}
	return strings.Join(r.Messages, "\n")
}

// CheckInvariants walks the whole state and verifies:
//
//   - funds-conservation: balances + earnings + cost of active jobs + withdrawn == deposited
//   - job-sequence: job ids are exactly 1..lastJobId
//   - job-references: every job names a known provider and a valid status
func (l *Ledger) CheckInvariants(ctx context.Context) (Report, error) {
	snap, err := l.Snapshot(ctx)
	if err != nil {
		return Report{}, err
	}

	var report Report
	fundsConservation(snap, &report)
	jobSequence(snap, &report)
	jobReferences(snap, &report)
	return report, nil
}

func fundsConservation(snap Snapshot, report *Report) {
	var held Sum
	for _, c := range snap.Consumers {
		held = held.Add(c.Balance)
	}
	for _, p := range snap.Providers {
		held = held.Add(p.Earnings)
	}
	for _, j := range snap.Jobs {
		if j.Status == JobActive {
			held = held.Add(j.TotalCost)
		}
	}

	// held == deposited - withdrawn
	deposited, withdrawn := snap.Totals.Deposited, snap.Totals.Withdrawn
	lo, borrow := bits.Sub64(deposited.Lo, withdrawn.Lo, 0)
	hi, under := bits.Sub64(deposited.Hi, withdrawn.Hi, borrow)
	if under != 0 {
		report.fail("funds-conservation", "withdrawn %s exceeds deposited %s", withdrawn, deposited)
		return
	}
	if (Sum{Hi: hi, Lo: lo}) != held {
		report.fail("funds-conservation", "held funds %s != deposited %s - withdrawn %s", held, deposited, withdrawn)
	}
}

func jobSequence(snap Snapshot, report *Report) {
	if uint64(len(snap.Jobs)) != snap.LastJobID {
		report.fail("job-sequence", "%d jobs stored, last job id %d", len(snap.Jobs), snap.LastJobID)
	}
	for i, j := range snap.Jobs {
		if want := uint64(i) + 1; j.ID != want {
			report.fail("job-sequence", "job at position %d has id %d, want %d", i, j.ID, want)
			return
		}
	}
}

func jobReferences(snap Snapshot, report *Report) {
	providers := make(map[string]struct{}, len(snap.Providers))
	for _, p := range snap.Providers {
		providers[p.Address] = struct{}{}
	}
	for _, j := range snap.Jobs {
		if _, ok := providers[j.Provider]; !ok {
			report.fail("job-references", "job %d references unknown provider %s", j.ID, j.Provider)
		}
		if !j.Status.Valid() {
			report.fail("job-references", "job %d has unknown status %q", j.ID, j.Status)
		}
	}
}
