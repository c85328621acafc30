package ledger

// overlay holds the uncommitted writes of one transaction. Reads consult it
// before the backing state, and commit replays it onto the backend.
type overlay struct {
	providers map[string]Provider
	consumers map[string]Consumer
	jobs      map[uint64]Job
	lastJobID *uint64
	totals    *Totals
}

func newOverlay() *overlay {
	return &overlay{
		providers: make(map[string]Provider),
		consumers: make(map[string]Consumer),
		jobs:      make(map[uint64]Job),
	}
}

func (o *overlay) empty() bool {
	return len(o.providers) == 0 && len(o.consumers) == 0 && len(o.jobs) == 0 &&
		o.lastJobID == nil && o.totals == nil
}

func (o *overlay) setLastJobID(id uint64) {
	o.lastJobID = &id
}

func (o *overlay) setTotals(t Totals) {
	o.totals = &t
}

func (o *overlay) mergeProviders(base []Provider) []Provider {
	out := make([]Provider, 0, len(base)+len(o.providers))
	for _, p := range base {
		if _, staged := o.providers[p.Address]; !staged {
			out = append(out, p)
		}
	}
	for _, p := range o.providers {
		out = append(out, p)
	}
	return out
}

func (o *overlay) mergeConsumers(base []Consumer) []Consumer {
	out := make([]Consumer, 0, len(base)+len(o.consumers))
	for _, c := range base {
		if _, staged := o.consumers[c.Address]; !staged {
			out = append(out, c)
		}
	}
	for _, c := range o.consumers {
		out = append(out, c)
	}
	return out
}

func (o *overlay) mergeJobs(base []Job) []Job {
	out := make([]Job, 0, len(base)+len(o.jobs))
	for _, j := range base {
		if _, staged := o.jobs[j.ID]; !staged {
			out = append(out, j)
		}
	}
	for _, j := range o.jobs {
		out = append(out, j)
	}
	return out
}
