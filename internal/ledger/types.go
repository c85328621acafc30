package ledger

import (
	"math/big"
	"math/bits"
	"strconv"
)

type JobStatus string

const (
	JobActive    JobStatus = "active"
	JobCompleted JobStatus = "completed"
)

func (s JobStatus) Valid() bool {
	return s == JobActive || s == JobCompleted
}

type Provider struct {
	Address      string `json:"address"`
	Resources    uint64 `json:"resources"`
	PricePerUnit uint64 `json:"price_per_unit"`
	Earnings     uint64 `json:"earnings"`
}

type Consumer struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

// Job is one allocation of provider resources to a consumer. Everything but
// Status is fixed at request time.
type Job struct {
	ID        uint64    `json:"id"`
	Consumer  string    `json:"consumer"`
	Provider  string    `json:"provider"`
	Resources uint64    `json:"resources"`
	TotalCost uint64    `json:"total_cost"`
	Status    JobStatus `json:"status"`
}

// Totals tracks funds entering and leaving the ledger, for the conservation audit.
type Totals struct {
	Deposited Sum `json:"deposited"`
	Withdrawn Sum `json:"withdrawn"`
}

// Sum is a 128-bit running total of amounts.
type Sum struct {
	Hi uint64 `json:"hi,omitempty"`
	Lo uint64 `json:"lo"`
}

func SumOf(v uint64) Sum {
	return Sum{Lo: v}
}

func (s Sum) Add(v uint64) Sum {
	lo, carry := bits.Add64(s.Lo, v, 0)
	return Sum{Hi: s.Hi + carry, Lo: lo}
}

func (s Sum) String() string {
	if s.Hi == 0 {
		return strconv.FormatUint(s.Lo, 10)
	}
	n := new(big.Int).SetUint64(s.Hi)
	n.Lsh(n, 64)
	n.Add(n, new(big.Int).SetUint64(s.Lo))
	return n.String()
}

type JobFilter struct {
	Provider string
	Consumer string
	Status   JobStatus
}

func (f JobFilter) Match(job Job) bool {
	if f.Provider != "" && job.Provider != f.Provider {
		return false
	}
	if f.Consumer != "" && job.Consumer != f.Consumer {
		return false
	}
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	return true
}

type Snapshot struct {
	LastJobID uint64     `json:"last_job_id"`
	Totals    Totals     `json:"totals"`
	Providers []Provider `json:"providers"`
	Consumers []Consumer `json:"consumers"`
	Jobs      []Job      `json:"jobs"`
}
