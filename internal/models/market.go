package models

import "github.com/lagrangedao/go-compute-market/internal/ledger"

type ProviderReq struct {
	Resources    uint64 `json:"resources"`
	PricePerUnit uint64 `json:"price_per_unit"`
}

type FundsReq struct {
	Amount uint64 `json:"amount"`
}

type ComputeReq struct {
	Provider  string `json:"provider" binding:"required"`
	Resources uint64 `json:"resources"`
}

type JobCreatedResp struct {
	JobID uint64 `json:"job_id"`
}

type WithdrawResp struct {
	Amount uint64 `json:"amount"`
}

type ProviderListResp struct {
	Providers []ledger.Provider `json:"providers"`
}

type JobListResp struct {
	Jobs []ledger.Job `json:"jobs"`
}

type SnapshotUploadResp struct {
	ObjectName string `json:"object_name"`
	PayloadCid string `json:"payload_cid"`
}
