package models

type HostInfo struct {
	NodeName        string `json:"node_name"`
	NodeID          string `json:"node_id"`
	NodeAddress     string `json:"node_address"`
	Version         string `json:"version"`
	Backend         string `json:"backend"`
	OperatingSystem string `json:"operating_system"`
	Architecture    string `json:"architecture"`
	CPUCores        int    `json:"cpu_cores"`
	LastJobID       uint64 `json:"last_job_id"`
	EventClients    int    `json:"event_clients"`
}
