// Package metrics implements the bounded in-memory sample ring with
// retention, memory-budget, and disk-spillover eviction described in
// spec.md §4.3, plus the periodic Collector that samples the OS process
// table via gopsutil.
package metrics

import "time"

// Sample mirrors spec.md §3's MetricSample.
type Sample struct {
	Timestamp   time.Time `json:"timestamp"`
	CPUPercent  float64   `json:"cpu_percent"`
	RSSBytes    uint64    `json:"rss_bytes"`
	IOReadBytes uint64    `json:"io_read_bytes"`
	IOWriteBytes uint64   `json:"io_write_bytes"`
	NetRxBytes  uint64    `json:"net_rx_bytes"`
	NetTxBytes  uint64    `json:"net_tx_bytes"`
}

// approxSampleBytes estimates a Sample's in-memory footprint for the Store's
// memory-budget bound; it doesn't need to be exact, only monotonic with
// sample count.
const approxSampleBytes = 96

// Summary is the aggregate spec.md §4.3 calls for from summarize_unit.
type Summary struct {
	LatestCPU float64 `json:"latest_cpu"`
	AvgCPU    float64 `json:"avg_cpu"`
	MaxCPU    float64 `json:"max_cpu"`
	LatestRSS uint64  `json:"latest_rss"`
	Samples   int     `json:"samples"`
}
