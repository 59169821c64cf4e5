package domain

// MetricsSnapshotRow is a periodic copy of the pipeline counters.
// Corresponds to pipeline_metrics table in ClickHouse.
type MetricsSnapshotRow struct {
	Instance        string // pipeline instance name
	TimestampMs     int64  // snapshot time (ms)
	UptimeMs        int64
	Received        uint64
	Admitted        uint64
	PublishSuccess  uint64
	PublishFailure  uint64
	RejectedRecency uint64
	RejectedValue   uint64
	RejectedProgram uint64
	RejectedSample  uint64
	PoolCreations   uint64
	Swaps           uint64
	LiquidityOps    uint64
	OtherOps        uint64
	AvgLatencyMs    float64
	FilterRate      float64
	Stalled         bool
}
