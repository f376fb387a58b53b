package metrics

// Enrichment pipeline metric names
const (
	RealtimeCallsTotal     = "realtime_calls_total"
	RealtimeCacheHitsTotal = "realtime_cache_hits_total"
	QuotaBlocksTotal       = "quota_blocks_total"
	MergeOutcomesTotal     = "merge_outcomes_total"
)

// RecordRealtimeCall records one live realtime upstream call by result
// (success, quota, error, breaker_open).
func RecordRealtimeCall(result string) {
	counter(RealtimeCallsTotal, map[string]string{"result": result})
}

// RecordRealtimeCacheHit records a realtime page served from the result cache.
func RecordRealtimeCacheHit() {
	counter(RealtimeCacheHitsTotal, nil)
}

// RecordQuotaBlock records a region pair entering quota cool-down.
func RecordQuotaBlock() {
	counter(QuotaBlocksTotal, nil)
}

// RecordMergeOutcome records how an enrichment request ended.
func RecordMergeOutcome(outcome string) {
	counter(MergeOutcomesTotal, map[string]string{"outcome": outcome})
}
