package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/ev119/erlocator/internal/core"
	"github.com/ev119/erlocator/internal/core/upstream"
	"github.com/ev119/erlocator/internal/metrics"
)

// Defaults bounding one enrichment pass.
const (
	DefaultPairLimit = 5
	DefaultPageSize  = 500
	DefaultMaxPages  = 30

	summaryPairLimit = 10
)

// BaseLookup returns the nearby facility list.
type BaseLookup interface {
	Search(ctx context.Context, q core.GeoQuery) (*core.FacilityList, error)
}

// CapacitySource returns one page of live capacity for a region pair. Quota
// failures must match upstream.ErrQuotaExceeded.
type CapacitySource interface {
	FetchPage(ctx context.Context, region1, region2 string, pageNo, numOfRows int) (*core.CapacityPage, error)
}

// RegionResolver derives region pairs from addresses and spelling candidates
// for the realtime lookup.
type RegionResolver interface {
	ExtractPair(address string) (core.RegionPair, bool)
	Candidates(region2 string) []string
}

// Orchestrator runs the base lookup and enriches it with live capacity.
type Orchestrator struct {
	Base     BaseLookup
	Realtime CapacitySource
	Regions  RegionResolver
	Logger   *logging.Logger

	PairLimit int
	PageSize  int
	MaxPages  int
}

// Outcome classifies how an enrichment pass ended.
type Outcome string

const (
	OutcomeEnriched       Outcome = "enriched"
	OutcomeNoMatch        Outcome = "no_match"
	OutcomeSkippedEmpty   Outcome = "skipped_empty"
	OutcomeSkippedNoPairs Outcome = "skipped_no_pairs"
	OutcomeQuotaFallback  Outcome = "quota_fallback"
)

// MergeReport summarizes one enrichment pass. The response envelope is the
// same for every outcome; this is the only place the difference is visible.
type MergeReport struct {
	Outcome          Outcome           `json:"outcome"`
	PairsSeen        int               `json:"pairs_seen"`
	PairsQueried     int               `json:"pairs_queried"`
	PairsSkipped     int               `json:"pairs_skipped"`
	RealtimeRequests int               `json:"realtime_requests"`
	RecordsCollected int               `json:"records_collected"`
	MatchedItems     int               `json:"matched_items"`
	QuotaPair        *core.RegionPair  `json:"quota_pair,omitempty"`
	Pairs            []core.RegionPair `json:"-"`
}

// Search runs the plain base lookup.
func (o *Orchestrator) Search(ctx context.Context, q core.GeoQuery) (*core.FacilityList, error) {
	if o == nil || o.Base == nil {
		return nil, errors.New("orchestrator is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	list, err := o.Base.Search(ctx, q.Normalize())
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = &core.FacilityList{}
	}
	return list, nil
}

// Merge runs the base lookup and fills capacity fields on items whose facility
// id appears in the live data. Only base lookup failures are returned; a quota
// signal during enrichment returns the base list untouched.
func (o *Orchestrator) Merge(ctx context.Context, q core.GeoQuery) (*core.FacilityList, MergeReport, error) {
	var report MergeReport

	base, err := o.Search(ctx, q)
	if err != nil {
		return nil, report, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if base.Empty() {
		o.logInfo("Base lookup returned no items")
		return o.finish(base, &report, OutcomeSkippedEmpty)
	}

	items := base.Items()
	pairs := o.extractPairs(items)
	report.PairsSeen = len(pairs)
	report.Pairs = pairs

	if len(pairs) == 0 || o.Realtime == nil {
		o.logInfo("No region pairs to enrich", zap.Int("items", len(items)))
		return o.finish(base, &report, OutcomeSkippedNoPairs)
	}

	limit := o.pairLimit()
	queued := pairs
	if len(pairs) > limit {
		queued = pairs[:limit]
		skipped := pairs[limit:]
		report.PairsSkipped = len(skipped)
		keys := make([]string, 0, len(skipped))
		for _, pair := range skipped {
			keys = append(keys, pair.Key())
		}
		o.logInfo("Pair limit reached, skipping remaining pairs",
			zap.Int("pair_limit", limit),
			zap.Int("skipped", len(skipped)),
			zap.Strings("skipped_pairs", keys))
	}

	matches := make(map[string]core.CapacityRecord)
	for _, pair := range queued {
		report.PairsQueried++
		if err := o.mergePair(ctx, pair, matches, &report); err != nil {
			if upstream.IsQuotaExceeded(err) {
				quotaPair := pair
				report.QuotaPair = &quotaPair
				o.logWarn("Realtime quota exceeded, returning base list only",
					zap.String("pair", pair.Key()),
					zap.Error(err))
				return o.finish(base, &report, OutcomeQuotaFallback)
			}
			return nil, report, err
		}
	}

	report.RecordsCollected = len(matches)
	for _, item := range items {
		if item == nil || item.FacilityID == "" {
			continue
		}
		record, ok := matches[core.NormalizeFacilityID(item.FacilityID)]
		if !ok {
			continue
		}
		item.CapacityEmergency = record.CapacityEmergency
		item.CapacityGeneral = record.CapacityGeneral
		report.MatchedItems++
	}

	o.logSummary(items, pairs, limit, matches)

	if report.MatchedItems > 0 {
		return o.finish(base, &report, OutcomeEnriched)
	}
	return o.finish(base, &report, OutcomeNoMatch)
}

func (o *Orchestrator) finish(list *core.FacilityList, report *MergeReport, outcome Outcome) (*core.FacilityList, MergeReport, error) {
	report.Outcome = outcome
	metrics.RecordMergeOutcome(string(outcome))
	return list, *report, nil
}

// extractPairs returns unique region pairs in first-seen order.
func (o *Orchestrator) extractPairs(items []*core.FacilityItem) []core.RegionPair {
	if o.Regions == nil {
		return nil
	}
	seen := make(map[string]struct{})
	pairs := make([]core.RegionPair, 0)
	for _, item := range items {
		if item == nil {
			continue
		}
		pair, ok := o.Regions.ExtractPair(item.Address)
		if !ok {
			continue
		}
		if _, dup := seen[pair.Key()]; dup {
			continue
		}
		seen[pair.Key()] = struct{}{}
		pairs = append(pairs, pair)
	}
	return pairs
}

// mergePair tries region2 candidates in order until one has data. Only a
// quota error is returned; other failures move on to the next candidate.
func (o *Orchestrator) mergePair(ctx context.Context, pair core.RegionPair, matches map[string]core.CapacityRecord, report *MergeReport) error {
	for _, candidate := range o.Regions.Candidates(pair.Region2) {
		first, err := o.fetch(ctx, pair.Region1, candidate, 1, report)
		if err != nil {
			if upstream.IsQuotaExceeded(err) {
				return err
			}
			o.logWarn("Realtime candidate failed",
				zap.String("stage1", pair.Region1),
				zap.String("stage2", candidate),
				zap.Error(err))
			continue
		}

		o.logInfo("Realtime candidate tried",
			zap.String("stage1", pair.Region1),
			zap.String("stage2", candidate),
			zap.Int("total_count", first.TotalCount))

		if first.TotalCount > 0 {
			return o.paginate(ctx, pair.Region1, candidate, first, matches, report)
		}
	}

	o.logInfo("Realtime lookup found no candidate with data",
		zap.String("stage1", pair.Region1),
		zap.String("stage2", pair.Region2))
	return nil
}

// paginate absorbs the first page and fetches the rest until the total is
// covered, a page comes back empty, or MaxPages is reached.
func (o *Orchestrator) paginate(ctx context.Context, region1, region2 string, first *core.CapacityPage, matches map[string]core.CapacityRecord, report *MergeReport) error {
	size := o.pageSize()
	maxPages := o.maxPages()

	total := first.TotalCount
	if len(first.Items) == 0 {
		return nil
	}
	absorb(first, matches)

	for page := 2; page <= maxPages && (page-1)*size < total; page++ {
		next, err := o.fetch(ctx, region1, region2, page, report)
		if err != nil {
			if upstream.IsQuotaExceeded(err) {
				return err
			}
			o.logWarn("Realtime pagination stopped",
				zap.String("stage1", region1),
				zap.String("stage2", region2),
				zap.Int("page", page),
				zap.Error(err))
			return nil
		}
		if len(next.Items) == 0 {
			o.logInfo("Realtime page empty",
				zap.String("stage1", region1),
				zap.String("stage2", region2),
				zap.Int("page", page))
			return nil
		}
		total = next.TotalCount
		absorb(next, matches)
	}
	return nil
}

func (o *Orchestrator) fetch(ctx context.Context, region1, region2 string, page int, report *MergeReport) (*core.CapacityPage, error) {
	report.RealtimeRequests++
	result, err := o.Realtime.FetchPage(ctx, region1, region2, page, o.pageSize())
	if err != nil {
		return nil, err
	}
	if result == nil {
		return &core.CapacityPage{}, nil
	}
	return result, nil
}

// absorb adds records keyed by normalized facility id; the first record seen
// for an id wins.
func absorb(page *core.CapacityPage, matches map[string]core.CapacityRecord) {
	for _, record := range page.Items {
		key := core.NormalizeFacilityID(record.FacilityID)
		if key == "" {
			continue
		}
		if _, ok := matches[key]; ok {
			continue
		}
		matches[key] = record
	}
}

func (o *Orchestrator) logSummary(items []*core.FacilityItem, pairs []core.RegionPair, limit int, matches map[string]core.CapacityRecord) {
	if o.Logger == nil {
		return
	}
	withCapacity := 0
	for _, item := range items {
		if item != nil && item.CapacityEmergency != nil && strings.TrimSpace(*item.CapacityEmergency) != "" {
			withCapacity++
		}
	}
	shown := make([]string, 0, summaryPairLimit)
	for i, pair := range pairs {
		if i >= summaryPairLimit {
			break
		}
		shown = append(shown, pair.Key())
	}
	o.Logger.Info("Merge complete",
		zap.Int("total_items", len(items)),
		zap.Int("matched_hvec", withCapacity),
		zap.Int("pairs", len(pairs)),
		zap.Int("pair_limit", limit),
		zap.Strings("first_pairs", shown),
		zap.Int("records", len(matches)))
}

func (o *Orchestrator) pairLimit() int {
	if o.PairLimit > 0 {
		return o.PairLimit
	}
	return DefaultPairLimit
}

func (o *Orchestrator) pageSize() int {
	if o.PageSize > 0 {
		return o.PageSize
	}
	return DefaultPageSize
}

func (o *Orchestrator) maxPages() int {
	if o.MaxPages > 0 {
		return o.MaxPages
	}
	return DefaultMaxPages
}

func (o *Orchestrator) logInfo(msg string, fields ...zap.Field) {
	if o.Logger != nil {
		o.Logger.Info(msg, fields...)
	}
}

func (o *Orchestrator) logWarn(msg string, fields ...zap.Field) {
	if o.Logger != nil {
		o.Logger.Warn(msg, fields...)
	}
}
