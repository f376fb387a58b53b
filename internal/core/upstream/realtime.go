package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ev119/erlocator/internal/core"
	"github.com/ev119/erlocator/internal/core/kv"
	"github.com/ev119/erlocator/internal/core/quota"
	"github.com/ev119/erlocator/internal/metrics"
)

const (
	// CacheKeyPrefix namespaces cached realtime pages in the shared store.
	CacheKeyPrefix = "emergency:realtime:"

	// DefaultCacheTTL is how long a realtime page is served from cache.
	DefaultCacheTTL = 60 * time.Second

	defaultRealtimeRows = 10
)

// Realtime call results reported to metrics.
const (
	callSuccess     = "success"
	callQuota       = "quota"
	callBlocked     = "blocked"
	callError       = "error"
	callBreakerOpen = "breaker_open"
)

// RealtimeClient fetches live capacity pages for a region pair.
//
// Calls for a blocked pair fail with a quota error without touching the
// network; successful pages are memoized in Cache for CacheTTL. Identical
// concurrent calls share one upstream request.
type RealtimeClient struct {
	Client     *http.Client
	BaseURL    string
	ServiceKey string
	Guard      *quota.Guard
	Cache      kv.Store
	CacheTTL   time.Duration
	Breaker    *gobreaker.CircuitBreaker[*core.CapacityPage]
	Logger     *logging.Logger

	flight singleflight.Group
}

// BreakerSettings configures the realtime circuit breaker.
type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
	Interval            time.Duration
}

// NewBreaker builds a breaker that trips after consecutive non-quota failures.
// Quota errors and caller cancellation never count against the upstream.
func NewBreaker(s BreakerSettings) *gobreaker.CircuitBreaker[*core.CapacityPage] {
	threshold := s.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	name := s.Name
	if name == "" {
		name = "realtime"
	}
	return gobreaker.NewCircuitBreaker[*core.CapacityPage](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.HalfOpenRequests,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsQuotaExceeded(err) || errors.Is(err, context.Canceled)
		},
	})
}

// CacheKey returns the result-cache key for one page request. Region names are
// compared with all whitespace removed.
func CacheKey(pair core.RegionPair, pageNo, numOfRows int) string {
	return fmt.Sprintf("%s%s|%s|p=%d|r=%d", CacheKeyPrefix, removeSpaces(pair.Region1), removeSpaces(pair.Region2), pageNo, numOfRows)
}

// FetchPage returns one page of capacity records for (region1, region2).
//
// Errors are *QuotaExceededError (matches ErrQuotaExceeded) or *UpstreamError.
// A quota condition is never reported as an empty page.
func (c *RealtimeClient) FetchPage(ctx context.Context, region1, region2 string, pageNo, numOfRows int) (*core.CapacityPage, error) {
	if c == nil {
		return nil, &UpstreamError{Op: "fetch", Err: errors.New("realtime client is not configured")}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if pageNo <= 0 {
		pageNo = 1
	}
	if numOfRows <= 0 {
		numOfRows = defaultRealtimeRows
	}
	pair := core.RegionPair{Region1: strings.TrimSpace(region1), Region2: strings.TrimSpace(region2)}

	if c.Guard != nil {
		blocked, err := c.Guard.IsBlocked(ctx, pair)
		if err != nil {
			metrics.RecordRealtimeCall(callError)
			return nil, &UpstreamError{Op: "quota check", Err: err}
		}
		if blocked {
			metrics.RecordRealtimeCall(callBlocked)
			return nil, &QuotaExceededError{Pair: pair, Blocked: true}
		}
	}

	key := CacheKey(pair, pageNo, numOfRows)
	if cached, ok := c.cached(ctx, key); ok {
		metrics.RecordRealtimeCacheHit()
		return cached, nil
	}

	// The shared call outlives any single caller; each caller still stops
	// waiting when its own context ends.
	ch := c.flight.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout())
		defer cancel()
		return c.fetchLive(shared, pair, pageNo, numOfRows, key)
	})
	select {
	case <-ctx.Done():
		return nil, &UpstreamError{Op: "fetch", Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clonePage(res.Val.(*core.CapacityPage)), nil
	}
}

func (c *RealtimeClient) callTimeout() time.Duration {
	if c.Client != nil && c.Client.Timeout > 0 {
		return c.Client.Timeout
	}
	return DefaultTimeout
}

func (c *RealtimeClient) cached(ctx context.Context, key string) (*core.CapacityPage, bool) {
	if c.Cache == nil {
		return nil, false
	}
	data, ok, err := c.Cache.Get(ctx, key)
	if err != nil {
		c.logDebug("Realtime cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var page core.CapacityPage
	if err := json.Unmarshal(data, &page); err != nil {
		c.logDebug("Realtime cache entry undecodable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &page, true
}

func (c *RealtimeClient) fetchLive(ctx context.Context, pair core.RegionPair, pageNo, numOfRows int, key string) (*core.CapacityPage, error) {
	call := func() (*core.CapacityPage, error) {
		return c.call(ctx, pair, pageNo, numOfRows)
	}

	var (
		page *core.CapacityPage
		err  error
	)
	if c.Breaker != nil {
		page, err = c.Breaker.Execute(call)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.RecordRealtimeCall(callBreakerOpen)
			return nil, &UpstreamError{Op: "fetch", Err: err}
		}
	} else {
		page, err = call()
	}
	if err != nil {
		return nil, err
	}

	c.store(ctx, key, page)
	return page, nil
}

func (c *RealtimeClient) call(ctx context.Context, pair core.RegionPair, pageNo, numOfRows int) (*core.CapacityPage, error) {
	rawURL, err := buildURL(c.BaseURL, c.ServiceKey, url.Values{
		"STAGE1":    {pair.Region1},
		"STAGE2":    {pair.Region2},
		"pageNo":    {strconv.Itoa(pageNo)},
		"numOfRows": {strconv.Itoa(numOfRows)},
	})
	if err != nil {
		metrics.RecordRealtimeCall(callError)
		return nil, &UpstreamError{Op: "fetch", Err: err}
	}

	c.logInfo("Realtime request",
		zap.String("url", redactURL(rawURL)),
		zap.String("stage1", pair.Region1),
		zap.String("stage2", pair.Region2),
		zap.Int("page", pageNo),
		zap.Int("rows", numOfRows))

	resp, err := get(ctx, c.Client, "realtime", rawURL)
	if err != nil {
		metrics.RecordRealtimeCall(callError)
		c.logError("Realtime request failed",
			zap.String("stage1", pair.Region1),
			zap.String("stage2", pair.Region2),
			zap.Int("page", pageNo),
			zap.Int("rows", numOfRows),
			zap.Error(err))
		return nil, &UpstreamError{Op: "fetch", Err: err}
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, c.quotaExceeded(ctx, pair, retryAfterHeader(resp))
	}

	body, err := readBody(resp)
	if err != nil {
		metrics.RecordRealtimeCall(callError)
		return nil, &UpstreamError{Op: "read", StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordRealtimeCall(callError)
		c.logError("Realtime HTTP error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncateForLog(body)))
		return nil, &UpstreamError{Op: "fetch", StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	decoded, err := decodeEnvelope[wireCapacity](body)
	if err != nil {
		metrics.RecordRealtimeCall(callError)
		c.logError("Realtime response undecodable",
			zap.String("body", truncateForLog(body)),
			zap.Error(err))
		return nil, &UpstreamError{Op: "decode", StatusCode: resp.StatusCode, Err: err}
	}
	if decoded.Header.ResultCode == resultCodeQuotaExceed {
		return nil, c.quotaExceeded(ctx, pair, 0)
	}
	if !decoded.ok() {
		metrics.RecordRealtimeCall(callError)
		return nil, &UpstreamError{
			Op:         "fetch",
			StatusCode: resp.StatusCode,
			ResultCode: decoded.Header.ResultCode,
			Err:        errors.New(decoded.Header.ResultMsg),
		}
	}

	metrics.RecordRealtimeCall(callSuccess)

	records := make([]core.CapacityRecord, 0, len(decoded.Items))
	for _, item := range decoded.Items {
		records = append(records, item.toCore())
	}
	return &core.CapacityPage{
		Items:      records,
		PageNo:     decoded.PageNo,
		NumOfRows:  decoded.NumOfRows,
		TotalCount: decoded.TotalCount,
	}, nil
}

func (c *RealtimeClient) quotaExceeded(ctx context.Context, pair core.RegionPair, retryAfter time.Duration) error {
	metrics.RecordRealtimeCall(callQuota)
	if c.Guard != nil {
		if err := c.Guard.Block(ctx, pair, 0); err != nil {
			c.logError("Failed to record quota block", zap.String("key", quota.BlockKey(pair)), zap.Error(err))
		} else {
			c.logWarn("Realtime quota exceeded",
				zap.String("key", quota.BlockKey(pair)),
				zap.Duration("ttl", c.Guard.BlockTTL()))
		}
	}
	return &QuotaExceededError{Pair: pair, RetryAfter: retryAfter}
}

func (c *RealtimeClient) store(ctx context.Context, key string, page *core.CapacityPage) {
	if c.Cache == nil || page == nil {
		return
	}
	ttl := c.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	data, err := json.Marshal(page)
	if err != nil {
		c.logDebug("Realtime cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.Cache.SetWithTTL(ctx, key, data, ttl); err != nil {
		c.logWarn("Realtime cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RealtimeClient) logDebug(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Debug(msg, fields...)
	}
}

func (c *RealtimeClient) logInfo(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Info(msg, fields...)
	}
}

func (c *RealtimeClient) logWarn(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Warn(msg, fields...)
	}
}

func (c *RealtimeClient) logError(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Error(msg, fields...)
	}
}

type wireCapacity struct {
	FacilityID        flexString  `xml:"hpid" json:"hpid"`
	Name              flexString  `xml:"dutyName" json:"dutyName"`
	CapacityEmergency *flexString `xml:"hvec" json:"hvec"`
	CapacityGeneral   *flexString `xml:"hvgc" json:"hvgc"`
	CapacitySurgery   *flexString `xml:"hvoc" json:"hvoc"`
	CapacityICU       *flexString `xml:"hvicc" json:"hvicc"`
	UpdatedAt         flexString  `xml:"hvidate" json:"hvidate"`
}

func (w wireCapacity) toCore() core.CapacityRecord {
	return core.CapacityRecord{
		FacilityID:        string(w.FacilityID),
		Name:              string(w.Name),
		CapacityEmergency: w.CapacityEmergency.ptr(),
		CapacityGeneral:   w.CapacityGeneral.ptr(),
		CapacitySurgery:   w.CapacitySurgery.ptr(),
		CapacityICU:       w.CapacityICU.ptr(),
		UpdatedAt:         string(w.UpdatedAt),
	}
}

func clonePage(page *core.CapacityPage) *core.CapacityPage {
	if page == nil {
		return nil
	}
	out := *page
	out.Items = append([]core.CapacityRecord(nil), page.Items...)
	return &out
}
