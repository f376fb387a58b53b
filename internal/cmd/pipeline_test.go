package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/ev119/erlocator/internal/config"
	"github.com/ev119/erlocator/internal/core"
	"github.com/ev119/erlocator/internal/core/engine"
	"github.com/ev119/erlocator/internal/core/kv"
	"github.com/ev119/erlocator/internal/core/store"
)

const testLocationXML = `<response>
  <header><resultCode>00</resultCode><resultMsg>NORMAL SERVICE.</resultMsg></header>
  <body>
    <items>
      <item><hpid>A1100010</hpid><dutyName>강남세브란스병원</dutyName><dutyAddr>서울특별시 강남구 언주로 211</dutyAddr><dutyTel3>02-2019-3333</dutyTel3><distance>1.2</distance></item>
    </items>
    <numOfRows>10</numOfRows><pageNo>1</pageNo><totalCount>1</totalCount>
  </body>
</response>`

const testRealtimeXML = `<response>
  <header><resultCode>00</resultCode><resultMsg>NORMAL SERVICE.</resultMsg></header>
  <body>
    <items><item><hpid>A1100010</hpid><hvec>7</hvec><hvgc>12</hvgc></item></items>
    <numOfRows>500</numOfRows><pageNo>1</pageNo><totalCount>1</totalCount>
  </body>
</response>`

func testConfig(t *testing.T, overrides map[string]any) *config.Config {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.LoadFrom(v, overrides)
	require.NoError(t, err)
	return cfg
}

type upstreamFakes struct {
	location      *httptest.Server
	realtime      *httptest.Server
	realtimeCalls atomic.Int32
	realtimeCode  int
}

func newUpstreamFakes(t *testing.T) *upstreamFakes {
	t.Helper()
	f := &upstreamFakes{realtimeCode: http.StatusOK}
	f.location = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testLocationXML))
	}))
	f.realtime = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.realtimeCalls.Add(1)
		if f.realtimeCode != http.StatusOK {
			w.WriteHeader(f.realtimeCode)
			return
		}
		if r.URL.Query().Get("STAGE1") != "서울" || r.URL.Query().Get("STAGE2") != "강남구" {
			_, _ = w.Write([]byte(`<response><header><resultCode>00</resultCode></header><body><items></items><totalCount>0</totalCount></body></response>`))
			return
		}
		_, _ = w.Write([]byte(testRealtimeXML))
	}))
	t.Cleanup(f.location.Close)
	t.Cleanup(f.realtime.Close)
	return f
}

func (f *upstreamFakes) overrides() map[string]any {
	return map[string]any{
		"upstream": map[string]any{
			"service_key":  "test-key",
			"location_url": f.location.URL,
			"realtime_url": f.realtime.URL,
		},
	}
}

func TestOpenKVDrivers(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(t, nil)
	memory, err := openKV(ctx, cfg)
	require.NoError(t, err)
	require.IsType(t, &kv.Memory{}, memory)
	require.NoError(t, memory.Close())

	cfg = testConfig(t, map[string]any{
		"kv":    map[string]any{"driver": "libsql"},
		"store": map[string]any{"path": filepath.Join(t.TempDir(), "kv.db")},
	})
	libsql, err := openKV(ctx, cfg)
	require.NoError(t, err)
	require.IsType(t, &store.Store{}, libsql)
	require.NoError(t, libsql.Ping(ctx))
	require.NoError(t, libsql.Close())
}

func TestOpenKVRedisUnavailable(t *testing.T) {
	cfg := testConfig(t, map[string]any{
		"kv": map[string]any{"driver": "redis", "redis": map[string]any{"addr": "127.0.0.1:1"}},
	})
	_, err := openKV(context.Background(), cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis unavailable")
}

func TestOpenScannerRejectsMemory(t *testing.T) {
	_, err := openScanner(context.Background(), testConfig(t, nil))
	require.Error(t, err)
	require.Contains(t, err.Error(), "memory")
}

func TestBuildPipelineEnrichesResults(t *testing.T) {
	fakes := newUpstreamFakes(t)
	cfg := testConfig(t, fakes.overrides())

	p, err := buildPipeline(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer p.Close() // nolint:errcheck

	q := core.GeoQuery{Longitude: 127.0276, Latitude: 37.4979}.Normalize()

	list, report, err := executeSearch(context.Background(), p.Orchestrator, q, true)
	require.NoError(t, err)
	require.NotNil(t, report)
	require.Equal(t, engine.OutcomeEnriched, report.Outcome)
	require.Equal(t, "7", *list.Items()[0].CapacityEmergency)
	require.Equal(t, "12", *list.Items()[0].CapacityGeneral)

	// Second pass is served from the shared result cache.
	before := fakes.realtimeCalls.Load()
	_, _, err = executeSearch(context.Background(), p.Orchestrator, q, true)
	require.NoError(t, err)
	require.Equal(t, before, fakes.realtimeCalls.Load())
}

func TestBuildPipelineQuotaFallsBackAndBlocks(t *testing.T) {
	fakes := newUpstreamFakes(t)
	fakes.realtimeCode = http.StatusTooManyRequests
	cfg := testConfig(t, fakes.overrides())

	p, err := buildPipeline(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer p.Close() // nolint:errcheck

	q := core.GeoQuery{Longitude: 127.0276, Latitude: 37.4979}.Normalize()
	list, report, err := executeSearch(context.Background(), p.Orchestrator, q, true)
	require.NoError(t, err)
	require.Equal(t, engine.OutcomeQuotaFallback, report.Outcome)
	require.Nil(t, list.Items()[0].CapacityEmergency)
	require.Equal(t, int32(1), fakes.realtimeCalls.Load())

	blocked, err := p.Guard.IsBlocked(context.Background(), core.RegionPair{Region1: "서울", Region2: "강남구"})
	require.NoError(t, err)
	require.True(t, blocked)

	_, report, err = executeSearch(context.Background(), p.Orchestrator, q, true)
	require.NoError(t, err)
	require.Equal(t, engine.OutcomeQuotaFallback, report.Outcome)
	require.Equal(t, int32(1), fakes.realtimeCalls.Load())
}

func TestExecuteSearchWithoutStatusSkipsRealtime(t *testing.T) {
	fakes := newUpstreamFakes(t)
	cfg := testConfig(t, fakes.overrides())

	p, err := buildPipeline(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer p.Close() // nolint:errcheck

	list, report, err := executeSearch(context.Background(), p.Orchestrator, core.GeoQuery{Longitude: 127, Latitude: 37}, false)
	require.NoError(t, err)
	require.Nil(t, report)
	require.Len(t, list.Items(), 1)
	require.Zero(t, fakes.realtimeCalls.Load())
}

func TestBuildPipelineRejectsMissingRulesFile(t *testing.T) {
	cfg := testConfig(t, map[string]any{
		"region": map[string]any{"rules_file": filepath.Join(t.TempDir(), "missing.yaml")},
	})
	_, err := buildPipeline(context.Background(), cfg, nil)
	require.Error(t, err)
}
