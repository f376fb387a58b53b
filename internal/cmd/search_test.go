package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/ev119/erlocator/internal/config"
	"github.com/ev119/erlocator/internal/core"
)

func useUpstreamViper(t *testing.T, fakes *upstreamFakes) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	viper.Reset()
	config.SetDefaults(viper.GetViper())
	viper.Set("upstream.service_key", "test-key")
	viper.Set("upstream.location_url", fakes.location.URL)
	viper.Set("upstream.realtime_url", fakes.realtime.URL)
	t.Cleanup(viper.Reset)
}

func TestSearchQueryFromFlags(t *testing.T) {
	require.NoError(t, searchCmd.Flags().Set("lon", "127.0276"))
	require.NoError(t, searchCmd.Flags().Set("lat", "37.4979"))
	t.Cleanup(func() {
		_ = searchCmd.Flags().Set("lon", "0")
		_ = searchCmd.Flags().Set("lat", "0")
		_ = searchCmd.Flags().Set("rows", "10")
	})

	q, err := searchQueryFromFlags(searchCmd)
	require.NoError(t, err)
	require.Equal(t, core.GeoQuery{Longitude: 127.0276, Latitude: 37.4979, PageNo: 1, NumOfRows: 10}, q)

	require.NoError(t, searchCmd.Flags().Set("lat", "91"))
	require.NoError(t, searchCmd.Flags().Set("rows", "1001"))
	_, err = searchQueryFromFlags(searchCmd)
	require.ErrorContains(t, err, "--lat must be between -90 and 90")
	require.ErrorContains(t, err, "--rows must be between 1 and 1000")
}

func TestSearchCommandWithStatusJSON(t *testing.T) {
	fakes := newUpstreamFakes(t)
	useUpstreamViper(t, fakes)

	out, err := runCommand(t, searchCmd, map[string]string{
		"lon":           "127.0276",
		"lat":           "37.4979",
		"with-status":   "true",
		"output-format": "json",
	})
	require.NoError(t, err)

	var decoded struct {
		Data   core.FacilityList `json:"data"`
		Report map[string]any    `json:"report"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Equal(t, "enriched", decoded.Report["outcome"])
	require.Equal(t, "7", *decoded.Data.Body.Items[0].CapacityEmergency)
}

func TestSearchCommandWritesTableToFile(t *testing.T) {
	fakes := newUpstreamFakes(t)
	useUpstreamViper(t, fakes)

	path := filepath.Join(t.TempDir(), "out", "search.txt")
	out, err := runCommand(t, searchCmd, map[string]string{
		"lon": "127.0276",
		"lat": "37.4979",
		"out": path,
	})
	require.NoError(t, err)
	require.Empty(t, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "A1100010")
	require.Contains(t, string(data), "02-2019-3333")
	require.Zero(t, fakes.realtimeCalls.Load())
}

func TestSearchCommandRejectsUnknownFormat(t *testing.T) {
	_, err := runCommand(t, searchCmd, map[string]string{"output-format": "csv"})
	require.ErrorContains(t, err, "unsupported output format")
}
