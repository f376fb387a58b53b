package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/ev119/erlocator/internal/config"
	"github.com/ev119/erlocator/internal/core"
	"github.com/ev119/erlocator/internal/core/quota"
	"github.com/ev119/erlocator/internal/output"
)

// useLibsqlViper points the global viper at a fresh libsql kv store.
func useLibsqlViper(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "kv.db")
	viper.Reset()
	config.SetDefaults(viper.GetViper())
	viper.Set("kv.driver", config.KVDriverLibsql)
	viper.Set("store.path", path)
	t.Cleanup(viper.Reset)
	return path
}

func seedBlocks(t *testing.T, pairs ...core.RegionPair) {
	t.Helper()
	cfg, err := loadConfig()
	require.NoError(t, err)
	store, err := openScanner(context.Background(), cfg)
	require.NoError(t, err)
	defer store.Close() // nolint:errcheck

	guard := quota.New(store, time.Minute)
	for _, pair := range pairs {
		require.NoError(t, guard.Block(context.Background(), pair, 0))
	}
}

func runCommand(t *testing.T, cmd *cobra.Command, flags map[string]string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetContext(context.Background())
	for name, value := range flags {
		require.NoError(t, cmd.Flags().Set(name, value))
	}
	defer func() {
		for name := range flags {
			f := cmd.Flags().Lookup(name)
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
		cmd.SetOut(nil)
	}()
	err := cmd.RunE(cmd, nil)
	return buf.String(), err
}

func TestParsePairFlag(t *testing.T) {
	pair, err := parsePairFlag(" 서울 | 강남구 ")
	require.NoError(t, err)
	require.Equal(t, core.RegionPair{Region1: "서울", Region2: "강남구"}, pair)

	for _, raw := range []string{"서울", "|강남구", "서울|", ""} {
		_, err := parsePairFlag(raw)
		require.Error(t, err, raw)
	}
}

func TestFilterBlocks(t *testing.T) {
	blocks := []quota.Block{
		{Pair: core.RegionPair{Region1: "경기", Region2: "수원시"}},
		{Pair: core.RegionPair{Region1: "서울", Region2: "강남구"}},
	}
	require.Len(t, filterBlocks(blocks, ""), 2)
	filtered := filterBlocks(blocks, "서")
	require.Len(t, filtered, 1)
	require.Equal(t, "강남구", filtered[0].Pair.Region2)
}

func TestWriteQuotaResetResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeQuotaResetResult(output.FormatTable, &buf, 3, 0, true))
	require.Equal(t, "Would clear 3 quota block(s)\n", buf.String())

	buf.Reset()
	require.NoError(t, writeQuotaResetResult(output.FormatTable, &buf, 3, 2, false))
	require.Equal(t, "Cleared 2/3 quota block(s)\n", buf.String())

	buf.Reset()
	require.NoError(t, writeQuotaResetResult(output.FormatJSON, &buf, 1, 1, false))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, float64(1), decoded["deleted"])
	require.Equal(t, false, decoded["dry_run"])
}

func TestQuotaListCommand(t *testing.T) {
	useLibsqlViper(t)
	seedBlocks(t,
		core.RegionPair{Region1: "서울", Region2: "강남구"},
		core.RegionPair{Region1: "경기", Region2: "수원시 영통구"},
	)

	out, err := runCommand(t, quotaListCmd, map[string]string{"output-format": "json", "prefix": "서울"})
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 1)
	require.Equal(t, "강남구", decoded[0]["region2"])
}

func TestQuotaListCommandEmpty(t *testing.T) {
	useLibsqlViper(t)

	out, err := runCommand(t, quotaListCmd, nil)
	require.NoError(t, err)
	require.Contains(t, out, "no active quota blocks")
}

func TestQuotaResetCommand(t *testing.T) {
	useLibsqlViper(t)
	seedBlocks(t,
		core.RegionPair{Region1: "서울", Region2: "강남구"},
		core.RegionPair{Region1: "경기", Region2: "수원시 영통구"},
	)

	out, err := runCommand(t, quotaResetCmd, map[string]string{"pair": "서울|강남구"})
	require.NoError(t, err)
	require.Equal(t, "Cleared 1/1 quota block(s)\n", out)

	out, err = runCommand(t, quotaResetCmd, map[string]string{"all": "true", "dry-run": "true"})
	require.NoError(t, err)
	require.Equal(t, "Would clear 1 quota block(s)\n", out)

	out, err = runCommand(t, quotaResetCmd, map[string]string{"all": "true", "yes": "true"})
	require.NoError(t, err)
	require.Equal(t, "Cleared 1/1 quota block(s)\n", out)
}

func TestQuotaResetCommandValidation(t *testing.T) {
	_, err := runCommand(t, quotaResetCmd, nil)
	require.ErrorContains(t, err, "--all or --pair")

	_, err = runCommand(t, quotaResetCmd, map[string]string{"all": "true"})
	require.ErrorContains(t, err, "--yes")

	_, err = runCommand(t, quotaResetCmd, map[string]string{"all": "true", "pair": "a|b"})
	require.ErrorContains(t, err, "mutually exclusive")
}
