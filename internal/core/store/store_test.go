package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ev119/erlocator/internal/config"
)

func TestResolveTarget(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.StoreConfig
		want target
	}{
		{
			name: "remote url gains token",
			cfg:  config.StoreConfig{URL: "libsql://erlocator.turso.io", AuthToken: "tok"},
			want: target{dsn: "libsql://erlocator.turso.io?authToken=tok"},
		},
		{
			name: "remote url keeps query",
			cfg:  config.StoreConfig{URL: "libsql://erlocator.turso.io?tls=1", AuthToken: "tok"},
			want: target{dsn: "libsql://erlocator.turso.io?authToken=tok&tls=1"},
		},
		{
			name: "existing token wins",
			cfg:  config.StoreConfig{URL: "libsql://erlocator.turso.io?authToken=mine", AuthToken: "tok"},
			want: target{dsn: "libsql://erlocator.turso.io?authToken=mine"},
		},
		{
			name: "memory",
			cfg:  config.StoreConfig{Path: ":memory:"},
			want: target{dsn: ":memory:", local: true, memory: true},
		},
		{
			name: "libsql path passes through",
			cfg:  config.StoreConfig{Path: "libsql://replica.internal"},
			want: target{dsn: "libsql://replica.internal"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveTarget(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveTargetCreatesParentDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data", "quota")
	path := filepath.Join(dir, "erlocator.db")

	got, err := resolveTarget(config.StoreConfig{Path: path})
	require.NoError(t, err)
	assert.Equal(t, target{dsn: "file:" + path, local: true}, got)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestResolveTargetFileScheme(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	got, err := resolveTarget(config.StoreConfig{Path: "file:" + dir + "/erlocator.db"})
	require.NoError(t, err)
	assert.True(t, got.local)
	assert.DirExists(t, dir)
}

func TestResolveTargetRequiresLocation(t *testing.T) {
	_, err := resolveTarget(config.StoreConfig{Path: "  "})
	assert.Error(t, err)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "postgres", Path: ":memory:"})
	assert.ErrorContains(t, err, "unsupported store driver")
}

func TestEntryQueryValidate(t *testing.T) {
	assert.Error(t, EntryQuery{}.Validate())
	assert.NoError(t, EntryQuery{All: true}.Validate())
	assert.NoError(t, EntryQuery{Key: "emergency:quota:block:서울특별시|강남구"}.Validate())
	assert.NoError(t, EntryQuery{Prefix: "emergency:quota:block:"}.Validate())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\_b\%c\\d`, escapeLike(`a_b%c\d`))
}
