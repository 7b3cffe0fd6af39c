package xshardmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		format    Format
		wantShard int
		wantRoC   *bool
		wantErr   error
	}{
		{
			name:      "yaml",
			data:      "shard_count: 64\nrelease_on_collect: false\n",
			format:    FormatYAML,
			wantShard: 64,
			wantRoC:   new(bool),
		},
		{
			name:      "json",
			data:      `{"shard_count": 8}`,
			format:    FormatJSON,
			wantShard: 8,
		},
		{
			name:   "empty",
			data:   "",
			format: FormatYAML,
		},
		{
			name:    "unsupported",
			data:    "shard_count = 8",
			format:  Format("toml"),
			wantErr: ErrUnsupportedFormat,
		},
		{
			name:    "malformed",
			data:    `{"shard_count":`,
			format:  FormatJSON,
			wantErr: ErrInvalidConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig([]byte(tt.data), tt.format)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantShard, cfg.ShardCount)
			assert.Equal(t, tt.wantRoC, cfg.ReleaseOnCollect)
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "map.yml")
	require.NoError(t, os.WriteFile(path, []byte("shard_count: 2\n"), 0o600))
	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.ShardCount)

	_, err = LoadConfigFile(filepath.Join(dir, "map.toml"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = LoadConfigFile(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfigOptions(t *testing.T) {
	assert.Empty(t, Config{}.Options())

	off := false
	cfg := Config{ShardCount: 4, ReleaseOnCollect: &off}
	m, err := New[string, int](cfg.Options()...)
	require.NoError(t, err)
	assert.Equal(t, 4, m.ShardCount())
	assert.False(t, m.tel.releaseOnCollect)

	_, err = New[string, int](Config{ShardCount: 3}.Options()...)
	assert.ErrorIs(t, err, ErrInvalidShardCount)
}
