package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graft/internal/merge"
	"github.com/roach88/graft/internal/remap"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("db", "", "")
	fs.String("policy", "", "")
	fs.Int("parallelism", 0, "")
	fs.Bool("verbose", false, "")
	return fs
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultDatabase, cfg.Database)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, merge.DefaultPolicy, cfg.Policy())
	assert.Equal(t, DefaultMaxPasses, cfg.Sync.MaxPasses)
	assert.True(t, cfg.Sync.PruneStale)
	assert.Equal(t, DefaultParallelism, cfg.Sync.Parallelism)
	assert.Equal(t, "v7", cfg.Identity.Version)
	assert.Empty(t, cfg.File)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, "graft.yaml", `
database: from-file.db
log:
  level: debug
sync:
  policy: prefer-local
  parallelism: 2
  prune_stale: false
`)
	t.Setenv("GRAFT_SYNC__POLICY", "prefer-remote")
	t.Setenv("GRAFT_SYNC__MAX_PASSES", "8")

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--db", "from-flag.db", "--verbose"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "graft.yaml", cfg.File)
	assert.Equal(t, "from-flag.db", cfg.Database, "flag beats file")
	assert.Equal(t, merge.PreferRemote, cfg.Policy(), "env beats file")
	assert.Equal(t, 8, cfg.Sync.MaxPasses)
	assert.Equal(t, 2, cfg.Sync.Parallelism, "unset flag does not override")
	assert.False(t, cfg.Sync.PruneStale)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadZeroMaxPasses(t *testing.T) {
	t.Chdir(t.TempDir())
	assert.Equal(t, 0, DefaultMaxPasses)

	t.Setenv("GRAFT_SYNC__MAX_PASSES", "0")
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Sync.MaxPasses)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("max-passes", DefaultMaxPasses, "")
	require.NoError(t, flags.Parse([]string{"--max-passes", "0"}))
	cfg, err = Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Sync.MaxPasses)
}

func TestLoadExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, t.TempDir(), "custom.yaml", "identity:\n  version: v4\n")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File)

	gen, err := cfg.Generator()
	require.NoError(t, err)
	assert.IsType(t, remap.UUIDv4Generator{}, gen)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.ErrorContains(t, err, "error reading config file")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"unknown policy", map[string]string{"GRAFT_SYNC__POLICY": "yolo"}, "sync: Policy"},
		{"bad log format", map[string]string{"GRAFT_LOG__FORMAT": "xml"}, "log: Format"},
		{"zero parallelism", map[string]string{"GRAFT_SYNC__PARALLELISM": "0"}, "sync: Parallelism"},
		{"negative max passes", map[string]string{"GRAFT_SYNC__MAX_PASSES": "-1"}, "sync: MaxPasses"},
		{"unknown identity", map[string]string{"GRAFT_IDENTITY__VERSION": "v1"}, "identity: Version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateRequiresDatabase(t *testing.T) {
	cfg := &Config{
		Log:      LogConfig{Level: "info", Format: "text"},
		Sync:     SyncConfig{Policy: string(merge.Strict), MaxPasses: 1, Parallelism: 1},
		Identity: IdentityConfig{Version: "v7"},
	}
	assert.ErrorContains(t, cfg.Validate(), "Database")

	cfg.Database = "x.db"
	assert.NoError(t, cfg.Validate())
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "sync.max_passes", envKey("GRAFT_SYNC__MAX_PASSES"))
	assert.Equal(t, "database", envKey("GRAFT_DATABASE"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{Log: LogConfig{Level: "warn", Format: "json"}}

	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Equal(t, slog.LevelWarn, cfg.Level())
}
