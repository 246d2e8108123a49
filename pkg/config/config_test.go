package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.01, cfg.Bmax.SynonymBoost)
	assert.Equal(t, 100.0, cfg.Booster.PenalizeFactor)
	assert.Equal(t, 400, cfg.Booster.PenalizeDocs)
	assert.Equal(t, 10000.0, cfg.Cache.Precision)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	data := `
server:
  port: 9999
analysis:
  fields:
    title: text_en
bmax:
  tieBreaker: 0.1
cache:
  valueCacheHint: 2
  dictionaryTimeout: 10s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "text_en", cfg.Analysis.Fields["title"])
	assert.Equal(t, 0.1, cfg.Bmax.TieBreaker)
	assert.Equal(t, 2, cfg.Cache.ValueCacheHint)
	assert.Equal(t, 10*time.Second, cfg.Cache.DictionaryTimeout)
	// untouched sections keep their defaults
	assert.Equal(t, "text", cfg.Bmax.QueryParsingAnalyzer)
}

func TestLoadRejectsUnknownAnalyzerReference(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  fields:\n    body: nope\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SP_SERVER_PORT", "7070")
	t.Setenv("SP_CACHE_VALUE_HINT", "1")
	t.Setenv("SP_KAFKA_BROKERS", "a:1,b:2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Cache.ValueCacheHint)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Kafka.Brokers)
}
