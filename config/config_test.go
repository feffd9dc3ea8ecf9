package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(text), 0644))
	return path
}

func TestLoadAppliesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
boardSizeX: 9
boardSizeY: 9
komi: 6.5
numGameThreads: 4
book:
  costPerMove: 2.5
search:
  maxVisits: 123
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9, cfg.BoardSizeX)
	require.Equal(t, 6.5, cfg.Komi)
	require.Equal(t, 4, cfg.NumGameThreads)
	require.Equal(t, 2.5, cfg.Book.CostPerMove)
	require.EqualValues(t, 123, cfg.Search.MaxVisits)

	// Untouched keys keep their defaults.
	def := Default()
	require.Equal(t, def.RepBound, cfg.RepBound)
	require.Equal(t, def.Book.CostPerUCBWinLossLoss, cfg.Book.CostPerUCBWinLossLoss)

	require.Equal(t, 6.5, cfg.Rules().Komi)
}

func TestRawPreservesFileText(t *testing.T) {
	text := "boardSizeX: 9\nboardSizeY: 9\n# trailing comment\n"
	path := writeConfig(t, text)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, text, string(cfg.Raw()), "sidecar must reproduce the exact config text")
}

func TestValidation(t *testing.T) {
	t.Run("board size out of range", func(t *testing.T) {
		_, err := Load(writeConfig(t, "boardSizeX: 1\n"))
		require.Error(t, err)
	})
	t.Run("bad thread count", func(t *testing.T) {
		_, err := Load(writeConfig(t, "numGameThreads: 0\n"))
		require.Error(t, err)
	})
	t.Run("unparsable yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, ":\n  - ]["))
		require.Error(t, err)
	})
	t.Run("defaults validate", func(t *testing.T) {
		cfg := Default()
		require.NoError(t, cfg.Validate())
	})
}
