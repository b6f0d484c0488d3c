package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("PLTEST_PROVIDER", "mock")
	t.Setenv("PLTEST_ITERATION_CAP", "5")

	conf, err := Load[Runtime]("PLTEST")
	require.NoError(t, err)

	assert.Equal(t, "mock", conf.Provider)
	assert.Equal(t, 5, conf.IterationCap)
	assert.Equal(t, 4, conf.BudgetKeep, "unset values fall back to defaults")
	assert.Equal(t, "info", conf.LogLevel)
}

func TestLoadFile_EnvironmentWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("PLFILE_API_KEY=from-file\nPLFILE_MODEL=file-model\n"), 0o600))

	t.Setenv("PLFILE_API_KEY", "from-env")

	conf, err := LoadFile[Runtime]("PLFILE", path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", conf.APIKey, "process environment overrides file values")
	assert.Equal(t, "file-model", conf.Model)
}

func TestLoadFile_MissingFileFails(t *testing.T) {
	_, err := LoadFile[Runtime]("PLMISS", filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err)
}
