package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { require.NoError(t, os.Chdir(cwd)) }()

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { require.NoError(t, os.Chdir(cwd)) }()

	content := "cache_dir: /tmp/other-cache\nassume_cc: true\nworkers: 4\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "radeco.yaml"), []byte(content), 0o644))

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other-cache", cfg.CacheDir)
	assert.True(t, cfg.AssumeCC)
	assert.Equal(t, 4, cfg.Workers)
}

func TestLoadReadsReplacePCFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { require.NoError(t, os.Chdir(cwd)) }()

	content := "replace_pc: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "radeco.yaml"), []byte(content), 0o644))

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.True(t, cfg.ReplacePC)
}

func TestLoadFlagOverridesFile(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { require.NoError(t, os.Chdir(cwd)) }()

	content := "assume_cc: false\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "radeco.yaml"), []byte(content), 0o644))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Bool("assume_cc", true, "assume calling convention")
	require.NoError(t, fs.Set("assume_cc", "true"))

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.True(t, cfg.AssumeCC)
}
