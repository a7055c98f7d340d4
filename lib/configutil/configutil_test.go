package configutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name    string   `json:"name"`
	Port    int      `json:"port"`
	Tags    []string `json:"tags"`
	Enabled bool     `json:"enabled"`
}

func write(t *testing.T, path, contents string) {
	err := os.WriteFile(path, []byte(contents), 0600)
	if err != nil {
		t.Fatal(err)
	}
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "config.json5"), `{
		// comments and trailing commas are fine
		name: "base",
		port: 8080,
		tags: ["a"],
	}`)
	write(t, filepath.Join(dir, "config.local.json5"), `{port: 9090, enabled: true}`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, testConfig{Name: "base", Port: 9090, Tags: []string{"a"}, Enabled: true}, cfg)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)

	dir := t.TempDir()
	write(t, filepath.Join(dir, "config.local.json5"), `{name: "only local"}`)
	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "only local", cfg.Name)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CONFIGUTIL_TEST_STR", "value")
	t.Setenv("CONFIGUTIL_TEST_INT", "12")
	t.Setenv("CONFIGUTIL_TEST_BAD_INT", "twelve")
	t.Setenv("CONFIGUTIL_TEST_DURATION", "90s")

	str := "default"
	EnvString(&str, "CONFIGUTIL_TEST_STR")
	require.Equal(t, "value", str)
	EnvString(&str, "CONFIGUTIL_TEST_UNSET")
	require.Equal(t, "value", str)

	n := 1
	EnvInt(&n, "CONFIGUTIL_TEST_INT")
	require.Equal(t, 12, n)
	EnvInt(&n, "CONFIGUTIL_TEST_BAD_INT")
	require.Equal(t, 12, n)

	var d time.Duration
	EnvDuration(&d, "CONFIGUTIL_TEST_DURATION")
	require.Equal(t, 90*time.Second, d)
}

func TestDuration(t *testing.T) {
	d, err := Duration("", time.Minute)
	require.NoError(t, err)
	require.Equal(t, time.Minute, d)

	d, err = Duration("1h30m", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 90*time.Minute, d)

	_, err = Duration("soon", time.Minute)
	require.Error(t, err)
}
