package commands

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.json5"))
	require.NoError(t, err)
	require.Equal(t, defaultConfig(), cfg)
	require.Equal(t, time.Minute, duration(cfg.Monitor.Interval, 0))
}

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	writeFile(t, path, `{
		// comments are fine
		scan: {
			locations: ["Greenville"],
			min_score: 55,
		},
		monitor: { interval: "2m" },
		smtp: { server: "smtp.example.com", port: 587 },
	}`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{
		scan: { min_score: 70 },
	}`)
	t.Setenv("LOTWATCH_TOKEN", "env-token")
	t.Setenv("LOTWATCH_CONCURRENCY", "4")

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	require.Equal(t, []string{"Greenville"}, cfg.Scan.Locations)
	require.Equal(t, 70.0, cfg.Scan.MinScore)
	require.Equal(t, 4, cfg.Scan.Concurrency)
	require.Equal(t, 5, cfg.Scan.MaxPages)
	require.Equal(t, time.Minute*2, duration(cfg.Monitor.Interval, 0))
	require.Equal(t, "15m", cfg.Monitor.ClosingSoon)
	require.Equal(t, "env-token", cfg.Auth.Token)
	require.Equal(t, "smtp.example.com", cfg.Smtp.Server)
}

func TestLoadConfigInvalid(t *testing.T) {
	cases := map[string]string{
		"duration":  `{ monitor: { interval: "soon" } }`,
		"min score": `{ scan: { min_score: 120 } }`,
		"syntax":    `{ scan: `,
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json5")
			writeFile(t, path, contents)
			_, err := loadConfig(path)
			require.Error(t, err)
		})
	}
}
