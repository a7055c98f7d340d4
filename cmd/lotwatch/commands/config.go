package commands

import (
	"errors"
	"fmt"
	"lotwatch/internal/components/telemetry"
	"lotwatch/internal/lots"
	"lotwatch/internal/notify"
	"lotwatch/internal/scoring"
	"lotwatch/lib/configutil"
	configlibsql "lotwatch/lib/configutil/libsql"
	"os"
	"time"

	"dario.cat/mergo"
)

type MacBidConfig struct {
	ApiBaseUrl        string  `json:"api_base_url"`
	SiteBaseUrl       string  `json:"site_base_url"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
	Retries           int     `json:"retries"`
	Timeout           string  `json:"timeout"`
	// CacheDir holds the badger response cache, empty keeps it in memory.
	CacheDir string `json:"cache_dir"`
	// CacheTTL of "" or "0s" disables the cache.
	CacheTTL string `json:"cache_ttl"`
}

type AuthConfig struct {
	Token      string `json:"token"`
	CustomerID string `json:"customer_id"`
	TokenFile  string `json:"token_file"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type TypesenseConfig struct {
	Url        string `json:"url"`
	ApiKey     string `json:"api_key"`
	Collection string `json:"collection"`
}

type FirestoreConfig struct {
	Project    string `json:"project"`
	ApiKey     string `json:"api_key"`
	Collection string `json:"collection"`
}

type ScanConfig struct {
	Locations   []string `json:"locations"`
	MinScore    float64  `json:"min_score"`
	MaxPages    int      `json:"max_pages"`
	PerPage     int      `json:"per_page"`
	Concurrency int      `json:"concurrency"`
	Delay       string   `json:"delay"`
}

type MonitorConfig struct {
	Interval    string `json:"interval"`
	Jitter      string `json:"jitter"`
	ClosingSoon string `json:"closing_soon"`
}

type ScoringConfig struct {
	Weights scoring.Weights `json:"weights"`
	Brands  []string        `json:"brands"`
}

type TelemetryConfig struct {
	Otlp telemetry.OtlpConfig `json:"otlp"`
}

type Config struct {
	Database  configlibsql.Struct `json:"database"`
	MacBid    MacBidConfig        `json:"macbid"`
	Auth      AuthConfig          `json:"auth"`
	Typesense TypesenseConfig     `json:"typesense"`
	Firestore FirestoreConfig     `json:"firestore"`
	Scan      ScanConfig          `json:"scan"`
	Monitor   MonitorConfig       `json:"monitor"`
	Scoring   ScoringConfig       `json:"scoring"`
	Smtp      notify.SmtpConfig   `json:"smtp"`
	Telemetry TelemetryConfig     `json:"telemetry"`
	ServeAddr string              `json:"serve_addr"`
}

func defaultConfig() Config {
	return Config{
		Database: configlibsql.Struct{File: "<dev_state>/lotwatch.db"},
		MacBid: MacBidConfig{
			CacheTTL: "2m",
		},
		Auth: AuthConfig{
			TokenFile: "<dev_state>/token.json",
		},
		Scan: ScanConfig{
			Locations:   lots.SCLocations,
			MinScore:    40,
			MaxPages:    5,
			PerPage:     48,
			Concurrency: 2,
			Delay:       "500ms",
		},
		Monitor: MonitorConfig{
			Interval:    "60s",
			Jitter:      "10s",
			ClosingSoon: "15m",
		},
		ServeAddr: ":8080",
	}
}

// applyEnv lets LOTWATCH_* variables override the config file.
func applyEnv(cfg *Config) {
	configutil.EnvString(&cfg.Database.File, "LOTWATCH_DATABASE")
	configutil.EnvString(&cfg.Database.Url, "LOTWATCH_DATABASE_URL")
	configutil.EnvString(&cfg.Database.AuthToken, "LOTWATCH_DATABASE_AUTH_TOKEN")
	configutil.EnvString(&cfg.Auth.Token, "LOTWATCH_TOKEN")
	configutil.EnvString(&cfg.Auth.CustomerID, "LOTWATCH_CUSTOMER_ID")
	configutil.EnvString(&cfg.Auth.TokenFile, "LOTWATCH_TOKEN_FILE")
	configutil.EnvString(&cfg.Auth.Email, "LOTWATCH_EMAIL")
	configutil.EnvString(&cfg.Auth.Password, "LOTWATCH_PASSWORD")
	configutil.EnvString(&cfg.Typesense.Url, "LOTWATCH_TYPESENSE_URL")
	configutil.EnvString(&cfg.Typesense.ApiKey, "LOTWATCH_TYPESENSE_KEY")
	configutil.EnvString(&cfg.Firestore.Project, "LOTWATCH_FIRESTORE_PROJECT")
	configutil.EnvString(&cfg.Firestore.ApiKey, "LOTWATCH_FIRESTORE_KEY")
	configutil.EnvString(&cfg.Smtp.Password, "LOTWATCH_SMTP_PASSWORD")
	configutil.EnvString(&cfg.ServeAddr, "LOTWATCH_ADDR")
	configutil.EnvInt(&cfg.Scan.Concurrency, "LOTWATCH_CONCURRENCY")
}

// loadConfig layers defaults, the config file (and its .local override),
// .env and the environment. A missing config file is not an error.
func loadConfig(path string) (Config, error) {
	configutil.LoadDotenv()

	cfg := defaultConfig()
	fromFile, err := configutil.ReadConfig[Config](path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		err = mergo.Merge(&cfg, fromFile, mergo.WithOverride)
		if err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	durations := map[string]string{
		"macbid.timeout":       c.MacBid.Timeout,
		"macbid.cache_ttl":     c.MacBid.CacheTTL,
		"scan.delay":           c.Scan.Delay,
		"monitor.interval":     c.Monitor.Interval,
		"monitor.jitter":       c.Monitor.Jitter,
		"monitor.closing_soon": c.Monitor.ClosingSoon,
	}
	for key, value := range durations {
		_, err := configutil.Duration(value, 0)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if c.Scan.MinScore < 0 || c.Scan.MinScore > 100 {
		return fmt.Errorf("scan.min_score must be within [0, 100]")
	}
	return nil
}

// duration is only called on validated values.
func duration(value string, fallback time.Duration) time.Duration {
	d, _ := configutil.Duration(value, fallback)
	return d
}
