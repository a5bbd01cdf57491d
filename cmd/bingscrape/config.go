package main

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/FranksOps/bingscrape/internal/fingerprint"
	"github.com/FranksOps/bingscrape/internal/report"
	"github.com/FranksOps/bingscrape/internal/serp"
	"github.com/FranksOps/bingscrape/internal/serp/bing"
	"github.com/FranksOps/bingscrape/internal/scraper"
	"github.com/FranksOps/bingscrape/pkg/useragent"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "BINGSCRAPE"

// Output formats for --format.
const (
	formatJSON = "json"
	formatCSV  = "csv"
)

// Archive drivers for --archive-driver.
const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

type config struct {
	Query    string
	Paginate bool
	MaxPages int

	Output string
	Format string

	Timeout         time.Duration
	Fingerprint     fingerprint.Profile
	UserAgent       string
	RandomUserAgent bool
	BaseURL         string

	ArchiveDriver string
	ArchiveDSN    string

	MetricsAddr string
	Report      report.Format

	LogLevel  slog.Level
	LogFormat string
}

func registerFlags(fs *pflag.FlagSet) {
	fs.BoolP("paginate", "p", false, "follow next page links")
	fs.Int("max-pages", 0, fmt.Sprintf("cap on pages fetched after the first (0 or above %d means %d)", serp.HardPageLimit, serp.HardPageLimit))
	fs.StringP("output", "o", "", "write results to this file instead of printing urls")
	fs.String("format", "", "output file format: json or csv (default from the file extension)")
	fs.Duration("timeout", scraper.DefaultTimeout, "per request timeout")
	fs.String("fingerprint", string(fingerprint.DefaultProfile), "TLS fingerprint: chrome, firefox, safari, go or random")
	fs.String("user-agent", "", "User-Agent header (default "+useragent.Default+")")
	fs.Bool("random-user-agent", false, "pick the User-Agent at random from the built-in pool")
	fs.String("base-url", bing.DefaultBaseURL, "search engine origin")
	fs.String("archive-driver", "", "also archive the run: sqlite or postgres")
	fs.String("archive-dsn", "", "archive data source (sqlite file or postgres url)")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	fs.String("report", string(report.FormatNone), "print a run summary to stderr: none, text, json or html")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("log-format", "text", "log format: text or json")
	fs.String("config", "", "config file (yaml, toml or json)")
}

// loadConfig reads the settings from v and validates them.
func loadConfig(v *viper.Viper, args []string) (config, error) {
	cfg := config{
		Query:           strings.TrimSpace(strings.Join(args, " ")),
		Paginate:        v.GetBool("paginate"),
		MaxPages:        v.GetInt("max-pages"),
		Output:          v.GetString("output"),
		Format:          strings.ToLower(v.GetString("format")),
		Timeout:         v.GetDuration("timeout"),
		UserAgent:       v.GetString("user-agent"),
		RandomUserAgent: v.GetBool("random-user-agent"),
		BaseURL:         v.GetString("base-url"),
		ArchiveDriver:   strings.ToLower(v.GetString("archive-driver")),
		ArchiveDSN:      v.GetString("archive-dsn"),
		MetricsAddr:     v.GetString("metrics-addr"),
		LogFormat:       strings.ToLower(v.GetString("log-format")),
	}

	if cfg.Query == "" {
		return cfg, fmt.Errorf("a query is required")
	}
	if cfg.MaxPages < 0 {
		return cfg, fmt.Errorf("max-pages must not be negative")
	}
	if cfg.Timeout <= 0 {
		return cfg, fmt.Errorf("timeout must be positive")
	}

	var err error
	if cfg.Fingerprint, err = fingerprint.ParseProfile(v.GetString("fingerprint")); err != nil {
		return cfg, err
	}
	if cfg.Report, err = report.ParseFormat(v.GetString("report")); err != nil {
		return cfg, err
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		return cfg, fmt.Errorf("invalid log level: %w", err)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return cfg, fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}

	if cfg.Output != "" && cfg.Format == "" {
		cfg.Format = formatFromPath(cfg.Output)
	}
	switch cfg.Format {
	case "", formatJSON, formatCSV:
	default:
		return cfg, fmt.Errorf("unknown output format %q", cfg.Format)
	}

	switch cfg.ArchiveDriver {
	case "":
	case driverSQLite, driverPostgres:
		if cfg.ArchiveDSN == "" {
			return cfg, fmt.Errorf("archive-dsn is required with archive-driver %s", cfg.ArchiveDriver)
		}
	default:
		return cfg, fmt.Errorf("unknown archive driver %q", cfg.ArchiveDriver)
	}

	return cfg, nil
}

func formatFromPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return formatCSV
	}
	return formatJSON
}

// userAgent returns the User-Agent held for the whole run.
func (c config) userAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return useragent.NewPool(useragent.DefaultPool).Pick(c.RandomUserAgent)
}

func (c config) request() serp.Request {
	return serp.Request{Query: c.Query, Paginate: c.Paginate, MaxPages: c.MaxPages}
}

func (c config) scraperConfig() bing.Config {
	return bing.Config{
		BaseURL: c.BaseURL,
		Fetch: scraper.FetchConfig{
			Timeout:     c.Timeout,
			UserAgent:   c.userAgent(),
			Fingerprint: c.Fingerprint,
		},
	}
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
