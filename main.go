package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mordilloSan/go_logger/logger"
	"github.com/spf13/pflag"

	"github.com/mordilloSan/dirdump/cmd"
	"github.com/mordilloSan/dirdump/internal/version"
)

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	var (
		baseURL       = pflag.String("url", "", "Base listing URL, must end with / (overrides DIRDUMP_URL)")
		dst           = pflag.String("dst", "", "Destination directory (overrides DIRDUMP_DST)")
		subdir        = pflag.String("subdir", "", "Sub-directory of dst to mirror into (e.g. .git)")
		workers       = pflag.IntP("workers", "w", 1, "Concurrent downloads; 1 keeps strict listing order")
		timeout       = pflag.Duration("timeout", 60*time.Second, "Per-request timeout")
		maxDepth      = pflag.Int("max-depth", 64, "Maximum folder nesting followed during discovery")
		maxFolders    = pflag.Int("max-folders", 100000, "Maximum number of folders discovered")
		dbPath        = pflag.String("db-path", "", "SQLite run catalog path (overrides DIRDUMP_DB_PATH); empty disables")
		keepRuns      = pflag.Int("keep-runs", 10, "Catalog runs kept when pruning; 0 disables pruning")
		metricsListen = pflag.String("metrics-listen", "", "Optional TCP address serving /metrics (e.g. :9090)")
		verbose       = pflag.BoolP("verbose", "v", false, "Enable verbose logging")
		configPath    = pflag.StringP("config", "c", "", "Optional YAML config file (overrides DIRDUMP_CONFIG)")
		showVersion   = pflag.Bool("version", false, "Print version and exit")
	)
	pflag.Usage = usage
	pflag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	logger.Init("production", *verbose)

	legacyURL, legacyDst, rest := cmd.ParseLegacyArgs(pflag.Args())
	if len(rest) > 0 {
		logger.Warnf("Ignoring unexpected arguments: %v", rest)
	}

	cfg := cmd.MirrorConfig{
		URL:           cmd.Coalesce(*baseURL, legacyURL, os.Getenv("DIRDUMP_URL")),
		Dest:          cmd.Coalesce(*dst, legacyDst, os.Getenv("DIRDUMP_DST")),
		Subdir:        *subdir,
		Workers:       *workers,
		Timeout:       *timeout,
		MaxDepth:      *maxDepth,
		MaxFolders:    *maxFolders,
		DBPath:        cmd.Coalesce(*dbPath, os.Getenv("DIRDUMP_DB_PATH")),
		KeepRuns:      *keepRuns,
		MetricsListen: *metricsListen,
	}

	if path := cmd.Coalesce(*configPath, os.Getenv("DIRDUMP_CONFIG")); path != "" {
		fileCfg, err := cmd.LoadConfigFile(path)
		if err != nil {
			logger.Fatalf("Failed to load config: %v", err)
		}
		fileCfg.Merge(&cfg, pflag.CommandLine.Changed)
		logger.Debugf("Loaded config from %s", path)
	}

	if v := os.Getenv("DIRDUMP_WORKERS"); v != "" && !pflag.CommandLine.Changed("workers") {
		n, err := strconv.Atoi(v)
		if err != nil {
			logger.Warnf("Invalid DIRDUMP_WORKERS %q, keeping %d: %v", v, cfg.Workers, err)
		} else {
			cfg.Workers = n
		}
	}

	if cfg.URL == "" || cfg.Dest == "" {
		logger.Errorf("Error: url and dst are required")
		pflag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := cmd.RunMirror(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warnf("Interrupted: %v", err)
		} else {
			logger.Errorf("Mirror failed: %v", err)
		}
		stop()
		os.Exit(1)
	}
}

func usage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage: %s --url <URL> --dst <DIR> [flags]\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "       %s url:<URL> dst:<DIR> [flags]\n\n", os.Args[0])
	pflag.PrintDefaults()
}
