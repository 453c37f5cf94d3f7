package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/mordilloSan/go_logger/logger"

	"github.com/mordilloSan/dirdump/internal/version"
	"github.com/mordilloSan/dirdump/listing"
	"github.com/mordilloSan/dirdump/metrics"
	"github.com/mordilloSan/dirdump/mirror"
	"github.com/mordilloSan/dirdump/storage"
)

const (
	writerBufferSize = 1000
	pruneMaxAge      = 24 * time.Hour
)

// ErrMissingArgs is returned when the base URL or the destination is empty.
var ErrMissingArgs = errors.New("url and dst are required")

// MirrorConfig controls one mirror run.
type MirrorConfig struct {
	URL           string
	Dest          string
	Subdir        string
	Workers       int
	Timeout       time.Duration
	MaxDepth      int
	MaxFolders    int
	DBPath        string // empty disables the catalog
	KeepRuns      int
	MetricsListen string // empty disables the metrics listener

	// Client overrides the HTTP client used by both phases.
	Client *http.Client
}

// Result describes a completed run.
type Result struct {
	RunID   int64 // 0 when the catalog is disabled
	Tree    *listing.Tree
	Pages   int
	Summary mirror.Summary
}

// NormalizeBaseURL validates raw as an http(s) URL and makes sure it ends
// with "/".
func NormalizeBaseURL(raw string) (string, error) {
	if _, err := parseBaseURL(raw); err != nil {
		return "", err
	}
	if !strings.HasSuffix(raw, "/") {
		logger.Warnf("url %s does not end with \"/\"; appending one", raw)
		raw += "/"
	}
	return raw, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid url %q: missing host", raw)
	}
	return u, nil
}

// ParseLegacyArgs extracts the "url:<URL>" and "dst:<DIR>" positional forms
// and returns the remaining arguments untouched.
func ParseLegacyArgs(args []string) (rawURL, dst string, rest []string) {
	for _, arg := range args {
		if v, ok := strings.CutPrefix(arg, "url:"); ok {
			rawURL = v
			continue
		}
		if v, ok := strings.CutPrefix(arg, "dst:"); ok {
			dst = v
			continue
		}
		rest = append(rest, arg)
	}
	return rawURL, dst, rest
}

// RunMirror discovers the remote tree under cfg.URL and then materializes it
// below cfg.Dest. Discovery completes before any file is requested; a
// discovery failure leaves the destination untouched.
func RunMirror(ctx context.Context, cfg MirrorConfig) (*Result, error) {
	if cfg.URL == "" || cfg.Dest == "" {
		return nil, ErrMissingArgs
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	baseURL, err := NormalizeBaseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	destRoot := cfg.Dest
	if cfg.Subdir != "" {
		destRoot = filepath.Join(cfg.Dest, filepath.FromSlash(cfg.Subdir))
	}

	logger.Infof("%s mirroring url=%s dst=%s workers=%d", version.String(), baseURL, destRoot, max(cfg.Workers, 1))

	rec := metrics.New()
	if cfg.MetricsListen != "" {
		srv, err := startMetricsServer(cfg.MetricsListen, rec.Handler())
		if err != nil {
			return nil, err
		}
		defer srv.Close()
	}

	run, cleanup, err := openCatalog(ctx, cfg, baseURL, destRoot)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	observers := listing.MultiObserver{rec}
	reporters := mirror.MultiReporter{rec}
	if run != nil {
		observers = append(observers, run.writer)
		reporters = append(reporters, run.writer)
	}

	discoverer := listing.NewDiscoverer(listing.DiscoverConfig{
		Client:     cfg.Client,
		Timeout:    cfg.Timeout,
		MaxDepth:   cfg.MaxDepth,
		MaxFolders: cfg.MaxFolders,
	})
	discoverer.SetObserver(observers)

	start := time.Now()
	tree, err := discoverer.Discover(ctx, baseURL)
	discoverDuration := time.Since(start)
	rec.ObservePhase("discover", discoverDuration.Seconds())
	if err != nil {
		err = fmt.Errorf("discover %s: %w", baseURL, err)
		_ = run.finish(storage.RunResult{Status: storage.RunFailed, Err: err, DiscoverDuration: discoverDuration})
		return nil, err
	}
	run.setStatus(storage.RunMaterializing)

	materializer := mirror.NewMaterializer(mirror.Config{
		Client:  cfg.Client,
		Timeout: cfg.Timeout,
		Workers: cfg.Workers,
	})
	materializer.SetReporter(reporters)

	start = time.Now()
	err = materializer.Materialize(ctx, baseURL, tree, destRoot)
	materializeDuration := time.Since(start)
	rec.ObservePhase("materialize", materializeDuration.Seconds())
	summary := materializer.Summary()

	res := storage.RunResult{
		Status:              storage.RunComplete,
		NumFolders:          tree.Len(),
		NumFiles:            tree.NumFiles(),
		Downloaded:          summary.Downloaded,
		Skipped:             summary.Skipped,
		Bytes:               summary.Bytes,
		DiscoverDuration:    discoverDuration,
		MaterializeDuration: materializeDuration,
	}
	if err != nil {
		err = fmt.Errorf("materialize into %s: %w", destRoot, err)
		res.Status = storage.RunFailed
		res.Err = err
	}
	if ferr := run.finish(res); ferr != nil && err == nil {
		err = ferr
	}

	result := &Result{Tree: tree, Pages: discoverer.Pages(), Summary: summary}
	if run != nil {
		result.RunID = run.id
	}
	if err != nil {
		return result, err
	}

	logger.Infof("Mirror complete in %v: folders=%d (empty=%d) downloaded=%d skipped=%d bytes=%d",
		(discoverDuration + materializeDuration).Truncate(time.Millisecond),
		summary.Folders,
		summary.EmptyFolders,
		summary.Downloaded,
		summary.Skipped,
		summary.Bytes,
	)
	return result, nil
}
