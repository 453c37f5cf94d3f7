package listing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mordilloSan/go_logger/logger"

	"github.com/mordilloSan/dirdump/internal/version"
)

const (
	defaultMaxDepth    = 64
	defaultMaxFolders  = 100000
	defaultPageLimit   = 50 * 1024 * 1024
	defaultPageTimeout = 60 * time.Second
)

// Observer is notified after each folder record is stored.
type Observer interface {
	FolderDiscovered(path string, rec FolderRecord) error
}

// DiscoverConfig tunes the discoverer. Zero values select the defaults.
type DiscoverConfig struct {
	Client     *http.Client
	Timeout    time.Duration // per listing request, ignored when Client is set
	MaxDepth   int           // maximum number of segments in a folder path
	MaxFolders int           // maximum number of folder records
	PageLimit  int64         // maximum listing body size in bytes
}

// Discoverer walks a remote listing and builds a Tree.
type Discoverer struct {
	cfg      DiscoverConfig
	client   *http.Client
	mu       sync.RWMutex
	observer Observer
	pages    int
}

// NewDiscoverer returns a discoverer using cfg.
func NewDiscoverer(cfg DiscoverConfig) *Discoverer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultPageTimeout
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	if cfg.MaxFolders <= 0 {
		cfg.MaxFolders = defaultMaxFolders
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = defaultPageLimit
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Discoverer{cfg: cfg, client: client}
}

// SetObserver registers obs to receive every stored folder record.
func (d *Discoverer) SetObserver(obs Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observer = obs
}

// Pages returns the number of listing pages fetched by the last Discover call.
func (d *Discoverer) Pages() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pages
}

// Discover fetches rootURL and every folder below it, depth first. Any error
// aborts the whole walk and no tree is returned.
func (d *Discoverer) Discover(ctx context.Context, rootURL string) (*Tree, error) {
	d.mu.Lock()
	d.pages = 0
	obs := d.observer
	d.mu.Unlock()

	tree := NewTree()
	if err := d.discoverFolder(ctx, rootURL, "", tree, obs); err != nil {
		return nil, err
	}
	logger.Infof("discovery complete for %s: %d folders, %d files", rootURL, tree.Len(), tree.NumFiles())
	return tree, nil
}

// discoverFolder records currentFolder and then descends into each of its
// folder entries before returning.
func (d *Discoverer) discoverFolder(ctx context.Context, rootURL, currentFolder string, tree *Tree, obs Observer) error {
	if FolderDepth(currentFolder) > d.cfg.MaxDepth {
		return &GuardError{Path: currentFolder, Err: ErrTooDeep}
	}
	if _, exists := tree.Get(currentFolder); !exists && tree.Len() >= d.cfg.MaxFolders {
		return &GuardError{Path: currentFolder, Err: ErrLoopSuspected}
	}

	pageURL := rootURL + currentFolder
	logger.Infof("url: %s", pageURL)
	page, err := d.fetchPage(ctx, pageURL)
	if err != nil {
		return err
	}

	entries := ExtractEntries(page)
	logger.Infof("found %d files and %d folders", len(entries.Files), len(entries.Folders))

	rec := FolderRecord{Files: entries.Files}
	tree.Set(currentFolder, rec)
	if obs != nil {
		if err := obs.FolderDiscovered(currentFolder, rec); err != nil {
			return fmt.Errorf("observe folder %q: %w", currentFolder, err)
		}
	}

	for _, folder := range entries.Folders {
		if err := d.discoverFolder(ctx, rootURL, currentFolder+folder, tree, obs); err != nil {
			return err
		}
	}
	return nil
}

// fetchPage performs one GET and returns the body as text.
func (d *Discoverer) fetchPage(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", &FetchError{URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := d.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: pageURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &FetchError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	body, err := readAllLimit(resp.Body, d.cfg.PageLimit)
	if err != nil {
		return "", &FetchError{URL: pageURL, Err: err}
	}

	d.mu.Lock()
	d.pages++
	d.mu.Unlock()
	return string(body), nil
}

// readAllLimit reads at most limit bytes from r.
func readAllLimit(r io.Reader, limit int64) ([]byte, error) {
	var buf bytes.Buffer
	n, err := buf.ReadFrom(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if n > limit {
		return nil, ErrPageTooLarge
	}
	return buf.Bytes(), nil
}
