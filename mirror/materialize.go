package mirror

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mordilloSan/go_logger/logger"
	"golang.org/x/sync/errgroup"

	"github.com/mordilloSan/dirdump/internal/version"
	"github.com/mordilloSan/dirdump/listing"
)

const (
	// DefaultTimeout bounds each file request, body included.
	DefaultTimeout = 60 * time.Second

	dirPerm  = 0o755
	filePerm = 0o644
)

// errStopDispatch ends the tree walk once a pooled download has failed.
var errStopDispatch = errors.New("dispatch stopped")

// Config tunes the materializer. Zero values select the defaults.
type Config struct {
	Client  *http.Client
	Timeout time.Duration
	Workers int // concurrent downloads; 1 keeps the strict sequential order
}

// Summary counts what a Materialize call did.
type Summary struct {
	Folders      int   // folders with at least one file
	EmptyFolders int   // folders skipped because they list no files
	Downloaded   int   // files fetched
	Skipped      int   // files already present
	Bytes        int64 // bytes written
}

// Materializer replays a listing.Tree onto the local filesystem.
type Materializer struct {
	cfg      Config
	client   *http.Client
	reporter Reporter

	mu      sync.Mutex
	summary Summary
}

// fileJob is one file of one folder.
type fileJob struct {
	folder string
	name   string
	url    string
	path   string
}

// NewMaterializer returns a materializer using cfg.
func NewMaterializer(cfg Config) *Materializer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Materializer{cfg: cfg, client: client}
}

// SetReporter registers r to receive per-folder and per-file events.
func (m *Materializer) SetReporter(r Reporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reporter = r
}

// Summary returns the counters of the last Materialize call.
func (m *Materializer) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summary
}

// DestFolder returns the local directory mirroring a relative folder path.
func DestFolder(destRoot, folder string) string {
	return filepath.Join(destRoot, filepath.FromSlash(folder))
}

// Materialize creates destRoot, one directory per non-empty folder of tree,
// and downloads every file that does not already exist. The first failure
// stops the run; files not yet attempted are never attempted.
func (m *Materializer) Materialize(ctx context.Context, rootURL string, tree *listing.Tree, destRoot string) error {
	m.mu.Lock()
	m.summary = Summary{}
	m.mu.Unlock()

	if err := os.MkdirAll(destRoot, dirPerm); err != nil {
		return &FilesystemError{Op: "mkdir", Path: destRoot, Err: err}
	}

	if m.cfg.Workers == 1 {
		return tree.Walk(func(folder string, rec listing.FolderRecord) error {
			return m.materializeFolder(ctx, rootURL, destRoot, folder, rec, func(job fileJob) error {
				return m.fetchFile(ctx, job)
			})
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	walkErr := tree.Walk(func(folder string, rec listing.FolderRecord) error {
		return m.materializeFolder(gctx, rootURL, destRoot, folder, rec, func(job fileJob) error {
			if gctx.Err() != nil {
				return errStopDispatch
			}
			g.Go(func() error {
				// Jobs still queued when the run stops were never attempted.
				if gctx.Err() != nil {
					return nil
				}
				return m.fetchFile(gctx, job)
			})
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if walkErr != nil && !errors.Is(walkErr, errStopDispatch) {
		return walkErr
	}
	return ctx.Err()
}

// materializeFolder creates the folder directory and hands each file to dispatch.
func (m *Materializer) materializeFolder(ctx context.Context, rootURL, destRoot, folder string, rec listing.FolderRecord, dispatch func(fileJob) error) error {
	if rec.Empty() {
		logger.Infof("skip %q folder (it's empty)", folder)
		m.count(func(s *Summary) { s.EmptyFolders++ })
		m.report(func(r Reporter) error { return r.FolderSkipped(folder) })
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	logger.Infof("download: %s", folder)
	destFolder := DestFolder(destRoot, folder)
	if err := os.MkdirAll(destFolder, dirPerm); err != nil {
		return &FilesystemError{Op: "mkdir", Path: destFolder, Err: err}
	}
	m.count(func(s *Summary) { s.Folders++ })

	for _, name := range rec.Files {
		job := fileJob{
			folder: folder,
			name:   name,
			url:    rootURL + folder + name,
			path:   filepath.Join(destFolder, name),
		}
		if err := dispatch(job); err != nil {
			return err
		}
	}
	return nil
}

// fetchFile skips an existing destination or streams the remote file into it.
func (m *Materializer) fetchFile(ctx context.Context, job fileJob) error {
	if _, err := os.Stat(job.path); err == nil {
		m.skipFile(job)
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return m.fail(job, &FilesystemError{Op: "stat", Path: job.path, Err: err})
	}

	size, err := m.download(ctx, job)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			m.skipFile(job)
			return nil
		}
		return m.fail(job, err)
	}

	logger.Debugf("downloaded %s (%d bytes)", job.path, size)
	m.count(func(s *Summary) {
		s.Downloaded++
		s.Bytes += size
	})
	m.report(func(r Reporter) error { return r.FileDownloaded(job.folder, job.name, job.path, size) })
	return nil
}

// download issues the GET and copies the body to a freshly created file.
// The file is only created once a success status has been received.
func (m *Materializer) download(ctx context.Context, job fileJob) (int64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, job.url, nil)
	if err != nil {
		return 0, &DownloadError{URL: job.url, Path: job.path, Err: err}
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, &DownloadError{URL: job.url, Path: job.path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &DownloadError{URL: job.url, Path: job.path, StatusCode: resp.StatusCode}
	}

	f, err := os.OpenFile(job.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, err
		}
		return 0, &FilesystemError{Op: "create", Path: job.path, Err: err}
	}

	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		return n, &DownloadError{URL: job.url, Path: job.path, Err: copyErr}
	}
	if closeErr != nil {
		return n, &FilesystemError{Op: "close", Path: job.path, Err: closeErr}
	}
	return n, nil
}

func (m *Materializer) skipFile(job fileJob) {
	logger.Infof("skip %q file (already exists)", job.path)
	m.count(func(s *Summary) { s.Skipped++ })
	m.report(func(r Reporter) error { return r.FileSkipped(job.folder, job.name, job.path) })
}

func (m *Materializer) fail(job fileJob, err error) error {
	m.report(func(r Reporter) error { return r.FileFailed(job.folder, job.name, err) })
	return err
}

func (m *Materializer) count(fn func(*Summary)) {
	m.mu.Lock()
	fn(&m.summary)
	m.mu.Unlock()
}

func (m *Materializer) report(fn func(Reporter) error) {
	m.mu.Lock()
	r := m.reporter
	m.mu.Unlock()
	if r == nil {
		return
	}
	if err := fn(r); err != nil {
		logger.Errorf("Failed to report materialization event: %v", err)
	}
}
