package cmd

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mordilloSan/dirdump/listing"
	"github.com/mordilloSan/dirdump/metrics"
	"github.com/mordilloSan/dirdump/mirror"
	"github.com/mordilloSan/dirdump/storage"
	"github.com/mordilloSan/dirdump/testhelpers"
)

// TestFullMirrorIntegration mirrors a repository tree with the catalog enabled.
func TestFullMirrorIntegration(t *testing.T) {
	srv := testhelpers.NewListingServer(t)
	testhelpers.CreateStandardRepo(srv)
	dest := testhelpers.NewMockFileSystem(t)
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	cfg := MirrorConfig{
		URL:      srv.RootURL(),
		Dest:     dest.Root,
		Subdir:   ".git",
		DBPath:   dbPath,
		KeepRuns: 5,
	}

	res, err := RunMirror(context.Background(), cfg)
	if err != nil {
		t.Fatalf("RunMirror: %v", err)
	}

	if got := dest.ReadFile(".git/HEAD"); got != "ref: refs/heads/main\n" {
		t.Errorf("HEAD = %q", got)
	}
	if got := dest.ReadFile(".git/objects/4b/825dc642cb6eb9a060e54bf8d69288fbee4904"); got != "blob-data" {
		t.Errorf("object = %q", got)
	}
	if dest.Exists(".git/branches") {
		t.Error("empty folder should not be created")
	}
	if res.Summary.Downloaded != 8 || res.Summary.EmptyFolders != 3 {
		t.Errorf("unexpected summary: %+v", res.Summary)
	}
	if res.RunID == 0 {
		t.Fatal("expected a catalog run id")
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer func() { _ = db.Close() }()
	store := storage.NewStoreWithDB(db, dbPath)

	run, err := store.GetRun(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != storage.RunComplete {
		t.Errorf("run status = %s, want %s", run.Status, storage.RunComplete)
	}
	if run.NumFiles != 8 || run.Downloaded != 8 || run.NumFolders != int64(res.Tree.Len()) {
		t.Errorf("unexpected run counters: %+v", run)
	}

	counts, err := store.CountByState(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("count by state: %v", err)
	}
	if counts[storage.StateDownloaded] != 8 {
		t.Errorf("downloaded entries = %d, want 8", counts[storage.StateDownloaded])
	}
}

// TestMirrorLogsScenario mirrors a root with two files and one nested folder.
func TestMirrorLogsScenario(t *testing.T) {
	files := []struct {
		rel     string
		content string
	}{
		{"index.html", "<html><body>hello</body></html>\n"},
		{"config", "[core]\n\tbare = false\n"},
		{"logs/app.log", "2026-10-14 started\n2026-10-14 stopped\n"},
	}

	srv := testhelpers.NewListingServer(t)
	for _, f := range files {
		srv.AddFile(f.rel, f.content)
	}
	dest := testhelpers.NewMockFileSystem(t)

	res, err := RunMirror(context.Background(), MirrorConfig{URL: srv.RootURL(), Dest: dest.Root})
	if err != nil {
		t.Fatalf("RunMirror: %v", err)
	}

	wantTree := map[string][]string{
		"":      {"index.html", "config"},
		"logs/": {"app.log"},
	}
	if got := res.Tree.Keys(); !reflect.DeepEqual(got, []string{"", "logs/"}) {
		t.Fatalf("tree keys = %v", got)
	}
	for key, want := range wantTree {
		rec, _ := res.Tree.Get(key)
		if !reflect.DeepEqual(rec.Files, want) {
			t.Errorf("tree[%q].Files = %v, want %v", key, rec.Files, want)
		}
	}

	for _, f := range files {
		if got := dest.ReadFile(f.rel); got != f.content {
			t.Errorf("%s = %q, want %q", f.rel, got, f.content)
		}
	}
	if n := dest.CountFiles(); n != len(files) {
		t.Errorf("destination holds %d files, want %d", n, len(files))
	}
}

// TestSecondRunIsIdempotent checks that a rerun fetches listings only.
func TestSecondRunIsIdempotent(t *testing.T) {
	srv := testhelpers.NewListingServer(t)
	testhelpers.CreateStandardRepo(srv)
	dest := testhelpers.NewMockFileSystem(t)
	cfg := MirrorConfig{URL: srv.RootURL(), Dest: dest.Root}

	first, err := RunMirror(context.Background(), cfg)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	srv.ResetHits()

	second, err := RunMirror(context.Background(), cfg)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Summary.Downloaded != 0 || second.Summary.Skipped != first.Summary.Downloaded {
		t.Errorf("second run summary = %+v", second.Summary)
	}
	if srv.Hits("HEAD") != 0 {
		t.Errorf("HEAD requested %d times on rerun", srv.Hits("HEAD"))
	}
	if got, want := srv.TotalHits(), second.Pages; got != want {
		t.Errorf("rerun made %d requests, want %d listing pages", got, want)
	}
}

func TestDiscoveryFailureLeavesDestinationUntouched(t *testing.T) {
	srv := testhelpers.NewListingServer(t)
	testhelpers.CreateStandardRepo(srv)
	srv.SetStatus("logs/", http.StatusForbidden)
	dest := testhelpers.NewMockFileSystem(t)
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	_, err := RunMirror(context.Background(), MirrorConfig{
		URL:    srv.RootURL(),
		Dest:   dest.Root,
		Subdir: "out",
		DBPath: dbPath,
	})

	var fetchErr *listing.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d", fetchErr.StatusCode)
	}
	if dest.Exists("out") {
		t.Error("destination should not be created when discovery fails")
	}
	if srv.Hits("HEAD") != 0 {
		t.Error("no file should be requested when discovery fails")
	}

	store, err := storage.NewStore(dbPath)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer func() { _ = store.Close() }()
	id, err := store.LatestRunID(context.Background())
	if err != nil {
		t.Fatalf("latest run: %v", err)
	}
	run, err := store.GetRun(context.Background(), id)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != storage.RunFailed || !strings.Contains(run.Error, "403") {
		t.Errorf("unexpected failed run: %+v", run)
	}
}

func TestDownloadTimeoutFailsRun(t *testing.T) {
	srv := testhelpers.NewListingServer(t)
	srv.AddFile("a", "first")
	srv.AddFile("b", "second")
	srv.SetDelay("a", 5*time.Second)
	dest := testhelpers.NewMockFileSystem(t)

	_, err := RunMirror(context.Background(), MirrorConfig{
		URL:     srv.RootURL(),
		Dest:    dest.Root,
		Timeout: 100 * time.Millisecond,
	})

	var dlErr *mirror.DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("expected DownloadError, got %v", err)
	}
	if !dlErr.Timeout() {
		t.Errorf("expected a timeout, got %v", dlErr)
	}
	if srv.Hits("b") != 0 {
		t.Error("files after the failure must not be attempted")
	}
}

func TestMetricsListenerServesCounters(t *testing.T) {
	rec := metrics.New()
	ms, err := startMetricsServer("127.0.0.1:0", rec.Handler())
	if err != nil {
		t.Fatalf("start metrics: %v", err)
	}
	defer ms.Close()

	_ = rec.FileDownloaded("", "HEAD", "/dst/HEAD", 3)

	resp, err := http.Get("http://" + ms.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "dirdump_bytes_downloaded_total 3") {
		t.Errorf("metrics body missing bytes counter:\n%s", body)
	}
}

func TestRunMirrorRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  MirrorConfig
	}{
		{"missing url", MirrorConfig{Dest: "/tmp/x"}},
		{"missing dst", MirrorConfig{URL: "http://example.test/"}},
		{"bad scheme", MirrorConfig{URL: "ftp://example.test/", Dest: "/tmp/x"}},
		{"no host", MirrorConfig{URL: "http:///path/", Dest: "/tmp/x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := RunMirror(context.Background(), tt.cfg); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
