package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/mordilloSan/dirdump/listing"
)

func TestRecorderCountsEvents(t *testing.T) {
	r := New()

	_ = r.FolderDiscovered("", listing.FolderRecord{Files: []string{"a", "b"}})
	_ = r.FolderDiscovered("empty/", listing.FolderRecord{})
	_ = r.FolderSkipped("empty/")
	_ = r.FileDownloaded("", "a", "/dst/a", 10)
	_ = r.FileDownloaded("", "b", "/dst/b", 5)
	_ = r.FileSkipped("", "c", "/dst/c")
	_ = r.FileFailed("", "d", errors.New("boom"))
	r.ObservePhase("discover", 0.5)

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"dirdump_folders_discovered_total", nil, 2},
		{"dirdump_files_discovered_total", nil, 2},
		{"dirdump_empty_folders_skipped_total", nil, 1},
		{"dirdump_bytes_downloaded_total", nil, 15},
		{"dirdump_tree_folders", nil, 2},
		{"dirdump_files_total", map[string]string{"outcome": "downloaded"}, 2},
		{"dirdump_files_total", map[string]string{"outcome": "skipped"}, 1},
		{"dirdump_files_total", map[string]string{"outcome": "failed"}, 1},
	}

	families, err := r.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fam, ok := byName[tt.name]
			if !ok {
				t.Fatalf("metric %s not gathered", tt.name)
			}
			got, ok := valueFor(fam, tt.labels)
			if !ok {
				t.Fatalf("metric %s has no series for %v", tt.name, tt.labels)
			}
			if got != tt.want {
				t.Errorf("%s%v = %v, want %v", tt.name, tt.labels, got, tt.want)
			}
		})
	}

	if fam := byName["dirdump_phase_duration_seconds"]; fam == nil || fam.GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
		t.Error("expected one phase duration sample")
	}
}

func TestHandlerServesExposition(t *testing.T) {
	r := New()
	_ = r.FileDownloaded("", "a", "/dst/a", 3)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `dirdump_files_total{outcome="downloaded"} 1`) {
		t.Errorf("exposition missing downloaded counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("exposition missing go collector metrics")
	}
}

func valueFor(fam *dto.MetricFamily, labels map[string]string) (float64, bool) {
	for _, m := range fam.GetMetric() {
		if !labelsMatch(m, labels) {
			continue
		}
		switch {
		case m.GetCounter() != nil:
			return m.GetCounter().GetValue(), true
		case m.GetGauge() != nil:
			return m.GetGauge().GetValue(), true
		}
	}
	return 0, false
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	if len(m.GetLabel()) != len(labels) {
		return false
	}
	for _, lp := range m.GetLabel() {
		if labels[lp.GetName()] != lp.GetValue() {
			return false
		}
	}
	return true
}
