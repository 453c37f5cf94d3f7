package listing

import (
	"reflect"
	"strings"
	"testing"
)

func TestExtractEntries(t *testing.T) {
	tests := []struct {
		name        string
		page        string
		wantFiles   []string
		wantFolders []string
	}{
		{
			name:        "empty page",
			page:        "",
			wantFiles:   []string{},
			wantFolders: []string{},
		},
		{
			name: "autoindex page",
			page: `<a href="../">../</a>
<a href="HEAD">HEAD</a>
<a href="refs/">refs/</a>
<a href="config">config</a>
<a href="objects/">objects/</a>`,
			wantFiles:   []string{"HEAD", "config"},
			wantFolders: []string{"refs/", "objects/"},
		},
		{
			name:        "dots dashes underscores",
			page:        `<a href="pre-commit.sample"></a><a href="packed_refs"></a><a href="v1.0-rc_2/"></a>`,
			wantFiles:   []string{"pre-commit.sample", "packed_refs"},
			wantFolders: []string{"v1.0-rc_2/"},
		},
		{
			name:        "invalid characters are invisible",
			page:        `<a href="with space"></a><a href="q?x=1"></a><a href="a%20b"></a><a href="sub/dir/"></a><a href="/abs"></a><a href="ok"></a>`,
			wantFiles:   []string{"ok"},
			wantFolders: []string{},
		},
		{
			name:        "navigation entries dropped",
			page:        `<a href=".">.</a><a href="..">..</a><a href="./">./</a><a href="../">../</a><a href="...">...</a>`,
			wantFiles:   []string{"..."},
			wantFolders: []string{},
		},
		{
			name:        "no dedup",
			page:        `<a href="HEAD">HEAD</a> <a href="HEAD">again</a> <a href="x/"></a><a href="x/"></a>`,
			wantFiles:   []string{"HEAD", "HEAD"},
			wantFolders: []string{"x/", "x/"},
		},
		{
			name:        "single quotes are not anchors",
			page:        `<a href='HEAD'>HEAD</a>`,
			wantFiles:   []string{},
			wantFolders: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractEntries(tt.page)
			if !reflect.DeepEqual(got.Files, tt.wantFiles) {
				t.Errorf("files = %v, want %v", got.Files, tt.wantFiles)
			}
			if !reflect.DeepEqual(got.Folders, tt.wantFolders) {
				t.Errorf("folders = %v, want %v", got.Folders, tt.wantFolders)
			}
		})
	}
}

func TestExtractEntriesCounts(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 7; i++ {
		b.WriteString(`<a href="file` + strings.Repeat("x", i) + `">f</a>` + "\n")
	}
	for i := 0; i < 3; i++ {
		b.WriteString(`<a href="dir` + strings.Repeat("y", i) + `/">d</a>` + "\n")
	}

	got := ExtractEntries(b.String())
	if len(got.Files) != 7 {
		t.Errorf("files = %d, want 7", len(got.Files))
	}
	if len(got.Folders) != 3 {
		t.Errorf("folders = %d, want 3", len(got.Folders))
	}
	for _, f := range got.Folders {
		if !strings.HasSuffix(f, "/") {
			t.Errorf("folder %q lost its trailing slash", f)
		}
	}
}
