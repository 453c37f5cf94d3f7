package cmd

import (
	"reflect"
	"testing"
)

func TestParseLegacyArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantURL  string
		wantDst  string
		wantRest []string
	}{
		{
			name:    "both forms",
			args:    []string{"url:http://example.test/.git/", "dst:/tmp/out"},
			wantURL: "http://example.test/.git/",
			wantDst: "/tmp/out",
		},
		{
			name:     "mixed with flags",
			args:     []string{"--workers", "4", "dst:out", "url:https://host/x/"},
			wantURL:  "https://host/x/",
			wantDst:  "out",
			wantRest: []string{"--workers", "4"},
		},
		{
			name:     "no legacy args",
			args:     []string{"--url", "http://a/"},
			wantRest: []string{"--url", "http://a/"},
		},
		{
			name:    "last one wins",
			args:    []string{"dst:first", "dst:second"},
			wantDst: "second",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotURL, gotDst, gotRest := ParseLegacyArgs(tt.args)
			if gotURL != tt.wantURL {
				t.Errorf("url = %q, want %q", gotURL, tt.wantURL)
			}
			if gotDst != tt.wantDst {
				t.Errorf("dst = %q, want %q", gotDst, tt.wantDst)
			}
			if !reflect.DeepEqual(gotRest, tt.wantRest) {
				t.Errorf("rest = %v, want %v", gotRest, tt.wantRest)
			}
		})
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "http://example.test/.git/", want: "http://example.test/.git/"},
		{in: "http://example.test/.git", want: "http://example.test/.git/"},
		{in: "https://example.test", want: "https://example.test/"},
		{in: "ftp://example.test/", wantErr: true},
		{in: "example.test/.git/", wantErr: true},
		{in: "http://%zz/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeBaseURL(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
