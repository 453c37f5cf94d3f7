package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at build time, e.g.
//
//	go build -ldflags "-X github.com/mordilloSan/dirdump/internal/version.Version=v0.3.0 -X github.com/mordilloSan/dirdump/internal/version.Commit=$(git rev-parse HEAD)"
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

const (
	product        = "dirdump"
	shortCommitLen = 12
)

// Info describes the running build.
type Info struct {
	Version string
	Commit  string
	Date    string
	Dirty   bool
}

// Get merges the ldflags values with the VCS stamp of the binary.
func Get() Info {
	info := Info{
		Version: strings.TrimSpace(Version),
		Commit:  strings.TrimSpace(Commit),
		Date:    strings.TrimSpace(Date),
	}
	if info.Version == "" {
		info.Version = "dev"
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Dirty = info.Dirty || s.Value == "true"
		}
	}
	return info
}

// ShortCommit returns the abbreviated revision, or "" when unknown.
func (i Info) ShortCommit() string {
	if len(i.Commit) > shortCommitLen {
		return i.Commit[:shortCommitLen]
	}
	return i.Commit
}

func (i Info) String() string {
	v := i.Version
	if v == "" {
		v = "dev"
	}

	var meta []string
	if i.Commit != "" {
		meta = append(meta, "commit "+i.Commit)
	}
	if i.Date != "" {
		meta = append(meta, "built "+i.Date)
	}
	if i.Dirty {
		meta = append(meta, "dirty")
	}
	if len(meta) == 0 {
		return v
	}
	return v + " (" + strings.Join(meta, ", ") + ")"
}

// String returns the one-line version banner printed by --version.
func String() string {
	return fmt.Sprintf("%s %s", product, Get().String())
}

// UserAgent is sent with every listing and file request, e.g.
// "dirdump/v0.3.0+1a2b3c4d5e6f (go1.25.4; linux/amd64)".
func UserAgent() string {
	info := Get()
	ua := product + "/" + info.Version
	if c := info.ShortCommit(); c != "" {
		ua += "+" + c
	}
	if info.Dirty {
		ua += "-dirty"
	}
	return fmt.Sprintf("%s (%s; %s/%s)", ua, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
