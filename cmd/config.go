package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

const maxWorkers = 256

// FileConfig is the YAML form of MirrorConfig. Durations use Go syntax ("30s").
type FileConfig struct {
	URL           string        `yaml:"url"`
	Dest          string        `yaml:"dst"`
	Subdir        string        `yaml:"subdir"`
	Workers       int           `yaml:"workers"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxDepth      int           `yaml:"max_depth"`
	MaxFolders    int           `yaml:"max_folders"`
	DBPath        string        `yaml:"db_path"`
	KeepRuns      int           `yaml:"keep_runs"`
	MetricsListen string        `yaml:"metrics_listen"`
}

// LoadConfigFile reads a YAML config. Unknown keys are rejected.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var fc FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	return &fc, nil
}

// Merge fills cfg from the file. String fields already set in cfg win; a
// numeric field is taken from the file unless changed reports that its flag
// was given on the command line.
func (f *FileConfig) Merge(cfg *MirrorConfig, changed func(flag string) bool) {
	if f == nil {
		return
	}
	if changed == nil {
		changed = func(string) bool { return false }
	}

	cfg.URL = Coalesce(cfg.URL, f.URL)
	cfg.Dest = Coalesce(cfg.Dest, f.Dest)
	cfg.Subdir = Coalesce(cfg.Subdir, f.Subdir)
	cfg.DBPath = Coalesce(cfg.DBPath, f.DBPath)
	cfg.MetricsListen = Coalesce(cfg.MetricsListen, f.MetricsListen)

	if f.Workers != 0 && !changed("workers") {
		cfg.Workers = f.Workers
	}
	if f.Timeout != 0 && !changed("timeout") {
		cfg.Timeout = f.Timeout
	}
	if f.MaxDepth != 0 && !changed("max-depth") {
		cfg.MaxDepth = f.MaxDepth
	}
	if f.MaxFolders != 0 && !changed("max-folders") {
		cfg.MaxFolders = f.MaxFolders
	}
	if f.KeepRuns != 0 && !changed("keep-runs") {
		cfg.KeepRuns = f.KeepRuns
	}
}

// Validate checks cfg before any request is made. Zero numeric values select
// the defaults and are accepted.
func (c MirrorConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.URL, validation.Required, validation.By(validBaseURL)),
		validation.Field(&c.Dest, validation.Required),
		validation.Field(&c.Subdir, validation.By(localSubdir)),
		validation.Field(&c.Workers, validation.Min(0), validation.Max(maxWorkers)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxDepth, validation.Min(0)),
		validation.Field(&c.MaxFolders, validation.Min(0)),
		validation.Field(&c.KeepRuns, validation.Min(0)),
	)
}

func validBaseURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	_, err := parseBaseURL(s)
	return err
}

func localSubdir(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if !filepath.IsLocal(filepath.FromSlash(s)) {
		return errors.New("must be a relative path inside dst")
	}
	return nil
}

// Coalesce returns the first non-empty value.
func Coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
