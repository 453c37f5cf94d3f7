package mirror

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// DownloadError reports a file whose download could not be established or
// failed mid-transfer. A partially written file is left where it is.
type DownloadError struct {
	URL        string
	Path       string
	StatusCode int // 0 when no response status was received
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: http status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s -> %s: %v", e.URL, e.Path, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Timeout reports whether the download was cut off by the request timeout.
func (e *DownloadError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// FilesystemError reports a local directory or file operation that failed.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }
