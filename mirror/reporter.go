package mirror

// Reporter receives materialization events. Errors returned by a reporter
// are logged and never abort the run.
type Reporter interface {
	FolderSkipped(folder string) error
	FileSkipped(folder, name, path string) error
	FileDownloaded(folder, name, path string, size int64) error
	FileFailed(folder, name string, err error) error
}

// MultiReporter fans events out to several reporters in order.
type MultiReporter []Reporter

func (m MultiReporter) FolderSkipped(folder string) error {
	return m.each(func(r Reporter) error { return r.FolderSkipped(folder) })
}

func (m MultiReporter) FileSkipped(folder, name, path string) error {
	return m.each(func(r Reporter) error { return r.FileSkipped(folder, name, path) })
}

func (m MultiReporter) FileDownloaded(folder, name, path string, size int64) error {
	return m.each(func(r Reporter) error { return r.FileDownloaded(folder, name, path, size) })
}

func (m MultiReporter) FileFailed(folder, name string, err error) error {
	return m.each(func(r Reporter) error { return r.FileFailed(folder, name, err) })
}

// each calls fn on every reporter and returns the first error.
func (m MultiReporter) each(fn func(Reporter) error) error {
	var first error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := fn(r); err != nil && first == nil {
			first = err
		}
	}
	return first
}
