package storage

import (
	"github.com/mordilloSan/dirdump/listing"
)

// FolderDiscovered records a folder row and one pending row per file.
func (sw *StreamingWriter) FolderDiscovered(path string, rec listing.FolderRecord) error {
	state := StateDiscovered
	if rec.Empty() {
		state = StateEmpty
	}
	if err := sw.Write(Entry{Folder: path, Type: TypeFolder, State: state}); err != nil {
		return err
	}
	for _, name := range rec.Files {
		if err := sw.Write(Entry{Folder: path, Name: name, Type: TypeFile, State: StateDiscovered}); err != nil {
			return err
		}
	}
	return nil
}

// FolderSkipped is a no-op: empty folders are already recorded at discovery.
func (sw *StreamingWriter) FolderSkipped(string) error {
	return nil
}

func (sw *StreamingWriter) FileSkipped(folder, name, path string) error {
	return sw.Write(Entry{Folder: folder, Name: name, Type: TypeFile, State: StateSkipped, LocalPath: path})
}

func (sw *StreamingWriter) FileDownloaded(folder, name, path string, size int64) error {
	return sw.Write(Entry{Folder: folder, Name: name, Type: TypeFile, State: StateDownloaded, Size: size, LocalPath: path})
}

func (sw *StreamingWriter) FileFailed(folder, name string, err error) error {
	return sw.Write(Entry{Folder: folder, Name: name, Type: TypeFile, State: StateFailed, Error: err.Error()})
}
