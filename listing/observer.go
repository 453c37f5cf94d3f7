package listing

// MultiObserver forwards each folder to every observer and returns the first error.
type MultiObserver []Observer

func (m MultiObserver) FolderDiscovered(path string, rec FolderRecord) error {
	var first error
	for _, obs := range m {
		if obs == nil {
			continue
		}
		if err := obs.FolderDiscovered(path, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}
