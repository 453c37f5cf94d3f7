package listing

import (
	"regexp"
)

var (
	// Bare names only: no slashes, whitespace, query strings or escapes.
	fileHrefPattern   = regexp.MustCompile(`href="([\w\-\.]+)"`)
	folderHrefPattern = regexp.MustCompile(`href="([\w\-\.]+/)"`)
)

// Entries are the names extracted from one listing page, in page order.
// Folder names keep their trailing "/".
type Entries struct {
	Files   []string
	Folders []string
}

// ExtractEntries scans a listing page for file and folder anchors. The two
// scans are independent and neither is deduplicated. The navigation entries
// "." and ".." (and their folder forms) are dropped.
func ExtractEntries(page string) Entries {
	return Entries{
		Files:   scanHrefs(fileHrefPattern, page),
		Folders: scanHrefs(folderHrefPattern, page),
	}
}

func scanHrefs(re *regexp.Regexp, page string) []string {
	matches := re.FindAllStringSubmatch(page, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if isNavigation(m[1]) {
			continue
		}
		names = append(names, m[1])
	}
	return names
}

func isNavigation(name string) bool {
	switch name {
	case ".", "..", "./", "../":
		return true
	}
	return false
}
