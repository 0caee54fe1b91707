// Package extract derives recipient identifiers from staged report filenames.
package extract

import (
	"fmt"
	"os"
	"regexp"
	"sort"
)

// identifierPattern matches "<anything>_<identifier>.<extension>" where the
// identifier is alphanumerics, hyphens and parentheses.
var identifierPattern = regexp.MustCompile(`_([a-zA-Z0-9()-]+)\.\w+$`)

// UniqueIdentifiers scans a single directory level and returns the distinct
// identifiers embedded in its filenames, sorted. Subdirectories are not
// entered and filenames that do not match the pattern are ignored.
func UniqueIdentifiers(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("extract: read %s: %w", dir, err)
	}

	seen := map[string]bool{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := identifierPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		seen[m[1]] = true
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
