// Package ignore loads the user-maintained list of field names excluded from reporting.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultFileName is looked up next to the project archive.
const DefaultFileName = "fields.ignore"

// ErrMissingFile signals an absent ignore file. It is not fatal.
var ErrMissingFile = errors.New("ignore file was not found")

// Set holds lowercase field names.
type Set map[string]struct{}

// Contains reports whether name is ignored (case-insensitive).
func (s Set) Contains(name string) bool {
	_, ok := s[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// PathFor returns the ignore file location for the given archive.
func PathFor(archivePath, fileName string) string {
	if fileName == "" {
		fileName = DefaultFileName
	}
	return filepath.Join(filepath.Dir(archivePath), fileName)
}

// Load reads one field name per line. Blank lines are skipped, names are trimmed and
// lowercased. A missing file yields an empty set together with ErrMissingFile.
func Load(path string) (Set, error) {
	set := Set{}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return set, fmt.Errorf("%w: %s", ErrMissingFile, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		name := strings.ToLower(strings.TrimSpace(sc.Text()))
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ignore file: %w", err)
	}
	return set, nil
}
