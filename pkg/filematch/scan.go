package filematch

import (
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

type File struct {
	Path string
	Kind string
}

// Scan walks root and returns the files set classifies, sorted by path. When
// kinds is non-empty only those kinds are returned. Hidden directories are
// skipped.
func Scan(root string, set *MatcherSet, kinds ...string) ([]File, error) {
	var files []File

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		kind := set.Match(path)
		if kind == "" {
			return nil
		}
		if len(kinds) > 0 && !slices.Contains(kinds, kind) {
			return nil
		}
		files = append(files, File{Path: path, Kind: kind})
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(files, func(a, b File) int {
		return strings.Compare(a.Path, b.Path)
	})
	return files, nil
}
