package merge

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dexhound/dexhound/internal/utils"
)

// FindExports walks root for Dexcom Studio exports. Files must end in .txt
// or .csv, must not be OS metadata ($-prefixed or ._-prefixed), and must
// carry the export header; anything else is logged and skipped.
func FindExports(root string) ([]string, error) {
	if root == "" {
		root = "."
	}

	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !candidate(d.Name()) {
			return nil
		}
		ok, err := IsExport(path)
		if err != nil {
			return err
		}
		if !ok {
			utils.Log.Warnf("[merge] %s doesn't look like a Dexcom export, skipping it", path)
			return nil
		}
		found = append(found, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(found)
	return found, nil
}

func candidate(name string) bool {
	if strings.HasPrefix(name, "$") || strings.HasPrefix(name, "._") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".txt" || ext == ".csv"
}
