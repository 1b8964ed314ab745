package aggregate

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxUnitSize caps how much of a single file is loaded as a unit.
const maxUnitSize = 1 << 20

// LoadPaths reads files and directories into units. Directories are walked
// recursively; dot-entries and binary-looking files are skipped. Unit names
// are slash-separated paths relative to the argument that contributed them.
func LoadPaths(paths []string) ([]Unit, error) {
	var units []Unit

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}

		if !info.IsDir() {
			u, ok, err := loadFile(p, filepath.Base(p))
			if err != nil {
				return nil, err
			}
			if ok {
				units = append(units, u)
			}
			continue
		}

		root := p
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if strings.HasPrefix(d.Name(), ".") && path != root {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			u, ok, err := loadFile(path, filepath.ToSlash(rel))
			if err != nil {
				return err
			}
			if ok {
				units = append(units, u)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}

	if len(units) == 0 {
		return nil, ErrNoUnits
	}
	return units, nil
}

// loadFile reads one file as a unit. Binary and oversized files are skipped,
// not failed, since repository ingestion routinely sees both.
func loadFile(path, name string) (Unit, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Unit{}, false, fmt.Errorf("reading %s: %w", path, err)
	}
	if info.Size() > maxUnitSize {
		return Unit{}, false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Unit{}, false, fmt.Errorf("reading %s: %w", path, err)
	}
	if looksBinary(data) {
		return Unit{}, false, nil
	}
	return Unit{Name: name, Content: string(data)}, true, nil
}

func looksBinary(data []byte) bool {
	probe := data
	if len(probe) > 8000 {
		probe = probe[:8000]
	}
	return bytes.IndexByte(probe, 0) >= 0
}
