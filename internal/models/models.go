// Package models scans a models directory laid out as
// <dir>/<plugin>/<{GUID}>/<file>.gguf.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"inferhost/internal/common/fsutil"
	"inferhost/pkg/types"
)

// ErrModelNotFound is returned by Find when no model matches.
var ErrModelNotFound = errors.New("model not found")

// Scan lists every gguf model under dir. Directories that are not GUIDs are
// skipped.
func Scan(dir string) ([]types.Model, error) {
	abs, err := fsutil.AbsDir(dir)
	if err != nil {
		return nil, err
	}
	plugins, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var out []types.Model
	for _, p := range plugins {
		if !p.IsDir() {
			continue
		}
		pdir := filepath.Join(abs, p.Name())
		guids, err := os.ReadDir(pdir)
		if err != nil {
			continue
		}
		for _, g := range guids {
			if !g.IsDir() || !isGUID(g.Name()) {
				continue
			}
			files, err := fsutil.FilesWithExt(filepath.Join(pdir, g.Name()), ".gguf")
			if err != nil {
				continue
			}
			for _, f := range files {
				out = append(out, types.Model{
					GUID:   g.Name(),
					Plugin: p.Name(),
					Name:   filepath.Base(f),
					Path:   f,
					SizeMB: sizeMB(f),
				})
			}
		}
	}
	return out, nil
}

// Find returns the first model with guid. plugin narrows the search to one
// plugin directory; empty searches all. GUIDs compare case-insensitively with
// or without braces.
func Find(dir, plugin, guid string) (types.Model, error) {
	all, err := Scan(dir)
	if err != nil {
		return types.Model{}, err
	}
	want := normalizeGUID(guid)
	for _, m := range all {
		if plugin != "" && m.Plugin != plugin {
			continue
		}
		if normalizeGUID(m.GUID) == want {
			return m, nil
		}
	}
	return types.Model{}, fmt.Errorf("%w: %s in %s", ErrModelNotFound, guid, dir)
}

func normalizeGUID(s string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), "{}"))
}

func isGUID(name string) bool {
	_, err := uuid.Parse(strings.Trim(name, "{}"))
	return err == nil
}

func sizeMB(path string) int {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	mb := int(fi.Size() / (1 << 20))
	if mb < 1 {
		mb = 1
	}
	return mb
}
