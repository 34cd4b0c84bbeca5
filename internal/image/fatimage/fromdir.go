package fatimage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jack695/FATForensics/internal/image/fat"
)

// FilesFromDir collects the files and directories under root. Every name
// must already be a valid 8.3 name.
func FilesFromDir(root string) ([]File, error) {
	var files []File
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if _, err := fat.ShortName(d.Name()); err != nil {
			return fmt.Errorf("%s: %w", rel, err)
		}

		rel = strings.ToUpper(filepath.ToSlash(rel))
		if d.IsDir() {
			files = append(files, File{Path: rel, Dir: true})
			return nil
		}
		if !d.Type().IsRegular() {
			return fmt.Errorf("%s: not a regular file", rel)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files = append(files, File{Path: rel, Data: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect files from %s: %w", root, err)
	}
	return files, nil
}
