package syncer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maruyamamtk/keiba-prediction/internal/format"
	"github.com/maruyamamtk/keiba-prediction/internal/objectstore"
)

// LocalFile is a feed file found under the local root.
type LocalFile struct {
	Path          string    `json:"path"`
	RelPath       string    `json:"rel_path"`
	Key           string    `json:"key"`
	DataType      string    `json:"data_type"`
	EffectiveDate time.Time `json:"effective_date"`
	Size          int64     `json:"size"`
	Hash          string    `json:"hash,omitempty"`
}

// Discover lists feed files under root, laid out as <root>/<TypeDir>/<CODE><yymmdd>.<ext>.
// Names that do not look like feed files are ignored. When dataType is set
// only files of that code are returned.
func Discover(root, remotePrefix, dataType string) ([]LocalFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("local root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local root %s is not a directory", root)
	}
	dataType = strings.ToUpper(dataType)

	var files []LocalFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		code, date, ok := format.ParseFileName(d.Name())
		if !ok || (dataType != "" && code != dataType) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		files = append(files, LocalFile{
			Path:          path,
			RelPath:       rel,
			Key:           objectstore.JoinKey(remotePrefix, rel),
			DataType:      code,
			EffectiveDate: date,
			Size:          fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return files, nil
}
