package cmorph

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/cmorph-ingest/internal/domain"
)

// Suffixes tried, in order, when looking for a day's file.
var Suffixes = []string{"", ".gz", ".bz2"}

// Locate finds the file holding one day of data in dir. The uncompressed
// name is preferred over compressed copies. A missing day yields an error
// wrapping both domain.ErrIO and fs.ErrNotExist.
func Locate(dir string, obs domain.ObsType, day time.Time) (string, error) {
	base := filepath.Join(dir, domain.DailyFileName(obs, day))
	for _, ext := range Suffixes {
		path := base + ext
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return path, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: stat %s: %w", domain.ErrIO, path, err)
		}
	}
	return "", fmt.Errorf("%w: no %s file for %s in %s: %w",
		domain.ErrIO, obs, day.Format(domain.DateLayout), dir, fs.ErrNotExist)
}
