package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// FileInfo describes one export file in a directory.
type FileInfo struct {
	Path string
	Size int64

	// FinishedAt is the run finish time encoded in the file name, or the
	// modification time for files whose name does not parse.
	FinishedAt time.Time
}

// Retention bounds an export directory. Zero fields are not enforced.
type Retention struct {
	MaxCount int
	MaxAge   time.Duration
	MaxBytes uint64
}

// Keep returns the files that stay. files must be newest first, as
// ListFiles returns them; the result is always a prefix of files. The
// newest export is always kept so a run's own file survives the prune that
// follows it.
func (r *Retention) Keep(files []FileInfo, now time.Time) []FileInfo {
	var total uint64
	for i, f := range files {
		total += uint64(f.Size)
		if i == 0 {
			continue
		}
		if r.MaxCount > 0 && i >= r.MaxCount {
			return files[:i]
		}
		if r.MaxAge > 0 && now.Sub(f.FinishedAt) > r.MaxAge {
			return files[:i]
		}
		if r.MaxBytes > 0 && total > r.MaxBytes {
			return files[:i]
		}
	}
	return files
}

// Prune deletes the files in dir that Keep drops and returns their paths.
func (r *Retention) Prune(dir string, now time.Time) ([]string, error) {
	files, err := ListFiles(dir)
	if err != nil {
		return nil, err
	}

	var deleted []string
	for _, f := range files[len(r.Keep(files, now)):] {
		if err := os.Remove(f.Path); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", filepath.Base(f.Path), err)
		}
		deleted = append(deleted, f.Path)
	}
	return deleted, nil
}

// RetentionConfig is the YAML form of a Retention. Empty fields are not
// enforced.
type RetentionConfig struct {
	MaxCount int    `json:"max_count" yaml:"max_count"`
	MaxAge   string `json:"max_age,omitempty" yaml:"max_age,omitempty"`
	MaxSize  string `json:"max_size,omitempty" yaml:"max_size,omitempty"`
}

// Policy parses the config. It returns nil when nothing is enforced.
func (c RetentionConfig) Policy() (*Retention, error) {
	if c.MaxCount < 0 {
		return nil, fmt.Errorf("max_count must be positive, got %d", c.MaxCount)
	}
	r := &Retention{MaxCount: c.MaxCount}

	if c.MaxAge != "" {
		d, err := parseAge(c.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("max_age: %w", err)
		}
		r.MaxAge = d
	}
	if c.MaxSize != "" {
		n, err := humanize.ParseBytes(c.MaxSize)
		if err != nil {
			return nil, fmt.Errorf("max_size %q: %w", c.MaxSize, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("max_size must be positive, got %q", c.MaxSize)
		}
		r.MaxBytes = n
	}

	if *r == (Retention{}) {
		return nil, nil
	}
	return r, nil
}

// parseAge accepts Go durations ("720h") and whole days ("30d").
func parseAge(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		days, ok := strings.CutSuffix(s, "d")
		n, convErr := strconv.Atoi(days)
		if !ok || convErr != nil {
			return 0, fmt.Errorf("invalid age %q (use e.g. 720h or 30d)", s)
		}
		d = time.Duration(n) * 24 * time.Hour
	}
	if d <= 0 {
		return 0, errors.New("age must be positive")
	}
	return d, nil
}

// ListFiles returns the export files in dir, newest first. A missing
// directory has no exports.
func ListFiles(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading export directory: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		stamp, ok := exportStamp(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		finished, err := time.Parse(fileTimeFormat, stamp)
		if err != nil {
			finished = info.ModTime()
		}
		files = append(files, FileInfo{
			Path:       filepath.Join(dir, e.Name()),
			Size:       info.Size(),
			FinishedAt: finished,
		})
	}

	// Names embed a fixed-width timestamp.
	slices.SortFunc(files, func(a, b FileInfo) int {
		return strings.Compare(filepath.Base(b.Path), filepath.Base(a.Path))
	})
	return files, nil
}

// exportStamp returns the timestamp part of an export file name.
func exportStamp(name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, filePrefix)
	if !ok {
		return "", false
	}
	return strings.CutSuffix(rest, ".csv")
}
