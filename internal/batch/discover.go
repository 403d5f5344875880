package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/smukkama/rfi-pipeline/internal/trace"
)

// Group is the set of trace files of one device-day
type Group struct {
	DeviceID string
	Date     string
	Paths    []string
}

// DiscoverOptions controls how trace files are assigned to device-days
type DiscoverOptions struct {
	// DeviceID is used for every file, or for files directly under the root
	// when DeviceFromPath is set.
	DeviceID string
	// DeviceFromPath takes the device from the first directory below the root
	DeviceFromPath bool
	// Dates restricts discovery to these YYYYMMDD dates when non-empty
	Dates []string
}

// Discover walks root and groups trace files by (device, date). The date
// comes from the file name prefix, which covers both one directory per day
// and flat directories of date-prefixed files. Groups are sorted by device
// then date; paths inside a group are sorted.
func Discover(root string, opts DiscoverOptions) ([]Group, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("failed to read input root: %w", err)
	}

	wanted := make(map[string]bool, len(opts.Dates))
	for _, d := range opts.Dates {
		wanted[d] = true
	}

	groups := make(map[[2]string]*Group)
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
		if !trace.IsTraceFile(d.Name()) {
			return nil
		}

		date := d.Name()[:8]
		if len(wanted) > 0 && !wanted[date] {
			return nil
		}

		device := opts.DeviceID
		if opts.DeviceFromPath {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if parts := strings.Split(filepath.ToSlash(rel), "/"); len(parts) > 1 {
				device = parts[0]
			}
		}

		key := [2]string{device, date}
		g, ok := groups[key]
		if !ok {
			g = &Group{DeviceID: device, Date: date}
			groups[key] = g
		}
		g.Paths = append(g.Paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	result := make([]Group, 0, len(groups))
	for _, g := range groups {
		sort.Strings(g.Paths)
		result = append(result, *g)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DeviceID != result[j].DeviceID {
			return result[i].DeviceID < result[j].DeviceID
		}
		return result[i].Date < result[j].Date
	})

	return result, nil
}

var matrixFilePattern = regexp.MustCompile(`^(\d{8})_matrix\.csv$`)

// MatrixFile is a previously written matrix artifact
type MatrixFile struct {
	DeviceID string
	Date     string
	Path     string
}

// DiscoverMatrices finds {date}_matrix.csv artifacts under root. The device
// is the name of the directory holding the file, matching the output layout.
func DiscoverMatrices(root string) ([]MatrixFile, error) {
	var files []MatrixFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		m := matrixFilePattern.FindStringSubmatch(d.Name())
		if m == nil {
			return nil
		}
		files = append(files, MatrixFile{
			DeviceID: filepath.Base(filepath.Dir(path)),
			Date:     m[1],
			Path:     path,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].DeviceID != files[j].DeviceID {
			return files[i].DeviceID < files[j].DeviceID
		}
		return files[i].Date < files[j].Date
	})
	return files, nil
}
