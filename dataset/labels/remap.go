// Package labels rewrites and inspects YOLO label files.
package labels

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trainkit/pkg/yolo"
)

// Mapping translates old class IDs to new class IDs
type Mapping map[int]int

// DefaultMapping brings the first vendor dataset in line with our class table
// (Italian, Red Coral, Caramel Romaine, and "no sponge" which is our Empty).
var DefaultMapping = Mapping{
	0: 0,
	1: 3,
	2: 4,
	3: 5,
}

// ParseMapping converts a JSON-style map with string keys ("1": 3) into a Mapping
func ParseMapping(m map[string]int) (Mapping, error) {
	r := Mapping{}
	for k, v := range m {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("Invalid class ID '%v' in class mapping", k)
		}
		r[id] = v
	}
	return r, nil
}

// ParseMappingList parses "old:new" pairs separated by commas, such as "1:3,2:4"
func ParseMappingList(s string) (Mapping, error) {
	r := Mapping{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		from, to, ok := strings.Cut(pair, ":")
		a, errA := strconv.Atoi(strings.TrimSpace(from))
		b, errB := strconv.Atoi(strings.TrimSpace(to))
		if !ok || errA != nil || errB != nil {
			return nil, fmt.Errorf("Invalid class mapping '%v'. Expected old:new", pair)
		}
		r[a] = b
	}
	return r, nil
}

// RemapLine returns the line with its class ID replaced, and true if it changed.
// Only a changed line is reformatted. Everything else comes back untouched.
func (m Mapping) RemapLine(line yolo.Line) (yolo.Line, bool) {
	if !line.Valid {
		return line, false
	}
	to, ok := m[line.Class]
	if !ok || to == line.Class {
		return line, false
	}
	line.Class = to
	line.Raw = line.Format()
	return line, true
}

// RemapResult summarizes a remap of one folder
type RemapResult struct {
	Scanned int      // Number of .txt files inspected
	Changed []string // Names of the files that were (or in dry-run, would be) rewritten
	Failed  int      // Files that could not be read or written
}

// Remap rewrites the class IDs in every *.txt file directly inside dir.
// A file is only written if at least one of its lines changed.
func Remap(log logs.Log, dir string, mapping Mapping, dryRun bool) (*RemapResult, error) {
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("Label folder %v not found", dir)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	result := &RemapResult{}
	for _, fn := range files {
		result.Scanned++
		lf, err := yolo.ReadLabelFile(fn)
		if err != nil {
			log.Errorf("Failed to read %v: %v", fn, err)
			result.Failed++
			continue
		}
		changed := false
		for i := range lf.Lines {
			var did bool
			lf.Lines[i], did = mapping.RemapLine(lf.Lines[i])
			changed = changed || did
		}
		if !changed {
			continue
		}
		if !dryRun {
			if err := lf.WriteFile(fn); err != nil {
				log.Errorf("Failed to write %v: %v", fn, err)
				result.Failed++
				continue
			}
		}
		result.Changed = append(result.Changed, filepath.Base(fn))
	}
	if dryRun {
		log.Infof("%v: %v of %v files would change", dir, len(result.Changed), result.Scanned)
	} else {
		log.Infof("%v: changed %v of %v files", dir, len(result.Changed), result.Scanned)
	}
	return result, nil
}
