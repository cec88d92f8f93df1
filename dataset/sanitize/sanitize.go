// Package sanitize cleans up the filenames in a dataset folder.
//
// Every pass is driven by the filename grammar in pkg/fname, so the passes agree with each other,
// and applying them in order converges on fname.Canonical.
package sanitize

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trainkit/pkg/fname"
)

type Kind string

const (
	KindRename Kind = "rename"
	KindDelete Kind = "delete"
	KindSkip   Kind = "skip"
)

// Action is one planned (or performed) operation on a file
type Action struct {
	Pass   Pass   `json:"pass"`
	Kind   Kind   `json:"kind"`
	From   string `json:"from"`
	To     string `json:"to,omitempty"`
	Reason string `json:"reason,omitempty"`
	Err    string `json:"err,omitempty"` // Set if the action failed
}

func (a Action) String() string {
	switch a.Kind {
	case KindRename:
		return fmt.Sprintf("%v -> %v", a.From, a.To)
	case KindDelete:
		return fmt.Sprintf("delete %v (%v)", a.From, a.Reason)
	default:
		return fmt.Sprintf("skip %v (%v)", a.From, a.Reason)
	}
}

type Options struct {
	Exts       []string // Only consider files with these extensions (lowercase, no dot). Empty means all files.
	SkipDelete bool     // Never delete. Vendor duplicates are renamed instead.
	SkipRename bool     // Never rename
	Minutes    []int    // Delete files whose timestamp minute is in this set
	Dedup      bool     // Delete files whose content is identical to another file
	Passes     []Pass   // Passes to run, in order. Nil means DefaultPasses.
}

// Result of a run over one directory
type Result struct {
	Dir     string   `json:"dir"`
	DryRun  bool     `json:"dryRun"`
	Actions []Action `json:"actions"`
	Renamed int      `json:"renamed"`
	Deleted int      `json:"deleted"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
}

// Destructive returns true if the result contains any renames or deletes
func (r *Result) Destructive() bool {
	return r.Renamed+r.Deleted != 0
}

// Sanitizer runs a sequence of cleanup passes over a directory
type Sanitizer struct {
	Log     logs.Log
	Options Options
}

func New(log logs.Log, options Options) *Sanitizer {
	return &Sanitizer{
		Log:     log,
		Options: options,
	}
}

// The files of a directory, as the passes see them.
// During a dry run nothing is touched on disk, so we track each file's name on disk separately
// from the name it would have by now.
type dirState struct {
	dir      string
	isLabels bool
	files    map[string]string // current name -> name on disk
	dirs     map[string]bool
}

func readDirState(dir string) (*dirState, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	st := &dirState{
		dir:      dir,
		isLabels: fname.IsLabelsFolder(dir),
		files:    map[string]string{},
		dirs:     map[string]bool{},
	}
	for _, e := range entries {
		if e.IsDir() {
			st.dirs[e.Name()] = true
		} else if e.Type().IsRegular() {
			st.files[e.Name()] = e.Name()
		}
	}
	return st, nil
}

func (st *dirState) exists(name string) bool {
	_, ok := st.files[name]
	return ok || st.dirs[name]
}

func (st *dirState) names() []string {
	names := make([]string, 0, len(st.files))
	for n := range st.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (st *dirState) diskPath(name string) string {
	return filepath.Join(st.dir, st.files[name])
}

// Returns true if the file is subject to the extension filter.
// Vendor duplicates are always included, whatever their extension.
// Label files are always included in a labels folder.
func (s *Sanitizer) included(st *dirState, name string) bool {
	if len(s.Options.Exts) == 0 || strings.Contains(name, fname.RFMarker) {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if st.isLabels && ext == "txt" {
		return true
	}
	for _, e := range s.Options.Exts {
		if ext == e {
			return true
		}
	}
	return false
}

// Plan returns the actions that Run would perform, without touching the filesystem
func (s *Sanitizer) Plan(dir string) (*Result, error) {
	return s.run(dir, false)
}

// Run performs every pass over dir.
// A failure on one file is logged and counted, and does not stop the pass.
func (s *Sanitizer) Run(dir string) (*Result, error) {
	return s.run(dir, true)
}

func (s *Sanitizer) run(dir string, apply bool) (*Result, error) {
	st, err := readDirState(dir)
	if err != nil {
		return nil, fmt.Errorf("Failed to read %v: %w", dir, err)
	}
	result := &Result{
		Dir:    dir,
		DryRun: !apply,
	}
	passes := s.Options.Passes
	if passes == nil {
		passes = DefaultPasses
	}
	for _, p := range passes {
		impl, ok := passTable[p]
		if !ok {
			return result, fmt.Errorf("Unknown pass '%v'", p)
		}
		if !impl.enabled(s) {
			continue
		}
		s.Log.Debugf("Pass %v on %v", p, dir)
		do := func(a *Action) {
			a.Pass = p
			s.perform(st, a, apply, result)
			result.Actions = append(result.Actions, *a)
		}
		if impl.file != nil {
			// Each file is decided after the previous one has been applied, so that
			// two names converging on one target don't both get renamed.
			for _, name := range st.names() {
				if _, ok := st.files[name]; !ok || !s.included(st, name) {
					continue
				}
				if a := impl.file(s, st, name); a != nil {
					do(a)
				}
			}
		} else {
			for _, a := range impl.dir(s, st) {
				do(&a)
			}
		}
	}
	return result, nil
}

func (s *Sanitizer) perform(st *dirState, a *Action, apply bool, result *Result) {
	dry := ""
	if !apply {
		dry = "[dry-run] "
	}
	switch a.Kind {
	case KindSkip:
		s.Log.Warnf("%vSkipping %v: %v", dry, a.From, a.Reason)
		result.Skipped++
	case KindRename:
		if apply {
			if err := os.Rename(st.diskPath(a.From), filepath.Join(st.dir, a.To)); err != nil {
				s.Log.Errorf("Failed to rename %v: %v", a.From, err)
				a.Err = err.Error()
				result.Failed++
				return
			}
			st.files[a.To] = a.To
		} else {
			st.files[a.To] = st.files[a.From]
		}
		delete(st.files, a.From)
		s.Log.Infof("%v%v -> %v", dry, a.From, a.To)
		result.Renamed++
	case KindDelete:
		if apply {
			if err := os.Remove(st.diskPath(a.From)); err != nil {
				s.Log.Errorf("Failed to delete %v: %v", a.From, err)
				a.Err = err.Error()
				result.Failed++
				return
			}
		}
		delete(st.files, a.From)
		s.Log.Infof("%vDeleted %v (%v)", dry, a.From, a.Reason)
		result.Deleted++
	}
}
