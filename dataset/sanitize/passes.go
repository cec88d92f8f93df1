package sanitize

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/cyclopcam/trainkit/dataset"
	"github.com/cyclopcam/trainkit/pkg/fname"
	"golang.org/x/crypto/blake2b"
)

// Pass identifies one cleanup pass
type Pass string

const (
	PassVendorDuplicates Pass = "rf"          // Delete (or truncate) names containing ".rf."
	PassLabelExtension   Pass = "label-ext"   // Image extensions inside a labels folder become .txt
	PassExtMistake       Pass = "ext-mistake" // x_jpg.txt -> x.txt
	PassHashPrefix       Pass = "hash"        // 62fb71e-5_... -> 5_...
	PassCollapse         Pass = "collapse"    // 5_05-17_5_2025... -> 5_2025...
	PassMinuteFilter     Pass = "minute"      // Delete files taken at unwanted minutes
	PassContentDedup     Pass = "dedup"       // Delete byte-identical copies
)

// DefaultPasses is the order in which passes run.
// Vendor duplicates go first, because their names hide the rest of the grammar.
var DefaultPasses = []Pass{
	PassVendorDuplicates,
	PassLabelExtension,
	PassExtMistake,
	PassHashPrefix,
	PassCollapse,
	PassMinuteFilter,
	PassContentDedup,
}

// AllPasses returns the names of every known pass
func AllPasses() []string {
	r := []string{}
	for _, p := range DefaultPasses {
		r = append(r, string(p))
	}
	return r
}

type passImpl struct {
	enabled func(s *Sanitizer) bool
	file    func(s *Sanitizer, st *dirState, name string) *Action // Decide one file at a time
	dir     func(s *Sanitizer, st *dirState) []Action             // Decide the whole directory at once
}

func canRename(s *Sanitizer) bool { return !s.Options.SkipRename }
func canDelete(s *Sanitizer) bool { return !s.Options.SkipDelete }

var passTable = map[Pass]passImpl{
	PassVendorDuplicates: {
		enabled: func(s *Sanitizer) bool { return canDelete(s) || canRename(s) },
		file:    vendorDuplicate,
	},
	PassLabelExtension: {enabled: canRename, file: labelExtension},
	PassExtMistake:     {enabled: canRename, file: extMistake},
	PassHashPrefix:     {enabled: canRename, file: hashPrefix},
	PassCollapse:       {enabled: func(s *Sanitizer) bool { return canDelete(s) || canRename(s) }, file: collapse},
	PassMinuteFilter: {
		enabled: func(s *Sanitizer) bool { return canDelete(s) && len(s.Options.Minutes) != 0 },
		file:    minuteFilter,
	},
	PassContentDedup: {
		enabled: func(s *Sanitizer) bool { return canDelete(s) && s.Options.Dedup },
		dir:     contentDedup,
	},
}

// Rename from -> to, unless to is already taken
func renameTo(st *dirState, from, to string) *Action {
	if st.exists(to) {
		return &Action{Kind: KindSkip, From: from, To: to, Reason: fmt.Sprintf("%v already exists", to)}
	}
	return &Action{Kind: KindRename, From: from, To: to}
}

func vendorDuplicate(s *Sanitizer, st *dirState, name string) *Action {
	n := fname.Parse(name)
	if !strings.Contains(name, fname.RFMarker) {
		return nil
	}
	if canDelete(s) {
		return &Action{Kind: KindDelete, From: name, Reason: "vendor duplicate"}
	}
	to, ok := n.TruncateRF(st.isLabels)
	if !ok || to == name || to == "" {
		return nil
	}
	return renameTo(st, name, to)
}

func labelExtension(s *Sanitizer, st *dirState, name string) *Action {
	if !st.isLabels {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".jpg" && ext != ".jpeg" {
		return nil
	}
	return renameTo(st, name, strings.TrimSuffix(name, filepath.Ext(name))+".txt")
}

func extMistake(s *Sanitizer, st *dirState, name string) *Action {
	n := fname.Parse(name)
	to, ok := n.FixExtMistake()
	if !ok {
		return nil
	}
	return renameTo(st, name, to)
}

func hashPrefix(s *Sanitizer, st *dirState, name string) *Action {
	n := fname.Parse(name)
	to, ok := n.StripHash()
	if !ok {
		return nil
	}
	return renameTo(st, name, to)
}

func collapse(s *Sanitizer, st *dirState, name string) *Action {
	n := fname.Parse(name)
	to, ok := n.Collapse()
	if !ok {
		return nil
	}
	if st.exists(to) {
		if !canDelete(s) {
			return &Action{Kind: KindSkip, From: name, To: to, Reason: fmt.Sprintf("%v already exists", to)}
		}
		return &Action{Kind: KindDelete, From: name, To: to, Reason: fmt.Sprintf("duplicate of %v", to)}
	}
	if !canRename(s) {
		return nil
	}
	return &Action{Kind: KindRename, From: name, To: to}
}

func minuteFilter(s *Sanitizer, st *dirState, name string) *Action {
	n := fname.Parse(name)
	m := n.Minute()
	if m < 0 || !slices.Contains(s.Options.Minutes, m) {
		return nil
	}
	return &Action{Kind: KindDelete, From: name, Reason: fmt.Sprintf("taken at minute %02d", m)}
}

// HashFile returns the hex encoded BLAKE2b-256 digest of a file's content
func HashFile(filename string) (string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Among identical files, keep the one with the cleanest name
func keepOrder(st *dirState, a, b string) bool {
	ca := fname.IsCanonical(a, st.isLabels)
	cb := fname.IsCanonical(b, st.isLabels)
	if ca != cb {
		return ca
	}
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// contentDedup only considers images. Identical label files belong to different
// images (eg two frames with the same single box), so they are never duplicates.
func contentDedup(s *Sanitizer, st *dirState) []Action {
	if st.isLabels {
		return nil
	}
	groups := map[string][]string{}
	// Files of different sizes can't be identical, so only hash within equal sizes
	bySize := map[int64][]string{}
	for _, name := range st.names() {
		if !dataset.IsImage(name) || !s.included(st, name) {
			continue
		}
		info, err := os.Stat(st.diskPath(name))
		if err != nil {
			s.Log.Warnf("Failed to stat %v: %v", name, err)
			continue
		}
		bySize[info.Size()] = append(bySize[info.Size()], name)
	}
	for _, names := range bySize {
		if len(names) < 2 {
			continue
		}
		for _, name := range names {
			h, err := HashFile(st.diskPath(name))
			if err != nil {
				s.Log.Warnf("Failed to hash %v: %v", name, err)
				continue
			}
			groups[h] = append(groups[h], name)
		}
	}

	var actions []Action
	for _, names := range groups {
		if len(names) < 2 {
			continue
		}
		sort.Slice(names, func(i, j int) bool { return keepOrder(st, names[i], names[j]) })
		for _, dup := range names[1:] {
			actions = append(actions, Action{Kind: KindDelete, From: dup, To: names[0], Reason: fmt.Sprintf("identical to %v", names[0])})
		}
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i].From < actions[j].From })
	return actions
}
