// Package fname parses the filenames produced by our camera rigs and the labeling tools that touch them.
//
// A clean dataset filename looks like this:
//
//	5_20250517_000334_panorama.jpg
//	^ ^               ^
//	| timestamp       suffix token (plus anything that follows, including the extension)
//	prefix (camera/bed number)
//
// Vendor tooling decorates this in a few ways, all of which are recognized by Parse:
//
//	62fb71e-5_20250517_000334_panorama.jpg          hex hash prefix
//	5_05-17_5_20250517_000334_panorama.jpg           junk between prefix and timestamp
//	5_20250517_000334_panorama_jpg.rf.0e69f1166c.jpg  labeling-tool duplicate (.rf.<hash>)
//	5_20250517_000334_panorama_jpg.txt               label that kept the image extension
//
// Every sanitizer pass is derived from a single parsed Name, so that the passes cannot
// disagree about what the parts of a filename are.
package fname

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// SuffixToken is the fixed token that follows the timestamp in a canonical filename
const SuffixToken = "panorama"

// RFMarker separates the original filename from the labeling tool's hash
const RFMarker = ".rf."

// StampLayout is the Go time layout of the date-time stamp (YYYYMMDD_HHMMSS)
const StampLayout = "20060102_150405"

var (
	hashRegex  = regexp.MustCompile(`^([0-9a-fA-F]+)-(\d+_.+)$`)
	stampRegex = regexp.MustCompile(`^(\d+)_(?:(.+?)_)?(\d{8})_(\d{6})_(` + SuffixToken + `.*)$`)
	// The timestamp can also be found in names that don't match the full grammar
	looseStampRegex = regexp.MustCompile(`_(\d{8})_(\d{6})_`)
)

// Name is a parsed filename.
// Fields that were not recognized are empty.
type Name struct {
	Original string

	Hash     string // Hex hash prepended by a labeling tool ("62fb71e" in "62fb71e-5_...")
	Unhashed string // Original without "Hash-"

	RF     string // Everything after ".rf." (hash and repeated extension)
	RFBase string // Original up to (not including) ".rf."

	ExtMistake string // "jpg" or "png" when the name ends in "_jpg.txt" or "_png.txt"

	// The following are recognized on the name after stripping Hash and RF
	Prefix string // Leading number
	Junk   string // Redundant fragment between Prefix and the timestamp
	Date   string // YYYYMMDD
	Clock  string // HHMMSS
	Tail   string // SuffixToken and everything after it
}

// Parse splits a filename (not a path) into its parts
func Parse(filename string) Name {
	n := Name{
		Original: filename,
		Unhashed: filename,
		RFBase:   filename,
	}

	if m := hashRegex.FindStringSubmatch(filename); m != nil {
		n.Hash = m[1]
		n.Unhashed = m[2]
	}

	if idx := strings.Index(filename, RFMarker); idx >= 0 {
		n.RFBase = filename[:idx]
		n.RF = filename[idx+len(RFMarker):]
	}

	if strings.HasSuffix(filename, "_jpg.txt") {
		n.ExtMistake = "jpg"
	} else if strings.HasSuffix(filename, "_png.txt") {
		n.ExtMistake = "png"
	}

	core := n.Unhashed
	if idx := strings.Index(core, RFMarker); idx >= 0 {
		core = core[:idx]
	}
	if m := stampRegex.FindStringSubmatch(core); m != nil {
		n.Prefix = m[1]
		n.Junk = m[2]
		n.Date = m[3]
		n.Clock = m[4]
		n.Tail = m[5]
	} else if m := looseStampRegex.FindStringSubmatch(core); m != nil {
		n.Date = m[1]
		n.Clock = m[2]
	}
	return n
}

// HasStamp returns true if a YYYYMMDD_HHMMSS timestamp was found
func (n *Name) HasStamp() bool {
	return n.Date != ""
}

// Stamp returns the timestamp encoded in the name (interpreted as UTC)
func (n *Name) Stamp() (time.Time, error) {
	if !n.HasStamp() {
		return time.Time{}, fmt.Errorf("No timestamp in '%v'", n.Original)
	}
	return time.Parse(StampLayout, n.Date+"_"+n.Clock)
}

// Minute returns the minute of the timestamp, or -1 if there is no timestamp
func (n *Name) Minute() int {
	if !n.HasStamp() {
		return -1
	}
	return int(n.Clock[2]-'0')*10 + int(n.Clock[3]-'0')
}

// StripHash returns the name without its vendor hash prefix.
// Returns false if there is no hash.
func (n *Name) StripHash() (string, bool) {
	if n.Hash == "" {
		return "", false
	}
	return n.Unhashed, true
}

// TruncateRF returns the name with the ".rf.<hash>" portion removed, and the extension repaired.
// Inside a labels folder the result always ends in ".txt". Elsewhere, a trailing "_jpg" or "_png"
// is turned back into a real extension.
// Returns false if the name has no ".rf." marker.
func (n *Name) TruncateRF(inLabelsFolder bool) (string, bool) {
	if n.RF == "" && !strings.Contains(n.Original, RFMarker) {
		return "", false
	}
	base := n.RFBase
	if inLabelsFolder {
		if !strings.HasSuffix(base, ".txt") {
			base = strings.TrimSuffix(base, filepath.Ext(base)) + ".txt"
		}
	} else {
		if strings.HasSuffix(base, "_jpg") {
			base = base[:len(base)-4] + ".jpg"
		} else if strings.HasSuffix(base, "_png") {
			base = base[:len(base)-4] + ".png"
		}
	}
	return base, true
}

// FixExtMistake turns "x_jpg.txt" or "x_png.txt" into "x.txt".
// Returns false if the name doesn't have this mistake.
func (n *Name) FixExtMistake() (string, bool) {
	if n.ExtMistake == "" {
		return "", false
	}
	return strings.TrimSuffix(n.Original, "_"+n.ExtMistake+".txt") + ".txt", true
}

// Collapse removes the redundant fragment between the prefix and the timestamp,
// turning "5_05-17_5_20250517_000334_panorama.jpg" into "5_20250517_000334_panorama.jpg".
// Names that still carry a hash or an ".rf." marker are not collapsed; those decorations
// must be removed first.
// Returns false if there is nothing to collapse.
func (n *Name) Collapse() (string, bool) {
	if n.Junk == "" || n.Hash != "" || n.RF != "" {
		return "", false
	}
	return n.Prefix + "_" + n.Date + "_" + n.Clock + "_" + n.Tail, true
}

// Canonical applies every cleanup step in turn, and returns the final name.
// This is the name that all the individual sanitizer passes converge on.
func Canonical(filename string, inLabelsFolder bool) string {
	name := filename
	// Each step strictly shortens the name, so this terminates
	for {
		n := Parse(name)
		if s, ok := n.StripHash(); ok {
			name = s
		} else if s, ok := n.TruncateRF(inLabelsFolder); ok && s != name {
			name = s
		} else if s, ok := n.FixExtMistake(); ok {
			name = s
		} else if s, ok := n.Collapse(); ok {
			name = s
		} else {
			return name
		}
	}
}

// IsCanonical returns true if filename needs no cleanup
func IsCanonical(filename string, inLabelsFolder bool) bool {
	return Canonical(filename, inLabelsFolder) == filename
}

// IsLabelsFolder returns true if dir is a "labels" folder, or a split folder inside one (eg labels/train)
func IsLabelsFolder(dir string) bool {
	base := filepath.Base(filepath.Clean(dir))
	if base == "labels" {
		return true
	}
	switch base {
	case "train", "val", "test", "valid":
		return filepath.Base(filepath.Dir(filepath.Clean(dir))) == "labels"
	}
	return false
}
