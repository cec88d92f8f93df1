package labels

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cyclopcam/trainkit/pkg/yolo"
)

type AnomalyKind string

const (
	AnomalyUnknownClass AnomalyKind = "unknown-class"
	AnomalyUnparsable   AnomalyKind = "unparsable"
	AnomalyUnreadable   AnomalyKind = "unreadable"
	AnomalyDuplicateBox AnomalyKind = "duplicate-box"
)

// Anomaly is something wrong with a label file
type Anomaly struct {
	Kind   AnomalyKind `json:"kind"`
	Folder string      `json:"folder"`
	File   string      `json:"file"`
	Line   int         `json:"line"` // 1-based, 0 if the anomaly concerns the whole file
	Class  int         `json:"class"`
	Detail string      `json:"detail,omitempty"`
}

func (a Anomaly) String() string {
	switch a.Kind {
	case AnomalyUnknownClass:
		return fmt.Sprintf("[%v] %v (ID: %v)", a.Folder, a.File, a.Class)
	case AnomalyDuplicateBox:
		return fmt.Sprintf("[%v] %v duplicate box of class %v at line %v (%v)", a.Folder, a.File, a.Class, a.Line, a.Detail)
	case AnomalyUnparsable:
		return fmt.Sprintf("[%v] %v unparsable line %v: %q", a.Folder, a.File, a.Line, a.Detail)
	default:
		return fmt.Sprintf("[%v] %v unreadable: %v", a.Folder, a.File, a.Detail)
	}
}

// FolderAudit is the histogram of one label folder
type FolderAudit struct {
	Folder    string      `json:"folder"`
	Missing   bool        `json:"missing"`
	Files     int         `json:"files"`
	Counts    map[int]int `json:"counts"`
	Anomalies []Anomaly   `json:"anomalies"`
}

// Audit is the result of inspecting a set of label folders
type Audit struct {
	Classes   yolo.Classes   `json:"classes"`
	Folders   []*FolderAudit `json:"folders"`
	Totals    map[int]int    `json:"totals"`
	Files     int            `json:"files"`
	Anomalies []Anomaly      `json:"anomalies"`
}

type AuditOptions struct {
	// Same-class boxes in one file with IoU at or above this are reported as duplicates.
	// Zero disables the check.
	DuplicateIOU float32
}

const DefaultDuplicateIOU = 0.9

// RunAudit tallies the class IDs in every *.txt file in the given folders.
// It never modifies anything.
func RunAudit(folders []string, classes yolo.Classes, options AuditOptions) *Audit {
	a := &Audit{
		Classes: classes,
		Totals:  map[int]int{},
	}
	for _, folder := range folders {
		fa := auditFolder(folder, classes, options)
		a.Folders = append(a.Folders, fa)
		a.Files += fa.Files
		for id, n := range fa.Counts {
			a.Totals[id] += n
		}
		a.Anomalies = append(a.Anomalies, fa.Anomalies...)
	}
	return a
}

func auditFolder(folder string, classes yolo.Classes, options AuditOptions) *FolderAudit {
	fa := &FolderAudit{
		Folder: folder,
		Counts: map[int]int{},
	}
	if st, err := os.Stat(folder); err != nil || !st.IsDir() {
		fa.Missing = true
		return fa
	}
	files, _ := filepath.Glob(filepath.Join(folder, "*.txt"))
	sort.Strings(files)
	fa.Files = len(files)
	for _, fn := range files {
		name := filepath.Base(fn)
		lf, err := yolo.ReadLabelFile(fn)
		if err != nil {
			fa.Anomalies = append(fa.Anomalies, Anomaly{Kind: AnomalyUnreadable, Folder: folder, File: name, Detail: err.Error()})
			continue
		}
		var boxes []yolo.ClassBox
		var boxLines []int
		for i, line := range lf.Lines {
			if line.IsBlank() {
				continue
			}
			if !line.Valid {
				fa.Anomalies = append(fa.Anomalies, Anomaly{Kind: AnomalyUnparsable, Folder: folder, File: name, Line: i + 1, Detail: line.Raw})
				continue
			}
			fa.Counts[line.Class]++
			if !classes.Contains(line.Class) {
				fa.Anomalies = append(fa.Anomalies, Anomaly{Kind: AnomalyUnknownClass, Folder: folder, File: name, Line: i + 1, Class: line.Class})
			}
			if box, ok := line.Box(); ok {
				boxes = append(boxes, yolo.ClassBox{Class: line.Class, Box: box})
				boxLines = append(boxLines, i+1)
			}
		}
		if options.DuplicateIOU > 0 {
			for _, o := range yolo.FindOverlaps(boxes, options.DuplicateIOU) {
				fa.Anomalies = append(fa.Anomalies, Anomaly{
					Kind:   AnomalyDuplicateBox,
					Folder: folder,
					File:   name,
					Line:   boxLines[o.B],
					Class:  boxes[o.B].Class,
					Detail: fmt.Sprintf("IoU %.2f with line %v", o.IOU, boxLines[o.A]),
				})
			}
		}
	}
	return fa
}

// UnknownIDs returns the class IDs that were seen, but are not in the class table
func (a *Audit) UnknownIDs() []int {
	var ids []int
	for id := range a.Totals {
		if !a.Classes.Contains(id) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Clean returns true if no anomalies were found
func (a *Audit) Clean() bool {
	return len(a.Anomalies) == 0
}

// Print writes a human readable summary
func (a *Audit) Print(w io.Writer) {
	fmt.Fprintf(w, "%v\n", strings.Repeat("=", 60))
	fmt.Fprintf(w, "Checking class IDs in %v folders\n", len(a.Folders))
	fmt.Fprintf(w, "%v\n\n", strings.Repeat("=", 60))
	for _, f := range a.Folders {
		if f.Missing {
			fmt.Fprintf(w, "Folder not found: %v\n", f.Folder)
			continue
		}
		fmt.Fprintf(w, "Folder: %v\n", f.Folder)
		fmt.Fprintf(w, "   - Files: %v\n", f.Files)
		if len(f.Anomalies) != 0 {
			fmt.Fprintf(w, "   - Found %v anomalies\n", len(f.Anomalies))
		} else {
			fmt.Fprintf(w, "   - Clean\n")
		}
		fmt.Fprintf(w, "%v\n", strings.Repeat("-", 30))
	}

	fmt.Fprintf(w, "\n%v\n", strings.Repeat("=", 60))
	fmt.Fprintf(w, "Grand Total\n")
	fmt.Fprintf(w, "%v\n", strings.Repeat("=", 60))
	fmt.Fprintf(w, "%-5v %-20v %-10v\n", "ID", "Class Name", "Count")
	fmt.Fprintf(w, "%v\n", strings.Repeat("-", 40))
	for id, name := range a.Classes {
		fmt.Fprintf(w, "%-5v %-20v %-10v\n", id, name, a.Totals[id])
	}
	for _, id := range a.UnknownIDs() {
		fmt.Fprintf(w, "%-5v %-20v %-10v\n", id, "UNKNOWN !!!", a.Totals[id])
	}
	fmt.Fprintf(w, "%v\n", strings.Repeat("-", 40))
	fmt.Fprintf(w, "Total files: %v\n", a.Files)

	if len(a.Anomalies) != 0 {
		fmt.Fprintf(w, "\nFound %v anomalies:\n", len(a.Anomalies))
		for _, an := range a.Anomalies {
			fmt.Fprintf(w, " - %v\n", an)
		}
	} else {
		fmt.Fprintf(w, "\nAll labels are valid\n")
	}
}
