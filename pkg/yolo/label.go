package yolo

import (
	"bufio"
	"bytes"
	"os"
	"strconv"
	"strings"
)

// Line is one record of a YOLO label file: "class cx cy w h".
// We only interpret the class ID. The geometry tokens are carried along untouched,
// so that rewriting a line never alters the numbers written by the labeling tool.
type Line struct {
	Raw    string   // The line exactly as read, without the trailing newline
	Class  int      // Class ID, valid only if Valid is true
	Fields []string // Whitespace-separated tokens after the class ID
	Valid  bool     // True if the first token parsed as an integer
}

// IsBlank returns true if the line contains nothing but whitespace
func (l *Line) IsBlank() bool {
	return strings.TrimSpace(l.Raw) == ""
}

// Format joins the class ID and the geometry tokens with single spaces
func (l *Line) Format() string {
	parts := make([]string, 0, len(l.Fields)+1)
	parts = append(parts, strconv.Itoa(l.Class))
	parts = append(parts, l.Fields...)
	return strings.Join(parts, " ")
}

// Box returns the normalized bounding box of the line.
// Returns false if the line doesn't have four numeric geometry tokens.
func (l *Line) Box() (Box, bool) {
	if !l.Valid || len(l.Fields) < 4 {
		return Box{}, false
	}
	var v [4]float32
	for i := 0; i < 4; i++ {
		f, err := strconv.ParseFloat(l.Fields[i], 32)
		if err != nil {
			return Box{}, false
		}
		v[i] = float32(f)
	}
	return Box{CX: v[0], CY: v[1], W: v[2], H: v[3]}, true
}

// ParseLine parses a single line of a label file
func ParseLine(raw string) Line {
	l := Line{Raw: raw}
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return l
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		return l
	}
	l.Class = id
	l.Fields = parts[1:]
	l.Valid = true
	return l
}

// LabelFile is the parsed content of a label file.
// Line endings are remembered, so that unchanged lines are written back byte-for-byte.
type LabelFile struct {
	Lines []Line
	Ends  []string // Line terminator of each line ("\n", "\r\n", or "" for a final unterminated line)
}

// ParseLabels parses the content of a label file
func ParseLabels(raw []byte) *LabelFile {
	f := &LabelFile{}
	for len(raw) != 0 {
		nl := bytes.IndexByte(raw, '\n')
		var line, end string
		if nl == -1 {
			line = string(raw)
			raw = nil
		} else {
			line = string(raw[:nl])
			end = "\n"
			raw = raw[nl+1:]
			if strings.HasSuffix(line, "\r") {
				line = line[:len(line)-1]
				end = "\r\n"
			}
		}
		f.Lines = append(f.Lines, ParseLine(line))
		f.Ends = append(f.Ends, end)
	}
	return f
}

// ReadLabelFile reads and parses a label file from disk
func ReadLabelFile(filename string) (*LabelFile, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseLabels(raw), nil
}

// Bytes returns the file content, using each line's Raw text
func (f *LabelFile) Bytes() []byte {
	var b bytes.Buffer
	for i := range f.Lines {
		b.WriteString(f.Lines[i].Raw)
		b.WriteString(f.Ends[i])
	}
	return b.Bytes()
}

// WriteFile writes the file content to disk, preserving the existing file mode
func (f *LabelFile) WriteFile(filename string) error {
	mode := os.FileMode(0644)
	if st, err := os.Stat(filename); err == nil {
		mode = st.Mode().Perm()
	}
	return os.WriteFile(filename, f.Bytes(), mode)
}

// ReadClassIDs returns the class ID of every parsable line in the file, along with the raw text of lines that could not be parsed.
// Blank lines are ignored.
func ReadClassIDs(filename string) (ids []int, bad []string, err error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := ParseLine(scanner.Text())
		if line.IsBlank() {
			continue
		}
		if !line.Valid {
			bad = append(bad, line.Raw)
			continue
		}
		ids = append(ids, line.Class)
	}
	return ids, bad, scanner.Err()
}
