package labels

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trainkit/pkg/yolo"
	"github.com/stretchr/testify/require"
)

func writeLabel(t *testing.T, dir, name, content string) string {
	require.NoError(t, os.MkdirAll(dir, 0755))
	fn := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(fn, []byte(content), 0644))
	return fn
}

func readString(t *testing.T, fn string) string {
	raw, err := os.ReadFile(fn)
	require.NoError(t, err)
	return string(raw)
}

func TestRemapLine(t *testing.T) {
	m := Mapping{3: 5}
	out, changed := m.RemapLine(yolo.ParseLine("3 0.5 0.5 0.2 0.2"))
	require.True(t, changed)
	require.Equal(t, "5 0.5 0.5 0.2 0.2", out.Raw)

	in := yolo.ParseLine("2  0.5 0.5   0.2 0.2")
	out, changed = m.RemapLine(in)
	require.False(t, changed)
	require.Equal(t, in.Raw, out.Raw)

	_, changed = Mapping{0: 0}.RemapLine(yolo.ParseLine("0 0.1 0.1 0.1 0.1"))
	require.False(t, changed)
	_, changed = m.RemapLine(yolo.ParseLine("abc 0.1"))
	require.False(t, changed)
}

func TestRemap(t *testing.T) {
	log := logs.NewTestingLog(t)
	dir := t.TempDir()
	a := writeLabel(t, dir, "a.txt", "1 0.5 0.5 0.2 0.2\n0  0.1 0.1 0.1 0.1\r\nx y\n9 0.3 0.3 0.1 0.1")
	b := writeLabel(t, dir, "b.txt", "0 0.5 0.5 0.2 0.2\n7 0.1 0.1 0.1 0.1\n")
	writeLabel(t, dir, "c.jpg", "1 0 0 0 0\n")

	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(b, old, old))

	res, err := Remap(log, dir, DefaultMapping, true)
	require.NoError(t, err)
	require.Equal(t, 2, res.Scanned)
	require.Equal(t, []string{"a.txt"}, res.Changed)
	require.Equal(t, "1 0.5 0.5 0.2 0.2\n0  0.1 0.1 0.1 0.1\r\nx y\n9 0.3 0.3 0.1 0.1", readString(t, a))

	res, err = Remap(log, dir, DefaultMapping, false)
	require.NoError(t, err)
	require.Equal(t, []string{"a.txt"}, res.Changed)
	require.Equal(t, "3 0.5 0.5 0.2 0.2\n0  0.1 0.1 0.1 0.1\r\nx y\n9 0.3 0.3 0.1 0.1", readString(t, a))

	// Unchanged file is not rewritten
	st, err := os.Stat(b)
	require.NoError(t, err)
	require.True(t, st.ModTime().Equal(old))

	_, err = Remap(log, filepath.Join(dir, "missing"), DefaultMapping, false)
	require.Error(t, err)
}

func TestParseMapping(t *testing.T) {
	m, err := ParseMapping(map[string]int{"1": 3, "3": 5})
	require.NoError(t, err)
	require.Equal(t, Mapping{1: 3, 3: 5}, m)
	_, err = ParseMapping(map[string]int{"one": 3})
	require.Error(t, err)

	m, err = ParseMappingList("1:3, 2:4,")
	require.NoError(t, err)
	require.Equal(t, Mapping{1: 3, 2: 4}, m)
	_, err = ParseMappingList("1-3")
	require.Error(t, err)
}

func TestAudit(t *testing.T) {
	root := t.TempDir()
	train := filepath.Join(root, "train")
	val := filepath.Join(root, "val")
	writeLabel(t, train, "a.txt", "0 0.5 0.5 0.2 0.2\n5 0.1 0.1 0.1 0.1\n")
	writeLabel(t, train, "b.txt", "7 0.5 0.5 0.2 0.2\n\n")
	writeLabel(t, val, "c.txt", "0 0.5 0.5 0.2 0.2\n0 0.5 0.5 0.2 0.2\nbad line\n")
	missing := filepath.Join(root, "test")

	audit := RunAudit([]string{train, val, missing}, yolo.DefaultClasses, AuditOptions{DuplicateIOU: DefaultDuplicateIOU})
	require.Equal(t, 3, len(audit.Folders))
	require.True(t, audit.Folders[2].Missing)
	require.Equal(t, 3, audit.Files)
	require.Equal(t, map[int]int{0: 1, 5: 1, 7: 1}, audit.Folders[0].Counts)
	require.Equal(t, map[int]int{0: 2}, audit.Folders[1].Counts)
	require.Equal(t, map[int]int{0: 3, 5: 1, 7: 1}, audit.Totals)
	require.Equal(t, []int{7}, audit.UnknownIDs())

	// The grand total of each class is the sum of the folder counts
	for id, total := range audit.Totals {
		sum := 0
		for _, f := range audit.Folders {
			sum += f.Counts[id]
		}
		require.Equal(t, total, sum)
	}

	kinds := map[AnomalyKind]int{}
	for _, a := range audit.Anomalies {
		kinds[a.Kind]++
	}
	require.Equal(t, map[AnomalyKind]int{AnomalyUnknownClass: 1, AnomalyDuplicateBox: 1, AnomalyUnparsable: 1}, kinds)
	require.Equal(t, "["+train+"] b.txt (ID: 7)", audit.Anomalies[0].String())
	require.False(t, audit.Clean())

	var buf bytes.Buffer
	audit.Print(&buf)
	out := buf.String()
	require.Contains(t, out, "Red Coral")
	require.Contains(t, out, "UNKNOWN !!!")
	require.Contains(t, out, "Total files: 3")
	require.Contains(t, out, "Folder not found: "+missing)
}

func TestAuditDoesNotModify(t *testing.T) {
	dir := t.TempDir()
	fn := writeLabel(t, dir, "a.txt", "9 0.5 0.5 0.2 0.2\n")
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(fn, old, old))
	RunAudit([]string{dir}, yolo.DefaultClasses, AuditOptions{})
	st, _ := os.Stat(fn)
	require.True(t, st.ModTime().Equal(old))
	require.Equal(t, "9 0.5 0.5 0.2 0.2\n", readString(t, fn))
}
