package sanitize

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func makeFiles(t *testing.T, dir string, names ...string) {
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte(n), 0644))
	}
}

func listFiles(t *testing.T, dir string) []string {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestImagesFolder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "images")
	makeFiles(t, dir,
		"62fb71e-5_20250517_000334_panorama.jpg",
		"5_05-17_5_20250517_000335_panorama.jpg",
		"5_05-17_5_20250517_000336_panorama.jpg",
		"5_20250517_000336_panorama.jpg",
		"5_20250611_030011_panorama_jpg.rf.0e69f1166c.jpg",
		"notes.md",
	)
	before := listFiles(t, dir)

	s := New(logs.NewTestingLog(t), Options{Exts: []string{"jpg", "jpeg", "png"}})
	plan, err := s.Plan(dir)
	require.NoError(t, err)
	require.True(t, plan.DryRun)
	require.Equal(t, 2, plan.Renamed)
	require.Equal(t, 2, plan.Deleted)
	require.Equal(t, before, listFiles(t, dir))

	res, err := s.Run(dir)
	require.NoError(t, err)
	require.Equal(t, plan.Actions, res.Actions)
	require.Equal(t, []string{
		"5_20250517_000334_panorama.jpg",
		"5_20250517_000335_panorama.jpg",
		"5_20250517_000336_panorama.jpg",
		"notes.md",
	}, listFiles(t, dir))

	// The surviving short name keeps its own content
	raw, _ := os.ReadFile(filepath.Join(dir, "5_20250517_000336_panorama.jpg"))
	require.Equal(t, "5_20250517_000336_panorama.jpg", string(raw))

	// Running again does nothing
	res, err = s.Run(dir)
	require.NoError(t, err)
	require.Equal(t, 0, len(res.Actions))
	require.False(t, res.Destructive())
}

func TestLabelsFolderSkipDelete(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "labels")
	makeFiles(t, dir,
		"5_20250611_030011_panorama_jpg.rf.0e69f1166c.txt",
		"a_png.txt",
		"x.jpg",
		"b_jpg.txt",
		"b.txt",
	)
	s := New(logs.NewTestingLog(t), Options{SkipDelete: true})
	res, err := s.Run(dir)
	require.NoError(t, err)
	require.Equal(t, 0, res.Deleted)
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, []string{
		"5_20250611_030011_panorama.txt",
		"a.txt",
		"b.txt",
		"b_jpg.txt",
		"x.txt",
	}, listFiles(t, dir))
}

func TestConvergingNames(t *testing.T) {
	dir := t.TempDir()
	makeFiles(t, dir, "abc-5_x.jpg", "def-5_x.jpg")
	s := New(logs.NewTestingLog(t), Options{})
	res, err := s.Run(dir)
	require.NoError(t, err)
	require.Equal(t, 1, res.Renamed)
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, []string{"5_x.jpg", "def-5_x.jpg"}, listFiles(t, dir))
	raw, _ := os.ReadFile(filepath.Join(dir, "5_x.jpg"))
	require.Equal(t, "abc-5_x.jpg", string(raw))
}

func TestSkipRename(t *testing.T) {
	dir := t.TempDir()
	makeFiles(t, dir, "62fb71e-5_20250517_000334_panorama.jpg", "5_20250611_030011_panorama_jpg.rf.0e69f1166c.jpg")
	s := New(logs.NewTestingLog(t), Options{SkipRename: true})
	res, err := s.Run(dir)
	require.NoError(t, err)
	require.Equal(t, 0, res.Renamed)
	require.Equal(t, 1, res.Deleted)
	require.Equal(t, []string{"62fb71e-5_20250517_000334_panorama.jpg"}, listFiles(t, dir))
}

func TestMinuteFilter(t *testing.T) {
	dir := t.TempDir()
	makeFiles(t, dir,
		"5_20250610_082010_panorama.jpg",
		"5_20250610_080010_panorama.jpg",
		"cam_20250610_084034_x.jpg",
		"nostamp.jpg",
	)
	s := New(logs.NewTestingLog(t), Options{Minutes: []int{20, 40}, Passes: []Pass{PassMinuteFilter}})
	res, err := s.Run(dir)
	require.NoError(t, err)
	require.Equal(t, 2, res.Deleted)
	require.Equal(t, []string{"5_20250610_080010_panorama.jpg", "nostamp.jpg"}, listFiles(t, dir))

	// Without minutes, the pass is inactive
	makeFiles(t, dir, "5_20250610_082010_panorama.jpg")
	s = New(logs.NewTestingLog(t), Options{Passes: []Pass{PassMinuteFilter}})
	res, err = s.Run(dir)
	require.NoError(t, err)
	require.Equal(t, 0, len(res.Actions))
}

func TestContentDedup(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("same"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "copy_of_a.jpg"), []byte("same"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.jpg"), []byte("diff"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.jpg"), []byte("longer content"), 0644))

	s := New(logs.NewTestingLog(t), Options{Dedup: true, Passes: []Pass{PassContentDedup}})
	res, err := s.Run(dir)
	require.NoError(t, err)
	require.Equal(t, 1, res.Deleted)
	require.Equal(t, "copy_of_a.jpg", res.Actions[0].From)
	require.Equal(t, "a.jpg", res.Actions[0].To)
	require.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg"}, listFiles(t, dir))

	h1, err := HashFile(filepath.Join(dir, "a.jpg"))
	require.NoError(t, err)
	h2, _ := HashFile(filepath.Join(dir, "b.jpg"))
	require.NotEqual(t, h1, h2)
	require.Equal(t, 64, len(h1))
}

func TestContentDedupKeepsLabels(t *testing.T) {
	root := t.TempDir()
	labels := filepath.Join(root, "labels")
	images := filepath.Join(root, "images")
	require.NoError(t, os.MkdirAll(labels, 0755))
	require.NoError(t, os.MkdirAll(images, 0755))
	// Two different frames, each annotated with the same full-frame box
	box := []byte("5 0.5 0.5 1.0 1.0\n")
	for _, n := range []string{"5_20250517_000334_panorama.txt", "5_20250517_010334_panorama.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(labels, n), box, 0644))
		require.NoError(t, os.WriteFile(filepath.Join(images, n), box, 0644))
	}

	s := New(logs.NewTestingLog(t), Options{Dedup: true})
	for _, dir := range []string{labels, images} {
		res, err := s.Run(dir)
		require.NoError(t, err)
		require.Equal(t, 0, res.Deleted)
		require.Equal(t, 2, len(listFiles(t, dir)))
	}
}

func TestUnknownPass(t *testing.T) {
	s := New(logs.NewTestingLog(t), Options{Passes: []Pass{"bogus"}})
	_, err := s.Run(t.TempDir())
	require.Error(t, err)
	_, err = s.Run(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestParseFlags(t *testing.T) {
	require.Equal(t, []string{"jpg", "png", "txt"}, ParseExts("jpg, .PNG,,txt"))
	require.Equal(t, []string{}, ParseExts(""))

	m, err := ParseMinutes("20, 40")
	require.NoError(t, err)
	require.Equal(t, []int{20, 40}, m)
	_, err = ParseMinutes("60")
	require.Error(t, err)
	_, err = ParseMinutes("x")
	require.Error(t, err)

	p, err := ParsePasses("")
	require.NoError(t, err)
	require.Nil(t, p)
	p, err = ParsePasses("hash,collapse")
	require.NoError(t, err)
	require.Equal(t, []Pass{PassHashPrefix, PassCollapse}, p)
	_, err = ParsePasses("hash,bogus")
	require.Error(t, err)
}
