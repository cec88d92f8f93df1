package split

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trainkit/dataset"
	"github.com/stretchr/testify/require"
)

func TestPartition(t *testing.T) {
	cases := []struct {
		n, train, val int
	}{
		{0, 0, 0},
		{1, 0, 0},
		{3, 2, 2},
		{10, 7, 8},
		{20, 14, 17},
		{100, 70, 85},
	}
	for _, c := range cases {
		endTrain, endVal := Partition(c.n)
		require.Equal(t, c.train, endTrain, "n=%v", c.n)
		require.Equal(t, c.val, endVal, "n=%v", c.n)
	}
}

func writeFile(t *testing.T, fn string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(fn), 0755))
	require.NoError(t, os.WriteFile(fn, []byte(filepath.Base(fn)), 0644))
}

// Create n images under dir/images, with labels for the first nLabels of them
func makeImages(t *testing.T, dir string, prefix string, n, nLabels int) {
	for i := 0; i < n; i++ {
		writeFile(t, filepath.Join(dir, "images", fmt.Sprintf("%v%03d.jpg", prefix, i)))
		if i < nLabels {
			writeFile(t, filepath.Join(dir, "labels", fmt.Sprintf("%v%03d.txt", prefix, i)))
		}
	}
}

func countFiles(t *testing.T, dir string) int {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	n := 0
	for _, e := range entries {
		if e.Type().IsRegular() {
			n++
		}
	}
	return n
}

func newTestSplitter(t *testing.T, workers int) *Splitter {
	return NewSplitter(logs.NewTestingLog(t), Options{
		Rand:           rand.New(rand.NewSource(1)),
		Workers:        workers,
		Progress:       io.Discard,
		SkipSpaceCheck: true,
	})
}

func TestSplitRoot(t *testing.T) {
	root := t.TempDir()
	makeImages(t, root, "r", 20, 15)
	s := newTestSplitter(t, 1)
	res, err := s.Run(context.Background(), root, nil)
	require.NoError(t, err)
	require.Equal(t, 14, res.Splits[dataset.Train].Images)
	require.Equal(t, 3, res.Splits[dataset.Val].Images)
	require.Equal(t, 3, res.Splits[dataset.Test].Images)
	require.Equal(t, 15, res.Total().Labels)

	layout := dataset.Layout{Root: root}
	// unsorted images were moved, not copied
	require.Equal(t, 0, countFiles(t, layout.Images()))
	require.Equal(t, 0, countFiles(t, layout.Labels()))
	require.Equal(t, 14, countFiles(t, layout.ImagesOf(dataset.Train)))
	imgTotal, lblTotal := 0, 0
	for _, sp := range dataset.Splits {
		imgTotal += countFiles(t, layout.ImagesOf(sp))
		lblTotal += countFiles(t, layout.LabelsOf(sp))
	}
	require.Equal(t, 20, imgTotal)
	require.Equal(t, 15, lblTotal)

	// Every label sits in the same split as its image
	for _, sp := range dataset.Splits {
		entries, _ := os.ReadDir(layout.LabelsOf(sp))
		for _, e := range entries {
			img := e.Name()[:len(e.Name())-4] + ".jpg"
			_, err := os.Stat(filepath.Join(layout.ImagesOf(sp), img))
			require.NoError(t, err)
		}
	}
}

func TestSplitExtrasCopiedAndIdempotent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "images"), 0755))
	extra := t.TempDir()
	makeImages(t, extra, "e", 10, 10)
	missing := filepath.Join(t.TempDir(), "nothing-here")

	s := newTestSplitter(t, 4)
	res, err := s.Run(context.Background(), root, []string{missing, extra})
	require.NoError(t, err)
	require.Equal(t, []string{missing}, res.MissingExtras)
	require.Equal(t, 7, res.Splits[dataset.Train].Images)
	require.Equal(t, 1, res.Splits[dataset.Val].Images)
	require.Equal(t, 2, res.Splits[dataset.Test].Images)
	require.Equal(t, 10, res.Total().Labels)

	// Sources are untouched
	require.Equal(t, 10, countFiles(t, filepath.Join(extra, "images")))
	require.Equal(t, 10, countFiles(t, filepath.Join(extra, "labels")))

	// Repeated runs with a fresh shuffle transfer nothing new
	for i := 0; i < 3; i++ {
		again := NewSplitter(logs.NewTestingLog(t), Options{SkipSpaceCheck: true})
		res2, err := again.Run(context.Background(), root, []string{extra})
		require.NoError(t, err)
		require.Equal(t, 0, res2.Total().Images)
		require.Equal(t, 0, res2.Total().Labels)
		require.Equal(t, 10, res2.Total().Skipped)
		// Skips are counted against the partition that holds the image
		require.Equal(t, 7, res2.Splits[dataset.Train].Skipped)
	}

	layout := dataset.Layout{Root: root}
	seen := map[string]dataset.Split{}
	for _, sp := range dataset.Splits {
		entries, err := os.ReadDir(layout.ImagesOf(sp))
		require.NoError(t, err)
		for _, e := range entries {
			prev, dup := seen[e.Name()]
			require.False(t, dup, "%v is in both %v and %v", e.Name(), prev, sp)
			seen[e.Name()] = sp
		}
	}
	require.Equal(t, 10, len(seen))
}

func TestSplitSkipsExistingDestination(t *testing.T) {
	root := t.TempDir()
	extra := t.TempDir()
	makeImages(t, extra, "e", 1, 1)
	// With one image, it always lands in test
	dst := filepath.Join(root, "images", "test", "e000.jpg")
	writeFile(t, dst)
	require.NoError(t, os.WriteFile(dst, []byte("original"), 0644))

	s := newTestSplitter(t, 1)
	res, err := s.Run(context.Background(), root, []string{extra})
	require.NoError(t, err)
	require.Equal(t, 1, res.Splits[dataset.Test].Skipped)
	require.Equal(t, 0, res.Splits[dataset.Test].Labels)
	raw, _ := os.ReadFile(dst)
	require.Equal(t, "original", string(raw))
	_, err = os.Stat(filepath.Join(root, "labels", "test", "e000.txt"))
	require.True(t, os.IsNotExist(err))
}

func TestSplitMissingRoot(t *testing.T) {
	s := newTestSplitter(t, 1)
	_, err := s.Run(context.Background(), filepath.Join(t.TempDir(), "missing"), nil)
	require.True(t, errors.Is(err, dataset.ErrMissingRoot))
}
