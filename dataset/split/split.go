// Package split partitions a dataset's images into train/val/test.
package split

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trainkit/dataset"
	"github.com/cyclopcam/trainkit/pkg/diskspace"
	"github.com/cyclopcam/trainkit/pkg/iox"
	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

const (
	TrainFraction = 0.70
	ValFraction   = 0.15
)

// Partition returns the boundaries of the train and val partitions of n items.
// Items [0,endTrain) are train, [endTrain,endVal) are val, and the rest are test.
// Both fractions are truncated, so any remainder lands in test.
func Partition(n int) (endTrain, endVal int) {
	endTrain = int(float64(n) * TrainFraction)
	endVal = endTrain + int(float64(n)*ValFraction)
	return
}

type Options struct {
	Rand           *rand.Rand // If nil, the global (randomly seeded) source is used
	Workers        int        // Number of concurrent file transfers. Values below 2 mean sequential.
	Progress       io.Writer  // If not nil, a progress bar is drawn here
	SkipSpaceCheck bool       // Don't compare the size of copied files against free disk space
}

// Counts of one partition
type Counts struct {
	Images  int `json:"images"`  // Images transferred
	Labels  int `json:"labels"`  // Labels transferred
	Skipped int `json:"skipped"` // Images whose destination already existed
	Failed  int `json:"failed"`  // Transfers that failed
}

// Result of a split run
type Result struct {
	Splits        map[dataset.Split]*Counts `json:"splits"`
	MissingExtras []string                  `json:"missingExtras"`
}

func newResult() *Result {
	r := &Result{Splits: map[dataset.Split]*Counts{}}
	for _, s := range dataset.Splits {
		r.Splits[s] = &Counts{}
	}
	return r
}

// Total sums the counts of all partitions
func (r *Result) Total() Counts {
	t := Counts{}
	for _, c := range r.Splits {
		t.Images += c.Images
		t.Labels += c.Labels
		t.Skipped += c.Skipped
		t.Failed += c.Failed
	}
	return t
}

// Splitter distributes images (and their labels) into the train/val/test folders of a dataset
type Splitter struct {
	Log     logs.Log
	Options Options

	lock sync.Mutex
}

func NewSplitter(log logs.Log, options Options) *Splitter {
	return &Splitter{
		Log:     log,
		Options: options,
	}
}

// A single image to transfer, with its optional label
type job struct {
	split    dataset.Split
	imgSrc   string
	imgDst   string
	labelSrc string
	labelDst string
}

// Run copies a 70/15/15 partition of every extra dataset's images into root, and then
// moves a 70/15/15 partition of any unsorted images lying directly inside root/images.
// Images already present in any partition are skipped, so the split can simply be repeated.
// A missing root is fatal, and nothing is touched. A missing extra is skipped with a warning.
func (s *Splitter) Run(ctx context.Context, root string, extras []string) (*Result, error) {
	if !iox.IsDir(root) {
		return nil, fmt.Errorf("%w: %v", dataset.ErrMissingRoot, root)
	}
	layout := dataset.Layout{Root: root}
	if err := layout.MakeSplitDirs(); err != nil {
		return nil, fmt.Errorf("Failed to create split folders: %w", err)
	}
	result := newResult()

	for _, extra := range extras {
		if !iox.IsDir(extra) {
			s.Log.Warnf("Additional dataset %v not found, skipping", extra)
			result.MissingExtras = append(result.MissingExtras, extra)
			continue
		}
		src := dataset.Layout{Root: extra}
		images, err := dataset.ListImages(src.Images())
		if err != nil {
			s.Log.Warnf("Failed to list images in %v: %v", src.Images(), err)
			continue
		}
		s.Log.Infof("Copying %v images from %v", len(images), extra)
		jobs := s.plan(images, src.Images(), src.Labels(), layout)
		s.checkSpace(jobs, root)
		if err := s.transfer(ctx, jobs, false, result, "copy "+filepath.Base(extra)); err != nil {
			return result, err
		}
	}

	images, err := dataset.ListImages(layout.Images())
	if err != nil {
		return result, fmt.Errorf("Failed to list images in %v: %w", layout.Images(), err)
	}
	if len(images) != 0 {
		s.Log.Infof("Moving %v unsorted images in %v", len(images), layout.Images())
		jobs := s.plan(images, layout.Images(), layout.Labels(), layout)
		if err := s.transfer(ctx, jobs, true, result, "move"); err != nil {
			return result, err
		}
	}

	total := result.Total()
	s.Log.Infof("Split complete: train %v, val %v, test %v (skipped %v, failed %v)",
		result.Splits[dataset.Train].Images, result.Splits[dataset.Val].Images, result.Splits[dataset.Test].Images, total.Skipped, total.Failed)
	return result, nil
}

// placed returns the partition that already holds an image of this name
func placed(dst dataset.Layout, name string) (dataset.Split, bool) {
	for _, split := range dataset.Splits {
		if iox.Exists(filepath.Join(dst.ImagesOf(split), name)) {
			return split, true
		}
	}
	return "", false
}

// Shuffle the images and assign each one to a partition.
// An image that is already in any partition stays there, and is only partitioned once.
func (s *Splitter) plan(images []string, imgDir, labelDir string, dst dataset.Layout) []job {
	makeJob := func(split dataset.Split, name string) job {
		label := dataset.LabelName(name)
		return job{
			split:    split,
			imgSrc:   filepath.Join(imgDir, name),
			imgDst:   filepath.Join(dst.ImagesOf(split), name),
			labelSrc: filepath.Join(labelDir, label),
			labelDst: filepath.Join(dst.LabelsOf(split), label),
		}
	}

	jobs := make([]job, 0, len(images))
	fresh := []string{}
	for _, name := range images {
		if split, ok := placed(dst, name); ok {
			jobs = append(jobs, makeJob(split, name))
		} else {
			fresh = append(fresh, name)
		}
	}

	swap := func(i, j int) { fresh[i], fresh[j] = fresh[j], fresh[i] }
	if s.Options.Rand != nil {
		s.Options.Rand.Shuffle(len(fresh), swap)
	} else {
		rand.Shuffle(len(fresh), swap)
	}
	endTrain, endVal := Partition(len(fresh))
	for i, name := range fresh {
		split := dataset.Test
		if i < endTrain {
			split = dataset.Train
		} else if i < endVal {
			split = dataset.Val
		}
		jobs = append(jobs, makeJob(split, name))
	}
	return jobs
}

// Warn if the files we're about to copy won't fit
func (s *Splitter) checkSpace(jobs []job, root string) {
	if s.Options.SkipSpaceCheck {
		return
	}
	var need uint64
	for _, j := range jobs {
		for _, fn := range []string{j.imgSrc, j.labelSrc} {
			if st, err := os.Stat(fn); err == nil {
				need += uint64(st.Size())
			}
		}
	}
	free, err := diskspace.Free(root)
	if err != nil {
		s.Log.Debugf("Unable to determine free space on %v: %v", root, err)
		return
	}
	if need > free {
		s.Log.Warnf("Copying needs up to %v, but only %v is free on %v", humanize.Bytes(need), humanize.Bytes(free), root)
	}
}

func (s *Splitter) transfer(ctx context.Context, jobs []job, move bool, result *Result, desc string) error {
	var bar *progressbar.ProgressBar
	if s.Options.Progress != nil {
		bar = progressbar.NewOptions(len(jobs),
			progressbar.OptionSetWriter(s.Options.Progress),
			progressbar.OptionSetDescription(desc),
			progressbar.OptionShowCount(),
		)
		defer bar.Finish()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.Options.Workers))
	for _, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s.transferOne(j, move, result)
			if bar != nil {
				bar.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Splitter) transferOne(j job, move bool, result *Result) {
	if iox.Exists(j.imgDst) {
		s.count(result, j.split, func(c *Counts) { c.Skipped++ })
		return
	}
	if err := iox.TransferFile(j.imgSrc, j.imgDst, move); err != nil {
		s.Log.Errorf("Failed to transfer %v: %v", j.imgSrc, err)
		s.count(result, j.split, func(c *Counts) { c.Failed++ })
		return
	}
	labelDone := false
	if iox.Exists(j.labelSrc) && !iox.Exists(j.labelDst) {
		if err := iox.TransferFile(j.labelSrc, j.labelDst, move); err != nil {
			s.Log.Errorf("Failed to transfer %v: %v", j.labelSrc, err)
			s.count(result, j.split, func(c *Counts) { c.Failed++ })
		} else {
			labelDone = true
		}
	}
	s.count(result, j.split, func(c *Counts) {
		c.Images++
		if labelDone {
			c.Labels++
		}
	})
}

func (s *Splitter) count(result *Result, split dataset.Split, f func(c *Counts)) {
	s.lock.Lock()
	defer s.lock.Unlock()
	f(result.Splits[split])
}
