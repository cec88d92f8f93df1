// Package dataset describes the on-disk layout of a YOLO dataset.
//
//	root/
//	  data.yaml
//	  images/{train,val,test}/*.jpg
//	  labels/{train,val,test}/*.txt
//
// Unsorted images may sit directly inside images/, with their labels directly inside labels/.
package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	ImagesDir = "images"
	LabelsDir = "labels"
	DataYAML  = "data.yaml"
)

// Split is one of the three dataset partitions
type Split string

const (
	Train Split = "train"
	Val   Split = "val"
	Test  Split = "test"
)

// Splits lists the partitions in their canonical order
var Splits = []Split{Train, Val, Test}

// ImageExtensions are the file extensions (lowercase) that we consider to be images
var ImageExtensions = []string{".jpg", ".png", ".jpeg"}

// ErrMissingRoot is returned when the dataset root directory does not exist
var ErrMissingRoot = errors.New("Dataset root does not exist")

// ErrMissingDataYAML is returned when the dataset has no data.yaml
var ErrMissingDataYAML = errors.New("Dataset has no data.yaml")

// IsImage returns true if the filename has an image extension (case-insensitive)
func IsImage(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// LabelName returns the label filename belonging to an image filename.
// "a.b.jpg" becomes "a.b.txt".
func LabelName(imageName string) string {
	return strings.TrimSuffix(imageName, filepath.Ext(imageName)) + ".txt"
}

// ListImages returns the names of the regular image files directly inside dir, sorted.
// Subdirectories are ignored.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if !e.Type().IsRegular() || !IsImage(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Layout resolves the directories of a dataset rooted at Root
type Layout struct {
	Root string
}

func (l Layout) Images() string {
	return filepath.Join(l.Root, ImagesDir)
}

func (l Layout) Labels() string {
	return filepath.Join(l.Root, LabelsDir)
}

func (l Layout) ImagesOf(s Split) string {
	return filepath.Join(l.Root, ImagesDir, string(s))
}

func (l Layout) LabelsOf(s Split) string {
	return filepath.Join(l.Root, LabelsDir, string(s))
}

func (l Layout) DataYAML() string {
	return filepath.Join(l.Root, DataYAML)
}

// LabelFolders returns labels/{train,val,test}, the folders that the auditor inspects
func (l Layout) LabelFolders() []string {
	r := []string{}
	for _, s := range Splits {
		r = append(r, l.LabelsOf(s))
	}
	return r
}

// MakeSplitDirs creates images/{split} and labels/{split} for all three splits
func (l Layout) MakeSplitDirs() error {
	for _, s := range Splits {
		if err := os.MkdirAll(l.ImagesOf(s), 0755); err != nil {
			return err
		}
		if err := os.MkdirAll(l.LabelsOf(s), 0755); err != nil {
			return err
		}
	}
	return nil
}
