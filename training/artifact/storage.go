// Package artifact stores the products of training runs (exported models, reports)
// in a blob store, so that they can be picked up by whatever deploys them.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trainkit/training/config"
)

var ErrNoPublicUrl = errors.New("No public URL available")

// Storage is an abstraction of a blob store
type Storage interface {
	WriteFile(ctx context.Context, name string) (io.WriteCloser, error)
	ReadFile(ctx context.Context, name string) (*File, error)
	DeleteFile(ctx context.Context, name string) error
	URL(name string) (string, error)
}

// File is a blob opened for reading. You must close Reader when done.
type File struct {
	Reader     io.ReadCloser
	ModifiedAt time.Time
	Size       int64
}

// Open returns the storage that is configured, or nil if none is configured
func Open(ctx context.Context, log logs.Log, cfg config.ArtifactsConfig) (Storage, error) {
	if cfg.Filesystem != nil {
		return NewStorageFS(log, cfg.Filesystem.Root)
	}
	if cfg.GCS != nil {
		return NewStorageGCS(ctx, log, cfg.GCS.Bucket, cfg.GCS.Prefix)
	}
	return nil, nil
}

// WriteFile writes the whole of r into the named blob
func WriteFile(ctx context.Context, s Storage, name string, r io.Reader) error {
	w, err := s.WriteFile(ctx, name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// ReadFile reads the whole of the named blob
func ReadFile(ctx context.Context, s Storage, name string) ([]byte, error) {
	f, err := s.ReadFile(ctx, name)
	if err != nil {
		return nil, err
	}
	defer f.Reader.Close()
	return io.ReadAll(f.Reader)
}

// Publish uploads a local file
func Publish(ctx context.Context, s Storage, name, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := WriteFile(ctx, s, name, f); err != nil {
		return fmt.Errorf("Failed to publish %v as %v: %w", localPath, name, err)
	}
	return nil
}
