// Package archive uploads finished case outputs to object storage.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Archiver uploads a case's output streams, and optionally a run index
// snapshot, once the case has finished.
type Archiver struct {
	uploader Uploader
	index    Snapshotter
	log      *zap.Logger
	now      func() time.Time
}

// New builds an Archiver from cfg. It returns nil when archiving is disabled.
// index may be nil; snapshots are then skipped.
func New(cfg Config, index Snapshotter, log *zap.Logger) (*Archiver, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if strings.TrimSpace(cfg.BucketURL) == "" {
		return nil, fmt.Errorf("archive: bucket-url is required when archiving is enabled")
	}
	up, err := NewS3Uploader(cfg)
	if err != nil {
		return nil, fmt.Errorf("archive: init s3 uploader: %w", err)
	}
	if !cfg.SnapshotIndex {
		index = nil
	}
	return NewWithUploader(up, index, log), nil
}

// NewWithUploader builds an Archiver around an existing uploader.
func NewWithUploader(up Uploader, index Snapshotter, log *zap.Logger) *Archiver {
	if log == nil {
		log = zap.NewNop()
	}
	if index != nil && strings.TrimSpace(index.DBPath()) == "" {
		index = nil
	}
	return &Archiver{uploader: up, index: index, log: log, now: time.Now}
}

// ArchiveCase uploads each file as <case>/<basename>. Every file is
// attempted; failures are returned joined.
func (a *Archiver) ArchiveCase(ctx context.Context, caseName string, files []string) error {
	var errs []error
	for _, f := range files {
		key := objectKey(caseName, filepath.Base(f))
		if err := a.uploader.UploadFile(ctx, f, key); err != nil {
			errs = append(errs, err)
			continue
		}
		a.log.Info("archived output", zap.String("case", caseName), zap.String("key", key))
	}
	if a.index != nil {
		if err := a.snapshot(ctx, caseName); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Archiver) snapshot(ctx context.Context, caseName string) error {
	dir, err := os.MkdirTemp("", "probe-snapshot-")
	if err != nil {
		return fmt.Errorf("archive: snapshot dir: %w", err)
	}
	defer os.RemoveAll(dir)

	name := fmt.Sprintf("index-%s.duckdb", a.now().UTC().Format("20060102-150405"))
	local := filepath.Join(dir, name)
	if err := a.index.SnapshotTo(local); err != nil {
		return fmt.Errorf("archive: snapshot: %w", err)
	}
	key := objectKey(caseName, name)
	if err := a.uploader.UploadFile(ctx, local, key); err != nil {
		return err
	}
	a.log.Info("archived run index snapshot", zap.String("case", caseName), zap.String("key", key))
	return nil
}

func objectKey(caseName, base string) string {
	return path.Join(sanitize(caseName), base)
}

func sanitize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "default"
	}
	return strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(name)
}
