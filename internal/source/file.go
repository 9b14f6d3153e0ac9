// Package source provides the places a dataset can be read from: a local
// file, an S3 compatible bucket, or one falling back to the other.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// File reads the dataset from the local filesystem.
type File struct {
	Path string
}

func (f File) Name() string { return f.Path }

func (f File) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	return fh, nil
}

// Source mirrors engine.Source so this package stays free of engine imports.
type Source interface {
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Fallback tries Primary first and reads Secondary when it fails.
type Fallback struct {
	Primary   Source
	Secondary Source
	Logger    *slog.Logger
}

func (f Fallback) Name() string {
	return f.Primary.Name() + "|" + f.Secondary.Name()
}

func (f Fallback) Open(ctx context.Context) (io.ReadCloser, error) {
	rc, err := f.Primary.Open(ctx)
	if err == nil {
		return rc, nil
	}
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("primary dataset source failed, using fallback",
		slog.String("primary", f.Primary.Name()),
		slog.String("fallback", f.Secondary.Name()),
		slog.String("error", err.Error()),
	)
	rc, err2 := f.Secondary.Open(ctx)
	if err2 != nil {
		return nil, errors.Join(err, err2)
	}
	return rc, nil
}
