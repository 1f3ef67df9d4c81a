// Package source opens disk images from local files or S3 objects.
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Image is a random-access, read-only disk image.
type Image interface {
	io.ReaderAt
	Size() int64
	Close() error
}

// Options configures Open.
type Options struct {
	// S3 holds the raw "source.s3" configuration section, decoded into
	// S3Config when the image lives in S3.
	S3 map[string]any

	Logger *log.Logger
}

// Open opens the image named by uri: "s3://bucket/key" for S3 objects,
// anything else is a local path.
func Open(ctx context.Context, uri string, opts Options) (Image, error) {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if strings.HasPrefix(uri, "s3://") {
		return openS3(ctx, uri, opts)
	}
	return openFile(uri)
}

type fileImage struct {
	*os.File
	size int64
}

func (f *fileImage) Size() int64 { return f.size }

func openFile(path string) (Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat image: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("opening image: %s is a directory", path)
	}

	return &fileImage{File: file, size: info.Size()}, nil
}
