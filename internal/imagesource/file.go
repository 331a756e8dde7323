// Package imagesource supplies firmware image bytes to the update engine.
package imagesource

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Reader is the contract the engine pulls image bytes through: a short read
// (n < len(buf)) marks the final chunk, and a read returning (0, nil) marks
// end of input with no further data.
type Reader interface {
	Read(buf []byte) (int, error)
	Close() error
}

// File is a Reader backed by a local firmware image file.
type File struct {
	f *os.File
}

// Open opens path for reading as an image source.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	return &File{f: f}, nil
}

// Read forwards to the underlying file, collapsing io.EOF into the
// zero-read-means-done convention the engine expects.
func (r *File) Read(buf []byte) (int, error) {
	n, err := r.f.Read(buf)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

func (r *File) Close() error { return r.f.Close() }

// Size reports the image file's length in bytes, for progress reporting.
func (r *File) Size() (int64, error) {
	info, err := r.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
