// Package fileutil provides bounded file reads for operator-supplied files.
package fileutil

import (
	"fmt"
	"io"
	"os"
)

// MaxSeedFileSize bounds seed documents loaded at startup.
const MaxSeedFileSize int64 = 8 << 20

// ReadFileLimited reads a file up to maxSize bytes and fails on anything
// larger, including files that grow while being read.
func ReadFileLimited(path string, maxSize int64) ([]byte, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from operator configuration
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxSize {
		return nil, fmt.Errorf("file size %d exceeds maximum allowed size %d", info.Size(), maxSize)
	}

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("file size exceeds maximum allowed size %d", maxSize)
	}
	return data, nil
}
