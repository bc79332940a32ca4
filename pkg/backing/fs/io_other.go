//go:build !linux && !darwin

package fs

import (
	"errors"
	"io"
	"os"
)

func preadFull(f *os.File, buf []byte, off int64) (int, error) {
	n, err := f.ReadAt(buf, off)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

func pwriteFull(f *os.File, buf []byte, off int64) error {
	_, err := f.WriteAt(buf, off)
	return err
}
