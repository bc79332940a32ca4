//go:build linux || darwin

package fs

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// preadFull reads until buf is full or the file ends and returns the number
// of bytes read.
func preadFull(f *os.File, buf []byte, off int64) (int, error) {
	fd := int(f.Fd())
	total := 0
	for total < len(buf) {
		n, err := unix.Pread(fd, buf[total:], off+int64(total))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

func pwriteFull(f *os.File, buf []byte, off int64) error {
	fd := int(f.Fd())
	for len(buf) > 0 {
		n, err := unix.Pwrite(fd, buf, off)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		buf = buf[n:]
		off += int64(n)
	}
	return nil
}
