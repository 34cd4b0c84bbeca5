// Package sectorio provides fixed-size, offset-addressed reads and writes
// over disk images. Every helper works on io.ReaderAt / io.WriterAt so that
// callers decide how long a handle lives; the Open helpers give the scoped
// open -> use -> close pattern used by the volume engine.
package sectorio

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrLimitExceeded is returned by WriteFrom when the write would cross the
// forbidden limit.
var ErrLimitExceeded = errors.New("write would cross the forbidden limit")

// ReadSector reads sector number sector of sectorSize bytes.
func ReadSector(r io.ReaderAt, sector uint64, sectorSize int) ([]byte, error) {
	if sectorSize <= 0 {
		return nil, fmt.Errorf("invalid sector size %d", sectorSize)
	}
	buf := make([]byte, sectorSize)
	if err := ReadFull(r, buf, int64(sector)*int64(sectorSize)); err != nil {
		return nil, fmt.Errorf("read sector %d: %w", sector, err)
	}
	return buf, nil
}

// ReadFull fills buf from offset off. A short read is an error.
func ReadFull(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("read %d bytes at offset %d (got %d): %w", len(buf), off, n, err)
}

// WriteAt writes data verbatim at byte offset off.
func WriteAt(w io.WriterAt, off int64, data []byte) error {
	n, err := w.WriteAt(data, off)
	if err != nil {
		return fmt.Errorf("write %d bytes at offset %d: %w", len(data), off, err)
	}
	if n != len(data) {
		return fmt.Errorf("write at offset %d: wrote %d of %d bytes: %w", off, n, len(data), io.ErrShortWrite)
	}
	return nil
}

// WriteFrom copies length bytes from src to offset off in chunks of
// chunkSize bytes. When limit is non-zero the whole write must end at or
// before byte limit, otherwise nothing is written.
func WriteFrom(w io.WriterAt, off int64, src io.Reader, length int64, chunkSize int, limit int64) error {
	if limit > 0 && off+length > limit {
		return fmt.Errorf("cannot write %d bytes starting at %d without crossing %d: %w",
			length, off, limit, ErrLimitExceeded)
	}
	if chunkSize <= 0 {
		return fmt.Errorf("invalid chunk size %d", chunkSize)
	}

	buf := make([]byte, chunkSize)
	var done int64
	for done < length {
		want := int64(chunkSize)
		if rest := length - done; rest < want {
			want = rest
		}
		n, err := io.ReadFull(src, buf[:want])
		if n > 0 {
			if werr := WriteAt(w, off+done, buf[:n]); werr != nil {
				return werr
			}
			done += int64(n)
		}
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return fmt.Errorf("source ended after %d of %d bytes: %w", done, length, io.ErrUnexpectedEOF)
			}
			return fmt.Errorf("read source: %w", err)
		}
	}
	return nil
}

// OpenRead opens path read-only, runs fn and closes the handle.
func OpenRead(path string, fn func(f *os.File) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	return fn(f)
}

// OpenWrite opens path read-write, runs fn and closes the handle. The close
// error is reported when fn succeeded.
func OpenWrite(path string, fn func(f *os.File) error) (err error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open image for writing: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close image: %w", cerr)
		}
	}()
	return fn(f)
}

// SectorCount returns the number of whole sectors in the file at path.
func SectorCount(path string, sectorSize int) (uint64, error) {
	if sectorSize <= 0 {
		return 0, fmt.Errorf("invalid sector size %d", sectorSize)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat image: %w", err)
	}
	return uint64(fi.Size()) / uint64(sectorSize), nil
}

// IsZero reports whether every byte of b is zero.
func IsZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
