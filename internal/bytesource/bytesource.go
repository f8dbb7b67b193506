// Package bytesource provides a read-only, randomly addressable view of a
// whole file.
package bytesource

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// ErrEmptyFile is returned by Open for zero-length files.
var ErrEmptyFile = errors.New("bytesource: file is empty")

// Source is a fixed-length byte view. The view is valid until Close.
type Source struct {
	data    []byte
	release func([]byte) error

	closeOnce sync.Once
	closeErr  error
}

// Open maps the file at path read-only.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bytesource: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("bytesource: %w", err)
	}
	if st.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	data, release, err := mapFile(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("bytesource: mapping %s: %w", path, err)
	}
	return &Source{data: data, release: release}, nil
}

// ReadTail reads the file at path from off to its current end into memory.
// Unlike a mapping, the copy stays valid if the file shrinks while it is
// read; the result is just shorter. It is empty when off is at or past the
// end.
func ReadTail(path string, off int64) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bytesource: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("bytesource: %w", err)
	}
	if st.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}
	if off < 0 {
		off = 0
	}
	if off >= st.Size() {
		return &Source{data: []byte{}}, nil
	}

	data := make([]byte, st.Size()-off)
	n, err := io.ReadFull(io.NewSectionReader(f, off, int64(len(data))), data)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("bytesource: reading %s: %w", path, err)
	}
	return &Source{data: data[:n]}, nil
}

// FromBytes wraps b without copying. Close is a no-op.
func FromBytes(b []byte) *Source {
	return &Source{data: b}
}

// Bytes returns the whole view. Callers must not modify it.
func (s *Source) Bytes() []byte { return s.data }

// Len is the view length in bytes.
func (s *Source) Len() int { return len(s.data) }

// At returns the byte at offset i.
func (s *Source) At(i int) byte { return s.data[i] }

// Slice returns n bytes starting at off.
func (s *Source) Slice(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off > len(s.data)-n {
		return nil, fmt.Errorf("bytesource: range [%d, %d) outside view of %d bytes", off, off+n, len(s.data))
	}
	return s.data[off : off+n : off+n], nil
}

// Close releases the view. Only the first call has an effect.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		if s.release != nil {
			s.closeErr = s.release(s.data)
		}
		s.data = nil
	})
	return s.closeErr
}
