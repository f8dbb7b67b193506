package utmp

import (
	"context"
	"fmt"

	"github.com/runreveal/utmpscan/internal/bytesource"
)

// Scanner walks a buffer one byte at a time looking for record starts.
// The format has no delimiters, so alignment is rediscovered from content:
// an accepted record moves the cursor past it, a rejected position moves the
// cursor by one byte.
type Scanner struct {
	buf     []byte
	base    int
	pos     int
	skipped int64

	rec     Record
	userLen int
}

// NewScanner returns a scanner positioned at the start of buf.
func NewScanner(buf []byte) *Scanner {
	return &Scanner{buf: buf}
}

// NewScannerAt returns a scanner whose cursor starts at off.
func NewScannerAt(buf []byte, off int) *Scanner {
	if off < 0 {
		off = 0
	}
	return &Scanner{buf: buf, pos: off}
}

// ctxCheckEvery is how many candidate offsets are tried between checks of
// the context while resynchronising.
const ctxCheckEvery = 4096

// NewScannerFrom scans buf, which holds a file's contents from byte base on.
// Record offsets and Offset are positions in that file.
func NewScannerFrom(buf []byte, base int) *Scanner {
	return &Scanner{buf: buf, base: base}
}

// Scan advances to the next accepted record. It returns false once fewer
// than Size bytes remain after the cursor.
func (s *Scanner) Scan() bool {
	ok, _ := s.ScanContext(context.Background())
	return ok
}

// ScanContext is Scan that gives up with ctx.Err() when ctx is done, even
// in the middle of a long run of unparseable bytes.
func (s *Scanner) ScanContext(ctx context.Context) (bool, error) {
	for i := 0; len(s.buf)-s.pos >= Size; i++ {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return false, err
			}
		}
		rec, err := Decode(s.buf, s.pos)
		if err != nil {
			return false, nil
		}
		if n, ok := ValidUsername(rec); ok {
			rec.offset += int64(s.base)
			s.rec = rec
			s.userLen = n
			s.pos += Size
			return true, nil
		}
		s.pos++
		s.skipped++
	}
	return false, nil
}

// Record is the most recently accepted record.
func (s *Scanner) Record() Record { return s.rec }

// UsernameLen is the logical username length of Record.
func (s *Scanner) UsernameLen() int { return s.userLen }

// Offset is the cursor: where the next Scan resumes.
func (s *Scanner) Offset() int { return s.base + s.pos }

// Skipped counts bytes discarded while resynchronising.
func (s *Scanner) Skipped() int64 { return s.skipped }

// ScanBuffer scores every record found in buf and hands it to fn, in file
// order. It stops at the first error from fn or when ctx is done.
func ScanBuffer(ctx context.Context, buf []byte, scorer Scorer, fn func(Scored) error) error {
	sc := NewScanner(buf)
	for {
		ok, err := sc.ScanContext(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(scorer.Evaluate(sc.Record(), sc.UsernameLen())); err != nil {
			return err
		}
	}
}

// ScanFile maps path read-only, scans it and releases the mapping before
// returning.
func ScanFile(ctx context.Context, path string, scorer Scorer, fn func(Scored) error) (err error) {
	src, err := bytesource.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("utmp: %w", cerr)
		}
	}()
	return ScanBuffer(ctx, src.Bytes(), scorer, fn)
}
