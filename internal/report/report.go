// Package report renders scored records for an operator.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/runreveal/utmpscan/internal/utmp"
)

// DefaultMaxScore is the highest score shown when no limit is configured.
const DefaultMaxScore = 10

// PauseThreshold is the lowest score that pauses output in pause mode.
const PauseThreshold = 3

// Tier is the severity band of a score.
type Tier int

const (
	TierNone Tier = iota
	TierLow
	TierMedium
	TierHigh
)

// TierFor maps a score onto its tier.
func TierFor(score int) Tier {
	switch {
	case score >= 8:
		return TierHigh
	case score >= 5:
		return TierMedium
	case score >= 3:
		return TierLow
	default:
		return TierNone
	}
}

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	default:
		return "none"
	}
}

func (t Tier) color() string {
	switch t {
	case TierHigh:
		return "\033[31m"
	case TierMedium:
		return "\033[35m"
	case TierLow:
		return "\033[36m"
	default:
		return ""
	}
}

const colorReset = "\033[0m"

// TimeLayout formats record timestamps in output lines.
const TimeLayout = "2006-01-02 15:04:05"

type Option func(*Reporter)

// WithMaxScore drops records scoring above n.
func WithMaxScore(n int) Option {
	return func(r *Reporter) {
		r.maxScore = n
	}
}

// WithWriter sets the output writer. Defaults to os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(r *Reporter) {
		r.out = w
	}
}

// WithColor enables ANSI colouring by tier.
func WithColor(on bool) Option {
	return func(r *Reporter) {
		r.color = on
	}
}

// WithPause waits for a line from in after each suspicious record.
func WithPause(in io.Reader) Option {
	return func(r *Reporter) {
		if in == nil {
			r.pause = nil
			return
		}
		r.pause = bufio.NewReader(in)
	}
}

// Reporter writes one line per shown record. It is safe for concurrent use.
type Reporter struct {
	mu       sync.Mutex
	maxScore int
	out      io.Writer
	color    bool
	pause    *bufio.Reader
}

func New(opts ...Option) *Reporter {
	r := &Reporter{
		maxScore: DefaultMaxScore,
		out:      os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxScore is the configured cutoff.
func (r *Reporter) MaxScore() int { return r.maxScore }

// Shown reports whether a record with score passes the cutoff.
func (r *Reporter) Shown(score int) bool { return score <= r.maxScore }

// Report writes s unless its score exceeds the cutoff. It returns whether
// the record was shown.
func (r *Reporter) Report(s utmp.Scored) (bool, error) {
	if !r.Shown(s.Score) {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	line := Format(s)
	if r.color {
		if c := TierFor(s.Score).color(); c != "" {
			line = c + line + colorReset
		}
	}
	if _, err := io.WriteString(r.out, line+"\n"); err != nil {
		return true, fmt.Errorf("report: %w", err)
	}

	if r.pause != nil && s.Score >= PauseThreshold {
		if _, err := r.pause.ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
			return true, fmt.Errorf("report: pause: %w", err)
		}
	}
	return true, nil
}

// Format renders s as a tab-separated line: time, user, line, host, pid,
// type, exit, termination, session, score.
func Format(s utmp.Scored) string {
	e := s.Entry
	return fmt.Sprintf("%19s\t%8s\t%12s\t%48s\t%10d\t%d\t%d\t%d\t%d\t%d",
		e.Time.Local().Format(TimeLayout),
		e.User,
		e.Line,
		e.Host,
		e.PID,
		int16(e.Type),
		e.Exit,
		e.Termination,
		e.Session,
		s.Score,
	)
}
