package utmp

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrClock is returned by a Clock that cannot read the current time.
var ErrClock = errors.New("utmp: current time unavailable")

// Clock supplies the current wall-clock time.
type Clock func() (time.Time, error)

// SystemClock reads time.Now.
func SystemClock() (time.Time, error) {
	return time.Now(), nil
}

// ValidUsername decides whether r plausibly starts a record. On success it
// returns the logical length of the login name.
func ValidUsername(r Record) (int, bool) {
	if !r.Type().Valid() {
		return 0, false
	}

	user := r.UserField()
	if !isLower(user[0]) {
		return 0, false
	}

	n := 1
	for n < len(user) && user[n] != 0 {
		n++
	}
	if n > MaxLoginName {
		return 0, false
	}

	for _, c := range user[1:n] {
		if !isLower(c) && !isDigit(c) && c != '.' && c != '_' {
			return 0, false
		}
	}

	// no trailing garbage after the terminator
	if !allZero(user[n:]) {
		return 0, false
	}

	if !allZero(r.ReservedField()) {
		return 0, false
	}
	return n, true
}

// ValidHostname checks RFC 952/1123 label syntax.
func ValidHostname(host string) bool {
	if host == "" || len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if !isAlnum(c) && c != '-' {
				return false
			}
		}
	}
	return true
}

// ValidIP accepts dotted-quad IPv4 literals only.
func ValidIP(ip string) bool {
	groups := strings.Split(ip, ".")
	if len(groups) != 4 {
		return false
	}
	for _, g := range groups {
		if g == "" {
			return false
		}
		v := 0
		for i := 0; i < len(g); i++ {
			if !isDigit(g[i]) {
				return false
			}
			// leading zeros are fine, the value is what counts
			v = v*10 + int(g[i]-'0')
			if v > 255 {
				return false
			}
		}
	}
	return true
}

// TimestampWindow returns the inclusive range of plausible record times:
// from the start of the same calendar day ten years before now through the
// last second of today, in now's location.
func TimestampWindow(now time.Time) (time.Time, time.Time) {
	y, m, d := now.Date()
	loc := now.Location()
	oldest := time.Date(y-10, m, d, 0, 0, 0, 0, loc)
	endOfDay := time.Date(y, m, d, 23, 59, 59, 0, loc)
	return oldest, endOfDay
}

// TimestampValidAt reports whether the Unix time sec falls inside the window
// computed from now.
func TimestampValidAt(sec int64, now time.Time) bool {
	oldest, endOfDay := TimestampWindow(now)
	return sec >= oldest.Unix() && sec <= endOfDay.Unix()
}

// TimestampValid checks sec against the window at the clock's current time.
// A clock failure rejects the timestamp.
func TimestampValid(sec int64, clock Clock) bool {
	if clock == nil {
		clock = SystemClock
	}
	now, err := clock()
	if err != nil {
		slog.Warn(fmt.Sprintf("timestamp check failed: %v", err))
		return false
	}
	return TimestampValidAt(sec, now)
}

func isLower(c byte) bool { return c >= 'a' && c <= 'z' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlnum(c byte) bool {
	return isLower(c) || isDigit(c) || (c >= 'A' && c <= 'Z')
}
