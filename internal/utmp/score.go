package utmp

import "strings"

// Scorer runs the heuristic rule battery over accepted records.
type Scorer struct {
	// Clock supplies "now" for the timestamp rule. Nil means SystemClock.
	Clock Clock
}

// Score computes the suspicion score of r using the system clock.
func Score(r Record, userLen int) int {
	return Scorer{}.Score(r, userLen)
}

// Evaluate decodes r and pairs it with its score.
func (s Scorer) Evaluate(r Record, userLen int) Scored {
	return Scored{
		Entry:       r.Entry(),
		Score:       s.Score(r, userLen),
		UsernameLen: userLen,
	}
}

// Score computes the suspicion score of r. userLen is the logical username
// length reported by ValidUsername. Each check group adds its delta
// independently; within a group only the first matching branch counts.
func (s Scorer) Score(r Record, userLen int) int {
	typ := r.Type()
	pid := r.PID()
	term := r.TermStatus()
	exit := r.ExitStatus()
	session := r.Session()
	user := r.User()

	// synthetic boot and shutdown markers
	if typ == Empty && pid == 0 && term == 0 && exit == 0 && session == 0 {
		switch user {
		case "console", "shutdown", "co10":
			return 0
		}
	}

	score := 0

	if !TimestampValid(int64(r.Seconds()), s.Clock) {
		score += 2
	}

	line := r.Line()
	if line == "" {
		score++
	} else if !strings.Contains(line, "sshd") &&
		!strings.Contains(line, "pts/") &&
		line != "console" &&
		!strings.Contains(line, "ftp") {
		score += 3
	}

	if typ != BootTime && userLen <= 1 {
		score += 10
	} else if userLen <= 2 {
		score += 7
	}

	host := r.Host()
	hostLen := r.HostLen()
	if hostLen == 0 && !allZero(r.HostField()) {
		score += 3
	} else if !ValidHostname(host) && !ValidIP(host) && len(host) != int(hostLen) {
		score += 3
	}

	if typ == Empty {
		score++
	} else if !(typ > Empty && typ <= Accounting) {
		score += 2
	}

	if pid > 30000 {
		score++
	} else if pid < 100 {
		score++
	}

	if !(term == 0 && (exit == 0 || exit == 256)) {
		score++
	} else if uint16(term) > 256 && uint16(exit) > 256 {
		score++
	}

	if session != 0 {
		score++
	}
	return score
}
