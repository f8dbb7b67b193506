package utmp_test

import (
	"testing"
	"time"

	"github.com/runreveal/utmpscan/internal/utmp"
	"github.com/runreveal/utmpscan/internal/utmp/utmptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedNow is 2023-11-14 22:13:20 UTC.
var fixedNow = time.Unix(1700000000, 0).UTC()

var fixedScorer = utmp.Scorer{Clock: func() (time.Time, error) { return fixedNow, nil }}

func nominal(user string) utmptest.Record {
	r := utmptest.Nominal(user)
	r.Seconds = int32(fixedNow.Unix())
	return r
}

func score(t *testing.T, r utmptest.Record) int {
	t.Helper()
	rec := decode(t, r)
	n, ok := utmp.ValidUsername(rec)
	require.True(t, ok, "record must be accepted by the username validator")
	return fixedScorer.Score(rec, n)
}

func TestScoreNominal(t *testing.T) {
	assert.Equal(t, 0, score(t, nominal("operator")))
	assert.Equal(t, 0, score(t, nominal("root")))
}

func TestScoreBenignMarkers(t *testing.T) {
	for _, user := range []string{"console", "shutdown", "co10"} {
		t.Run(user, func(t *testing.T) {
			r := utmptest.Record{
				User:    user,
				Type:    utmp.Empty,
				Line:    "",
				Seconds: 0,
				HostRaw: []byte("garbage host bytes"),
			}
			assert.Equal(t, 0, score(t, r))
		})
	}

	t.Run("session breaks exception", func(t *testing.T) {
		r := utmptest.BootMarker()
		r.Seconds = int32(fixedNow.Unix())
		r.Session = 1
		assert.Greater(t, score(t, r), 0)
	})

	t.Run("exit status breaks exception", func(t *testing.T) {
		r := utmptest.BootMarker()
		r.Seconds = int32(fixedNow.Unix())
		r.Exit = 1
		assert.Greater(t, score(t, r), 0)
	})
}

func TestScoreRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*utmptest.Record)
		want   int
	}{
		{name: "epoch timestamp", mutate: func(r *utmptest.Record) { r.Seconds = 0 }, want: 2},
		{name: "future timestamp", mutate: func(r *utmptest.Record) { r.Seconds = int32(fixedNow.Add(48 * time.Hour).Unix()) }, want: 2},
		{name: "empty line", mutate: func(r *utmptest.Record) { r.Line = "" }, want: 1},
		{name: "unknown line", mutate: func(r *utmptest.Record) { r.Line = "xterm" }, want: 3},
		{name: "sshd line", mutate: func(r *utmptest.Record) { r.Line = "sshd:1234" }, want: 0},
		{name: "console line", mutate: func(r *utmptest.Record) { r.Line = "console" }, want: 0},
		{name: "console prefix line", mutate: func(r *utmptest.Record) { r.Line = "console2" }, want: 3},
		{name: "ftp line", mutate: func(r *utmptest.Record) { r.Line = "ftp4711" }, want: 0},
		{name: "one char user", mutate: func(r *utmptest.Record) { r.User = "a" }, want: 10},
		{name: "one char user at boot", mutate: func(r *utmptest.Record) { r.User = "a"; r.Type = utmp.BootTime }, want: 7},
		{name: "two char user", mutate: func(r *utmptest.Record) { r.User = "ab" }, want: 7},
		{name: "three char user", mutate: func(r *utmptest.Record) { r.User = "abc" }, want: 0},
		{name: "host bytes without length", mutate: func(r *utmptest.Record) { r.HostLen = 0 }, want: 3},
		{name: "hidden host bytes", mutate: func(r *utmptest.Record) {
			r.HostLen = 0
			r.HostRaw = append(make([]byte, 200), 'x')
		}, want: 3},
		{name: "ip host", mutate: func(r *utmptest.Record) { r.Host = "192.168.1.1"; r.HostLen = 11 }, want: 0},
		{name: "hostname with wrong length", mutate: func(r *utmptest.Record) { r.Host = "gw.example.com"; r.HostLen = 3 }, want: 0},
		{name: "junk host with wrong length", mutate: func(r *utmptest.Record) { r.Host = "bad host!"; r.HostLen = 3 }, want: 3},
		{name: "junk host with right length", mutate: func(r *utmptest.Record) { r.Host = "bad host!"; r.HostLen = 9 }, want: 0},
		{name: "empty host with length", mutate: func(r *utmptest.Record) { r.Host = ""; r.HostLen = 5 }, want: 3},
		{name: "empty host", mutate: func(r *utmptest.Record) { r.Host = ""; r.HostLen = 0 }, want: 0},
		{name: "empty type", mutate: func(r *utmptest.Record) { r.Type = utmp.Empty }, want: 1},
		{name: "accounting type", mutate: func(r *utmptest.Record) { r.Type = utmp.Accounting }, want: 0},
		{name: "high pid", mutate: func(r *utmptest.Record) { r.PID = 30001 }, want: 1},
		{name: "pid at upper bound", mutate: func(r *utmptest.Record) { r.PID = 30000 }, want: 0},
		{name: "low pid", mutate: func(r *utmptest.Record) { r.PID = 99 }, want: 1},
		{name: "pid at lower bound", mutate: func(r *utmptest.Record) { r.PID = 100 }, want: 0},
		{name: "exit 256", mutate: func(r *utmptest.Record) { r.Exit = 256 }, want: 0},
		{name: "exit 1", mutate: func(r *utmptest.Record) { r.Exit = 1 }, want: 1},
		{name: "termination set", mutate: func(r *utmptest.Record) { r.Termination = 9 }, want: 1},
		{name: "both exit fields large", mutate: func(r *utmptest.Record) { r.Termination = 300; r.Exit = 300 }, want: 1},
		{name: "session", mutate: func(r *utmptest.Record) { r.Session = 12 }, want: 1},
		{name: "everything wrong", mutate: func(r *utmptest.Record) {
			r.User = "z"
			r.Line = "tty?"
			r.Seconds = 0
			r.HostLen = 0
			r.Type = utmp.Empty
			r.PID = 65000
			r.Termination = 1
			r.Session = 7
		}, want: 2 + 3 + 10 + 3 + 1 + 1 + 1 + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := nominal("operator")
			tt.mutate(&r)
			assert.Equal(t, tt.want, score(t, r))
		})
	}
}

func TestScoreClockFailure(t *testing.T) {
	s := utmp.Scorer{Clock: func() (time.Time, error) { return time.Time{}, utmp.ErrClock }}
	rec := decode(t, nominal("operator"))
	n, ok := utmp.ValidUsername(rec)
	require.True(t, ok)
	assert.Equal(t, 2, s.Score(rec, n))
}

func TestScoreSystemClock(t *testing.T) {
	rec := decode(t, utmptest.Nominal("operator"))
	n, ok := utmp.ValidUsername(rec)
	require.True(t, ok)
	assert.Equal(t, 0, utmp.Score(rec, n))
}
