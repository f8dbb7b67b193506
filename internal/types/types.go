package types

import (
	"encoding/json"
	"net/netip"
	"strconv"
	"time"

	"github.com/runreveal/utmpscan/internal/utmp"
)

type Event struct {
	SourceType string    `json:"sourceType"`
	EventTime  time.Time `json:"eventTime,omitempty"`
	EventName  string    `json:"eventName,omitempty"`

	Actor    Actor             `json:"actor,omitempty"`
	Src      Network           `json:"src,omitempty"`
	Service  Service           `json:"service,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
	ReadOnly bool              `json:"readOnly,omitempty"`

	// Score and Severity describe how suspicious Record looks.
	Score    int         `json:"score"`
	Severity string      `json:"severity,omitempty"`
	Record   *utmp.Entry `json:"record,omitempty"`

	RawLog []byte `json:"rawLog"`
}

type Actor struct {
	ID       string `json:"id,omitempty"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
}

type Network struct {
	IP   netip.Addr `json:"ip,omitempty"`
	Port uint       `json:"port,omitempty"`
}

type Service struct {
	Name string `json:"name,omitempty"`
}

// FromScored builds an event from a scored accounting record. RawLog holds
// the JSON encoding of the record.
func FromScored(sourceType, path, severity string, s utmp.Scored) (Event, error) {
	entry := s.Entry
	raw, err := json.Marshal(entry)
	if err != nil {
		return Event{}, err
	}

	ev := Event{
		SourceType: sourceType,
		EventTime:  entry.Time,
		EventName:  entry.Type.String(),
		Actor:      Actor{Username: entry.User},
		Service:    Service{Name: "login"},
		ReadOnly:   true,
		Score:      s.Score,
		Severity:   severity,
		Record:     &entry,
		RawLog:     raw,
		Tags: map[string]string{
			"file":    path,
			"offset":  strconv.FormatInt(entry.Offset, 10),
			"line":    entry.Line,
			"host":    entry.Host,
			"pid":     strconv.FormatInt(int64(entry.PID), 10),
			"session": strconv.FormatInt(int64(entry.Session), 10),
		},
	}
	if ip, err := netip.ParseAddr(entry.Host); err == nil {
		ev.Src.IP = ip
	}
	return ev, nil
}
