// Package utmptest builds futmpx records for tests.
package utmptest

import (
	"encoding/binary"
	"time"

	"github.com/runreveal/utmpscan/internal/utmp"
)

// Record describes a record to encode. HostLen is written as given; use
// Nominal for a record that scores zero.
type Record struct {
	User        string
	ID          string
	Line        string
	PID         int32
	Type        utmp.Type
	Termination int16
	Exit        int16
	Seconds     int32
	Micros      int32
	Session     int32
	Reserved    []byte
	HostLen     int16
	Host        string
	HostRaw     []byte
}

// Nominal returns a well-formed USER_PROCESS login at now.
func Nominal(user string) Record {
	return Record{
		User:    user,
		ID:      "ts/1",
		Line:    "pts/3",
		PID:     4242,
		Type:    utmp.UserProcess,
		Seconds: int32(time.Now().Unix()),
		Host:    "10.0.0.5",
		HostLen: int16(len("10.0.0.5")),
	}
}

// BootMarker returns the benign console boot record.
func BootMarker() Record {
	return Record{
		User:    "console",
		Line:    "console",
		Type:    utmp.Empty,
		Seconds: int32(time.Now().Unix()),
	}
}

// Bytes encodes r into a big-endian record of utmp.Size bytes.
func (r Record) Bytes() []byte {
	b := make([]byte, utmp.Size)
	be := binary.BigEndian
	copy(b[utmp.OffUser:utmp.OffUser+utmp.UserLen], r.User)
	copy(b[utmp.OffID:utmp.OffID+utmp.IDLen], r.ID)
	copy(b[utmp.OffLine:utmp.OffLine+utmp.LineLen], r.Line)
	be.PutUint32(b[utmp.OffPID:], uint32(r.PID))
	be.PutUint16(b[utmp.OffType:], uint16(r.Type))
	be.PutUint16(b[utmp.OffTermination:], uint16(r.Termination))
	be.PutUint16(b[utmp.OffExit:], uint16(r.Exit))
	be.PutUint32(b[utmp.OffTimeSec:], uint32(r.Seconds))
	be.PutUint32(b[utmp.OffTimeUsec:], uint32(r.Micros))
	be.PutUint32(b[utmp.OffSession:], uint32(r.Session))
	copy(b[utmp.OffReserved:utmp.OffReserved+utmp.ReservedLen], r.Reserved)
	be.PutUint16(b[utmp.OffHostLen:], uint16(r.HostLen))
	if r.HostRaw != nil {
		copy(b[utmp.OffHost:utmp.OffHost+utmp.HostFieldLen], r.HostRaw)
	} else {
		copy(b[utmp.OffHost:utmp.OffHost+utmp.HostFieldLen], r.Host)
	}
	return b
}

// Concat joins encoded records and raw filler into one buffer.
func Concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
