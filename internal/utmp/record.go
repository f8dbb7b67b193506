package utmp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrShortRecord is returned by Decode when fewer than Size bytes remain.
var ErrShortRecord = errors.New("utmp: short record")

var be = binary.BigEndian

// Record is a read-only view of Size bytes of a byte source. Accessors decode
// on every call and never write to the underlying buffer.
type Record struct {
	raw    []byte
	offset int64
}

// Decode tentatively views buf[off:off+Size] as a record.
func Decode(buf []byte, off int) (Record, error) {
	if off < 0 || off > len(buf) || len(buf)-off < Size {
		return Record{}, fmt.Errorf("%w at offset %d (%d bytes available)", ErrShortRecord, off, max(len(buf)-off, 0))
	}
	return Record{raw: buf[off : off+Size : off+Size], offset: int64(off)}, nil
}

// Offset is the byte position of the record in its source.
func (r Record) Offset() int64 { return r.offset }

// Raw returns the record bytes. Callers must not modify them.
func (r Record) Raw() []byte { return r.raw }

func (r Record) UserField() []byte { return r.raw[OffUser : OffUser+UserLen] }
func (r Record) IDField() []byte { return r.raw[OffID : OffID+IDLen] }
func (r Record) LineField() []byte { return r.raw[OffLine : OffLine+LineLen] }
func (r Record) ReservedField() []byte { return r.raw[OffReserved : OffReserved+ReservedLen] }
func (r Record) HostField() []byte { return r.raw[OffHost : OffHost+HostFieldLen] }

// User is the login name up to its terminator.
func (r Record) User() string { return cString(r.UserField()) }

func (r Record) ID() string { return cString(r.IDField()) }
func (r Record) Line() string { return cString(r.LineField()) }
func (r Record) Host() string { return cString(r.HostField()) }

func (r Record) PID() int32 { return int32(be.Uint32(r.raw[OffPID:])) }
func (r Record) Type() Type { return Type(int16(be.Uint16(r.raw[OffType:]))) }
func (r Record) Session() int32 { return int32(be.Uint32(r.raw[OffSession:])) }
func (r Record) HostLen() int16 { return int16(be.Uint16(r.raw[OffHostLen:])) }
func (r Record) Seconds() int32 { return int32(be.Uint32(r.raw[OffTimeSec:])) }
func (r Record) Micros() int32 { return int32(be.Uint32(r.raw[OffTimeUsec:])) }
func (r Record) TermStatus() int16 {
	return int16(be.Uint16(r.raw[OffTermination:]))
}
func (r Record) ExitStatus() int16 {
	return int16(be.Uint16(r.raw[OffExit:]))
}

// Time is the event timestamp.
func (r Record) Time() time.Time {
	return time.Unix(int64(r.Seconds()), int64(r.Micros())*int64(time.Microsecond))
}

// Entry is a decoded snapshot of a record, safe to retain after the byte
// source is released.
type Entry struct {
	Offset      int64     `json:"offset"`
	User        string    `json:"user"`
	ID          string    `json:"id,omitempty"`
	Line        string    `json:"line"`
	PID         int32     `json:"pid"`
	Type        Type      `json:"type"`
	TypeName    string    `json:"typeName"`
	Termination int16     `json:"termination"`
	Exit        int16     `json:"exit"`
	Time        time.Time `json:"time"`
	Session     int32     `json:"session"`
	HostLen     int16     `json:"hostLen"`
	Host        string    `json:"host"`
}

// Entry decodes every field of r.
func (r Record) Entry() Entry {
	t := r.Type()
	return Entry{
		Offset:      r.offset,
		User:        r.User(),
		ID:          r.ID(),
		Line:        r.Line(),
		PID:         r.PID(),
		Type:        t,
		TypeName:    t.String(),
		Termination: r.TermStatus(),
		Exit:        r.ExitStatus(),
		Time:        r.Time(),
		Session:     r.Session(),
		HostLen:     r.HostLen(),
		Host:        r.Host(),
	}
}

// Scored pairs a decoded record with its suspicion score.
type Scored struct {
	Entry       Entry `json:"record"`
	Score       int   `json:"score"`
	UsernameLen int   `json:"-"`
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
