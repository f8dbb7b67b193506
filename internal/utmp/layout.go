// Package utmp locates, validates and scores Solaris futmpx login-accounting
// records inside raw wtmpx/utmpx bytes.
package utmp

import "fmt"

// Field widths of the on-disk futmpx record.
const (
	UserLen      = 32
	IDLen        = 4
	LineLen      = 32
	ReservedLen  = 20
	HostFieldLen = 257
)

// Field offsets. Multi-byte integers are stored big-endian and every field
// sits at its natural C alignment, so there are two hidden pad bytes after
// the exit status and one trailing pad byte.
const (
	OffUser        = 0
	OffID          = OffUser + UserLen         // 32
	OffLine        = OffID + IDLen             // 36
	OffPID         = OffLine + LineLen         // 68
	OffType        = OffPID + 4                // 72
	OffTermination = OffType + 2               // 74
	OffExit        = OffTermination + 2        // 76
	OffTimeSec     = OffExit + 2 + 2           // 80
	OffTimeUsec    = OffTimeSec + 4            // 84
	OffSession     = OffTimeUsec + 4           // 88
	OffReserved    = OffSession + 4            // 92
	OffHostLen     = OffReserved + ReservedLen // 112
	OffHost        = OffHostLen + 2            // 114
	recordEnd      = OffHost + HostFieldLen    // 371
	Size           = (recordEnd + 3) &^ 3      // 372
)

// MaxLoginName is the longest login name accepted as a record start.
const MaxLoginName = 8

// Type is the ut_type event kind.
type Type int16

const (
	Empty        Type = 0
	RunLevel     Type = 1
	BootTime     Type = 2
	OldTime      Type = 3
	NewTime      Type = 4
	InitProcess  Type = 5
	LoginProcess Type = 6
	UserProcess  Type = 7
	DeadProcess  Type = 8
	Accounting   Type = 9
)

var typeNames = [...]string{
	Empty:        "EMPTY",
	RunLevel:     "RUN_LVL",
	BootTime:     "BOOT_TIME",
	OldTime:      "OLD_TIME",
	NewTime:      "NEW_TIME",
	InitProcess:  "INIT_PROCESS",
	LoginProcess: "LOGIN_PROCESS",
	UserProcess:  "USER_PROCESS",
	DeadProcess:  "DEAD_PROCESS",
	Accounting:   "ACCOUNTING",
}

// Valid reports whether t is one of the enumerated types.
func (t Type) Valid() bool {
	return t >= Empty && t <= Accounting
}

func (t Type) String() string {
	if t.Valid() {
		return typeNames[t]
	}
	return fmt.Sprintf("TYPE(%d)", int16(t))
}
