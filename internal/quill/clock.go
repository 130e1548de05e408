package quill

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time so timestamps and backup names are deterministic in
// tests.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// NowMillis returns c.Now() as epoch milliseconds, the unit stored in the
// database.
func NowMillis(c Clock) int64 {
	return c.Now().UnixMilli()
}

// IDGenerator produces unique run identifiers for log correlation.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.NewString() }
