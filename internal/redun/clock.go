package redun

import (
	"time"

	"github.com/google/uuid"
)

// Clock stamps catalog rows. Tests substitute a fixed instant.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator names data sets and redundancy generations. A generation's
// segments live under "<id>.r/", so ids must never repeat on one medium.
type IDGenerator interface {
	New() string
}

// UUIDGenerator names with random (version 4) UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.NewString() }
